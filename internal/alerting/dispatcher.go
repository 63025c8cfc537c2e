package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"crypto-pulse/internal/detector"
)

// ChannelConfig is the effective per-invocation channel selection. It is a
// plain value so callers can vary routing between dispatch calls without
// rebuilding the Dispatcher.
type ChannelConfig struct {
	EmailEnabled    bool
	TelegramEnabled bool
}

// Dispatcher fans detected events out to the configured channels.
// Delivery is best effort: a failing channel is logged and never blocks the
// remaining channels or events.
type Dispatcher struct {
	email    Notifier
	telegram Notifier
	logger   zerolog.Logger
}

// NewDispatcher wires the available notifiers. Either notifier may be nil
// when its channel is unconfigured; dispatching to it then degrades to a
// warning.
func NewDispatcher(email, telegram Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		email:    email,
		telegram: telegram,
		logger:   logger.With().Str("component", "alert_dispatcher").Logger(),
	}
}

// Dispatch delivers each event once per enabled channel, skipping duplicate
// messages within the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg ChannelConfig, events []detector.Event, detectedAt time.Time) {
	seen := make(map[string]struct{}, len(events))
	for _, event := range events {
		if _, dup := seen[event.Message]; dup {
			continue
		}
		seen[event.Message] = struct{}{}

		note := Notification{
			Kind:       string(event.Kind),
			CoinID:     event.CoinID,
			Message:    event.Message,
			DetectedAt: detectedAt,
		}

		if cfg.EmailEnabled {
			d.deliver(ctx, "email", d.email, note)
		}
		if cfg.TelegramEnabled {
			d.deliver(ctx, "telegram", d.telegram, note)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, channel string, notifier Notifier, note Notification) {
	if notifier == nil {
		d.logger.Warn().Str("channel", channel).Msg("channel enabled but not configured; alert skipped")
		return
	}
	if err := notifier.Notify(ctx, note); err != nil {
		d.logger.Warn().Err(err).Str("channel", channel).Str("coin_id", note.CoinID).Msg("alert delivery failed")
	}
}
