package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"crypto-pulse/internal/detector"
	"crypto-pulse/internal/storage"
)

// SimulateAlert feeds a synthetic price move through detection and dispatch
// without touching the store or the upstream API.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	channels := a.channelConfig()
	if !channels.EmailEnabled && !channels.TelegramEnabled {
		return errors.New("no alert channel enabled")
	}

	now := time.Now().UTC()
	baselineTS := now.Add(-a.Config.AlertTimeframe())

	oldSnap := storage.CoinSnapshot{
		CoinID:             opts.CoinID,
		Symbol:             opts.CoinID,
		Name:               opts.CoinID,
		CurrentPrice:       decimal.NewFromFloat(opts.OldPrice),
		MarketCap:          decimal.NewFromInt(1),
		TotalVolume:        decimal.NewFromInt(1),
		IngestionTimestamp: baselineTS,
	}
	newSnap := oldSnap
	newSnap.CurrentPrice = decimal.NewFromFloat(opts.NewPrice)
	newSnap.IngestionTimestamp = now

	baseline := func(string, time.Time) (*storage.CoinSnapshot, error) {
		return &oldSnap, nil
	}

	events, err := detector.Detect(
		[]storage.CoinSnapshot{newSnap},
		map[string]storage.CoinSnapshot{opts.CoinID: oldSnap},
		baseline,
		now,
		a.thresholds(),
	)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "simulated move did not cross any threshold")
		return nil
	}

	a.newDispatcher().Dispatch(ctx, channels, events, now)
	fmt.Fprintf(os.Stdout, "dispatched %d simulated event(s)\n", len(events))
	return nil
}
