package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-pulse/internal/alerting"
	"crypto-pulse/internal/detector"
	"crypto-pulse/internal/fetcher"
	"crypto-pulse/internal/storage"
)

const errorSource = "CoinGecko API"

// Options parameterise the pipeline.
type Options struct {
	MinRunInterval time.Duration
	Thresholds     detector.Thresholds
	Channels       alerting.ChannelConfig
	// Clock overrides the wall clock; nil means time.Now.
	Clock func() time.Time
}

// Pipeline runs the throttled fetch, detect, dispatch, persist sequence.
//
// Run state lives only in memory: a process restart resets the throttle and
// the next invocation fetches immediately. The mutex makes the
// read-then-write on that state atomic, so concurrent triggers cannot both
// observe an idle pipeline and double-fetch.
type Pipeline struct {
	fetcher    fetcher.SnapshotFetcher
	snapshots  storage.SnapshotStore
	errorLog   storage.ErrorLogStore
	dispatcher *alerting.Dispatcher
	logger     zerolog.Logger
	opts       Options
	now        func() time.Time

	mu         sync.Mutex
	channels   alerting.ChannelConfig
	lastRun    time.Time
	hasRun     bool
	lastStatus string
}

// New constructs the pipeline.
func New(opts Options, snapFetcher fetcher.SnapshotFetcher, snapshots storage.SnapshotStore, errorLog storage.ErrorLogStore, dispatcher *alerting.Dispatcher, logger zerolog.Logger) *Pipeline {
	if opts.MinRunInterval <= 0 {
		opts.MinRunInterval = 5 * time.Minute
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		fetcher:    snapFetcher,
		snapshots:  snapshots,
		errorLog:   errorLog,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "pipeline").Logger(),
		opts:       opts,
		now:        now,
		channels:   opts.Channels,
	}
}

// SetChannels swaps the effective channel routing for subsequent runs.
func (p *Pipeline) SetChannels(cfg alerting.ChannelConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = cfg
}

// MaybeRun executes one pipeline pass unless a run completed within the
// minimum interval. While throttled it returns the previous run's status
// message and did_run=false. Every completed pass, including handled fetch
// failures and store errors, refreshes the throttle timestamp so a failing
// upstream cannot cause hot-looping.
func (p *Pipeline) MaybeRun(ctx context.Context, force bool) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	startedAt := p.now().UTC()
	if !force && p.hasRun && startedAt.Sub(p.lastRun) < p.opts.MinRunInterval {
		p.logger.Debug().Time("last_run", p.lastRun).Msg("pipeline throttled")
		return p.lastStatus, false
	}

	status := p.run(ctx, startedAt)

	p.lastRun = startedAt
	p.hasRun = true
	p.lastStatus = status
	return status, true
}

func (p *Pipeline) run(ctx context.Context, startedAt time.Time) string {
	runID := uuid.NewString()
	logger := p.logger.With().Str("run_id", runID).Logger()
	logger.Info().Time("started_at", startedAt).Msg("pipeline run starting")

	batch, err := p.fetcher.FetchMarkets(ctx)
	if err != nil {
		entry := storage.ErrorLogEntry{
			ErrorMessage: err.Error(),
			Source:       errorSource,
			Timestamp:    startedAt,
		}
		if logErr := p.errorLog.InsertErrorLog(ctx, entry); logErr != nil {
			logger.Error().Err(logErr).Msg("failed to append error log entry")
		}
		logger.Warn().Err(err).Msg("fetch failed; detection and dispatch skipped")
		return fmt.Sprintf("API Error: %v", err)
	}

	prior, err := p.snapshots.LatestPerCoin(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("baseline ranking query failed")
		return fmt.Sprintf("An unexpected error occurred in pipeline: %v", err)
	}

	baseline := func(coinID string, at time.Time) (*storage.CoinSnapshot, error) {
		return p.snapshots.SnapshotAtOrBefore(ctx, coinID, at)
	}

	events, err := detector.Detect(batch, prior, baseline, startedAt, p.opts.Thresholds)
	if err != nil {
		logger.Error().Err(err).Msg("event detection failed")
		return fmt.Sprintf("An unexpected error occurred in pipeline: %v", err)
	}

	if len(events) > 0 {
		logger.Info().Int("events", len(events)).Msg("dispatching alerts")
		p.dispatcher.Dispatch(ctx, p.channels, events, startedAt)
	}

	if err := p.snapshots.InsertSnapshots(ctx, batch); err != nil {
		logger.Error().Err(err).Msg("failed to append snapshot batch")
		return fmt.Sprintf("Store Error: %v", err)
	}

	logger.Info().Int("coins", len(batch)).Int("events", len(events)).Msg("pipeline run complete")
	return fmt.Sprintf("Pipeline run successful at %s", startedAt.Format("15:04:05"))
}
