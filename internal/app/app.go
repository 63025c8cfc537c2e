package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-pulse/internal/alerting"
	"crypto-pulse/internal/config"
	"crypto-pulse/internal/detector"
	"crypto-pulse/internal/fetcher"
	"crypto-pulse/internal/pipeline"
	"crypto-pulse/internal/query"
	"crypto-pulse/internal/scheduler"
	"crypto-pulse/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newFetcher() fetcher.SnapshotFetcher {
	return fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:    a.Config.CoinGecko.BaseURL,
		VSCurrency: a.Config.Pipeline.VSCurrency,
		Coins:      a.Config.Pipeline.Coins,
		Timeout:    a.Config.CoinGecko.RequestTimeout,
		UserAgent:  a.Config.CoinGecko.UserAgent,
	}, a.Logger)
}

func (a *App) newDispatcher() *alerting.Dispatcher {
	var email alerting.Notifier
	if cfg := a.Config.Alerting.Email; cfg.Host != "" && cfg.From != "" && cfg.To != "" {
		email = alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			To:       cfg.To,
		}, a.Logger)
	}

	var telegram alerting.Notifier
	if cfg := a.Config.Alerting.Telegram; cfg.BotToken != "" && cfg.ChatID != "" {
		telegram = alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}

	return alerting.NewDispatcher(email, telegram, a.Logger)
}

func (a *App) channelConfig() alerting.ChannelConfig {
	return alerting.ChannelConfig{
		EmailEnabled:    a.Config.Alerting.Email.Enabled,
		TelegramEnabled: a.Config.Alerting.Telegram.Enabled,
	}
}

func (a *App) thresholds() detector.Thresholds {
	return detector.Thresholds{
		PriceDropPct:   decimalFromFloat(a.Config.Alerting.PriceDropPct),
		VolumeSpikePct: decimalFromFloat(a.Config.Alerting.VolumeSpikePct),
		DailyChangePct: decimalFromFloat(a.Config.Alerting.DailyChangePct),
		Timeframe:      a.Config.AlertTimeframe(),
	}
}

func (a *App) newPipeline(store *storage.Store) *pipeline.Pipeline {
	return pipeline.New(pipeline.Options{
		MinRunInterval: a.Config.Pipeline.MinRunInterval,
		Thresholds:     a.thresholds(),
		Channels:       a.channelConfig(),
	}, a.newFetcher(), store, store, a.newDispatcher(), a.Logger)
}

func (a *App) newCache() *redis.Client {
	if !a.Config.Cache.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     a.Config.Cache.Addr,
		Password: a.Config.Cache.Password,
		DB:       a.Config.Cache.DB,
	})
}

func (a *App) newQueryService(store *storage.Store) (*query.Service, func()) {
	cache := a.newCache()
	closer := func() {}
	if cache != nil {
		closer = func() { _ = cache.Close() }
	}
	return query.New(store, store, cache, a.Config.Cache.TTL, a.Logger), closer
}

// Run executes the long-running ingestion service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	pipe := a.newPipeline(store)

	sched := scheduler.New(scheduler.Options{
		Interval: a.Config.Pipeline.RefreshInterval,
	}, a.Logger)

	a.Logger.Info().
		Dur("refresh_interval", a.Config.Pipeline.RefreshInterval).
		Dur("min_run_interval", a.Config.Pipeline.MinRunInterval).
		Strs("coins", a.Config.Pipeline.Coins).
		Msg("starting ingestion service")

	err = sched.Run(ctx, func(ctx context.Context, _ time.Time) error {
		status, didRun := pipe.MaybeRun(ctx, false)
		if didRun {
			a.Logger.Info().Str("status", status).Msg("pipeline pass finished")
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("ingestion service stopped")
	return nil
}

// RunOnce performs a single pipeline invocation and prints its status line.
// The status string carries handled failures; the command itself only fails
// on setup problems.
func (a *App) RunOnce(ctx context.Context, force bool) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	pipe := a.newPipeline(store)
	status, didRun := pipe.MaybeRun(ctx, force)
	fmt.Fprintf(os.Stdout, "%s (ran=%t)\n", status, didRun)
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Errors bool
}

// ExportOptions hold parameters for exporting coin history.
type ExportOptions struct {
	CoinID    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions describe a synthetic price move fed through detection
// and dispatch.
type SimulateOptions struct {
	CoinID   string
	OldPrice float64
	NewPrice float64
}

func decimalFromFloat(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}
