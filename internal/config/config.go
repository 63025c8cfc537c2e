package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"crypto-pulse/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// PipelineConfig governs ingestion cadence and the tracked coin set.
type PipelineConfig struct {
	MinRunInterval  time.Duration `mapstructure:"min_run_interval"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Coins           []string      `mapstructure:"coins"`
	VSCurrency      string        `mapstructure:"vs_currency"`
}

// CoinGeckoConfig captures upstream API connectivity.
type CoinGeckoConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	PriceDropPct   float64        `mapstructure:"price_drop_pct"`
	VolumeSpikePct float64        `mapstructure:"volume_spike_pct"`
	DailyChangePct float64        `mapstructure:"daily_change_pct"`
	TimeframeHours float64        `mapstructure:"timeframe_hours"`
	Email          EmailConfig    `mapstructure:"email"`
	Telegram       TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig describes the SMTP alert channel.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// CacheConfig controls the read-side Redis cache.
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
// A .env file in the working directory is folded into the environment first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CRYPTOPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cryptopulse")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("pipeline.min_run_interval", "5m")
	v.SetDefault("pipeline.refresh_interval", "65s")
	v.SetDefault("pipeline.coins", []string{"bitcoin", "ethereum", "solana", "cardano", "dogecoin"})
	v.SetDefault("pipeline.vs_currency", "usd")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.request_timeout", "10s")
	v.SetDefault("coingecko.user_agent", "cryptopulse/1.0")

	v.SetDefault("alerting.price_drop_pct", -5.0)
	v.SetDefault("alerting.volume_spike_pct", 50.0)
	v.SetDefault("alerting.daily_change_pct", -10.0)
	v.SetDefault("alerting.timeframe_hours", 1.0)
	v.SetDefault("alerting.email.enabled", false)
	v.SetDefault("alerting.email.port", 587)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.addr", "localhost:6379")
	v.SetDefault("cache.ttl", "60s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
// Channel credentials are deliberately not checked here: a misconfigured
// channel degrades to a warning at dispatch time rather than failing startup.
func (c *Config) Validate() error {
	if c.Pipeline.MinRunInterval <= 0 {
		return fmt.Errorf("pipeline.min_run_interval must be greater than zero")
	}
	if c.Pipeline.RefreshInterval <= 0 {
		return fmt.Errorf("pipeline.refresh_interval must be greater than zero")
	}
	if len(c.Pipeline.Coins) == 0 {
		return fmt.Errorf("pipeline.coins must list at least one coin id")
	}
	if c.Alerting.TimeframeHours <= 0 {
		return fmt.Errorf("alerting.timeframe_hours must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return fmt.Errorf("cache.addr must be set when cache is enabled")
	}
	return nil
}

// AlertTimeframe converts the configured lookback hours to a duration.
func (c *Config) AlertTimeframe() time.Duration {
	return time.Duration(c.Alerting.TimeframeHours * float64(time.Hour))
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
