package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"spreadwatch/internal/logging"
	"spreadwatch/internal/series"
)

// Storage backends understood by storage.Open.
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	API      APIConfig      `mapstructure:"api"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Series   SeriesConfig   `mapstructure:"series"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// APIConfig describes the spread API endpoint.
type APIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// StorageConfig selects the persistent medium behind the cache.
type StorageConfig struct {
	Backend    string         `mapstructure:"backend"`
	Path       string         `mapstructure:"path"`
	QuotaBytes int64          `mapstructure:"quota_bytes"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Database   DatabaseConfig `mapstructure:"database"`
}

// RedisConfig covers the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// CacheConfig bounds the persisted sample sets.
type CacheConfig struct {
	Namespace          string  `mapstructure:"namespace"`
	EntryCeilingBytes  int64   `mapstructure:"entry_ceiling_bytes"`
	GlobalCeilingBytes int64   `mapstructure:"global_ceiling_bytes"`
	MinSamples         int     `mapstructure:"min_samples"`
	EmergencyKeepRatio float64 `mapstructure:"emergency_keep_ratio"`
	SoftCap            int     `mapstructure:"soft_cap"`
	ForcedFloor        int     `mapstructure:"forced_floor"`
}

// SeriesConfig holds per time frame retention caps and refresh intervals.
// Time frames missing from the maps fall back to the defaults.
type SeriesConfig struct {
	DefaultRetention int                      `mapstructure:"default_retention"`
	DefaultRefresh   time.Duration            `mapstructure:"default_refresh"`
	Retention        map[string]int           `mapstructure:"retention"`
	Refresh          map[string]time.Duration `mapstructure:"refresh"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	Cooldown     time.Duration  `mapstructure:"cooldown"`
	Channels     []string       `mapstructure:"channels"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// MetricsConfig exposes Prometheus metrics while watching.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SPREADWATCH")
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
	v.SetDefault("app.name", "spreadwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)

	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.user_agent", "spreadwatch/1.0")
	v.SetDefault("api.requests_per_second", 5.0)
	v.SetDefault("api.burst", 5)

	v.SetDefault("storage.backend", BackendBadger)
	v.SetDefault("storage.path", ".spreadwatch/cache")
	v.SetDefault("storage.quota_bytes", int64(6<<20))
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.database.max_open_conns", 4)
	v.SetDefault("storage.database.max_idle_conns", 1)
	v.SetDefault("storage.database.conn_max_lifetime", "30m")

	v.SetDefault("cache.namespace", "spreadwatch")
	v.SetDefault("cache.entry_ceiling_bytes", int64(2<<20))
	v.SetDefault("cache.global_ceiling_bytes", int64(5<<20))
	v.SetDefault("cache.min_samples", 10)
	v.SetDefault("cache.emergency_keep_ratio", 0.3)
	v.SetDefault("cache.soft_cap", 5)
	v.SetDefault("cache.forced_floor", 2)

	v.SetDefault("series.default_retention", 1000)
	v.SetDefault("series.default_refresh", "10s")
	v.SetDefault("series.retention", map[string]any{
		"1m": 1000, "5m": 1500, "15m": 2000, "30m": 2500,
		"1h": 3000, "3h": 4000, "6h": 4500, "24h": 5000,
	})
	v.SetDefault("series.refresh", map[string]any{
		"1m": "10s", "5m": "15s", "15m": "20s", "30m": "30s",
		"1h": "30s", "3h": "45s", "6h": "60s", "24h": "60s",
	})

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.threshold_pct", 0.5)
	v.SetDefault("alerting.cooldown", "30m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("metrics.listen", "")

	v.SetDefault("export.max_data_points", 2000)
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
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendBadger, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("storage.backend %q is not one of memory, badger, redis, postgres", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendPostgres && c.Storage.Database.DSN == "" {
		return fmt.Errorf("storage.database.dsn must be set for the postgres backend")
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.Cache.Namespace == "" {
		return fmt.Errorf("cache.namespace must be set")
	}
	if strings.Contains(c.Cache.Namespace, ":") {
		return fmt.Errorf("cache.namespace cannot contain ':'")
	}
	if c.Cache.EntryCeilingBytes <= 0 || c.Cache.GlobalCeilingBytes <= 0 {
		return fmt.Errorf("cache ceilings must be greater than zero")
	}
	if c.Cache.EntryCeilingBytes > c.Cache.GlobalCeilingBytes {
		return fmt.Errorf("cache.entry_ceiling_bytes cannot exceed cache.global_ceiling_bytes")
	}
	if c.Cache.EmergencyKeepRatio <= 0 || c.Cache.EmergencyKeepRatio > 1 {
		return fmt.Errorf("cache.emergency_keep_ratio must be in (0, 1]")
	}
	if c.Cache.ForcedFloor < 0 || c.Cache.SoftCap < 1 {
		return fmt.Errorf("cache.soft_cap must be positive and cache.forced_floor non-negative")
	}
	if c.Cache.ForcedFloor > c.Cache.SoftCap {
		return fmt.Errorf("cache.forced_floor cannot exceed cache.soft_cap")
	}
	if c.Series.DefaultRetention <= 0 || c.Series.DefaultRefresh <= 0 {
		return fmt.Errorf("series defaults must be greater than zero")
	}
	for tf, n := range c.Series.Retention {
		if n <= 0 {
			return fmt.Errorf("series.retention.%s must be greater than zero", tf)
		}
	}
	for tf, d := range c.Series.Refresh {
		if d <= 0 {
			return fmt.Errorf("series.refresh.%s must be greater than zero", tf)
		}
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// RetentionCap returns the sample cap for a time frame.
func (s SeriesConfig) RetentionCap(tf series.TimeFrame) int {
	if n, ok := s.Retention[string(tf)]; ok && n > 0 {
		return n
	}
	return s.DefaultRetention
}

// RefreshInterval returns the re-fetch period for a time frame.
func (s SeriesConfig) RefreshInterval(tf series.TimeFrame) time.Duration {
	if d, ok := s.Refresh[string(tf)]; ok && d > 0 {
		return d
	}
	return s.DefaultRefresh
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
