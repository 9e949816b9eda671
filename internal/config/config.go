// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/quake-catalog-crawler/internal/period"
	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Source   SourceConfig   `mapstructure:"source"`
	Backfill BackfillConfig `mapstructure:"backfill"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	DB       DBConfig       `mapstructure:"db"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SourceConfig describes the catalog website.
type SourceConfig struct {
	LiveURL         string        `mapstructure:"live_url"`
	ArchiveTemplate string        `mapstructure:"archive_template"`
	UserAgent       string        `mapstructure:"user_agent"`
	Timeout         time.Duration `mapstructure:"timeout"`
	// InsecureSkipVerify is on by default: the source's certificate chain does
	// not verify against standard roots. It applies to source requests only.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
	// BreakerFailures opens the live circuit breaker after this many
	// consecutive failures. Zero disables the breaker.
	BreakerFailures    uint32        `mapstructure:"breaker_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout"`
}

// BackfillConfig governs the historical walk.
type BackfillConfig struct {
	Start       string        `mapstructure:"start"`
	Concurrency int           `mapstructure:"concurrency"`
	Delay       time.Duration `mapstructure:"delay"`
	MissingLog  string        `mapstructure:"missing_log"`
}

// StorageConfig selects where shards live.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// NotifyConfig selects the shard notification sink.
type NotifyConfig struct {
	Backend       string   `mapstructure:"backend"`
	Topic         string   `mapstructure:"topic"`
	PubSubProject string   `mapstructure:"pubsub_project"`
	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
}

// DBConfig controls access to the catalog database. An empty DSN disables it.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// APIConfig tunes the public HTTP API.
type APIConfig struct {
	DefaultLimit       int           `mapstructure:"default_limit"`
	MaxLimit           int           `mapstructure:"max_limit"`
	RequestsPerMinute  int           `mapstructure:"requests_per_minute"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Storage and notification backends.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
	BackendNone   = "none"
	BackendPubSub = "pubsub"
	BackendKafka  = "kafka"
)

// Load builds a Config from disk/environment. With an empty path it looks for
// quake-crawler.{yaml,json,toml} in the working directory, $HOME/.quake-crawler
// and /etc/quake-crawler, and falls back to defaults when none exists.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUAKE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("quake-crawler")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.quake-crawler")
		v.AddConfigPath("/etc/quake-crawler/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Keys without a meaningful default still get an empty one so AutomaticEnv
// can populate them during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("source.live_url", "https://earthquake.phivolcs.dost.gov.ph/")
	v.SetDefault("source.archive_template",
		"https://earthquake.phivolcs.dost.gov.ph/EQLatest-Monthly/{year}/{year}_{month}.html")
	v.SetDefault("source.user_agent", "quake-catalog-bot/0.1")
	v.SetDefault("source.timeout", "10s")
	v.SetDefault("source.insecure_skip_verify", true)
	v.SetDefault("source.breaker_failures", 5)
	v.SetDefault("source.breaker_open_timeout", "30s")
	v.SetDefault("backfill.start", "2018-01")
	v.SetDefault("backfill.concurrency", 1)
	v.SetDefault("backfill.delay", "0s")
	v.SetDefault("backfill.missing_log", "data/missing_periods.txt")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local_dir", "data/raw")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_prefix", "raw/")
	v.SetDefault("notify.backend", BackendNone)
	v.SetDefault("notify.topic", "quake-shards")
	v.SetDefault("notify.pubsub_project", "")
	v.SetDefault("notify.kafka_brokers", []string{})
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "earthquakes")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("api.default_limit", 10)
	v.SetDefault("api.max_limit", 500)
	v.SetDefault("api.requests_per_minute", 60)
	v.SetDefault("api.cors_allowed_origins", []string{"*"})
	v.SetDefault("api.request_timeout", "30s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.LiveURL == "" {
		return fmt.Errorf("source.live_url is required")
	}
	if !strings.Contains(c.Source.ArchiveTemplate, "{year}") || !strings.Contains(c.Source.ArchiveTemplate, "{month}") {
		return fmt.Errorf("source.archive_template must contain {year} and {month}")
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be > 0")
	}
	if _, err := c.StartPeriod(); err != nil {
		return fmt.Errorf("backfill.start must be YYYY-MM: %w", err)
	}
	if c.Backfill.Concurrency <= 0 {
		return fmt.Errorf("backfill.concurrency must be > 0")
	}
	if c.Backfill.Delay < 0 {
		return fmt.Errorf("backfill.delay must be >= 0")
	}
	if c.Backfill.MissingLog == "" {
		return fmt.Errorf("backfill.missing_log is required")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs, memory")
	}
	switch c.Notify.Backend {
	case BackendNone, BackendMemory:
	case BackendPubSub:
		if c.Notify.PubSubProject == "" {
			return fmt.Errorf("notify.pubsub_project is required for the pubsub backend")
		}
	case BackendKafka:
		if len(c.Notify.KafkaBrokers) == 0 {
			return fmt.Errorf("notify.kafka_brokers is required for the kafka backend")
		}
	default:
		return fmt.Errorf("notify.backend must be one of none, memory, pubsub, kafka")
	}
	if c.Notify.Backend != BackendNone && c.Notify.Topic == "" {
		return fmt.Errorf("notify.topic is required when notifications are enabled")
	}
	if c.API.DefaultLimit <= 0 {
		return fmt.Errorf("api.default_limit must be > 0")
	}
	if c.API.MaxLimit < c.API.DefaultLimit {
		return fmt.Errorf("api.max_limit must be >= api.default_limit")
	}
	return nil
}

// StartPeriod parses backfill.start.
func (c Config) StartPeriod() (quake.Period, error) {
	p, err := period.Parse(c.Backfill.Start)
	if err != nil {
		return quake.Period{}, fmt.Errorf("start period: %w", err)
	}
	return p, nil
}
