// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Source  SourceConfig  `mapstructure:"source"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	DB      DBConfig      `mapstructure:"db"`
	Storage StorageConfig `mapstructure:"storage"`
	Extract ExtractConfig `mapstructure:"extract"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig points at the upstream gazette endpoints.
type SourceConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	DispatchDelayMs  int    `mapstructure:"dispatch_delay_ms"`
	UserAgent        string `mapstructure:"user_agent"`
	TomorrowAfterUTC int    `mapstructure:"tomorrow_after_utc"`
}

// BrokerConfig holds NSQ connection and topic wiring.
type BrokerConfig struct {
	NSQDAddress      string   `mapstructure:"nsqd_address"`
	LookupdAddresses []string `mapstructure:"lookupd_addresses"`
	FetchTopic       string   `mapstructure:"fetch_topic"`
	ConvertTopic     string   `mapstructure:"convert_topic"`
	ProcessedTopic   string   `mapstructure:"processed_topic"`
	Channel          string   `mapstructure:"channel"`
	MaxInFlight      int      `mapstructure:"max_in_flight"`
	MsgTimeoutSec    int      `mapstructure:"msg_timeout_seconds"`
	MaxAttempts      int      `mapstructure:"max_attempts"`
	RequeueDelaySec  int      `mapstructure:"requeue_delay_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
	MaxConnLifeMins int    `mapstructure:"max_conn_life_minutes"`
}

// StorageConfig selects the raw-page blob backend.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"` // local | gcs | memory
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	BackupRaw bool   `mapstructure:"backup_raw"`
}

// ExtractConfig exposes the carve heuristics as named knobs.
type ExtractConfig struct {
	MaxPageSpan     int `mapstructure:"max_page_span"`
	MinBlockLength  int `mapstructure:"min_block_length"`
	MaxParties      int `mapstructure:"max_parties"`
	ClaimLeaseMins  int `mapstructure:"claim_lease_minutes"`
	ProgressEvery   int `mapstructure:"progress_every"`
}

// CacheConfig drives the read-side cache used by report handlers.
type CacheConfig struct {
	Engine        string `mapstructure:"engine"` // memory | redis | none
	RedisAddress  string `mapstructure:"redis_address"`
	DefaultTTLSec int    `mapstructure:"default_ttl_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("source.base_url", "https://www3.tjrj.jus.br/consultadje")
	v.SetDefault("source.timeout_seconds", 30)
	v.SetDefault("source.dispatch_delay_ms", 10)
	v.SetDefault("source.user_agent", "gazette-harvester/0.1")
	v.SetDefault("source.tomorrow_after_utc", 22)
	v.SetDefault("broker.nsqd_address", "127.0.0.1:4150")
	v.SetDefault("broker.fetch_topic", "raw_external_source")
	v.SetDefault("broker.convert_topic", "convert_pdf")
	v.SetDefault("broker.processed_topic", "processed_pdf")
	v.SetDefault("broker.channel", "harvester")
	v.SetDefault("broker.max_in_flight", 5)
	v.SetDefault("broker.msg_timeout_seconds", 60)
	v.SetDefault("broker.max_attempts", 5)
	v.SetDefault("broker.requeue_delay_seconds", 10)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_life_minutes", 30)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "/tmp/gazette-raw")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("storage.backup_raw", true)
	v.SetDefault("extract.max_page_span", 7)
	v.SetDefault("extract.min_block_length", 150)
	v.SetDefault("extract.max_parties", 35)
	v.SetDefault("extract.claim_lease_minutes", 15)
	v.SetDefault("extract.progress_every", 100)
	v.SetDefault("cache.engine", "memory")
	v.SetDefault("cache.default_ttl_seconds", 180)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Broker.MaxInFlight <= 0 {
		return fmt.Errorf("broker.max_in_flight must be > 0")
	}
	if c.Broker.MaxAttempts <= 0 {
		return fmt.Errorf("broker.max_attempts must be > 0")
	}
	if c.Extract.MaxPageSpan <= 0 {
		return fmt.Errorf("extract.max_page_span must be > 0")
	}
	if c.Extract.MinBlockLength <= 0 {
		return fmt.Errorf("extract.min_block_length must be > 0")
	}
	if c.Storage.Backend == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when backend is gcs")
	}
	if c.Cache.Engine == "redis" && c.Cache.RedisAddress == "" {
		return fmt.Errorf("cache.redis_address must be set when engine is redis")
	}
	return nil
}

// SourceTimeout converts the upstream HTTP timeout to a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// DispatchDelay is the pause between fetch-job publishes.
func (c Config) DispatchDelay() time.Duration {
	return time.Duration(c.Source.DispatchDelayMs) * time.Millisecond
}

// RequeueDelay is the fixed backoff applied to retried deliveries.
func (c Config) RequeueDelay() time.Duration {
	return time.Duration(c.Broker.RequeueDelaySec) * time.Second
}

// ClaimLease is how long an extraction claim stays exclusive before it can
// be taken over by another worker.
func (c Config) ClaimLease() time.Duration {
	return time.Duration(c.Extract.ClaimLeaseMins) * time.Minute
}
