// Package config loads command configuration from YAML and BLACKCAT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BLACKCAT_DATABASE_DSN.
const EnvPrefix = "BLACKCAT"

// Dispatcher kinds.
const (
	DispatcherLog   = "log"
	DispatcherKafka = "kafka"
	DispatcherRedis = "redis"
)

type Config struct {
	Environment string            `mapstructure:"environment"`
	Log         LogConfig         `mapstructure:"log"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Outbox      OutboxConfig      `mapstructure:"outbox"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Dispatcher  DispatcherConfig  `mapstructure:"dispatcher"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Ops         OpsConfig         `mapstructure:"ops"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	// Driver is one of mysql, postgres, sqlite.
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	ConnTimeout  time.Duration `mapstructure:"conn_timeout"`
}

type OutboxConfig struct {
	Table           string        `mapstructure:"table"`
	BatchSize       int           `mapstructure:"batch_size"`
	Workers         int           `mapstructure:"workers"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	PendingInterval time.Duration `mapstructure:"pending_interval"`
	RetryBase       time.Duration `mapstructure:"retry_base"`
	RetryMax        time.Duration `mapstructure:"retry_max"`
	Cleanup         CleanupConfig `mapstructure:"cleanup"`
}

type CleanupConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Retention  time.Duration `mapstructure:"retention"`
	CheckEvery time.Duration `mapstructure:"check_every"`
	Limit      int           `mapstructure:"limit"`
}

type IdempotencyConfig struct {
	Table     string        `mapstructure:"table"`
	Retention time.Duration `mapstructure:"retention"`
}

type DispatcherConfig struct {
	Kind            string        `mapstructure:"kind"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	ClientID string   `mapstructure:"client_id"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	StreamPrefix string `mapstructure:"stream_prefix"`
	MaxLen       int64  `mapstructure:"max_len"`
}

type OpsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "dev")
	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_timeout", 10*time.Second)

	v.SetDefault("outbox.table", "outbox_events")
	v.SetDefault("outbox.batch_size", 50)
	v.SetDefault("outbox.workers", 1)
	v.SetDefault("outbox.poll_interval", 50*time.Millisecond)
	v.SetDefault("outbox.dispatch_timeout", 10*time.Second)
	v.SetDefault("outbox.pending_interval", 15*time.Second)
	v.SetDefault("outbox.retry_base", time.Second)
	v.SetDefault("outbox.retry_max", 5*time.Minute)
	v.SetDefault("outbox.cleanup.enabled", true)
	v.SetDefault("outbox.cleanup.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup.check_every", time.Hour)
	v.SetDefault("outbox.cleanup.limit", 10000)

	v.SetDefault("idempotency.table", "idempotency_keys")
	v.SetDefault("idempotency.retention", 24*time.Hour)

	v.SetDefault("dispatcher.kind", DispatcherLog)
	v.SetDefault("dispatcher.breaker_failures", 5)
	v.SetDefault("dispatcher.breaker_timeout", 30*time.Second)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "")
	v.SetDefault("kafka.client_id", "blackcat-outbox-relay")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream_prefix", "outbox:")
	v.SetDefault("redis.max_len", 0)

	v.SetDefault("ops.addr", ":9090")
}

// Load reads configuration. An empty path searches config.yaml in "." and "./config" and
// tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the fields the commands cannot default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if c.Outbox.BatchSize <= 0 {
		return errors.New("config: outbox.batch_size must be positive")
	}
	if c.Outbox.Workers <= 0 {
		return errors.New("config: outbox.workers must be positive")
	}
	switch c.Dispatcher.Kind {
	case DispatcherLog:
	case DispatcherKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("config: kafka.brokers is required for the kafka dispatcher")
		}
	case DispatcherRedis:
		if c.Redis.Addr == "" {
			return errors.New("config: redis.addr is required for the redis dispatcher")
		}
	default:
		return fmt.Errorf("config: unsupported dispatcher.kind %q", c.Dispatcher.Kind)
	}

	return nil
}
