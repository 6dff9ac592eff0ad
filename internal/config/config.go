// Package config loads mailqueue configuration from config.yaml with
// MAILQUEUE_ environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/msgstore"
	"github.com/sungwon/mailqueue/internal/provider"
	"github.com/sungwon/mailqueue/internal/queue"
)

// Config holds all application configuration.
type Config struct {
	API       APIConfig         `mapstructure:"api"`
	Database  DatabaseConfig    `mapstructure:"database"`
	Logging   LoggingConfig     `mapstructure:"logging"`
	Queue     queue.Config      `mapstructure:"queue"`
	Store     msgstore.Config   `mapstructure:"store"`
	Providers []provider.Config `mapstructure:"providers"`
	Metrics   MetricsConfig     `mapstructure:"metrics"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// APIKeyHashes are bcrypt hashes of the bearer keys accepted on
	// /api/v1. Empty leaves the API unauthenticated.
	APIKeyHashes []string `mapstructure:"api_key_hashes"`
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxFiles   int    `mapstructure:"max_files"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Logger converts the logging section into a logger.Config.
func (c LoggingConfig) Logger() logger.Config {
	return logger.Config{
		Level:     c.Level,
		Format:    c.Format,
		Output:    c.Output,
		FilePath:  c.FilePath,
		MaxSizeMB: c.MaxSizeMB,
		MaxFiles:  c.MaxFiles,
		MaxAgeDay: c.MaxAgeDays,
	}
}

// MetricsConfig controls the standalone metrics listener of the queue worker.
// The API server always serves /metrics on its own router.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix MAILQUEUE_ override file values.
// For example, MAILQUEUE_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("MAILQUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-section requirements.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	switch c.Queue.Type {
	case "redis":
	case "sqs":
		if c.Queue.SQSQueueURL == "" {
			return fmt.Errorf("queue.sqs_queue_url is required for the sqs backend")
		}
	default:
		return fmt.Errorf("unknown queue.type %q", c.Queue.Type)
	}
	for i := range c.Providers {
		if err := c.Providers[i].Validate(); err != nil {
			return fmt.Errorf("providers[%d]: %w", i, err)
		}
	}
	return nil
}

// setDefaults registers every key so that environment overrides apply even
// when the file omits the key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)
	v.SetDefault("api.shutdown_timeout", 15*time.Second)
	v.SetDefault("api.api_key_hashes", []string{})

	v.SetDefault("database.url", "")
	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 20)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)
	v.SetDefault("logging.max_age_days", 30)

	q := queue.DefaultConfig()
	v.SetDefault("queue.type", q.Type)
	v.SetDefault("queue.channel", q.Channel)
	v.SetDefault("queue.redis_addr", q.RedisAddr)
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", q.RedisDB)
	v.SetDefault("queue.worker_count", q.WorkerCount)
	v.SetDefault("queue.block_timeout", q.BlockTimeout)
	v.SetDefault("queue.process_timeout", q.ProcessTimeout)
	v.SetDefault("queue.shutdown_timeout", q.ShutdownTimeout)
	v.SetDefault("queue.max_retries", q.MaxRetries)
	v.SetDefault("queue.history_ttl", q.HistoryTTL)
	v.SetDefault("queue.sqs_queue_url", "")
	v.SetDefault("queue.sqs_dlq_url", "")
	v.SetDefault("queue.sqs_region", "us-east-1")
	v.SetDefault("queue.sqs_wait_time", q.SQSWaitTime)
	v.SetDefault("queue.sqs_visibility_timeout", q.SQSVisTimeout)

	v.SetDefault("store.type", "local")
	v.SetDefault("store.path", "./data/bodies")
	v.SetDefault("store.inline_limit", 256*1024)
	v.SetDefault("store.s3_bucket", "")
	v.SetDefault("store.s3_prefix", "")
	v.SetDefault("store.s3_endpoint", "")
	v.SetDefault("store.s3_region", "us-east-1")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")
}
