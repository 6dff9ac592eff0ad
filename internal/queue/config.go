package queue

import "time"

// Config holds configuration for the queue system.
type Config struct {
	// Type selects the queue backend: "redis" (default) or "sqs".
	Type            string        `mapstructure:"type"`
	Channel         string        `mapstructure:"channel"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	WorkerCount     int           `mapstructure:"worker_count"`
	BlockTimeout    time.Duration `mapstructure:"block_timeout"`
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	HistoryTTL      time.Duration `mapstructure:"history_ttl"` // how long task history is kept in Redis

	// SQS-specific config
	SQSQueueURL   string `mapstructure:"sqs_queue_url"`
	SQSDLQueueURL string `mapstructure:"sqs_dlq_url"`
	SQSRegion     string `mapstructure:"sqs_region"`
	SQSWaitTime   int32  `mapstructure:"sqs_wait_time"`          // long poll seconds, default 20
	SQSVisTimeout int32  `mapstructure:"sqs_visibility_timeout"` // seconds, default 30
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type:            "redis",
		Channel:         DefaultChannel,
		RedisAddr:       "localhost:6379",
		RedisDB:         0,
		WorkerCount:     10,
		BlockTimeout:    5 * time.Second,
		ProcessTimeout:  30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxRetries:      5,
		HistoryTTL:      7 * 24 * time.Hour,
		SQSWaitTime:     20,
		SQSVisTimeout:   30,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Channel == "" {
		c.Channel = d.Channel
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = d.BlockTimeout
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = d.ProcessTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.HistoryTTL <= 0 {
		c.HistoryTTL = d.HistoryTTL
	}
	if c.SQSWaitTime == 0 {
		c.SQSWaitTime = d.SQSWaitTime
	}
	if c.SQSVisTimeout == 0 {
		c.SQSVisTimeout = d.SQSVisTimeout
	}
	return c
}
