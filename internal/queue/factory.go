package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Backend bundles the producer side of a queue with its DLQ and task
// history. NewDequeuer attaches consumers to the same backend.
type Backend struct {
	Enqueuer Enqueuer
	DLQ      DeadLetterQueue
	States   StateStore

	cfg   Config
	log   zerolog.Logger
	redis *redis.Client
	sqs   sqsAPI
	retry *RetryStrategy
}

// NewBackend creates the queue backend selected by cfg.Type.
func NewBackend(ctx context.Context, cfg Config, log zerolog.Logger) (*Backend, error) {
	cfg = cfg.withDefaults()
	b := &Backend{cfg: cfg, log: log, retry: NewRetryStrategy(cfg.MaxRetries)}

	switch cfg.Type {
	case "redis", "":
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		enqueuer := NewRedisEnqueuer(b.redis, cfg.HistoryTTL)
		b.Enqueuer = enqueuer
		b.DLQ = NewRedisDLQ(b.redis, enqueuer)
		b.States = NewRedisStateStore(b.redis, cfg.HistoryTTL)

	case "sqs":
		client, err := newAWSSQSClient(ctx, cfg.SQSRegion)
		if err != nil {
			return nil, fmt.Errorf("create sqs client: %w", err)
		}
		b.sqs = client
		enqueuer := NewSQSEnqueuer(client, cfg.SQSQueueURL)
		b.Enqueuer = enqueuer
		b.DLQ = NewSQSDLQ(client, cfg.SQSDLQueueURL, enqueuer, log)
		b.States = NopStateStore{}

	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}

	return b, nil
}

// NewDequeuer creates a consumer pool that runs handler for every task on
// the configured channel.
func (b *Backend) NewDequeuer(handler TaskHandler) Dequeuer {
	if b.redis != nil {
		return NewRedisDequeuer(b.redis, b.Enqueuer, b.DLQ, b.States, handler, b.retry, b.cfg, b.log)
	}
	return NewSQSDequeuer(b.sqs, b.Enqueuer, b.DLQ, b.States, handler, b.retry, b.cfg, b.log)
}

// Ping checks connectivity to the backend. SQS has no cheap ping and always
// reports healthy.
func (b *Backend) Ping(ctx context.Context) error {
	if b.redis == nil {
		return nil
	}
	return b.redis.Ping(ctx).Err()
}

// Depth returns the number of tasks waiting on the configured channel.
func (b *Backend) Depth(ctx context.Context) (int64, error) {
	if b.redis != nil {
		return b.redis.ZCard(ctx, queueKey(b.cfg.Channel)).Result()
	}
	return b.sqs.ApproximateDepth(ctx, b.cfg.SQSQueueURL)
}

// Channel returns the channel this backend consumes.
func (b *Backend) Channel() string {
	return b.cfg.Channel
}

// Close releases backend connections.
func (b *Backend) Close() error {
	if b.redis != nil {
		return b.redis.Close()
	}
	return nil
}
