package metrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PoolStats reports connection pool usage.
type PoolStats interface {
	Stats() (acquired, idle int32)
}

// DepthReporter reports the number of waiting tasks on a channel.
type DepthReporter interface {
	Depth(ctx context.Context) (int64, error)
	Channel() string
}

// Sampler periodically copies pool and queue gauges into Prometheus.
type Sampler struct {
	pool     PoolStats
	queue    DepthReporter
	interval time.Duration
	log      zerolog.Logger
}

// NewSampler creates a Sampler. Either source may be nil.
func NewSampler(pool PoolStats, queue DepthReporter, interval time.Duration, log zerolog.Logger) *Sampler {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Sampler{pool: pool, queue: queue, interval: interval, log: log}
}

// Run samples until ctx is cancelled. It always returns nil.
func (s *Sampler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *Sampler) sample(ctx context.Context) {
	if s.pool != nil {
		acquired, idle := s.pool.Stats()
		DBConnectionsActive.Set(float64(acquired))
		DBConnectionsIdle.Set(float64(idle))
	}
	if s.queue != nil {
		depth, err := s.queue.Depth(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to sample queue depth")
			return
		}
		QueueDepth.WithLabelValues(s.queue.Channel()).Set(float64(depth))
	}
}
