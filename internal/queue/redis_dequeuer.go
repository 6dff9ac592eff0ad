package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisDequeuer runs a pool of workers that pop the lowest-priority-score
// task id from a channel's sorted set and process it.
// TODO: sweep task hashes left in the started state by a crashed worker and
// requeue them; a popped id is currently lost if the process dies mid-task.
type RedisDequeuer struct {
	client  *redis.Client
	proc    *processor
	config  Config
	log     zerolog.Logger
	channel string
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	errPause time.Duration
}

// NewRedisDequeuer creates a RedisDequeuer for cfg.Channel. The handler
// defines task processing logic.
func NewRedisDequeuer(
	client *redis.Client,
	enqueuer Enqueuer,
	dlq DeadLetterQueue,
	states StateStore,
	handler TaskHandler,
	retry *RetryStrategy,
	cfg Config,
	log zerolog.Logger,
) *RedisDequeuer {
	cfg = cfg.withDefaults()
	return &RedisDequeuer{
		client: client,
		proc: &processor{
			handler:  handler,
			enqueuer: enqueuer,
			dlq:      dlq,
			states:   states,
			retry:    retry,
			timeout:  cfg.ProcessTimeout,
			log:      log,
		},
		config:   cfg,
		log:      log,
		channel:  cfg.Channel,
		errPause: receiveErrorPause,
	}
}

// Start launches the configured number of worker goroutines.
func (d *RedisDequeuer) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	for i := range d.config.WorkerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, fmt.Sprintf("worker-%d", i))
	}

	d.log.Info().
		Int("worker_count", d.config.WorkerCount).
		Str("channel", d.channel).
		Msg("redis dequeuer started")

	return nil
}

// Stop signals all workers to stop and waits up to the configured shutdown
// timeout for in-flight tasks to finish.
func (d *RedisDequeuer) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info().Msg("redis dequeuer stopped gracefully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.config.ShutdownTimeout):
		d.log.Warn().Msg("redis dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.config.ShutdownTimeout)
	}
}

func (d *RedisDequeuer) runWorker(ctx context.Context, name string) {
	defer d.wg.Done()

	d.log.Debug().Str("worker", name).Msg("worker started")

	for {
		if ctx.Err() != nil {
			d.log.Debug().Str("worker", name).Msg("worker stopping")
			return
		}

		popped, err := d.client.BZPopMin(ctx, d.config.BlockTimeout, queueKey(d.channel)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			d.log.Error().Err(err).Str("worker", name).Msg("bzpopmin error")
			pause(ctx, d.errPause)
			continue
		}

		taskID, ok := popped.Member.(string)
		if !ok {
			d.log.Error().Interface("member", popped.Member).Msg("invalid task id in queue")
			continue
		}

		task, err := d.loadTask(ctx, taskID)
		if err != nil {
			d.log.Error().Err(err).Str("task_id", taskID).Msg("failed to load task")
			continue
		}

		// In-flight tasks finish even when Stop cancels the pool.
		d.proc.process(context.WithoutCancel(ctx), task)
	}
}

func (d *RedisDequeuer) loadTask(ctx context.Context, taskID string) (*Task, error) {
	data, err := d.client.HGet(ctx, taskKey(taskID), "data").Result()
	if err != nil {
		return nil, fmt.Errorf("hget task %s: %w", taskID, err)
	}

	var task Task
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("unmarshal task %s: %w", taskID, err)
	}
	return &task, nil
}
