package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisEnqueuer stores task payloads in per-task hashes and orders pending
// task ids in a per-channel sorted set scored by priority. Lower scores are
// consumed first; equal scores fall back to the lexical order of the
// time-ordered task ids.
type RedisEnqueuer struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisEnqueuer creates a RedisEnqueuer. Task hashes expire after ttl.
func NewRedisEnqueuer(client *redis.Client, ttl time.Duration) *RedisEnqueuer {
	return &RedisEnqueuer{client: client, ttl: ttl}
}

// Enqueue writes the task payload and its pending state, then queues its id,
// in one MULTI/EXEC. It returns the task id.
func (e *RedisEnqueuer) Enqueue(ctx context.Context, task *Task) (string, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	key := taskKey(task.ID)
	pipe := e.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"data":        string(data),
		"channel":     task.Channel,
		"message_id":  task.MessageID.String(),
		"priority":    task.Priority,
		"description": task.Description,
		"state":       string(StatePending),
		"retry_count": task.RetryCount,
		"updated_at":  time.Now().UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, e.ttl)
	pipe.ZAdd(ctx, queueKey(task.Channel), redis.Z{
		Score:  float64(task.Priority),
		Member: task.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue task %s on %s: %w", task.ID, queueKey(task.Channel), err)
	}

	TasksEnqueuedTotal.WithLabelValues(task.Channel).Inc()

	return task.ID, nil
}
