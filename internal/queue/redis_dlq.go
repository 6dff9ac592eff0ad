package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeadTask wraps a task that will not be retried with its failure metadata.
type DeadTask struct {
	Task       *Task     `json:"task"`
	FinalError string    `json:"final_error"`
	MovedAt    time.Time `json:"moved_at"`
}

// RedisDLQ keeps dead tasks in a per-channel Redis stream.
type RedisDLQ struct {
	client   *redis.Client
	enqueuer Enqueuer
}

// NewRedisDLQ creates a new RedisDLQ backed by the given Redis client and enqueuer.
func NewRedisDLQ(client *redis.Client, enqueuer Enqueuer) *RedisDLQ {
	return &RedisDLQ{client: client, enqueuer: enqueuer}
}

// MoveToDLQ appends the task to its channel's dead letter stream.
func (d *RedisDLQ) MoveToDLQ(ctx context.Context, task *Task, reason string) error {
	data, err := json.Marshal(DeadTask{
		Task:       task,
		FinalError: reason,
		MovedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead task: %w", err)
	}

	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStreamKey(task.Channel),
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to dlq stream %s: %w", dlqStreamKey(task.Channel), err)
	}

	TasksProcessedTotal.WithLabelValues("dlq").Inc()

	return nil
}

// Reprocess re-enqueues the given DLQ entries with a reset retry count and
// removes them from the stream. Unknown or unreadable entries are skipped.
// It returns the number of entries re-enqueued.
func (d *RedisDLQ) Reprocess(ctx context.Context, channel string, entryIDs []string) (int, error) {
	reprocessed := 0

	for _, entryID := range entryIDs {
		entries, err := d.client.XRange(ctx, dlqStreamKey(channel), entryID, entryID).Result()
		if err != nil {
			return reprocessed, fmt.Errorf("xrange dlq entry %s: %w", entryID, err)
		}
		if len(entries) == 0 {
			continue
		}

		data, ok := entries[0].Values["data"].(string)
		if !ok {
			continue
		}

		var dead DeadTask
		if err := json.Unmarshal([]byte(data), &dead); err != nil || dead.Task == nil {
			continue
		}

		dead.Task.RetryCount = 0
		if _, err := d.enqueuer.Enqueue(ctx, dead.Task); err != nil {
			return reprocessed, fmt.Errorf("re-enqueue task %s: %w", dead.Task.ID, err)
		}

		if err := d.client.XDel(ctx, dlqStreamKey(channel), entryID).Err(); err != nil {
			return reprocessed, fmt.Errorf("xdel dlq entry %s: %w", entryID, err)
		}

		reprocessed++
	}

	return reprocessed, nil
}
