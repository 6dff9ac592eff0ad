package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTaskNotFound is returned when no history exists for a task id.
var ErrTaskNotFound = errors.New("queue: task not found")

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	StatePending TaskState = "pending"
	StateStarted TaskState = "started"
	StateDone    TaskState = "done"
	StateFailed  TaskState = "failed"
)

// TaskRecord is the stored history of a task.
type TaskRecord struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel"`
	MessageID   string    `json:"message_id"`
	Priority    int       `json:"priority"`
	Description string    `json:"description"`
	State       TaskState `json:"state"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
	RetryCount  int       `json:"retry_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StateStore records task lifecycle transitions for inspection.
type StateStore interface {
	MarkPending(ctx context.Context, task *Task) error
	MarkStarted(ctx context.Context, task *Task) error
	MarkDone(ctx context.Context, task *Task, result string) error
	MarkFailed(ctx context.Context, task *Task, cause error) error
	Get(ctx context.Context, taskID string) (*TaskRecord, error)
}

// RedisStateStore keeps task history in the task's Redis hash.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStateStore creates a RedisStateStore. History entries expire after ttl.
func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, ttl: ttl}
}

func (s *RedisStateStore) MarkPending(ctx context.Context, task *Task) error {
	return s.set(ctx, task, map[string]any{
		"channel":     task.Channel,
		"message_id":  task.MessageID.String(),
		"priority":    task.Priority,
		"description": task.Description,
		"state":       string(StatePending),
	})
}

func (s *RedisStateStore) MarkStarted(ctx context.Context, task *Task) error {
	return s.set(ctx, task, map[string]any{"state": string(StateStarted)})
}

func (s *RedisStateStore) MarkDone(ctx context.Context, task *Task, result string) error {
	return s.set(ctx, task, map[string]any{
		"state":  string(StateDone),
		"result": result,
		"error":  "",
	})
}

func (s *RedisStateStore) MarkFailed(ctx context.Context, task *Task, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return s.set(ctx, task, map[string]any{
		"state": string(StateFailed),
		"error": msg,
	})
}

func (s *RedisStateStore) set(ctx context.Context, task *Task, fields map[string]any) error {
	fields["retry_count"] = task.RetryCount
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	key := taskKey(task.ID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("hset task state %s: %w", task.ID, err)
	}
	return nil
}

// Get returns the stored history of a task.
func (s *RedisStateStore) Get(ctx context.Context, taskID string) (*TaskRecord, error) {
	vals, err := s.client.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall task %s: %w", taskID, err)
	}
	if len(vals) == 0 || vals["state"] == "" {
		return nil, ErrTaskNotFound
	}
	return decodeTaskRecord(taskID, vals)
}

// decodeTaskRecord builds a TaskRecord from a task hash. Absent numeric and
// time fields stay zero; malformed ones are an error.
func decodeTaskRecord(taskID string, vals map[string]string) (*TaskRecord, error) {
	rec := &TaskRecord{
		ID:          taskID,
		Channel:     vals["channel"],
		MessageID:   vals["message_id"],
		Description: vals["description"],
		State:       TaskState(vals["state"]),
		Result:      vals["result"],
		Error:       vals["error"],
	}

	var err error
	if v := vals["priority"]; v != "" {
		if rec.Priority, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("task %s priority: %w", taskID, err)
		}
	}
	if v := vals["retry_count"]; v != "" {
		if rec.RetryCount, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("task %s retry_count: %w", taskID, err)
		}
	}
	if v := vals["updated_at"]; v != "" {
		if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("task %s updated_at: %w", taskID, err)
		}
	}
	return rec, nil
}

// NopStateStore discards task history. Used by backends without a history
// store of their own.
type NopStateStore struct{}

func (NopStateStore) MarkPending(context.Context, *Task) error         { return nil }
func (NopStateStore) MarkStarted(context.Context, *Task) error         { return nil }
func (NopStateStore) MarkDone(context.Context, *Task, string) error    { return nil }
func (NopStateStore) MarkFailed(context.Context, *Task, error) error   { return nil }
func (NopStateStore) Get(context.Context, string) (*TaskRecord, error) { return nil, ErrTaskNotFound }
