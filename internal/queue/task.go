package queue

import (
	"time"

	"github.com/google/uuid"
)

// DefaultChannel is the channel send tasks are routed to.
const DefaultChannel = "root.mail"

// Task is a deferred send of one message record. The task carries only the
// record id; the worker reads everything else from the record store.
type Task struct {
	ID          string    `json:"id"`
	Channel     string    `json:"channel"`
	MessageID   uuid.UUID `json:"message_id"`
	Priority    int       `json:"priority"`
	Description string    `json:"description"`
	RetryCount  int       `json:"retry_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewSendTask creates a task for messageID on the default channel. Task ids
// are UUIDv7 so that ids of equal priority sort in enqueue order.
func NewSendTask(messageID uuid.UUID, priority int, description string) *Task {
	return &Task{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Channel:     DefaultChannel,
		MessageID:   messageID,
		Priority:    priority,
		Description: description,
		CreatedAt:   time.Now(),
	}
}

// queueKey returns the Redis sorted set holding pending task ids of a channel.
func queueKey(channel string) string {
	return "queue:" + channel
}

// taskKey returns the Redis hash holding a task's payload and history.
func taskKey(taskID string) string {
	return "task:" + taskID
}

// dlqStreamKey returns the Redis DLQ stream key for a channel.
func dlqStreamKey(channel string) string {
	return "dlq:" + channel
}
