package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// maxSQSDelay is the SQS limit on DelaySeconds.
const maxSQSDelay = 900 * time.Second

// SQSEnqueuer publishes tasks to an SQS queue. SQS does not order by
// priority; the priority travels as a message attribute.
type SQSEnqueuer struct {
	client   sqsAPI
	queueURL string
}

// NewSQSEnqueuer creates a new SQSEnqueuer targeting the given queue URL.
func NewSQSEnqueuer(client sqsAPI, queueURL string) *SQSEnqueuer {
	return &SQSEnqueuer{client: client, queueURL: queueURL}
}

// Enqueue sends the task immediately and returns the task id.
func (e *SQSEnqueuer) Enqueue(ctx context.Context, task *Task) (string, error) {
	return e.EnqueueWithDelay(ctx, task, 0)
}

// EnqueueWithDelay sends the task with a delivery delay capped at the SQS
// maximum of 15 minutes.
func (e *SQSEnqueuer) EnqueueWithDelay(ctx context.Context, task *Task, delay time.Duration) (string, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("marshal task: %w", err)
	}

	if delay > maxSQSDelay {
		delay = maxSQSDelay
	}

	if _, err := e.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:     e.queueURL,
		MessageBody:  string(data),
		DelaySeconds: int32(delay / time.Second),
		Priority:     task.Priority,
	}); err != nil {
		return "", fmt.Errorf("sqs send task %s: %w", task.ID, err)
	}

	TasksEnqueuedTotal.WithLabelValues(task.Channel).Inc()

	return task.ID, nil
}
