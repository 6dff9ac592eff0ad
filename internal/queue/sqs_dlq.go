package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SQSDLQ keeps dead tasks in a separate SQS queue.
type SQSDLQ struct {
	client   sqsAPI
	dlqURL   string
	enqueuer Enqueuer
	log      zerolog.Logger
}

// NewSQSDLQ creates an SQSDLQ. Reprocess sends tasks back through enqueuer.
func NewSQSDLQ(client sqsAPI, dlqURL string, enqueuer Enqueuer, log zerolog.Logger) *SQSDLQ {
	return &SQSDLQ{client: client, dlqURL: dlqURL, enqueuer: enqueuer, log: log}
}

// MoveToDLQ sends the task in a DeadTask envelope to the dead letter queue.
func (d *SQSDLQ) MoveToDLQ(ctx context.Context, task *Task, reason string) error {
	data, err := json.Marshal(DeadTask{
		Task:       task,
		FinalError: reason,
		MovedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead task: %w", err)
	}

	if _, err := d.client.SendMessage(ctx, &sqsSendInput{
		QueueURL:    d.dlqURL,
		MessageBody: string(data),
		Priority:    task.Priority,
	}); err != nil {
		return fmt.Errorf("sqs send to dlq: %w", err)
	}

	TasksProcessedTotal.WithLabelValues("dlq").Inc()

	return nil
}

// Reprocess drains up to len(entryIDs) messages from the DLQ and re-enqueues
// them with a reset retry count. SQS cannot read by id, so the ids only size
// the batch.
func (d *SQSDLQ) Reprocess(ctx context.Context, _ string, entryIDs []string) (int, error) {
	batch := len(entryIDs)
	if batch == 0 {
		return 0, nil
	}
	if batch > 10 {
		batch = 10
	}

	out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
		QueueURL:            d.dlqURL,
		MaxNumberOfMessages: int32(batch),
		VisibilityTimeout:   30,
	})
	if err != nil {
		return 0, fmt.Errorf("sqs receive from dlq: %w", err)
	}

	reprocessed := 0
	for _, m := range out.Messages {
		var dead DeadTask
		if err := json.Unmarshal([]byte(m.Body), &dead); err != nil || dead.Task == nil {
			d.log.Warn().Err(err).Str("sqs_message_id", m.MessageID).Msg("skipping malformed dlq message")
			continue
		}

		dead.Task.RetryCount = 0
		if _, err := d.enqueuer.Enqueue(ctx, dead.Task); err != nil {
			return reprocessed, fmt.Errorf("re-enqueue task %s: %w", dead.Task.ID, err)
		}

		if err := d.client.DeleteMessage(ctx, &sqsDeleteInput{
			QueueURL:      d.dlqURL,
			ReceiptHandle: m.ReceiptHandle,
		}); err != nil {
			return reprocessed, fmt.Errorf("delete dlq message: %w", err)
		}

		reprocessed++
	}

	return reprocessed, nil
}
