// Package dispatch turns committed writes on message records into deferred
// send tasks, one task per outgoing record.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sungwon/mailqueue/internal/mail"
	"github.com/sungwon/mailqueue/internal/queue"
)

// Description returns the human-readable label carried by tasks created for op.
func Description(op mail.Operation) string {
	return fmt.Sprintf("Delayed email send (operation: %s)", op)
}

// Trigger enqueues a send task for every outgoing record handed to it.
// Tasks carry only the record id; the worker re-reads the record.
type Trigger struct {
	enqueuer queue.Enqueuer
	channel  string
	log      zerolog.Logger
	tracer   trace.Tracer
}

// NewTrigger creates a Trigger that submits tasks through enqueuer.
func NewTrigger(enqueuer queue.Enqueuer, log zerolog.Logger) *Trigger {
	return &Trigger{
		enqueuer: enqueuer,
		channel:  queue.DefaultChannel,
		log:      log,
		tracer:   otel.Tracer("mailqueue/dispatch"),
	}
}

// WithChannel routes tasks to channel instead of the default one.
func (t *Trigger) WithChannel(channel string) *Trigger {
	if channel != "" {
		t.channel = channel
	}
	return t
}

// Dispatch enqueues one task per record in msgs whose status is outgoing,
// with the record's priority. Other records are skipped. Every write of an
// outgoing record schedules a new task; duplicates are resolved by the
// guarded sender at execution time.
//
// A failed enqueue does not stop the remaining records. All failures are
// joined into the returned error.
func (t *Trigger) Dispatch(ctx context.Context, op mail.Operation, msgs []mail.Message) error {
	ctx, span := t.tracer.Start(ctx, "dispatch.trigger", trace.WithAttributes(
		attribute.String("operation", string(op)),
		attribute.Int("records", len(msgs)),
	))
	defer span.End()

	desc := Description(op)
	var errs []error
	enqueued := 0

	for _, msg := range msgs {
		if !msg.IsOutgoing() {
			RecordsSkippedTotal.WithLabelValues(string(msg.Status)).Inc()
			continue
		}

		task := queue.NewSendTask(msg.ID, msg.Priority, desc)
		task.Channel = t.channel
		if _, err := t.enqueuer.Enqueue(ctx, task); err != nil {
			errs = append(errs, fmt.Errorf("enqueue send of message %s: %w", msg.ID, err))
			continue
		}

		enqueued++
		TasksEnqueuedTotal.WithLabelValues(string(op)).Inc()
		t.log.Debug().
			Str("message_id", msg.ID.String()).
			Str("task_id", task.ID).
			Int("priority", task.Priority).
			Str("operation", string(op)).
			Msg("send task enqueued")
	}

	span.SetAttributes(attribute.Int("enqueued", enqueued))

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "enqueue failed")
		t.log.Error().Err(err).Str("operation", string(op)).Int("failed", len(errs)).Msg("dispatch incomplete")
		return err
	}
	return nil
}
