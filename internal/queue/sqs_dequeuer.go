package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SQSDequeuer runs a pool of workers that long-poll an SQS queue.
type SQSDequeuer struct {
	client   sqsAPI
	queueURL string
	proc     *processor
	config   Config
	log      zerolog.Logger
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	errPause time.Duration
}

// NewSQSDequeuer creates an SQSDequeuer reading cfg.SQSQueueURL.
func NewSQSDequeuer(
	client sqsAPI,
	enqueuer Enqueuer,
	dlq DeadLetterQueue,
	states StateStore,
	handler TaskHandler,
	retry *RetryStrategy,
	cfg Config,
	log zerolog.Logger,
) *SQSDequeuer {
	cfg = cfg.withDefaults()
	return &SQSDequeuer{
		client:   client,
		queueURL: cfg.SQSQueueURL,
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
		errPause: receiveErrorPause,
	}
}

// Start launches the configured number of long-polling workers.
func (d *SQSDequeuer) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	for i := range d.config.WorkerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, fmt.Sprintf("sqs-worker-%d", i))
	}

	d.log.Info().
		Int("worker_count", d.config.WorkerCount).
		Str("queue_url", d.queueURL).
		Msg("sqs dequeuer started")

	return nil
}

// Stop cancels polling and waits for in-flight tasks within the shutdown
// timeout.
func (d *SQSDequeuer) Stop(ctx context.Context) error {
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
		d.log.Info().Msg("sqs dequeuer stopped gracefully")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d.config.ShutdownTimeout):
		d.log.Warn().Msg("sqs dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.config.ShutdownTimeout)
	}
}

func (d *SQSDequeuer) runWorker(ctx context.Context, name string) {
	defer d.wg.Done()

	for {
		if ctx.Err() != nil {
			d.log.Debug().Str("worker", name).Msg("sqs worker stopping")
			return
		}

		out, err := d.client.ReceiveMessage(ctx, &sqsReceiveInput{
			QueueURL:            d.queueURL,
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     d.config.SQSWaitTime,
			VisibilityTimeout:   d.config.SQSVisTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error().Err(err).Str("worker", name).Msg("sqs receive error")
			pause(ctx, d.errPause)
			continue
		}

		for _, m := range out.Messages {
			d.handleMessage(context.WithoutCancel(ctx), m)
		}
	}
}

// handleMessage decodes and processes one SQS message, then deletes it.
// Retries are written as new delayed messages so the original is always
// deleted.
func (d *SQSDequeuer) handleMessage(ctx context.Context, m sqsReceivedMessage) {
	var task Task
	if err := json.Unmarshal([]byte(m.Body), &task); err != nil {
		d.log.Error().Err(err).Str("sqs_message_id", m.MessageID).Msg("failed to unmarshal sqs task")
	} else {
		d.proc.process(ctx, &task)
	}

	if err := d.client.DeleteMessage(ctx, &sqsDeleteInput{
		QueueURL:      d.queueURL,
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		d.log.Error().Err(err).Str("sqs_message_id", m.MessageID).Msg("failed to delete sqs message")
	}
}
