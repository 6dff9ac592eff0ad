package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/logger"
)

// processor runs one task through the handler and settles its outcome:
// done, retry after backoff, or dead letter. Both backends share it.
type processor struct {
	handler  TaskHandler
	enqueuer Enqueuer
	dlq      DeadLetterQueue
	states   StateStore
	retry    *RetryStrategy
	timeout  time.Duration
	log      zerolog.Logger
}

// process executes task. The caller acknowledges the original delivery
// afterwards regardless of outcome; retries are written as new deliveries.
func (p *processor) process(ctx context.Context, task *Task) {
	start := time.Now()
	log := p.log.With().
		Str("task_id", task.ID).
		Str("message_id", task.MessageID.String()).
		Int("retry_count", task.RetryCount).
		Logger()

	if err := p.states.MarkStarted(ctx, task); err != nil {
		log.Warn().Err(err).Msg("failed to record task start")
	}

	processCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	processCtx = logger.WithCorrelationID(processCtx, task.ID)

	result, err := p.handler.HandleTask(processCtx, task)
	TaskProcessingDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		if stateErr := p.states.MarkDone(ctx, task, result); stateErr != nil {
			log.Warn().Err(stateErr).Msg("failed to record task completion")
		}
		TasksProcessedTotal.WithLabelValues("done").Inc()
		log.Debug().Str("result", result).Msg("task done")
		return
	}

	log.Error().Err(err).Msg("task failed")
	if stateErr := p.states.MarkFailed(ctx, task, err); stateErr != nil {
		log.Warn().Err(stateErr).Msg("failed to record task failure")
	}
	TasksProcessedTotal.WithLabelValues("failed").Inc()

	if p.retry.ShouldRetry(task.RetryCount, err) {
		backoff := p.retry.NextBackoff(task.RetryCount)
		task.RetryCount++
		log.Info().Dur("backoff", backoff).Msg("scheduling retry")
		if _, ok := p.enqueuer.(delayedEnqueuer); ok {
			p.retryAfterBackoff(ctx, task, backoff)
		} else {
			go p.retryAfterBackoff(context.WithoutCancel(ctx), task, backoff)
		}
		return
	}

	cause := "exhausted"
	if IsPermanent(err) {
		cause = "permanent"
	}
	log.Warn().Str("cause", cause).Msg("moving task to DLQ")
	if dlqErr := p.dlq.MoveToDLQ(ctx, task, err.Error()); dlqErr != nil {
		log.Error().Err(dlqErr).Msg("failed to move task to DLQ")
		return
	}
	DLQTasksTotal.WithLabelValues(cause).Inc()
}

// delayedEnqueuer is implemented by backends that can schedule delivery
// themselves.
type delayedEnqueuer interface {
	EnqueueWithDelay(ctx context.Context, task *Task, delay time.Duration) (string, error)
}

// retryAfterBackoff re-enqueues the task once backoff has elapsed.
func (p *processor) retryAfterBackoff(ctx context.Context, task *Task, backoff time.Duration) {
	if de, ok := p.enqueuer.(delayedEnqueuer); ok {
		if _, err := de.EnqueueWithDelay(ctx, task, backoff); err != nil {
			p.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to re-enqueue task for retry")
		}
		return
	}

	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if _, err := p.enqueuer.Enqueue(ctx, task); err != nil {
		p.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to re-enqueue task for retry")
	}
}
