package queue

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Default retry schedule durations.
var retrySchedule = []time.Duration{
	30 * time.Second,
	1 * time.Minute,
	2 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
}

// permanentFailure is implemented by errors that know they will fail again
// on every retry.
type permanentFailure interface {
	PermanentFailure() bool
}

// IsPermanent reports whether any error in err's chain declares itself a
// permanent failure.
func IsPermanent(err error) bool {
	var pf permanentFailure
	return errors.As(err, &pf) && pf.PermanentFailure()
}

// RetryStrategy implements exponential backoff with jitter for task retries.
type RetryStrategy struct {
	MaxRetries int
	Schedule   []time.Duration
}

// NewRetryStrategy creates a RetryStrategy with the default schedule and the
// given maximum retry count.
func NewRetryStrategy(maxRetries int) *RetryStrategy {
	return &RetryStrategy{
		MaxRetries: maxRetries,
		Schedule:   retrySchedule,
	}
}

// ShouldRetry returns true if the task has not exhausted its retry budget
// and err is not a permanent failure.
func (r *RetryStrategy) ShouldRetry(retryCount int, err error) bool {
	if IsPermanent(err) {
		return false
	}
	return retryCount < r.MaxRetries
}

// NextBackoff returns the backoff duration for the given retry attempt with
// jitter applied. Jitter is calculated as: base * (0.5 + rand * 0.5).
func (r *RetryStrategy) NextBackoff(retryCount int) time.Duration {
	idx := retryCount
	if idx >= len(r.Schedule) {
		idx = len(r.Schedule) - 1
	}
	if idx < 0 {
		idx = 0
	}

	base := r.Schedule[idx]
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(base) * jitter)
}

// receiveErrorPause is how long a worker waits after a failed receive before
// polling the backend again.
const receiveErrorPause = time.Second

// pause waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func pause(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
