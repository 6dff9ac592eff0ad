package queue

import "context"

// Enqueuer submits tasks. Submission is fire-and-forget: the returned id is
// a handle for history lookups only.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *Task) (string, error)
}

// Dequeuer consumes tasks.
// Start begins consuming in background goroutines.
// Stop gracefully shuts down consumers.
type Dequeuer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DeadLetterQueue manages tasks that exhausted their retries.
type DeadLetterQueue interface {
	MoveToDLQ(ctx context.Context, task *Task, reason string) error
	Reprocess(ctx context.Context, channel string, entryIDs []string) (int, error)
}

// TaskHandler runs a task body. A nil error marks the task done with result
// as its informational outcome; a non-nil error marks it failed and hands it
// to the retry machinery.
type TaskHandler interface {
	HandleTask(ctx context.Context, task *Task) (result string, err error)
}

// TaskHandlerFunc adapts a function to TaskHandler.
type TaskHandlerFunc func(ctx context.Context, task *Task) (string, error)

// HandleTask calls f.
func (f TaskHandlerFunc) HandleTask(ctx context.Context, task *Task) (string, error) {
	return f(ctx, task)
}
