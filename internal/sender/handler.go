package sender

import (
	"context"

	"github.com/sungwon/mailqueue/internal/queue"
)

// TaskHandler runs a Guard as the body of queue send tasks.
type TaskHandler struct {
	guard *Guard
}

// NewTaskHandler wraps guard for the queue dequeuers.
func NewTaskHandler(guard *Guard) *TaskHandler {
	return &TaskHandler{guard: guard}
}

// HandleTask implements queue.TaskHandler. The returned string is the
// outcome diagnostic; send failures are returned as errors so the queue's
// retry and DLQ handling applies.
func (h *TaskHandler) HandleTask(ctx context.Context, task *queue.Task) (string, error) {
	res, err := h.guard.Run(ctx, task.MessageID)
	if err != nil {
		return "", err
	}
	return res.String(), nil
}
