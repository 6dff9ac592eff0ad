//go:build integration

package storage_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungwon/mailqueue/internal/dispatch"
	"github.com/sungwon/mailqueue/internal/mail"
	"github.com/sungwon/mailqueue/internal/queue"
	"github.com/sungwon/mailqueue/internal/sender"
	"github.com/sungwon/mailqueue/internal/storage"
)

// recordingEnqueuer keeps every submitted task.
type recordingEnqueuer struct {
	mu    sync.Mutex
	tasks []*queue.Task
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, task *queue.Task) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return task.ID, nil
}

func (e *recordingEnqueuer) forMessage(id uuid.UUID) []*queue.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*queue.Task
	for _, t := range e.tasks {
		if t.MessageID == id {
			out = append(out, t)
		}
	}
	return out
}

// markingMailer marks the record sent inside the guard's unit of work.
// When entered is set it signals there and waits for release before
// returning, holding the row lock meanwhile.
type markingMailer struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
}

func (m *markingMailer) Send(ctx context.Context, tx mail.Tx, id uuid.UUID, _ mail.SendOptions) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if err := tx.SetStatus(ctx, id, mail.StatusSent, ""); err != nil {
		return err
	}
	if m.entered != nil {
		close(m.entered)
		<-m.release
	}
	return nil
}

func (m *markingMailer) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newPipeline(t *testing.T) (*storage.Messages, *recordingEnqueuer) {
	t.Helper()
	store := storage.NewMessages(sharedDB, zerolog.Nop())
	enq := &recordingEnqueuer{}
	store.OnCommit(dispatch.NewTrigger(enq, zerolog.Nop()).Dispatch)
	return store, enq
}

func TestGuard_CreateEnqueuesRecordPriorityAndSends(t *testing.T) {
	store, enq := newPipeline(t)
	ctx := context.Background()

	prio := 25
	p := newParams("scenario a")
	p.Priority = &prio
	msg, err := store.Create(ctx, p)
	require.NoError(t, err)

	tasks := enq.forMessage(msg.ID)
	require.Len(t, tasks, 1)
	assert.Equal(t, 25, tasks[0].Priority)
	assert.Equal(t, "Delayed email send (operation: create)", tasks[0].Description)

	mailer := &markingMailer{}
	res, err := sender.NewGuard(store, mailer, zerolog.Nop()).Run(ctx, tasks[0].MessageID)
	require.NoError(t, err)
	assert.Equal(t, sender.OutcomeSent, res.Outcome)
	assert.Equal(t, 1, mailer.callCount())

	got, err := store.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, mail.StatusSent, got.Status)
}

func TestGuard_CancelledBeforeExecution(t *testing.T) {
	store, enq := newPipeline(t)
	ctx := context.Background()

	msg, err := store.Create(ctx, newParams("scenario b"))
	require.NoError(t, err)

	cancel := mail.StatusCancel
	_, err = store.Update(ctx, []uuid.UUID{msg.ID}, storage.UpdateMessageParams{Status: &cancel})
	require.NoError(t, err)

	tasks := enq.forMessage(msg.ID)
	require.Len(t, tasks, 1, "a write leaving outgoing schedules nothing")

	mailer := &markingMailer{}
	res, err := sender.NewGuard(store, mailer, zerolog.Nop()).Run(ctx, tasks[0].MessageID)
	require.NoError(t, err)
	assert.Equal(t, sender.OutcomeWrongStatus, res.Outcome)
	assert.Equal(t, mail.StatusCancel, res.Status)
	assert.Zero(t, mailer.callCount())
}

func TestGuard_DeletedBeforeExecution(t *testing.T) {
	store, enq := newPipeline(t)
	ctx := context.Background()

	msg, err := store.Create(ctx, newParams("scenario c"))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, msg.ID))

	tasks := enq.forMessage(msg.ID)
	require.Len(t, tasks, 1)

	mailer := &markingMailer{}
	res, err := sender.NewGuard(store, mailer, zerolog.Nop()).Run(ctx, tasks[0].MessageID)
	require.NoError(t, err)
	assert.Equal(t, sender.OutcomeGone, res.Outcome)
	assert.Zero(t, mailer.callCount())
}

func TestGuard_ConcurrentRunsSendOnce(t *testing.T) {
	store, enq := newPipeline(t)
	ctx := context.Background()

	msg, err := store.Create(ctx, newParams("contended send"))
	require.NoError(t, err)
	require.Len(t, enq.forMessage(msg.ID), 1)

	mailer := &markingMailer{entered: make(chan struct{}), release: make(chan struct{})}
	guard := sender.NewGuard(store, mailer, zerolog.Nop())

	type outcome struct {
		res sender.Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := guard.Run(ctx, msg.ID)
		first <- outcome{res, err}
	}()

	<-mailer.entered
	res, err := guard.Run(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, sender.OutcomeLockDenied, res.Outcome)

	close(mailer.release)
	got := <-first
	require.NoError(t, got.err)
	assert.Equal(t, sender.OutcomeSent, got.res.Outcome)
	assert.Equal(t, 1, mailer.callCount())

	res, err = guard.Run(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, sender.OutcomeWrongStatus, res.Outcome)
	assert.Equal(t, mail.StatusSent, res.Status)
	assert.Equal(t, 1, mailer.callCount())
}
