package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/mail"
)

// ErrHook is returned (wrapped) when a write committed but one of its
// post-commit hooks failed. The returned records reflect the committed state.
var ErrHook = errors.New("storage: post-commit hook failed")

// Hook runs after a create or write transaction commits, with the new state
// of every affected record.
type Hook func(ctx context.Context, op mail.Operation, msgs []mail.Message) error

// CreateMessageParams holds the fields of a new message record. A nil
// Priority is replaced by mail.DefaultPriority.
type CreateMessageParams struct {
	Status   mail.Status
	Priority *int
	Server   string
	From     string
	To       []string
	Subject  string
	Headers  map[string]string
	Body     []byte
	BodyRef  string
}

// UpdateMessageParams holds the fields to change on existing records. Nil
// fields are left untouched.
type UpdateMessageParams struct {
	Status   *mail.Status
	Priority *int
	Server   *string
	From     *string
	To       []string
	Subject  *string
	Headers  map[string]string
	Body     []byte
	BodyRef  *string
}

// Messages is the record store for mail_messages. Create and Update run the
// registered post-commit hooks once their transaction has committed.
type Messages struct {
	pool *pgxpool.Pool
	log  zerolog.Logger

	mu    sync.RWMutex
	hooks []Hook
}

// NewMessages creates a Messages store on the given pool.
func NewMessages(db *DB, log zerolog.Logger) *Messages {
	return &Messages{pool: db.Pool, log: log}
}

// OnCommit registers a hook to run after every committed create or write.
func (m *Messages) OnCommit(h Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// Create inserts a single record.
func (m *Messages) Create(ctx context.Context, p CreateMessageParams) (mail.Message, error) {
	msgs, err := m.CreateMany(ctx, []CreateMessageParams{p})
	if len(msgs) == 0 {
		return mail.Message{}, err
	}
	return msgs[0], err
}

// CreateMany inserts records in one transaction, then runs the hooks with
// operation create.
func (m *Messages) CreateMany(ctx context.Context, params []CreateMessageParams) ([]mail.Message, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	msgs := make([]mail.Message, 0, len(params))
	for _, p := range params {
		args, err := insertArgs(p)
		if err != nil {
			return nil, err
		}
		msg, err := scanMessage(tx.QueryRow(ctx, queryInsertMessage, args...))
		if err != nil {
			return nil, fmt.Errorf("insert message: %w", err)
		}
		msgs = append(msgs, msg)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}

	return msgs, m.runHooks(ctx, mail.OperationCreate, msgs)
}

// Update applies p to every record in ids in one transaction, then runs the
// hooks with operation write. Ids without a row are ignored; the returned
// slice holds only the records that were updated.
func (m *Messages) Update(ctx context.Context, ids []uuid.UUID, p UpdateMessageParams) ([]mail.Message, error) {
	if p.Status != nil && !p.Status.Valid() {
		return nil, fmt.Errorf("update message: invalid status %q", *p.Status)
	}

	args, err := updateArgs(ids, p)
	if err != nil {
		return nil, err
	}

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin write: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, queryUpdateMessages, args...)
	if err != nil {
		return nil, fmt.Errorf("update messages: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("update messages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit write: %w", err)
	}

	return msgs, m.runHooks(ctx, mail.OperationWrite, msgs)
}

// Get returns a single record, or mail.ErrNotFound.
func (m *Messages) Get(ctx context.Context, id uuid.UUID) (mail.Message, error) {
	msg, err := scanMessage(m.pool.QueryRow(ctx, queryGetMessage, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mail.Message{}, mail.ErrNotFound
		}
		return mail.Message{}, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

// ListByStatus returns up to limit records in the given status, in dispatch
// order.
func (m *Messages) ListByStatus(ctx context.Context, status mail.Status, limit int) ([]mail.Message, error) {
	rows, err := m.pool.Query(ctx, queryListMessagesByStatus, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Delete removes a record. It does not run hooks.
func (m *Messages) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := m.pool.Exec(ctx, queryDeleteMessage, id)
	if err != nil {
		return fmt.Errorf("delete message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return mail.ErrNotFound
	}
	return nil
}

// BeginTx opens a unit of work for the guarded sender and the send
// subsystem.
func (m *Messages) BeginTx(ctx context.Context) (mail.Tx, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

func (m *Messages) runHooks(ctx context.Context, op mail.Operation, msgs []mail.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	m.mu.RLock()
	hooks := slices.Clone(m.hooks)
	m.mu.RUnlock()

	var errs []error
	for _, h := range hooks {
		if err := h(ctx, op, msgs); err != nil {
			m.log.Error().Err(err).
				Str("operation", string(op)).
				Int("records", len(msgs)).
				Msg("post-commit hook failed")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrHook, errors.Join(errs...))
	}
	return nil
}

func insertArgs(p CreateMessageParams) ([]any, error) {
	status := p.Status
	if status == "" {
		status = mail.StatusOutgoing
	}
	if !status.Valid() {
		return nil, fmt.Errorf("insert message: invalid status %q", status)
	}
	priority := mail.DefaultPriority
	if p.Priority != nil {
		priority = *p.Priority
	}

	recipients, err := json.Marshal(nonNil(p.To))
	if err != nil {
		return nil, fmt.Errorf("encode recipients: %w", err)
	}
	headers, err := json.Marshal(nonNilMap(p.Headers))
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}

	return []any{
		uuid.New(), string(status), priority, p.Server, p.From,
		recipients, p.Subject, headers, nonNilBytes(p.Body), p.BodyRef,
	}, nil
}

func updateArgs(ids []uuid.UUID, p UpdateMessageParams) ([]any, error) {
	var status *string
	if p.Status != nil {
		s := string(*p.Status)
		status = &s
	}

	var recipients, headers []byte
	if p.To != nil {
		b, err := json.Marshal(p.To)
		if err != nil {
			return nil, fmt.Errorf("encode recipients: %w", err)
		}
		recipients = b
	}
	if p.Headers != nil {
		b, err := json.Marshal(p.Headers)
		if err != nil {
			return nil, fmt.Errorf("encode headers: %w", err)
		}
		headers = b
	}

	return []any{
		ids, status, p.Priority, p.Server, p.From,
		recipients, p.Subject, headers, p.Body, p.BodyRef,
	}, nil
}

func scanMessage(row pgx.Row) (mail.Message, error) {
	var (
		msg        mail.Message
		status     string
		recipients []byte
		headers    []byte
	)
	err := row.Scan(
		&msg.ID, &status, &msg.Priority, &msg.Server, &msg.From, &recipients,
		&msg.Subject, &headers, &msg.Body, &msg.BodyRef, &msg.FailureReason,
		&msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return mail.Message{}, err
	}
	msg.Status = mail.Status(status)
	if err := json.Unmarshal(recipients, &msg.To); err != nil {
		return mail.Message{}, fmt.Errorf("decode recipients of %s: %w", msg.ID, err)
	}
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &msg.Headers); err != nil {
			return mail.Message{}, fmt.Errorf("decode headers of %s: %w", msg.ID, err)
		}
	}
	return msg, nil
}

func collectMessages(rows pgx.Rows) ([]mail.Message, error) {
	defer rows.Close()

	var msgs []mail.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nonNilBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
