package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/sungwon/mailqueue/internal/mail"
)

// sqlStateLockNotAvailable is raised by FOR UPDATE NOWAIT when the row is
// locked by another transaction.
const sqlStateLockNotAvailable = "55P03"

// UnitOfWork is a database transaction scoped to one send attempt. It
// implements mail.Tx. Status changes made through it do not run the
// post-commit hooks of Messages.
type UnitOfWork struct {
	tx pgx.Tx
}

var _ mail.Tx = (*UnitOfWork)(nil)

// TryLock takes the row lock with NOWAIT. A contended row yields false and a
// nil error; the transaction is then aborted and must be rolled back.
func (u *UnitOfWork) TryLock(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := u.tx.Exec(ctx, queryLockMessageNoWait, id); err != nil {
		if isLockNotAvailable(err) {
			return false, nil
		}
		return false, fmt.Errorf("lock message %s: %w", id, err)
	}
	return true, nil
}

// Exists reports whether the record has a row.
func (u *UnitOfWork) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := u.tx.QueryRow(ctx, queryMessageExists, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check message %s: %w", id, err)
	}
	return exists, nil
}

// Status returns the record's current status, or mail.ErrNotFound.
func (u *UnitOfWork) Status(ctx context.Context, id uuid.UUID) (mail.Status, error) {
	var status string
	if err := u.tx.QueryRow(ctx, queryMessageStatus, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", mail.ErrNotFound
		}
		return "", fmt.Errorf("get status of message %s: %w", id, err)
	}
	return mail.Status(status), nil
}

// Get loads the full record, or mail.ErrNotFound.
func (u *UnitOfWork) Get(ctx context.Context, id uuid.UUID) (mail.Message, error) {
	msg, err := scanMessage(u.tx.QueryRow(ctx, queryGetMessage, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mail.Message{}, mail.ErrNotFound
		}
		return mail.Message{}, fmt.Errorf("get message %s: %w", id, err)
	}
	return msg, nil
}

// SetStatus moves the record to status and records reason as its failure
// reason (empty clears it).
func (u *UnitOfWork) SetStatus(ctx context.Context, id uuid.UUID, status mail.Status, reason string) error {
	tag, err := u.tx.Exec(ctx, querySetMessageStatus, id, string(status), reason)
	if err != nil {
		return fmt.Errorf("set status of message %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return mail.ErrNotFound
	}
	return nil
}

// Commit commits the transaction and releases its row locks.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

// Rollback aborts the transaction and releases its row locks. Rolling back a
// finished unit of work is a no-op.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback unit of work: %w", err)
	}
	return nil
}

func isLockNotAvailable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateLockNotAvailable
}
