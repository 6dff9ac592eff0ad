package mail

import (
	"context"

	"github.com/google/uuid"
)

// Tx is one unit of work over message records. Row locks taken through it
// are held until Commit or Rollback.
type Tx interface {
	// TryLock takes an exclusive row lock on the record without waiting.
	// It returns false when another unit of work already holds the lock.
	// Locking an id that has no row succeeds; callers check Exists after.
	TryLock(ctx context.Context, id uuid.UUID) (bool, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Status(ctx context.Context, id uuid.UUID) (Status, error)
	Get(ctx context.Context, id uuid.UUID) (Message, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status, reason string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxBeginner opens units of work.
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// SendOptions controls how the send subsystem behaves inside a unit of work.
type SendOptions struct {
	// PropagateErrors returns delivery failures to the caller instead of
	// recording them on the record and returning nil.
	PropagateErrors bool
	// DeferCommit leaves the unit of work open for the caller to finalize.
	DeferCommit bool
}
