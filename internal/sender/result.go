package sender

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sungwon/mailqueue/internal/mail"
)

// Outcome is the terminal state of one guarded send attempt that did not
// fail. Send failures are reported as errors, not outcomes.
type Outcome int

const (
	// OutcomeSent means the send subsystem ran and returned without error.
	OutcomeSent Outcome = iota
	// OutcomeLockDenied means another unit of work holds the record's lock.
	OutcomeLockDenied
	// OutcomeGone means the record was deleted after the task was enqueued.
	OutcomeGone
	// OutcomeWrongStatus means the record left the outgoing status after
	// the task was enqueued.
	OutcomeWrongStatus
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeLockDenied:
		return "lock_denied"
	case OutcomeGone:
		return "gone"
	case OutcomeWrongStatus:
		return "wrong_status"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result reports how a guarded send attempt ended.
type Result struct {
	Outcome   Outcome
	MessageID uuid.UUID
	// Status is the status observed under lock for OutcomeWrongStatus.
	Status mail.Status
}

// Sent reports whether the send subsystem ran.
func (r Result) Sent() bool {
	return r.Outcome == OutcomeSent
}

// String returns the diagnostic recorded in task history. It is empty for a
// successful send.
func (r Result) String() string {
	switch r.Outcome {
	case OutcomeSent:
		return ""
	case OutcomeLockDenied:
		return fmt.Sprintf("message %s already in processing", r.MessageID)
	case OutcomeGone:
		return fmt.Sprintf("message %s no longer exists", r.MessageID)
	case OutcomeWrongStatus:
		return fmt.Sprintf("message %s not in outgoing state (%s), ignoring", r.MessageID, r.Status)
	default:
		return r.Outcome.String()
	}
}
