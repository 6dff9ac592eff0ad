// Package mail defines the outbound message record and the unit-of-work
// contract shared by the record store, the send subsystem and the guarded
// sender.
package mail

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultPriority is the dispatch priority given to records that do not set
// one. Lower values are executed first.
const DefaultPriority = 10

// ErrNotFound is returned when a message record does not exist.
var ErrNotFound = errors.New("mail: message not found")

// Status is the lifecycle state of a message record.
type Status string

const (
	StatusOutgoing  Status = "outgoing"
	StatusSent      Status = "sent"
	StatusReceived  Status = "received"
	StatusException Status = "exception"
	StatusCancel    Status = "cancel"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOutgoing, StatusSent, StatusReceived, StatusException, StatusCancel:
		return true
	}
	return false
}

// Operation tags the write that made records eligible for dispatch.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationWrite  Operation = "write"
)

// Message is an outbound mail record.
type Message struct {
	ID            uuid.UUID
	Status        Status
	Priority      int
	Server        string // named provider; empty selects the default
	From          string
	To            []string
	Subject       string
	Headers       map[string]string
	Body          []byte // inline body; empty when BodyRef is set
	BodyRef       string // key into the body store
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsOutgoing reports whether the record is ready to be transmitted.
func (m *Message) IsOutgoing() bool {
	return m.Status == StatusOutgoing
}
