// Package outbox describes messages written in the same transaction as the
// change they announce and delivered later by a relay.
package outbox

import (
	"strconv"
	"time"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
)

// Kind is persisted as an integer; values must never be renumbered.
type Kind int

const (
	KindAccountRegistered Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindAccountRegistered:
		return "account_registered"
	default:
		return "kind_" + strconv.Itoa(int(k))
	}
}

type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time

	// W3C trace context of the writer.
	Traceparent string
	Tracestate  string
	Baggage     string
}
