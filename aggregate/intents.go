// Package aggregate validates intents against state folded from an event history and turns them into new events.
// Aggregates carry no identity beyond their history: rehydrate, handle, append the result, drop.
package aggregate

import (
	"time"

	"github.com/go-foreman/commandcenter/event"
	"github.com/google/uuid"
)

// IssueCommand asks a team to acknowledge Message before Deadline.
type IssueCommand struct {
	CommandID               uuid.UUID
	TeamID                  uuid.UUID
	Message                 string
	Deadline                time.Time
	IssuedBy                uuid.UUID
	ExpectedAcknowledgerIDs []uuid.UUID
}

type AcknowledgeCommand struct {
	CommandID      uuid.UUID
	TeamID         uuid.UUID
	MemberID       uuid.UUID
	AcknowledgedAt time.Time
}

type EscalateCommand struct {
	CommandID uuid.UUID
	Reason    string
}

type CreateTeam struct {
	TeamID   uuid.UUID
	Name     string
	Members  []event.Member
	IssuedBy uuid.UUID
}

type opts struct {
	clock func() time.Time
}

type Opt func(o *opts)

// WithClock sets the source of "now" used for validation and event timestamps.
func WithClock(clock func() time.Time) Opt {
	return func(o *opts) {
		o.clock = clock
	}
}

func buildOpts(options []Opt) *opts {
	o := &opts{clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range options {
		opt(o)
	}
	return o
}
