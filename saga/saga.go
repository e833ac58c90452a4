// Package saga tracks acknowledgement progress of issued commands and compensates the ones whose deadline passed.
package saga

import (
	"context"
	"time"

	"github.com/go-foreman/commandcenter/event"
	"github.com/google/uuid"
)

// CompensationReason is passed to the CompensationHandler when the deadline passes first.
const CompensationReason = "deadline reached before all acknowledgements"

// Saga is a process manager of one correlation id. Handle and Replay are serialized per instance.
type Saga interface {
	ID() uuid.UUID
	// Handle processes a live event. A nil event is a no-op.
	Handle(ctx context.Context, ev event.Event) error
	// Replay processes an event read back from the log. Nothing is recorded and the event's own instant is "now".
	Replay(ctx context.Context, ev event.Event) error
	// CheckDeadline re-evaluates the deadline without any event.
	CheckDeadline(ctx context.Context) error
	Status() Status
	Snapshot() Snapshot
}

//go:generate mockgen --build_flags=--mod=mod -destination ../testing/mocks/saga/compensation.go -package saga . CompensationHandler

// CompensationHandler is invoked at most once per saga, after the saga committed its compensated status.
// An error is logged and does not revert the status.
type CompensationHandler interface {
	Compensate(ctx context.Context, commandID uuid.UUID, reason string) error
}

type CompensationHandlerFunc func(ctx context.Context, commandID uuid.UUID, reason string) error

func (f CompensationHandlerFunc) Compensate(ctx context.Context, commandID uuid.UUID, reason string) error {
	return f(ctx, commandID, reason)
}

// NopCompensation is used to rebuild saga views without side effects.
var NopCompensation = CompensationHandlerFunc(func(context.Context, uuid.UUID, string) error { return nil })

// Snapshot is a read only view of a saga.
type Snapshot struct {
	CommandID             uuid.UUID   `json:"command_id"`
	TeamID                uuid.UUID   `json:"team_id"`
	Status                Status      `json:"status"`
	ExpectedAcknowledgers []uuid.UUID `json:"expected_acknowledgers"`
	AcknowledgedBy        []uuid.UUID `json:"acknowledged_by"`
	Deadline              time.Time   `json:"deadline"`
	CompensatedAt         *time.Time  `json:"compensated_at,omitempty"`
	CompensationReason    string      `json:"compensation_reason,omitempty"`
	ObservedEvents        int         `json:"observed_events"`
}
