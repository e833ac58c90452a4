// Package event holds the immutable facts of the command center.
// The set of events is closed: every event implements Accept and every Visitor handles all of them.
package event

import (
	"time"

	"github.com/go-foreman/commandcenter/runtime/scheme"
	"github.com/google/uuid"
)

// Group is the scheme group all command center events are registered under.
const Group scheme.Group = "commandcenter"

// Event is an immutable fact grouped under a correlation id.
type Event interface {
	// CorrelationID is the id of the aggregate the event belongs to.
	CorrelationID() uuid.UUID
	OccurredAt() time.Time
	Accept(v Visitor)
}

// Visitor must handle every known event. Adding an event type to the package adds a method here,
// so every consumer has to decide what to do with it.
type Visitor interface {
	VisitCommandIssued(ev *CommandIssued)
	VisitCommandAcknowledged(ev *CommandAcknowledged)
	VisitCommandEscalated(ev *CommandEscalated)
	VisitTeamCreated(ev *TeamCreated)
	VisitSagaCompensated(ev *SagaCompensated)
}

// Message is the body of an issued command.
type Message struct {
	Content  string    `json:"content"`
	SenderID uuid.UUID `json:"sender_id"`
	SentAt   time.Time `json:"sent_at"`
}

// Member of a team.
type Member struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role"`
}

type CommandIssued struct {
	CommandID               uuid.UUID   `json:"command_id"`
	TeamID                  uuid.UUID   `json:"team_id"`
	Message                 Message     `json:"message"`
	Deadline                time.Time   `json:"deadline"`
	IssuedBy                uuid.UUID   `json:"issued_by"`
	ExpectedAcknowledgerIDs []uuid.UUID `json:"expected_acknowledger_ids"`
	Timestamp               time.Time   `json:"occurred_at"`
}

func (e *CommandIssued) CorrelationID() uuid.UUID { return e.CommandID }
func (e *CommandIssued) OccurredAt() time.Time    { return e.Timestamp }
func (e *CommandIssued) Accept(v Visitor)         { v.VisitCommandIssued(e) }

type CommandAcknowledged struct {
	CommandID uuid.UUID `json:"command_id"`
	TeamID    uuid.UUID `json:"team_id"`
	MemberID  uuid.UUID `json:"member_id"`
	Timestamp time.Time `json:"occurred_at"`
}

func (e *CommandAcknowledged) CorrelationID() uuid.UUID { return e.CommandID }
func (e *CommandAcknowledged) OccurredAt() time.Time    { return e.Timestamp }
func (e *CommandAcknowledged) Accept(v Visitor)         { v.VisitCommandAcknowledged(e) }

type CommandEscalated struct {
	CommandID uuid.UUID `json:"command_id"`
	TeamID    uuid.UUID `json:"team_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"occurred_at"`
}

func (e *CommandEscalated) CorrelationID() uuid.UUID { return e.CommandID }
func (e *CommandEscalated) OccurredAt() time.Time    { return e.Timestamp }
func (e *CommandEscalated) Accept(v Visitor)         { v.VisitCommandEscalated(e) }

type TeamCreated struct {
	TeamID    uuid.UUID `json:"team_id"`
	Name      string    `json:"name"`
	Members   []Member  `json:"members"`
	IssuedBy  uuid.UUID `json:"issued_by"`
	Timestamp time.Time `json:"occurred_at"`
}

func (e *TeamCreated) CorrelationID() uuid.UUID { return e.TeamID }
func (e *TeamCreated) OccurredAt() time.Time    { return e.Timestamp }
func (e *TeamCreated) Accept(v Visitor)         { v.VisitTeamCreated(e) }

// SagaCompensated is appended once the deadline of a command passed before every expected member acknowledged it.
type SagaCompensated struct {
	CommandID uuid.UUID `json:"command_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"occurred_at"`
}

func (e *SagaCompensated) CorrelationID() uuid.UUID { return e.CommandID }
func (e *SagaCompensated) OccurredAt() time.Time    { return e.Timestamp }
func (e *SagaCompensated) Accept(v Visitor)         { v.VisitSagaCompensated(e) }

// AddToScheme registers every event type under Group.
func AddToScheme(registry scheme.KnownTypesRegistry) {
	registry.AddKnownTypes(Group,
		&CommandIssued{},
		&CommandAcknowledged{},
		&CommandEscalated{},
		&TeamCreated{},
		&SagaCompensated{},
	)
}

// NewScheme returns a registry with all events registered.
func NewScheme() scheme.KnownTypesRegistry {
	registry := scheme.NewKnownTypesRegistry()
	AddToScheme(registry)
	return registry
}

// NopVisitor ignores every event. Embed it to handle only some of them.
type NopVisitor struct{}

func (NopVisitor) VisitCommandIssued(*CommandIssued)             {}
func (NopVisitor) VisitCommandAcknowledged(*CommandAcknowledged) {}
func (NopVisitor) VisitCommandEscalated(*CommandEscalated)       {}
func (NopVisitor) VisitTeamCreated(*TeamCreated)                 {}
func (NopVisitor) VisitSagaCompensated(*SagaCompensated)         {}
