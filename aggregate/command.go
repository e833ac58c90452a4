package aggregate

import (
	"strings"
	"time"

	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/google/uuid"
)

type CommandStatus string

const (
	StatusUnissued     CommandStatus = "UNISSUED"
	StatusIssued       CommandStatus = "ISSUED"
	StatusAcknowledged CommandStatus = "ACKNOWLEDGED"
	StatusEscalated    CommandStatus = "ESCALATED"
)

func (s CommandStatus) String() string {
	return string(s)
}

// Command is the consistency boundary of one issued command.
// It becomes ACKNOWLEDGED once every expected member acknowledged it.
type Command struct {
	id           uuid.UUID
	teamID       uuid.UUID
	message      event.Message
	deadline     time.Time
	issuedBy     uuid.UUID
	expected     []uuid.UUID
	acknowledged map[uuid.UUID]struct{}
	status       CommandStatus
	version      int
	opts         *opts
}

// RehydrateCommand folds history in order, starting from an UNISSUED command.
func RehydrateCommand(history []event.Event, options ...Opt) *Command {
	c := &Command{
		status:       StatusUnissued,
		acknowledged: make(map[uuid.UUID]struct{}),
		opts:         buildOpts(options),
	}

	for _, ev := range history {
		c.Apply(ev)
	}

	return c
}

// Apply folds a single event. Events the command does not care about only bump the version.
func (c *Command) Apply(ev event.Event) {
	if ev == nil {
		return
	}

	ev.Accept(commandFold{c})
	c.version++
}

// commandFold keeps the Visitor methods off the public surface of Command.
type commandFold struct {
	c *Command
}

func (f commandFold) VisitCommandIssued(ev *event.CommandIssued) {
	f.c.id = ev.CommandID
	f.c.teamID = ev.TeamID
	f.c.message = ev.Message
	f.c.deadline = ev.Deadline
	f.c.issuedBy = ev.IssuedBy
	f.c.expected = append([]uuid.UUID(nil), ev.ExpectedAcknowledgerIDs...)
	f.c.status = StatusIssued
}

func (f commandFold) VisitCommandAcknowledged(ev *event.CommandAcknowledged) {
	if f.c.status != StatusIssued || !f.c.isExpected(ev.MemberID) {
		return
	}

	f.c.acknowledged[ev.MemberID] = struct{}{}

	if len(f.c.acknowledged) == len(f.c.expected) {
		f.c.status = StatusAcknowledged
	}
}

func (f commandFold) VisitCommandEscalated(*event.CommandEscalated) {
	if f.c.status == StatusIssued {
		f.c.status = StatusEscalated
	}
}

func (f commandFold) VisitTeamCreated(*event.TeamCreated) {}

func (f commandFold) VisitSagaCompensated(*event.SagaCompensated) {}

// Issue validates the intent and emits exactly one CommandIssued.
func (c *Command) Issue(cmd IssueCommand) (event.Event, error) {
	if c.status != StatusUnissued {
		return nil, ccErrors.InvalidState("command %s is already %s", c.id, c.status)
	}

	if cmd.CommandID == uuid.Nil || cmd.TeamID == uuid.Nil || cmd.IssuedBy == uuid.Nil {
		return nil, ccErrors.InvalidArgument("command id, team id and issuer are mandatory")
	}

	if strings.TrimSpace(cmd.Message) == "" {
		return nil, ccErrors.InvalidArgument("message of command %s is blank", cmd.CommandID)
	}

	if len(cmd.ExpectedAcknowledgerIDs) == 0 {
		return nil, ccErrors.InvalidArgument("command %s has no expected acknowledgers", cmd.CommandID)
	}

	seen := make(map[uuid.UUID]struct{}, len(cmd.ExpectedAcknowledgerIDs))
	for _, memberID := range cmd.ExpectedAcknowledgerIDs {
		if memberID == uuid.Nil {
			return nil, ccErrors.InvalidArgument("command %s has a nil expected acknowledger", cmd.CommandID)
		}
		if _, dup := seen[memberID]; dup {
			return nil, ccErrors.InvalidArgument("member %s is expected twice by command %s", memberID, cmd.CommandID)
		}
		seen[memberID] = struct{}{}
	}

	now := c.opts.clock()

	if !cmd.Deadline.After(now) {
		return nil, ccErrors.InvalidArgument("deadline %s of command %s is not in the future", cmd.Deadline.Format(time.RFC3339), cmd.CommandID)
	}

	ev := &event.CommandIssued{
		CommandID: cmd.CommandID,
		TeamID:    cmd.TeamID,
		Message: event.Message{
			Content:  cmd.Message,
			SenderID: cmd.IssuedBy,
			SentAt:   now,
		},
		Deadline:                cmd.Deadline,
		IssuedBy:                cmd.IssuedBy,
		ExpectedAcknowledgerIDs: append([]uuid.UUID(nil), cmd.ExpectedAcknowledgerIDs...),
		Timestamp:               now,
	}

	c.Apply(ev)

	return ev, nil
}

// Acknowledge emits exactly one CommandAcknowledged. Members outside the expected set are recorded but never counted.
func (c *Command) Acknowledge(cmd AcknowledgeCommand) (event.Event, error) {
	if cmd.CommandID == uuid.Nil || cmd.TeamID == uuid.Nil || cmd.MemberID == uuid.Nil {
		return nil, ccErrors.InvalidArgument("command id, team id and member id are mandatory")
	}

	if cmd.AcknowledgedAt.IsZero() {
		return nil, ccErrors.InvalidArgument("acknowledgement of command %s has no time", cmd.CommandID)
	}

	if cmd.AcknowledgedAt.After(c.opts.clock()) {
		return nil, ccErrors.InvalidArgument("acknowledgement of command %s is in the future", cmd.CommandID)
	}

	if c.status != StatusIssued {
		return nil, ccErrors.InvalidState("command %s is %s, only ISSUED commands can be acknowledged", cmd.CommandID, c.status)
	}

	if cmd.CommandID != c.id {
		return nil, ccErrors.InvalidArgument("acknowledgement for command %s reached command %s", cmd.CommandID, c.id)
	}

	if cmd.TeamID != c.teamID {
		return nil, ccErrors.InvalidArgument("command %s was issued to team %s, not %s", c.id, c.teamID, cmd.TeamID)
	}

	ev := &event.CommandAcknowledged{
		CommandID: cmd.CommandID,
		TeamID:    cmd.TeamID,
		MemberID:  cmd.MemberID,
		Timestamp: cmd.AcknowledgedAt,
	}

	c.Apply(ev)

	return ev, nil
}

// Escalate emits exactly one CommandEscalated, only ISSUED commands can be escalated.
func (c *Command) Escalate(cmd EscalateCommand) (event.Event, error) {
	if cmd.CommandID == uuid.Nil {
		return nil, ccErrors.InvalidArgument("command id is mandatory")
	}

	if strings.TrimSpace(cmd.Reason) == "" {
		return nil, ccErrors.InvalidArgument("escalation of command %s has no reason", cmd.CommandID)
	}

	if c.status != StatusIssued {
		return nil, ccErrors.InvalidState("command %s is %s, only ISSUED commands can be escalated", cmd.CommandID, c.status)
	}

	ev := &event.CommandEscalated{
		CommandID: c.id,
		TeamID:    c.teamID,
		Reason:    cmd.Reason,
		Timestamp: c.opts.clock(),
	}

	c.Apply(ev)

	return ev, nil
}

func (c *Command) isExpected(memberID uuid.UUID) bool {
	for _, expected := range c.expected {
		if expected == memberID {
			return true
		}
	}
	return false
}

func (c *Command) ID() uuid.UUID          { return c.id }
func (c *Command) TeamID() uuid.UUID      { return c.teamID }
func (c *Command) Message() event.Message { return c.message }
func (c *Command) Deadline() time.Time    { return c.deadline }
func (c *Command) IssuedBy() uuid.UUID    { return c.issuedBy }
func (c *Command) Status() CommandStatus  { return c.status }

// Version is the number of events folded into the command.
func (c *Command) Version() int { return c.version }

func (c *Command) ExpectedAcknowledgers() []uuid.UUID {
	return append([]uuid.UUID(nil), c.expected...)
}

// AcknowledgedBy lists acknowledged members in the order they are expected.
func (c *Command) AcknowledgedBy() []uuid.UUID {
	res := make([]uuid.UUID, 0, len(c.acknowledged))
	for _, memberID := range c.expected {
		if _, ok := c.acknowledged[memberID]; ok {
			res = append(res, memberID)
		}
	}
	return res
}
