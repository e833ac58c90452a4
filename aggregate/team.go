package aggregate

import (
	"strings"

	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/google/uuid"
)

// Team can be created once. Member ids are unique within a team.
type Team struct {
	id      uuid.UUID
	name    string
	members []event.Member
	created bool
	version int
	opts    *opts
}

func RehydrateTeam(history []event.Event, options ...Opt) *Team {
	t := &Team{opts: buildOpts(options)}

	for _, ev := range history {
		t.Apply(ev)
	}

	return t
}

func (t *Team) Apply(ev event.Event) {
	if ev == nil {
		return
	}

	ev.Accept(teamFold{t: t})
	t.version++
}

var _ event.Visitor = teamFold{}

type teamFold struct {
	t *Team
}

func (f teamFold) VisitTeamCreated(ev *event.TeamCreated) {
	f.t.id = ev.TeamID
	f.t.name = ev.Name
	f.t.members = append([]event.Member(nil), ev.Members...)
	f.t.created = true
}

func (f teamFold) VisitCommandIssued(*event.CommandIssued) {}

func (f teamFold) VisitCommandAcknowledged(*event.CommandAcknowledged) {}

func (f teamFold) VisitCommandEscalated(*event.CommandEscalated) {}

func (f teamFold) VisitSagaCompensated(*event.SagaCompensated) {}

// Create validates the intent and emits exactly one TeamCreated.
func (t *Team) Create(cmd CreateTeam) (event.Event, error) {
	if cmd.TeamID == uuid.Nil || cmd.IssuedBy == uuid.Nil {
		return nil, ccErrors.InvalidArgument("team id and issuer are mandatory")
	}

	if strings.TrimSpace(cmd.Name) == "" {
		return nil, ccErrors.InvalidArgument("name of team %s is blank", cmd.TeamID)
	}

	if len(cmd.Members) == 0 {
		return nil, ccErrors.InvalidArgument("team %s has no members", cmd.TeamID)
	}

	seen := make(map[uuid.UUID]struct{}, len(cmd.Members))
	for _, member := range cmd.Members {
		if member.ID == uuid.Nil {
			return nil, ccErrors.InvalidArgument("member %q of team %s has no id", member.Name, cmd.TeamID)
		}
		if _, dup := seen[member.ID]; dup {
			return nil, ccErrors.InvalidArgument("member id %s is used twice in team %s", member.ID, cmd.TeamID)
		}
		seen[member.ID] = struct{}{}
	}

	if t.created {
		return nil, ccErrors.InvalidState("team %s is already created", cmd.TeamID)
	}

	ev := &event.TeamCreated{
		TeamID:    cmd.TeamID,
		Name:      cmd.Name,
		Members:   append([]event.Member(nil), cmd.Members...),
		IssuedBy:  cmd.IssuedBy,
		Timestamp: t.opts.clock(),
	}

	t.Apply(ev)

	return ev, nil
}

func (t *Team) HasMember(memberID uuid.UUID) bool {
	for _, member := range t.members {
		if member.ID == memberID {
			return true
		}
	}
	return false
}

func (t *Team) ID() uuid.UUID { return t.id }
func (t *Team) Name() string  { return t.name }
func (t *Team) Created() bool { return t.created }
func (t *Team) Version() int  { return t.version }

func (t *Team) Members() []event.Member {
	return append([]event.Member(nil), t.members...)
}
