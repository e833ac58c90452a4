package aggregate

import (
	"testing"
	"time"

	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time {
	return now
}

type commandFixture struct {
	commandID, teamID, issuer, memberA, memberB uuid.UUID
}

func newCommandFixture() commandFixture {
	return commandFixture{
		commandID: uuid.New(),
		teamID:    uuid.New(),
		issuer:    uuid.New(),
		memberA:   uuid.New(),
		memberB:   uuid.New(),
	}
}

func (f commandFixture) issue() IssueCommand {
	return IssueCommand{
		CommandID:               f.commandID,
		TeamID:                  f.teamID,
		Message:                 "hold position",
		Deadline:                now.Add(time.Hour),
		IssuedBy:                f.issuer,
		ExpectedAcknowledgerIDs: []uuid.UUID{f.memberA, f.memberB},
	}
}

func (f commandFixture) ack(member uuid.UUID, at time.Time) AcknowledgeCommand {
	return AcknowledgeCommand{CommandID: f.commandID, TeamID: f.teamID, MemberID: member, AcknowledgedAt: at}
}

func TestCommand_Issue(t *testing.T) {
	f := newCommandFixture()

	t.Run("emits exactly one issued event", func(t *testing.T) {
		c := RehydrateCommand(nil, WithClock(clock))
		assert.Equal(t, StatusUnissued, c.Status())

		ev, err := c.Issue(f.issue())
		require.NoError(t, err)

		assert.Equal(t, &event.CommandIssued{
			CommandID:               f.commandID,
			TeamID:                  f.teamID,
			Message:                 event.Message{Content: "hold position", SenderID: f.issuer, SentAt: now},
			Deadline:                now.Add(time.Hour),
			IssuedBy:                f.issuer,
			ExpectedAcknowledgerIDs: []uuid.UUID{f.memberA, f.memberB},
			Timestamp:               now,
		}, ev)

		assert.Equal(t, StatusIssued, c.Status())
		assert.Equal(t, f.commandID, c.ID())
		assert.Equal(t, f.teamID, c.TeamID())
		assert.Equal(t, "hold position", c.Message().Content)
		assert.Equal(t, 1, c.Version())
	})

	t.Run("second issue is an invalid state", func(t *testing.T) {
		c := RehydrateCommand(nil, WithClock(clock))
		_, err := c.Issue(f.issue())
		require.NoError(t, err)

		ev, err := c.Issue(f.issue())
		assert.Nil(t, ev)
		assert.True(t, ccErrors.IsInvalidState(err))
		assert.EqualError(t, err, "command "+f.commandID.String()+" is already ISSUED")
	})

	t.Run("issue after rehydration is an invalid state", func(t *testing.T) {
		issued, err := RehydrateCommand(nil, WithClock(clock)).Issue(f.issue())
		require.NoError(t, err)

		c := RehydrateCommand([]event.Event{issued}, WithClock(clock))
		_, err = c.Issue(f.issue())
		assert.True(t, ccErrors.IsInvalidState(err))
	})

	t.Run("state is checked before the intent payload", func(t *testing.T) {
		c := RehydrateCommand(nil, WithClock(clock))
		_, err := c.Issue(f.issue())
		require.NoError(t, err)

		cmd := f.issue()
		cmd.Message = " "
		cmd.Deadline = now.Add(-time.Minute)

		ev, err := c.Issue(cmd)
		assert.Nil(t, ev)
		assert.True(t, ccErrors.IsInvalidState(err), err)
		assert.False(t, ccErrors.IsInvalidArgument(err))
	})

	invalid := []struct {
		name   string
		mutate func(cmd *IssueCommand)
	}{
		{"nil command id", func(cmd *IssueCommand) { cmd.CommandID = uuid.Nil }},
		{"nil team id", func(cmd *IssueCommand) { cmd.TeamID = uuid.Nil }},
		{"nil issuer", func(cmd *IssueCommand) { cmd.IssuedBy = uuid.Nil }},
		{"blank message", func(cmd *IssueCommand) { cmd.Message = "  " }},
		{"no acknowledgers", func(cmd *IssueCommand) { cmd.ExpectedAcknowledgerIDs = nil }},
		{"nil acknowledger", func(cmd *IssueCommand) { cmd.ExpectedAcknowledgerIDs = []uuid.UUID{uuid.Nil} }},
		{"duplicated acknowledger", func(cmd *IssueCommand) { cmd.ExpectedAcknowledgerIDs = []uuid.UUID{f.memberA, f.memberA} }},
		{"deadline in the past", func(cmd *IssueCommand) { cmd.Deadline = now.Add(-time.Minute) }},
		{"deadline is now", func(cmd *IssueCommand) { cmd.Deadline = now }},
		{"no deadline", func(cmd *IssueCommand) { cmd.Deadline = time.Time{} }},
	}

	for _, testCase := range invalid {
		t.Run(testCase.name, func(t *testing.T) {
			c := RehydrateCommand(nil, WithClock(clock))
			cmd := f.issue()
			testCase.mutate(&cmd)

			ev, err := c.Issue(cmd)
			assert.Nil(t, ev)
			assert.True(t, ccErrors.IsInvalidArgument(err), err)
			assert.Equal(t, StatusUnissued, c.Status())
			assert.Equal(t, 0, c.Version())
		})
	}
}

func TestCommand_Acknowledge(t *testing.T) {
	f := newCommandFixture()

	issued := func(t *testing.T) *Command {
		c := RehydrateCommand(nil, WithClock(clock))
		_, err := c.Issue(f.issue())
		require.NoError(t, err)
		return c
	}

	t.Run("acknowledge before issue is an invalid state", func(t *testing.T) {
		c := RehydrateCommand(nil, WithClock(clock))
		ev, err := c.Acknowledge(f.ack(f.memberA, now))
		assert.Nil(t, ev)
		assert.True(t, ccErrors.IsInvalidState(err))
	})

	t.Run("every expected member moves the command to acknowledged", func(t *testing.T) {
		c := issued(t)

		ev, err := c.Acknowledge(f.ack(f.memberA, now))
		require.NoError(t, err)
		assert.Equal(t, &event.CommandAcknowledged{CommandID: f.commandID, TeamID: f.teamID, MemberID: f.memberA, Timestamp: now}, ev)
		assert.Equal(t, StatusIssued, c.Status())
		assert.Equal(t, []uuid.UUID{f.memberA}, c.AcknowledgedBy())

		_, err = c.Acknowledge(f.ack(f.memberB, now))
		require.NoError(t, err)
		assert.Equal(t, StatusAcknowledged, c.Status())
		assert.Equal(t, []uuid.UUID{f.memberA, f.memberB}, c.AcknowledgedBy())

		_, err = c.Acknowledge(f.ack(f.memberB, now))
		assert.True(t, ccErrors.IsInvalidState(err))
	})

	t.Run("duplicates and strangers are recorded but not counted", func(t *testing.T) {
		c := issued(t)

		_, err := c.Acknowledge(f.ack(f.memberA, now))
		require.NoError(t, err)
		_, err = c.Acknowledge(f.ack(f.memberA, now))
		require.NoError(t, err)
		_, err = c.Acknowledge(f.ack(uuid.New(), now))
		require.NoError(t, err)

		assert.Equal(t, StatusIssued, c.Status())
		assert.Equal(t, []uuid.UUID{f.memberA}, c.AcknowledgedBy())
		assert.Equal(t, 4, c.Version())
	})

	invalid := []struct {
		name   string
		mutate func(cmd *AcknowledgeCommand)
	}{
		{"nil member", func(cmd *AcknowledgeCommand) { cmd.MemberID = uuid.Nil }},
		{"nil team", func(cmd *AcknowledgeCommand) { cmd.TeamID = uuid.Nil }},
		{"no time", func(cmd *AcknowledgeCommand) { cmd.AcknowledgedAt = time.Time{} }},
		{"time in the future", func(cmd *AcknowledgeCommand) { cmd.AcknowledgedAt = now.Add(time.Second) }},
		{"foreign team", func(cmd *AcknowledgeCommand) { cmd.TeamID = uuid.New() }},
		{"foreign command", func(cmd *AcknowledgeCommand) { cmd.CommandID = uuid.New() }},
	}

	for _, testCase := range invalid {
		t.Run(testCase.name, func(t *testing.T) {
			c := issued(t)
			cmd := f.ack(f.memberA, now)
			testCase.mutate(&cmd)

			ev, err := c.Acknowledge(cmd)
			assert.Nil(t, ev)
			assert.True(t, ccErrors.IsInvalidArgument(err), err)
			assert.Empty(t, c.AcknowledgedBy())
		})
	}
}

func TestCommand_Escalate(t *testing.T) {
	f := newCommandFixture()

	t.Run("issued command escalates once", func(t *testing.T) {
		c := RehydrateCommand(nil, WithClock(clock))
		_, err := c.Issue(f.issue())
		require.NoError(t, err)

		ev, err := c.Escalate(EscalateCommand{CommandID: f.commandID, Reason: "deadline reached"})
		require.NoError(t, err)
		assert.Equal(t, &event.CommandEscalated{CommandID: f.commandID, TeamID: f.teamID, Reason: "deadline reached", Timestamp: now}, ev)
		assert.Equal(t, StatusEscalated, c.Status())

		_, err = c.Escalate(EscalateCommand{CommandID: f.commandID, Reason: "again"})
		assert.True(t, ccErrors.IsInvalidState(err))

		_, err = c.Acknowledge(f.ack(f.memberA, now))
		assert.True(t, ccErrors.IsInvalidState(err))
	})

	t.Run("unissued command can't escalate", func(t *testing.T) {
		_, err := RehydrateCommand(nil).Escalate(EscalateCommand{CommandID: f.commandID, Reason: "x"})
		assert.True(t, ccErrors.IsInvalidState(err))
	})

	t.Run("reason is mandatory", func(t *testing.T) {
		_, err := RehydrateCommand(nil).Escalate(EscalateCommand{CommandID: f.commandID})
		assert.True(t, ccErrors.IsInvalidArgument(err))
	})
}

func TestCommand_Rehydrate(t *testing.T) {
	f := newCommandFixture()

	live := RehydrateCommand(nil, WithClock(clock))
	var history []event.Event

	record := func(ev event.Event, err error) {
		require.NoError(t, err)
		history = append(history, ev)
	}

	record(live.Issue(f.issue()))
	record(live.Acknowledge(f.ack(f.memberA, now)))
	record(live.Acknowledge(f.ack(uuid.New(), now)))
	// events of other aggregates are folded as no-ops
	history = append(history, &event.TeamCreated{TeamID: f.teamID}, &event.SagaCompensated{CommandID: f.commandID})
	live.Apply(history[3])
	live.Apply(history[4])

	t.Run("rehydrated equals incrementally folded", func(t *testing.T) {
		rehydrated := RehydrateCommand(history, WithClock(clock))
		assert.Equal(t, live.Status(), rehydrated.Status())
		assert.Equal(t, live.AcknowledgedBy(), rehydrated.AcknowledgedBy())
		assert.Equal(t, live.ExpectedAcknowledgers(), rehydrated.ExpectedAcknowledgers())
		assert.Equal(t, live.Deadline(), rehydrated.Deadline())
		assert.Equal(t, live.Version(), rehydrated.Version())

		folded := RehydrateCommand(nil, WithClock(clock))
		for _, ev := range history {
			folded.Apply(ev)
		}
		assert.Equal(t, rehydrated.Status(), folded.Status())
		assert.Equal(t, rehydrated.AcknowledgedBy(), folded.AcknowledgedBy())
		assert.Equal(t, rehydrated.Version(), folded.Version())
	})

	t.Run("handling on rehydrated equals handling live", func(t *testing.T) {
		rehydrated := RehydrateCommand(history, WithClock(clock))

		fromLive, err := live.Acknowledge(f.ack(f.memberB, now))
		require.NoError(t, err)
		fromRehydrated, err := rehydrated.Acknowledge(f.ack(f.memberB, now))
		require.NoError(t, err)

		assert.Equal(t, fromLive, fromRehydrated)
		assert.Equal(t, StatusAcknowledged, rehydrated.Status())
		assert.Equal(t, live.Status(), rehydrated.Status())
	})

	t.Run("nil events are skipped", func(t *testing.T) {
		c := RehydrateCommand([]event.Event{nil})
		assert.Equal(t, 0, c.Version())
	})
}
