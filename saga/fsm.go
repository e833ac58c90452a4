package saga

import (
	"time"

	"github.com/go-foreman/commandcenter/event"
)

// state is a node of the saga state machine. handle is total: every state answers every event,
// the terminal ones by returning themselves.
type state interface {
	status() Status
	handle(s *CommandSaga, ev event.Event, now time.Time) state
}

type pendingState struct{}

func (pendingState) status() Status {
	return StatusPending
}

func (p pendingState) handle(s *CommandSaga, ev event.Event, now time.Time) state {
	if ev != nil {
		tally := &tallyVisitor{saga: s}
		ev.Accept(tally)

		if tally.foreign {
			return p
		}
	}

	// completion is checked first, it wins when the deadline is hit by the last acknowledgement
	if s.allAcknowledged() {
		return completedState{}
	}

	if !now.Before(s.params.Deadline) {
		return compensatedState{}
	}

	return p
}

type completedState struct{}

func (completedState) status() Status {
	return StatusCompleted
}

func (c completedState) handle(*CommandSaga, event.Event, time.Time) state {
	return c
}

type compensatedState struct{}

func (compensatedState) status() Status {
	return StatusCompensated
}

func (c compensatedState) handle(*CommandSaga, event.Event, time.Time) state {
	return c
}

// tallyVisitor counts acknowledgements of expected members. Other events only trigger the deadline check.
type tallyVisitor struct {
	saga    *CommandSaga
	foreign bool
}

func (v *tallyVisitor) VisitCommandAcknowledged(ev *event.CommandAcknowledged) {
	if ev.CommandID != v.saga.params.CommandID {
		v.foreign = true
		return
	}

	if _, expected := v.saga.expected[ev.MemberID]; expected {
		v.saga.acknowledgedBy[ev.MemberID] = struct{}{}
	}
}

func (v *tallyVisitor) VisitCommandIssued(*event.CommandIssued)       {}
func (v *tallyVisitor) VisitCommandEscalated(*event.CommandEscalated) {}
func (v *tallyVisitor) VisitTeamCreated(*event.TeamCreated)           {}
func (v *tallyVisitor) VisitSagaCompensated(*event.SagaCompensated)   {}
