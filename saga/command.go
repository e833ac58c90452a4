package saga

import (
	"context"
	"sync"
	"time"

	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/eventstore"
	"github.com/go-foreman/commandcenter/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Params are the known parameters of a command saga, usually taken from the CommandIssued event.
type Params struct {
	CommandID             uuid.UUID
	TeamID                uuid.UUID
	ExpectedAcknowledgers []uuid.UUID
	Deadline              time.Time
}

// ParamsFromIssued extracts saga parameters from the event that starts it.
func ParamsFromIssued(ev *event.CommandIssued) Params {
	return Params{
		CommandID:             ev.CommandID,
		TeamID:                ev.TeamID,
		ExpectedAcknowledgers: ev.ExpectedAcknowledgerIDs,
		Deadline:              ev.Deadline,
	}
}

type opts struct {
	clock    func() time.Time
	recorder eventstore.Appender
	logger   log.Logger
}

type Opt func(o *opts)

func WithClock(clock func() time.Time) Opt {
	return func(o *opts) {
		o.clock = clock
	}
}

// WithRecorder enables the audit trail: every live event is appended to recorder before the saga looks at it.
func WithRecorder(recorder eventstore.Appender) Opt {
	return func(o *opts) {
		o.recorder = recorder
	}
}

func WithLogger(logger log.Logger) Opt {
	return func(o *opts) {
		o.logger = logger
	}
}

// CommandSaga waits for every expected member to acknowledge a command before its deadline.
type CommandSaga struct {
	mutex sync.Mutex

	params         Params
	expected       map[uuid.UUID]struct{}
	acknowledgedBy map[uuid.UUID]struct{}
	state          state
	compensatedAt  time.Time
	reason         string
	observed       int

	compensator CompensationHandler
	opts        *opts
}

func NewCommandSaga(params Params, compensator CompensationHandler, options ...Opt) (*CommandSaga, error) {
	if params.CommandID == uuid.Nil || params.TeamID == uuid.Nil {
		return nil, ccErrors.InvalidArgument("saga requires command id and team id")
	}

	if len(params.ExpectedAcknowledgers) == 0 {
		return nil, ccErrors.InvalidArgument("saga of command %s has no expected acknowledgers", params.CommandID)
	}

	if params.Deadline.IsZero() {
		return nil, ccErrors.InvalidArgument("saga of command %s has no deadline", params.CommandID)
	}

	if compensator == nil {
		return nil, ccErrors.InvalidArgument("saga of command %s has no compensation handler", params.CommandID)
	}

	o := &opts{
		clock:  func() time.Time { return time.Now().UTC() },
		logger: log.NewNilLogger(),
	}
	for _, opt := range options {
		opt(o)
	}

	expected := make(map[uuid.UUID]struct{}, len(params.ExpectedAcknowledgers))
	unique := make([]uuid.UUID, 0, len(params.ExpectedAcknowledgers))
	for _, memberID := range params.ExpectedAcknowledgers {
		if _, dup := expected[memberID]; dup {
			continue
		}
		expected[memberID] = struct{}{}
		unique = append(unique, memberID)
	}

	params.ExpectedAcknowledgers = unique

	return &CommandSaga{
		params:         params,
		expected:       expected,
		acknowledgedBy: make(map[uuid.UUID]struct{}),
		state:          pendingState{},
		compensator:    compensator,
		opts:           o,
	}, nil
}

func (s *CommandSaga) ID() uuid.UUID {
	return s.params.CommandID
}

func (s *CommandSaga) Handle(ctx context.Context, ev event.Event) error {
	if ev == nil {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.opts.recorder != nil {
		if err := s.opts.recorder.Append(ctx, ev); err != nil {
			s.opts.logger.Logf(log.ErrorLevel, "recording event of saga %s: %s", s.params.CommandID, err)
			return ccErrors.WithPersistenceErr(errors.Wrapf(err, "recording event of saga %s", s.params.CommandID))
		}
	}

	s.transit(ctx, ev, s.opts.clock())

	return nil
}

func (s *CommandSaga) Replay(ctx context.Context, ev event.Event) error {
	if ev == nil {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.transit(ctx, ev, ev.OccurredAt())

	return nil
}

func (s *CommandSaga) CheckDeadline(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.transit(ctx, nil, s.opts.clock())

	return nil
}

// transit must be called with the saga locked.
func (s *CommandSaga) transit(ctx context.Context, ev event.Event, now time.Time) {
	if ev != nil {
		s.observed++
	}

	prev := s.state.status()
	s.state = s.state.handle(s, ev, now)
	next := s.state.status()

	if prev == next {
		return
	}

	switch next {
	case StatusCompleted:
		s.opts.logger.Logf(log.InfoLevel, "saga %s completed, all %d members acknowledged", s.params.CommandID, len(s.expected))
	case StatusCompensated:
		s.compensatedAt = now
		s.reason = CompensationReason
		s.opts.logger.Logf(log.InfoLevel, "saga %s compensated: %s", s.params.CommandID, s.reason)

		if err := s.compensator.Compensate(ctx, s.params.CommandID, s.reason); err != nil {
			s.opts.logger.Logf(log.ErrorLevel, "compensating command %s: %s", s.params.CommandID, err)
		}
	}
}

func (s *CommandSaga) allAcknowledged() bool {
	return len(s.acknowledgedBy) == len(s.expected)
}

func (s *CommandSaga) Status() Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.state.status()
}

func (s *CommandSaga) Snapshot() Snapshot {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	acknowledged := make([]uuid.UUID, 0, len(s.acknowledgedBy))
	for _, memberID := range s.params.ExpectedAcknowledgers {
		if _, ok := s.acknowledgedBy[memberID]; ok {
			acknowledged = append(acknowledged, memberID)
		}
	}

	snapshot := Snapshot{
		CommandID:             s.params.CommandID,
		TeamID:                s.params.TeamID,
		Status:                s.state.status(),
		ExpectedAcknowledgers: append([]uuid.UUID(nil), s.params.ExpectedAcknowledgers...),
		AcknowledgedBy:        acknowledged,
		Deadline:              s.params.Deadline,
		CompensationReason:    s.reason,
		ObservedEvents:        s.observed,
	}

	if !s.compensatedAt.IsZero() {
		compensatedAt := s.compensatedAt
		snapshot.CompensatedAt = &compensatedAt
	}

	return snapshot
}
