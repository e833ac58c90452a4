package saga

import (
	"context"
	"sort"
	"sync"

	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/log"
	"github.com/go-foreman/commandcenter/metrics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// IDExtractor returns the correlation id of the saga ev belongs to, false if ev doesn't belong to any.
type IDExtractor func(ev event.Event) (uuid.UUID, bool)

// StartingPredicate tells whether ev may create a saga when none exists for its id.
type StartingPredicate func(ev event.Event) bool

// Factory creates a saga from its starting event.
type Factory func(ev event.Event) (Saga, error)

// CommandIDOf routes every command event to the saga of its command.
func CommandIDOf(ev event.Event) (uuid.UUID, bool) {
	switch e := ev.(type) {
	case *event.CommandIssued:
		return e.CommandID, true
	case *event.CommandAcknowledged:
		return e.CommandID, true
	case *event.CommandEscalated:
		return e.CommandID, true
	case *event.SagaCompensated:
		return e.CommandID, true
	default:
		return uuid.Nil, false
	}
}

func IsCommandIssued(ev event.Event) bool {
	_, ok := ev.(*event.CommandIssued)
	return ok
}

// CommandSagaFactory builds command sagas from CommandIssued events.
func CommandSagaFactory(compensator CompensationHandler, options ...Opt) Factory {
	return func(ev event.Event) (Saga, error) {
		issued, ok := ev.(*event.CommandIssued)
		if !ok {
			return nil, ccErrors.InvalidArgument("command saga can't be started by %T", ev)
		}

		return NewCommandSaga(ParamsFromIssued(issued), compensator, options...)
	}
}

type managerOpts struct {
	logger  log.Logger
	metrics *metrics.Metrics
}

type ManagerOpt func(o *managerOpts)

func WithManagerLogger(logger log.Logger) ManagerOpt {
	return func(o *managerOpts) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) ManagerOpt {
	return func(o *managerOpts) {
		o.metrics = m
	}
}

// Manager owns the active sagas. Lookup and creation happen under the manager lock,
// handling happens under the lock of the saga only.
type Manager struct {
	mutex      sync.Mutex
	sagas      map[uuid.UUID]Saga
	extractor  IDExtractor
	isStarting StartingPredicate
	factory    Factory
	opts       *managerOpts
}

func NewManager(extractor IDExtractor, isStarting StartingPredicate, factory Factory, options ...ManagerOpt) *Manager {
	o := &managerOpts{logger: log.NewNilLogger()}
	for _, opt := range options {
		opt(o)
	}

	return &Manager{
		sagas:      make(map[uuid.UUID]Saga),
		extractor:  extractor,
		isStarting: isStarting,
		factory:    factory,
		opts:       o,
	}
}

// HandleEvent dispatches a live event to its saga, creating the saga on a starting event.
func (m *Manager) HandleEvent(ctx context.Context, ev event.Event) error {
	return m.dispatch(ctx, ev, false)
}

// ReplayEvents feeds history in order, stopping at the first failure.
func (m *Manager) ReplayEvents(ctx context.Context, history []event.Event) error {
	for i, ev := range history {
		if err := m.dispatch(ctx, ev, true); err != nil {
			return errors.Wrapf(err, "replaying event %d of %d", i+1, len(history))
		}
	}

	return nil
}

// CheckDeadline re-evaluates the deadline of an active saga. Unknown ids are ignored.
func (m *Manager) CheckDeadline(ctx context.Context, id uuid.UUID) error {
	m.mutex.Lock()
	s, exists := m.sagas[id]
	m.mutex.Unlock()

	if !exists {
		return nil
	}

	if err := s.CheckDeadline(ctx); err != nil {
		return errors.Wrapf(err, "checking deadline of saga %s", id)
	}

	m.retireIfTerminal(id, s)

	return nil
}

// ActiveSagas returns snapshots of active sagas ordered by deadline.
func (m *Manager) ActiveSagas() []Snapshot {
	m.mutex.Lock()
	sagas := make([]Saga, 0, len(m.sagas))
	for _, s := range m.sagas {
		sagas = append(sagas, s)
	}
	m.mutex.Unlock()

	snapshots := make([]Snapshot, len(sagas))
	for i, s := range sagas {
		snapshots[i] = s.Snapshot()
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Deadline.Equal(snapshots[j].Deadline) {
			return snapshots[i].CommandID.String() < snapshots[j].CommandID.String()
		}
		return snapshots[i].Deadline.Before(snapshots[j].Deadline)
	})

	return snapshots
}

// ActiveIDs returns ids of active sagas in no particular order.
func (m *Manager) ActiveIDs() []uuid.UUID {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ids := make([]uuid.UUID, 0, len(m.sagas))
	for id := range m.sagas {
		ids = append(ids, id)
	}

	return ids
}

func (m *Manager) Get(id uuid.UUID) (Saga, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s, exists := m.sagas[id]
	return s, exists
}

func (m *Manager) dispatch(ctx context.Context, ev event.Event, replay bool) error {
	if ev == nil {
		return nil
	}

	id, ok := m.extractor(ev)
	if !ok || id == uuid.Nil {
		return nil
	}

	s, err := m.lookupOrCreate(id, ev)
	if err != nil || s == nil {
		return err
	}

	if replay {
		err = s.Replay(ctx, ev)
	} else {
		err = s.Handle(ctx, ev)
	}

	if err != nil {
		return errors.Wrapf(err, "handling %T by saga %s", ev, id)
	}

	m.retireIfTerminal(id, s)

	return nil
}

func (m *Manager) lookupOrCreate(id uuid.UUID, ev event.Event) (Saga, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if s, exists := m.sagas[id]; exists {
		return s, nil
	}

	if !m.isStarting(ev) {
		m.opts.logger.Logf(log.DebugLevel, "no active saga %s for %T, skipping", id, ev)
		return nil, nil
	}

	s, err := m.factory(ev)
	if err != nil {
		return nil, errors.Wrapf(err, "creating saga %s", id)
	}

	m.sagas[id] = s
	m.opts.metrics.SagaStarted()
	m.opts.metrics.SetActiveSagas(len(m.sagas))
	m.opts.logger.Logf(log.DebugLevel, "saga %s started", id)

	return s, nil
}

func (m *Manager) retireIfTerminal(id uuid.UUID, s Saga) {
	status := s.Status()
	if !status.Terminal() {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// another goroutine may have retired it already
	if current, exists := m.sagas[id]; !exists || current != s {
		return
	}

	delete(m.sagas, id)
	m.opts.metrics.SagaRetired(status.String())
	m.opts.metrics.SetActiveSagas(len(m.sagas))
	m.opts.logger.Logf(log.DebugLevel, "saga %s retired as %s", id, status)
}
