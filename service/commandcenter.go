// Package service runs intents through the aggregates, appends the resulting events and feeds them to the saga manager.
package service

import (
	"context"
	"reflect"
	"time"

	"github.com/go-foreman/commandcenter/aggregate"
	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/eventstore"
	"github.com/go-foreman/commandcenter/log"
	"github.com/go-foreman/commandcenter/metrics"
	"github.com/go-foreman/commandcenter/mutex"
	"github.com/go-foreman/commandcenter/saga"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/go-foreman/commandcenter/service"

type opts struct {
	clock    func() time.Time
	logger   log.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	sagaOpts []saga.Opt
}

type Opt func(o *opts)

func WithClock(clock func() time.Time) Opt {
	return func(o *opts) {
		o.clock = clock
	}
}

func WithLogger(logger log.Logger) Opt {
	return func(o *opts) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Opt {
	return func(o *opts) {
		o.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(tracer trace.Tracer) Opt {
	return func(o *opts) {
		o.tracer = tracer
	}
}

// WithSagaOptions are passed to every command saga, e.g. saga.WithRecorder for the audit trail.
func WithSagaOptions(options ...saga.Opt) Opt {
	return func(o *opts) {
		o.sagaOpts = append(o.sagaOpts, options...)
	}
}

// CommandCenter is the only writer of the event store. Every intent runs under the lock of its aggregate id:
// read history, rehydrate, handle, append, and only then hand the new event to the saga manager.
type CommandCenter struct {
	store   eventstore.Store
	mutex   mutex.Mutex
	manager *saga.Manager
	opts    *opts
}

func NewCommandCenter(store eventstore.Store, mx mutex.Mutex, options ...Opt) *CommandCenter {
	o := &opts{
		clock:  func() time.Time { return time.Now().UTC() },
		logger: log.NewNilLogger(),
	}
	for _, opt := range options {
		opt(o)
	}

	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}

	c := &CommandCenter{
		store: store,
		mutex: mx,
		opts:  o,
	}

	sagaOpts := append([]saga.Opt{
		saga.WithClock(o.clock),
		saga.WithLogger(o.logger),
	}, o.sagaOpts...)

	c.manager = saga.NewManager(
		saga.CommandIDOf,
		saga.IsCommandIssued,
		saga.CommandSagaFactory(c, sagaOpts...),
		saga.WithManagerLogger(o.logger),
		saga.WithMetrics(o.metrics),
	)

	return c
}

// Manager exposes active sagas for read only consumers such as the status API.
func (c *CommandCenter) Manager() *saga.Manager {
	return c.manager
}

func (c *CommandCenter) CreateTeam(ctx context.Context, cmd aggregate.CreateTeam) (err error) {
	ctx, span := c.opts.tracer.Start(ctx, "CommandCenter.CreateTeam", trace.WithAttributes(
		attribute.String("team.id", cmd.TeamID.String()),
	))
	defer func() { endSpan(span, err) }()

	return c.withLock(ctx, teamKey(cmd.TeamID), func() error {
		history, err := c.read(ctx, cmd.TeamID)
		if err != nil {
			return err
		}

		ev, err := aggregate.RehydrateTeam(history, aggregate.WithClock(c.opts.clock)).Create(cmd)
		if err != nil {
			c.rejected("create_team", err)
			return err
		}

		return c.commit(ctx, ev)
	})
}

func (c *CommandCenter) IssueCommand(ctx context.Context, cmd aggregate.IssueCommand) (err error) {
	ctx, span := c.opts.tracer.Start(ctx, "CommandCenter.IssueCommand", trace.WithAttributes(
		attribute.String("command.id", cmd.CommandID.String()),
		attribute.String("team.id", cmd.TeamID.String()),
		attribute.Int("command.expected_acknowledgers", len(cmd.ExpectedAcknowledgerIDs)),
	))
	defer func() { endSpan(span, err) }()

	return c.withLock(ctx, commandKey(cmd.CommandID), func() error {
		history, err := c.read(ctx, cmd.CommandID)
		if err != nil {
			return err
		}

		ev, err := aggregate.RehydrateCommand(history, aggregate.WithClock(c.opts.clock)).Issue(cmd)
		if err != nil {
			c.rejected("issue_command", err)
			return err
		}

		if err := c.checkTeam(ctx, cmd); err != nil {
			c.rejected("issue_command", err)
			return err
		}

		return c.commit(ctx, ev)
	})
}

func (c *CommandCenter) AcknowledgeCommand(ctx context.Context, cmd aggregate.AcknowledgeCommand) (err error) {
	ctx, span := c.opts.tracer.Start(ctx, "CommandCenter.AcknowledgeCommand", trace.WithAttributes(
		attribute.String("command.id", cmd.CommandID.String()),
		attribute.String("member.id", cmd.MemberID.String()),
	))
	defer func() { endSpan(span, err) }()

	return c.withLock(ctx, commandKey(cmd.CommandID), func() error {
		history, err := c.read(ctx, cmd.CommandID)
		if err != nil {
			return err
		}

		ev, err := aggregate.RehydrateCommand(history, aggregate.WithClock(c.opts.clock)).Acknowledge(cmd)
		if err != nil {
			c.rejected("acknowledge_command", err)
			return err
		}

		return c.commit(ctx, ev)
	})
}

// Compensate escalates a command whose saga reached its deadline and records the compensation.
// It runs inside the saga, so the caller already holds the command lock. Only the facts missing from the
// history are appended: a command with a SagaCompensated fact is left alone, an escalated one only gets
// the compensation fact an earlier attempt failed to append.
func (c *CommandCenter) Compensate(ctx context.Context, commandID uuid.UUID, reason string) (err error) {
	ctx, span := c.opts.tracer.Start(ctx, "CommandCenter.Compensate", trace.WithAttributes(
		attribute.String("command.id", commandID.String()),
	))
	defer func() { endSpan(span, err) }()

	history, err := c.read(ctx, commandID)
	if err != nil {
		return err
	}

	escalation, compensated := compensationFacts(history)
	if compensated {
		c.opts.logger.Logf(log.DebugLevel, "command %s is already compensated", commandID)
		return nil
	}

	command := aggregate.RehydrateCommand(history, aggregate.WithClock(c.opts.clock))

	switch command.Status() {
	case aggregate.StatusIssued:
		escalated, err := command.Escalate(aggregate.EscalateCommand{CommandID: commandID, Reason: reason})
		if err != nil {
			return errors.Wrapf(err, "escalating command %s", commandID)
		}

		if err := c.append(ctx, escalated); err != nil {
			return err
		}

		escalation = escalated.(*event.CommandEscalated)
	case aggregate.StatusEscalated:
		c.opts.logger.Logf(log.InfoLevel, "command %s is escalated without compensation fact, recording it", commandID)
	default:
		c.opts.logger.Logf(log.DebugLevel, "command %s is %s, nothing to compensate", commandID, command.Status())
		return nil
	}

	if err := c.append(ctx, &event.SagaCompensated{
		CommandID: commandID,
		Reason:    reason,
		Timestamp: escalation.OccurredAt(),
	}); err != nil {
		return err
	}

	c.opts.metrics.Compensated()
	c.opts.logger.Logf(log.WarnLevel, "command %s escalated: %s", commandID, reason)

	return nil
}

func compensationFacts(history []event.Event) (escalation *event.CommandEscalated, compensated bool) {
	for _, ev := range history {
		switch fact := ev.(type) {
		case *event.CommandEscalated:
			escalation = fact
		case *event.SagaCompensated:
			compensated = true
		}
	}

	return escalation, compensated
}

// Recover rebuilds the active sagas from the whole log and compensates the ones that expired meanwhile.
// It has to finish before the first intent is handled.
func (c *CommandCenter) Recover(ctx context.Context) (err error) {
	ctx, span := c.opts.tracer.Start(ctx, "CommandCenter.Recover")
	defer func() { endSpan(span, err) }()

	history, err := c.store.ReadAll(ctx)
	if err != nil {
		c.opts.logger.Logf(log.ErrorLevel, "reading event log: %s", err)
		return errors.Wrap(err, "reading event log")
	}

	if err := c.manager.ReplayEvents(ctx, history); err != nil {
		c.opts.logger.Logf(log.ErrorLevel, "replaying event log: %s", err)
		return err
	}

	c.opts.logger.Logf(log.InfoLevel, "replayed %d events, %d sagas are active", len(history), len(c.manager.ActiveIDs()))

	if _, err := c.SweepDeadlines(ctx); err != nil {
		return err
	}

	return nil
}

// SweepDeadlines re-evaluates the deadline of every active saga and returns how many of them left the active set.
// Each saga is checked under its command lock.
func (c *CommandCenter) SweepDeadlines(ctx context.Context) (retired int, err error) {
	ctx, span := c.opts.tracer.Start(ctx, "CommandCenter.SweepDeadlines")
	defer func() {
		span.SetAttributes(attribute.Int("sagas.retired", retired))
		endSpan(span, err)
	}()

	for _, id := range c.manager.ActiveIDs() {
		if ctx.Err() != nil {
			return retired, errors.WithStack(ctx.Err())
		}

		checkErr := c.withLock(ctx, commandKey(id), func() error {
			return c.manager.CheckDeadline(ctx, id)
		})

		if checkErr != nil {
			c.opts.logger.Logf(log.ErrorLevel, "checking deadline of command %s: %s", id, checkErr)
			if err == nil {
				err = checkErr
			}
			continue
		}

		if _, active := c.manager.Get(id); !active {
			retired++
		}
	}

	return retired, err
}

func (c *CommandCenter) checkTeam(ctx context.Context, cmd aggregate.IssueCommand) error {
	history, err := c.read(ctx, cmd.TeamID)
	if err != nil {
		return err
	}

	team := aggregate.RehydrateTeam(history)
	if !team.Created() {
		return ccErrors.InvalidState("team %s doesn't exist", cmd.TeamID)
	}

	for _, memberID := range cmd.ExpectedAcknowledgerIDs {
		if !team.HasMember(memberID) {
			return ccErrors.InvalidArgument("member %s is not in team %s", memberID, cmd.TeamID)
		}
	}

	return nil
}

// commit appends ev and hands it to the saga manager. An event that failed to append is never seen by sagas.
func (c *CommandCenter) commit(ctx context.Context, ev event.Event) error {
	if err := c.append(ctx, ev); err != nil {
		return err
	}

	if err := c.manager.HandleEvent(ctx, ev); err != nil {
		c.opts.logger.Logf(log.ErrorLevel, "saga manager failed on %s of %s: %s", eventType(ev), ev.CorrelationID(), err)
		return errors.Wrapf(err, "handling %s by saga manager", eventType(ev))
	}

	return nil
}

func (c *CommandCenter) append(ctx context.Context, ev event.Event) error {
	if err := c.store.Append(ctx, ev); err != nil {
		c.opts.metrics.AppendFailed(ccErrors.Kind(err))
		c.opts.logger.Logf(log.ErrorLevel, "appending %s of %s: %s", eventType(ev), ev.CorrelationID(), err)
		return errors.Wrapf(err, "appending %s", eventType(ev))
	}

	c.opts.metrics.EventAppended(eventType(ev))

	return nil
}

func (c *CommandCenter) read(ctx context.Context, id uuid.UUID) ([]event.Event, error) {
	history, err := c.store.ReadByCorrelationID(ctx, id)
	if err != nil {
		c.opts.logger.Logf(log.ErrorLevel, "reading history of %s: %s", id, err)
		return nil, errors.Wrapf(err, "reading history of %s", id)
	}

	return history, nil
}

func (c *CommandCenter) rejected(intent string, err error) {
	c.opts.metrics.IntentRejected(intent, ccErrors.Kind(err))
	c.opts.logger.Logf(log.DebugLevel, "%s rejected: %s", intent, err)
}

func (c *CommandCenter) withLock(ctx context.Context, key string, fn func() error) error {
	lock, err := c.mutex.Lock(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "acquiring lock %s", key)
	}

	defer func() {
		if releaseErr := lock.Release(ctx); releaseErr != nil {
			c.opts.logger.Logf(log.ErrorLevel, "releasing lock %s: %s", key, releaseErr)
		}
	}()

	return fn()
}

func commandKey(id uuid.UUID) string {
	return "command:" + id.String()
}

func teamKey(id uuid.UUID) string {
	return "team:" + id.String()
}

func eventType(ev event.Event) string {
	t := reflect.TypeOf(ev)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	return t.Name()
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}
