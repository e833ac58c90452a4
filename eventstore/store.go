// Package eventstore is the append-only log every aggregate and saga is rebuilt from.
package eventstore

import (
	"context"
	"time"

	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/log"
	"github.com/google/uuid"
)

// PersistedEvent is the storage envelope of an event. It is never mutated after insertion.
type PersistedEvent struct {
	ID            uuid.UUID
	CorrelationID uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Appender appends events to the log.
type Appender interface {
	// Append makes ev visible to subsequent reads of its correlation id.
	// A failed append is a PersistenceErr and the event must be treated as not recorded.
	Append(ctx context.Context, ev event.Event) error
}

// Reader reads the log back in append order.
type Reader interface {
	// ReadByCorrelationID returns every event of id in append order, an empty slice if there are none.
	ReadByCorrelationID(ctx context.Context, id uuid.UUID) ([]event.Event, error)
	// ReadAll scans the whole log. It is meant for recovery and diagnostics.
	ReadAll(ctx context.Context) ([]event.Event, error)
}

//go:generate mockgen --build_flags=--mod=mod -destination ../testing/mocks/eventstore/store.go -package eventstore . Store

type Store interface {
	Appender
	Reader
}

type opts struct {
	clock       func() time.Time
	idGenerator func() uuid.UUID
	logger      log.Logger
	tableName   string
	keyPrefix   string
}

type Opt func(o *opts)

// WithClock sets the source of PersistedEvent.CreatedAt.
func WithClock(clock func() time.Time) Opt {
	return func(o *opts) {
		o.clock = clock
	}
}

// WithIDGenerator sets the source of PersistedEvent.ID.
func WithIDGenerator(gen func() uuid.UUID) Opt {
	return func(o *opts) {
		o.idGenerator = gen
	}
}

func WithLogger(logger log.Logger) Opt {
	return func(o *opts) {
		o.logger = logger
	}
}

// WithTableName overrides the table of the sql store. The saga audit trail lives in its own table.
func WithTableName(name string) Opt {
	return func(o *opts) {
		o.tableName = name
	}
}

// WithKeyPrefix overrides the key namespace of the redis store.
func WithKeyPrefix(prefix string) Opt {
	return func(o *opts) {
		o.keyPrefix = prefix
	}
}

func buildOpts(options []Opt) *opts {
	o := &opts{
		clock:       func() time.Time { return time.Now().UTC() },
		idGenerator: uuid.New,
		logger:      log.NewNilLogger(),
		tableName:   DefaultTableName,
		keyPrefix:   DefaultKeyPrefix,
	}

	for _, opt := range options {
		opt(o)
	}

	return o
}

func newRecord(codec *JSONCodec, o *opts, ev event.Event) (PersistedEvent, error) {
	eventType, payload, err := codec.Marshal(ev)
	if err != nil {
		return PersistedEvent{}, err
	}

	return PersistedEvent{
		ID:            o.idGenerator(),
		CorrelationID: ev.CorrelationID(),
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     o.clock(),
	}, nil
}

func decodeRecords(codec *JSONCodec, records []PersistedEvent) ([]event.Event, error) {
	events := make([]event.Event, 0, len(records))

	for _, rec := range records {
		ev, err := codec.Unmarshal(rec.EventType, rec.Payload)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, nil
}
