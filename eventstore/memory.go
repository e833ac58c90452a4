package eventstore

import (
	"context"
	"sync"

	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/runtime/scheme"
	"github.com/google/uuid"
)

// memoryStore keeps serialized records in process, so every read goes through the same decode path as durable stores.
type memoryStore struct {
	mutex         sync.RWMutex
	codec         *JSONCodec
	opts          *opts
	records       []PersistedEvent
	byCorrelation map[uuid.UUID][]int
}

func NewMemoryStore(knownTypes scheme.KnownTypesRegistry, options ...Opt) Store {
	return &memoryStore{
		codec:         NewJSONCodec(knownTypes),
		opts:          buildOpts(options),
		byCorrelation: make(map[uuid.UUID][]int),
	}
}

func (m *memoryStore) Append(ctx context.Context, ev event.Event) error {
	rec, err := newRecord(m.codec, m.opts, ev)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.byCorrelation[rec.CorrelationID] = append(m.byCorrelation[rec.CorrelationID], len(m.records))
	m.records = append(m.records, rec)

	return nil
}

func (m *memoryStore) ReadByCorrelationID(ctx context.Context, id uuid.UUID) ([]event.Event, error) {
	m.mutex.RLock()
	indexes := m.byCorrelation[id]
	records := make([]PersistedEvent, len(indexes))
	for i, idx := range indexes {
		records[i] = m.records[idx]
	}
	m.mutex.RUnlock()

	return decodeRecords(m.codec, records)
}

func (m *memoryStore) ReadAll(ctx context.Context) ([]event.Event, error) {
	m.mutex.RLock()
	records := make([]PersistedEvent, len(m.records))
	copy(records, m.records)
	m.mutex.RUnlock()

	return decodeRecords(m.codec, records)
}
