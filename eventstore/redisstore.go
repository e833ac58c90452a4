package eventstore

import (
	"context"
	"encoding/json"
	"time"

	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/runtime/scheme"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "commandcenter:events"

// redisStore keeps one list per correlation id plus a list of the whole log.
// Both are pushed in a single MULTI so a record is either in both or in none.
type redisStore struct {
	client redis.UniversalClient
	codec  *JSONCodec
	opts   *opts
}

func NewRedisStore(client redis.UniversalClient, knownTypes scheme.KnownTypesRegistry, options ...Opt) Store {
	return &redisStore{client: client, codec: NewJSONCodec(knownTypes), opts: buildOpts(options)}
}

type redisRecord struct {
	ID            uuid.UUID       `json:"id"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (r *redisStore) Append(ctx context.Context, ev event.Event) error {
	rec, err := newRecord(r.codec, r.opts, ev)
	if err != nil {
		return err
	}

	data, err := json.Marshal(redisRecord{
		ID:            rec.ID,
		CorrelationID: rec.CorrelationID,
		EventType:     rec.EventType,
		Payload:       rec.Payload,
		CreatedAt:     rec.CreatedAt,
	})
	if err != nil {
		return ccErrors.WithPersistenceErr(errors.Wrapf(err, "marshaling record of %s", rec.CorrelationID))
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.correlationKey(rec.CorrelationID), data)
		pipe.RPush(ctx, r.opts.keyPrefix, data)
		return nil
	})

	if err != nil {
		return ccErrors.WithPersistenceErr(errors.Wrapf(err, "pushing event %s of %s", rec.EventType, rec.CorrelationID))
	}

	return nil
}

func (r *redisStore) ReadByCorrelationID(ctx context.Context, id uuid.UUID) ([]event.Event, error) {
	return r.read(ctx, r.correlationKey(id))
}

func (r *redisStore) ReadAll(ctx context.Context) ([]event.Event, error) {
	return r.read(ctx, r.opts.keyPrefix)
}

func (r *redisStore) read(ctx context.Context, key string) ([]event.Event, error) {
	items, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, ccErrors.WithPersistenceErr(errors.Wrapf(err, "reading %s", key))
	}

	records := make([]PersistedEvent, 0, len(items))

	for _, item := range items {
		var rec redisRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, ccErrors.WithDecodeErr(errors.Wrapf(err, "decoding record from %s", key))
		}

		records = append(records, PersistedEvent{
			ID:            rec.ID,
			CorrelationID: rec.CorrelationID,
			EventType:     rec.EventType,
			Payload:       rec.Payload,
			CreatedAt:     rec.CreatedAt,
		})
	}

	return decodeRecords(r.codec, records)
}

func (r *redisStore) correlationKey(id uuid.UUID) string {
	return r.opts.keyPrefix + ":" + id.String()
}
