package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/go-foreman/commandcenter/log"
	"github.com/go-foreman/commandcenter/runtime/scheme"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	MYSQLDriver  SQLDriver = "mysql"
	PGDriver     SQLDriver = "pg"
	SQLiteDriver SQLDriver = "sqlite"

	DefaultTableName = "persisted_events"
	// SagaHistoryTableName is where the saga audit trail is kept.
	SagaHistoryTableName = "saga_history"
)

type SQLDriver string

type sqlStore struct {
	db     *sql.DB
	driver SQLDriver
	codec  *JSONCodec
	opts   *opts
}

// NewSQLStore creates sql event store, it supports mysql, postgres and sqlite drivers.
// driver param is required because of https://github.com/golang/go/issues/3602, placeholders differ between them.
func NewSQLStore(db *sql.DB, driver SQLDriver, knownTypes scheme.KnownTypesRegistry, options ...Opt) (Store, error) {
	s := &sqlStore{db: db, driver: driver, codec: NewJSONCodec(knownTypes), opts: buildOpts(options)}

	if err := s.initTables(); err != nil {
		return nil, errors.Wrapf(err, "initializing tables for SQLStore, driver %s", driver)
	}

	return s, nil
}

func (s *sqlStore) Append(ctx context.Context, ev event.Event) error {
	rec, err := newRecord(s.codec, s.opts, ev)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.prepQuery(fmt.Sprintf("INSERT INTO %v (id, correlation_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?);", s.opts.tableName)),
		rec.ID.String(),
		rec.CorrelationID.String(),
		rec.EventType,
		string(rec.Payload),
		rec.CreatedAt,
	)

	if err != nil {
		return ccErrors.WithPersistenceErr(errors.Wrapf(err, "inserting event %s of %s", rec.EventType, rec.CorrelationID))
	}

	s.opts.logger.Logf(log.DebugLevel, "appended %s of %s into %s", rec.EventType, rec.CorrelationID, s.opts.tableName)

	return nil
}

func (s *sqlStore) ReadByCorrelationID(ctx context.Context, id uuid.UUID) ([]event.Event, error) {
	return s.query(ctx, fmt.Sprintf("SELECT id, correlation_id, event_type, payload, created_at FROM %v WHERE correlation_id=? ORDER BY seq;", s.opts.tableName), id.String())
}

func (s *sqlStore) ReadAll(ctx context.Context) ([]event.Event, error) {
	return s.query(ctx, fmt.Sprintf("SELECT id, correlation_id, event_type, payload, created_at FROM %v ORDER BY seq;", s.opts.tableName))
}

func (s *sqlStore) query(ctx context.Context, query string, args ...interface{}) ([]event.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.prepQuery(query), args...)
	if err != nil {
		return nil, ccErrors.WithPersistenceErr(errors.Wrapf(err, "querying %s", s.opts.tableName))
	}

	defer rows.Close()

	records := make([]PersistedEvent, 0)

	for rows.Next() {
		model := persistedEventSqlModel{}

		if err := rows.Scan(&model.ID, &model.CorrelationID, &model.EventType, &model.Payload, &model.CreatedAt); err != nil {
			return nil, ccErrors.WithPersistenceErr(errors.Wrap(err, "scanning row"))
		}

		rec, err := model.toRecord()
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, ccErrors.WithPersistenceErr(errors.WithStack(err))
	}

	return decodeRecords(s.codec, records)
}

func (s *sqlStore) initTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})

	if err != nil {
		return errors.WithStack(err)
	}

	for _, statement := range s.ddl() {
		if _, err := tx.ExecContext(ctx, statement); err != nil {
			if rErr := tx.Rollback(); rErr != nil {
				return errors.Wrapf(rErr, "error rollback when %s", err)
			}
			return errors.WithStack(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func (s *sqlStore) ddl() []string {
	table := s.opts.tableName

	switch s.driver {
	case MYSQLDriver:
		return []string{fmt.Sprintf(`create table if not exists %v
		(
			seq bigint not null auto_increment primary key,
			id varchar(36) not null unique,
			correlation_id varchar(36) not null,
			event_type varchar(255) not null,
			payload text not null,
			created_at timestamp(6) not null,
			index %v_correlation_id_idx (correlation_id)
		);`, table, table)}
	case PGDriver:
		return []string{
			fmt.Sprintf(`create table if not exists %v
			(
				seq bigserial primary key,
				id varchar(36) not null unique,
				correlation_id varchar(36) not null,
				event_type varchar(255) not null,
				payload text not null,
				created_at timestamptz not null
			);`, table),
			fmt.Sprintf("create index if not exists %v_correlation_id_idx on %v (correlation_id);", table, table),
		}
	default:
		return []string{
			fmt.Sprintf(`create table if not exists %v
			(
				seq integer primary key autoincrement,
				id varchar(36) not null unique,
				correlation_id varchar(36) not null,
				event_type varchar(255) not null,
				payload text not null,
				created_at timestamp not null
			);`, table),
			fmt.Sprintf("create index if not exists %v_correlation_id_idx on %v (correlation_id);", table, table),
		}
	}
}

// prepQuery replaces wildcard params to specific driver. Standard wildcard is '?'
func (s *sqlStore) prepQuery(query string) string {
	var res []byte

	counter := 1

	for i := 0; i < len(query); i++ {
		if query[i] == '?' && s.driver == PGDriver {
			res = append(append(res, '$'), []byte(strconv.Itoa(counter))...)
			counter++

			continue
		}
		res = append(res, query[i])
	}

	return string(res)
}

type persistedEventSqlModel struct {
	ID            string
	CorrelationID string
	EventType     string
	Payload       string
	CreatedAt     sqlTime
}

func (m persistedEventSqlModel) toRecord() (PersistedEvent, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return PersistedEvent{}, ccErrors.WithDecodeErr(errors.Wrapf(err, "parsing id %q", m.ID))
	}

	correlationID, err := uuid.Parse(m.CorrelationID)
	if err != nil {
		return PersistedEvent{}, ccErrors.WithDecodeErr(errors.Wrapf(err, "parsing correlation id %q of %s", m.CorrelationID, m.ID))
	}

	return PersistedEvent{
		ID:            id,
		CorrelationID: correlationID,
		EventType:     m.EventType,
		Payload:       []byte(m.Payload),
		CreatedAt:     m.CreatedAt.Time,
	}, nil
}

var sqlTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
}

// sqlTime scans timestamps of drivers that hand them out as text, e.g. mysql without parseTime.
type sqlTime struct {
	time.Time
}

func (t *sqlTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return errors.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *sqlTime) parse(value string) error {
	for _, layout := range sqlTimeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			t.Time = parsed
			return nil
		}
	}

	return errors.Errorf("unsupported timestamp format %q", value)
}
