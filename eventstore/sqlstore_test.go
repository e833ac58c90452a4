package eventstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	ccErrors "github.com/go-foreman/commandcenter/errors"
	"github.com/go-foreman/commandcenter/event"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const (
	mysqlDDL = "create table if not exists persisted_events ( seq bigint not null auto_increment primary key, id varchar(36) not null unique, correlation_id varchar(36) not null, event_type varchar(255) not null, payload text not null, created_at timestamp(6) not null, index persisted_events_correlation_id_idx (correlation_id) );"
	pgDDL    = "create table if not exists persisted_events ( seq bigserial primary key, id varchar(36) not null unique, correlation_id varchar(36) not null, event_type varchar(255) not null, payload text not null, created_at timestamptz not null );"
	pgIndex  = "create index if not exists persisted_events_correlation_id_idx on persisted_events (correlation_id);"
)

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(
		sqlmock.MonitorPingsOption(true),
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
	)
	require.NoError(t, err)
	return db, mock
}

func createStore(t *testing.T, driver SQLDriver) (Store, sqlmock.Sqlmock) {
	db, mock := newSQLMock(t)

	mock.ExpectBegin()
	if driver == MYSQLDriver {
		mock.ExpectExec(mysqlDDL).WithArgs().WillReturnResult(sqlmock.NewResult(0, 0))
	} else {
		mock.ExpectExec(pgDDL).WithArgs().WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(pgIndex).WithArgs().WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	store, err := NewSQLStore(db, driver, event.NewScheme(), WithClock(fixedClock), WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)

	return store, mock
}

func TestSqlStore_InitTable(t *testing.T) {
	t.Run("error committing", func(t *testing.T) {
		db, mock := newSQLMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(mysqlDDL).
			WithArgs().
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit().WillReturnError(errors.New("error commit"))

		_, err := NewSQLStore(db, MYSQLDriver, event.NewScheme())
		require.Error(t, err)
		assert.EqualError(t, err, "initializing tables for SQLStore, driver mysql: error commit")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error exec events table", func(t *testing.T) {
		db, mock := newSQLMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(pgDDL).
			WithArgs().
			WillReturnError(errors.New("error exec1"))
		mock.ExpectRollback()

		_, err := NewSQLStore(db, PGDriver, event.NewScheme())
		require.Error(t, err)
		assert.EqualError(t, err, "initializing tables for SQLStore, driver pg: error exec1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error exec index, rollback fails too", func(t *testing.T) {
		db, mock := newSQLMock(t)

		mock.ExpectBegin()
		mock.ExpectExec(pgDDL).WithArgs().WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(pgIndex).WithArgs().WillReturnError(errors.New("error exec2"))
		mock.ExpectRollback().WillReturnError(errors.New("error rollback"))

		_, err := NewSQLStore(db, PGDriver, event.NewScheme())
		require.Error(t, err)
		assert.EqualError(t, err, "initializing tables for SQLStore, driver pg: error rollback when error exec2: error rollback")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("custom table name", func(t *testing.T) {
		db, mock := newSQLMock(t)

		mock.ExpectBegin()
		mock.ExpectExec("create table if not exists saga_history ( seq bigint not null auto_increment primary key, id varchar(36) not null unique, correlation_id varchar(36) not null, event_type varchar(255) not null, payload text not null, created_at timestamp(6) not null, index saga_history_correlation_id_idx (correlation_id) );").
			WithArgs().
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		_, err := NewSQLStore(db, MYSQLDriver, event.NewScheme(), WithTableName(SagaHistoryTableName))
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSqlStore_Append(t *testing.T) {
	ctx := context.Background()
	commandID, teamID, memberID := uuid.New(), uuid.New(), uuid.New()
	ev := &event.CommandAcknowledged{CommandID: commandID, TeamID: teamID, MemberID: memberID, Timestamp: fixedNow}
	codec := NewJSONCodec(event.NewScheme())
	_, payload, err := codec.Marshal(ev)
	require.NoError(t, err)

	t.Run("mysql append", func(t *testing.T) {
		store, mock := createStore(t, MYSQLDriver)

		mock.ExpectExec("INSERT INTO persisted_events (id, correlation_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?);").
			WithArgs(uuid.UUID{15: 1}.String(), commandID.String(), "commandcenter.CommandAcknowledged", string(payload), fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, store.Append(ctx, ev))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pg append uses numbered placeholders", func(t *testing.T) {
		store, mock := createStore(t, PGDriver)

		mock.ExpectExec("INSERT INTO persisted_events (id, correlation_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5);").
			WithArgs(uuid.UUID{15: 1}.String(), commandID.String(), "commandcenter.CommandAcknowledged", string(payload), fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, store.Append(ctx, ev))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insert failure is a persistence error", func(t *testing.T) {
		store, mock := createStore(t, MYSQLDriver)

		mock.ExpectExec("INSERT INTO persisted_events (id, correlation_id, event_type, payload, created_at) VALUES (?, ?, ?, ?, ?);").
			WillReturnError(errors.New("deadlock found"))

		err := store.Append(ctx, ev)
		require.Error(t, err)
		assert.True(t, ccErrors.IsPersistence(err))
		assert.Contains(t, err.Error(), "deadlock found")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("marshal failure never reaches the database", func(t *testing.T) {
		store, mock := createStore(t, MYSQLDriver)

		err := store.Append(ctx, &unregisteredEvent{})
		assert.True(t, ccErrors.IsPersistence(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSqlStore_Read(t *testing.T) {
	ctx := context.Background()
	commandID, teamID, memberID := uuid.New(), uuid.New(), uuid.New()
	ev := &event.CommandAcknowledged{CommandID: commandID, TeamID: teamID, MemberID: memberID, Timestamp: fixedNow}
	codec := NewJSONCodec(event.NewScheme())
	eventType, payload, err := codec.Marshal(ev)
	require.NoError(t, err)
	columns := []string{"id", "correlation_id", "event_type", "payload", "created_at"}

	t.Run("pg read by correlation id", func(t *testing.T) {
		store, mock := createStore(t, PGDriver)

		mock.ExpectQuery("SELECT id, correlation_id, event_type, payload, created_at FROM persisted_events WHERE correlation_id=$1 ORDER BY seq;").
			WithArgs(commandID.String()).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(uuid.New().String(), commandID.String(), eventType, string(payload), fixedNow).
				AddRow(uuid.New().String(), commandID.String(), eventType, string(payload), "2024-03-01 10:00:01.000000"))

		events, err := store.ReadByCorrelationID(ctx, commandID)
		require.NoError(t, err)
		assert.Equal(t, []event.Event{ev, ev}, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("mysql read all", func(t *testing.T) {
		store, mock := createStore(t, MYSQLDriver)

		mock.ExpectQuery("SELECT id, correlation_id, event_type, payload, created_at FROM persisted_events ORDER BY seq;").
			WillReturnRows(sqlmock.NewRows(columns))

		events, err := store.ReadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, events)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query failure is a persistence error", func(t *testing.T) {
		store, mock := createStore(t, MYSQLDriver)

		mock.ExpectQuery("SELECT id, correlation_id, event_type, payload, created_at FROM persisted_events ORDER BY seq;").
			WillReturnError(errors.New("server has gone away"))

		_, err := store.ReadAll(ctx)
		assert.True(t, ccErrors.IsPersistence(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown event type fails the whole read", func(t *testing.T) {
		store, mock := createStore(t, MYSQLDriver)

		mock.ExpectQuery("SELECT id, correlation_id, event_type, payload, created_at FROM persisted_events WHERE correlation_id=? ORDER BY seq;").
			WithArgs(commandID.String()).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(uuid.New().String(), commandID.String(), eventType, string(payload), fixedNow).
				AddRow(uuid.New().String(), commandID.String(), "commandcenter.CommandVanished", "{}", fixedNow))

		events, err := store.ReadByCorrelationID(ctx, commandID)
		assert.Nil(t, events)
		assert.True(t, ccErrors.IsDecode(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("malformed correlation id is a decode error", func(t *testing.T) {
		store, mock := createStore(t, MYSQLDriver)

		mock.ExpectQuery("SELECT id, correlation_id, event_type, payload, created_at FROM persisted_events ORDER BY seq;").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(uuid.New().String(), "broken", eventType, string(payload), fixedNow))

		_, err := store.ReadAll(ctx)
		assert.True(t, ccErrors.IsDecode(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSqlStore_SQLite(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})

	store, err := NewSQLStore(db, SQLiteDriver, event.NewScheme(), WithClock(fixedClock))
	require.NoError(t, err)

	assertStoreContract(t, store)

	t.Run("tables are created idempotently", func(t *testing.T) {
		again, err := NewSQLStore(db, SQLiteDriver, event.NewScheme())
		require.NoError(t, err)

		all, err := again.ReadAll(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, all)
	})
}

func TestSqlTime_Scan(t *testing.T) {
	testCases := []struct {
		name string
		src  interface{}
	}{
		{"time", fixedNow},
		{"mysql text", []byte("2024-03-01 10:00:00.000000")},
		{"sqlite text", "2024-03-01 10:00:00+00:00"},
		{"rfc3339", "2024-03-01T10:00:00Z"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var scanned sqlTime
			require.NoError(t, scanned.Scan(testCase.src))
			assert.True(t, fixedNow.Equal(scanned.Time), scanned.Time.String())
		})
	}

	t.Run("garbage", func(t *testing.T) {
		var scanned sqlTime
		assert.EqualError(t, scanned.Scan("tomorrow"), `unsupported timestamp format "tomorrow"`)
		assert.EqualError(t, scanned.Scan(42), "unsupported timestamp type int")
	})
}
