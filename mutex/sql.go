package mutex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-foreman/commandcenter/eventstore"
	"github.com/go-foreman/commandcenter/log"
	"github.com/pkg/errors"
)

// NewSqlMutex returns a mutex shared by every process connected to the same database.
// mysql uses GET_LOCK, postgres uses session advisory locks. The connection that acquired a lock is pinned to it until Release.
func NewSqlMutex(db *sql.DB, driver eventstore.SQLDriver, logger log.Logger) Mutex {
	if driver == eventstore.PGDriver {
		return &pgsqlMutex{db: db, logger: logger}
	}
	return &mysqlMutex{db: db, logger: logger}
}

type mysqlMutex struct {
	db     *sql.DB
	logger log.Logger
}

func (m *mysqlMutex) Lock(ctx context.Context, key string) (Lock, error) {
	conn, err := m.db.Conn(ctx)

	if err != nil {
		return nil, WithMutexErr(errors.Wrapf(err, "obtaining a connection from pool for %s", key))
	}

	r := sql.NullInt64{}
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, -1);", key).Scan(&r); err != nil {
		return nil, WithMutexErr(errors.Wrapf(err, "acquiring lock for %s. %s", key, closeConn(conn)))
	}

	/*
		Returns 1 if the lock was obtained successfully,
		0 if the attempt timed out (for example, because another client has previously locked the name),
		or NULL if an error occurred (such as running out of memory or the thread was killed with mysqladmin kill).
	*/
	if r.Int64 == 1 {
		return &mysqlLock{conn: conn, key: key, logger: m.logger}, nil
	}

	return nil, WithMutexErr(errors.Errorf("got error status %d when acquiring lock for %s. %s", r.Int64, key, closeConn(conn)))
}

type mysqlLock struct {
	conn   *sql.Conn
	key    string
	logger log.Logger
}

func (l *mysqlLock) Release(ctx context.Context) error {
	r := sql.NullInt64{}
	if err := l.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?);", l.key).Scan(&r); err != nil {
		return WithMutexErr(errors.Wrapf(err, "releasing lock for %s. %s", l.key, closeConn(l.conn)))
	}

	if r.Int64 != 1 {
		return WithMutexErr(errors.Errorf("lock was not established by this thread for %s. %s", l.key, closeConn(l.conn)))
	}

	if err := l.conn.Close(); err != nil {
		l.logger.Logf(log.WarnLevel, "closing mutex connection of %s: %s", l.key, err)
	}

	return nil
}

type pgsqlMutex struct {
	db     *sql.DB
	logger log.Logger
}

func (p *pgsqlMutex) Lock(ctx context.Context, key string) (Lock, error) {
	conn, err := p.db.Conn(ctx)

	if err != nil {
		return nil, WithMutexErr(errors.Wrapf(err, "obtaining a connection from pool for %s", key))
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext($1));", key); err != nil {
		return nil, WithMutexErr(errors.Errorf("acquiring lock for %s. %s. %s", key, err, closeConn(conn)))
	}

	return &pgsqlLock{conn: conn, key: key, logger: p.logger}, nil
}

type pgsqlLock struct {
	conn   *sql.Conn
	key    string
	logger log.Logger
}

func (l *pgsqlLock) Release(ctx context.Context) error {
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1));", l.key); err != nil {
		return WithMutexErr(errors.Wrapf(err, "releasing lock for %s. %s", l.key, closeConn(l.conn)))
	}

	if err := l.conn.Close(); err != nil {
		l.logger.Logf(log.WarnLevel, "closing mutex connection of %s: %s", l.key, err)
	}

	return nil
}

func closeConn(conn *sql.Conn) string {
	if err := conn.Close(); err != nil {
		return fmt.Sprintf("also failed to close connection %s", err)
	}
	return "connection closed"
}
