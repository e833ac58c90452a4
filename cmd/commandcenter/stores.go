package main

import (
	"context"
	"database/sql"

	"github.com/go-foreman/commandcenter/config"
	"github.com/go-foreman/commandcenter/eventstore"
	"github.com/go-foreman/commandcenter/log"
	"github.com/go-foreman/commandcenter/mutex"
	"github.com/go-foreman/commandcenter/runtime/scheme"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

const auditKeySuffix = ":" + eventstore.SagaHistoryTableName

type backend struct {
	store eventstore.Store
	// audit is nil unless the audit trail is enabled
	audit   eventstore.Store
	mutex   mutex.Mutex
	closers []func() error
}

func (b *backend) Close() error {
	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sqlDriverNames maps store drivers to database/sql driver names.
var sqlDriverNames = map[config.StoreDriver]string{
	config.MySQLDriver:  "mysql",
	config.PGDriver:     "pgx",
	config.SQLiteDriver: "sqlite",
}

func openBackend(ctx context.Context, cfg *config.Config, knownTypes scheme.KnownTypesRegistry, logger log.Logger) (*backend, error) {
	storeOpts := []eventstore.Opt{eventstore.WithLogger(logger)}
	b := &backend{}

	switch cfg.StoreDriver {
	case config.MemoryDriver:
		b.store = eventstore.NewMemoryStore(knownTypes, storeOpts...)
		b.mutex = mutex.NewMemoryMutex()
		if cfg.AuditTrail {
			b.audit = eventstore.NewMemoryStore(knownTypes, storeOpts...)
		}

	case config.RedisDriver:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		b.closers = append(b.closers, client.Close)

		if err := client.Ping(ctx).Err(); err != nil {
			_ = b.Close()
			return nil, errors.Wrapf(err, "connecting to redis %s", cfg.RedisAddr)
		}

		b.store = eventstore.NewRedisStore(client, knownTypes, storeOpts...)
		b.mutex = mutex.NewMemoryMutex()
		if cfg.AuditTrail {
			b.audit = eventstore.NewRedisStore(client, knownTypes, append(storeOpts, eventstore.WithKeyPrefix(eventstore.DefaultKeyPrefix+auditKeySuffix))...)
		}

	case config.MySQLDriver, config.PGDriver, config.SQLiteDriver:
		db, err := sql.Open(sqlDriverNames[cfg.StoreDriver], cfg.DatabaseDSN)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s database", cfg.StoreDriver)
		}
		b.closers = append(b.closers, db.Close)

		if err := db.PingContext(ctx); err != nil {
			_ = b.Close()
			return nil, errors.Wrapf(err, "connecting to %s database", cfg.StoreDriver)
		}

		driver := eventstore.SQLDriver(cfg.StoreDriver)

		if driver == eventstore.SQLiteDriver {
			// sqlite has a single writer
			db.SetMaxOpenConns(1)
			b.mutex = mutex.NewMemoryMutex()
		} else {
			b.mutex = mutex.NewSqlMutex(db, driver, logger)
		}

		if b.store, err = eventstore.NewSQLStore(db, driver, knownTypes, storeOpts...); err != nil {
			_ = b.Close()
			return nil, err
		}

		if cfg.AuditTrail {
			if b.audit, err = eventstore.NewSQLStore(db, driver, knownTypes, append(storeOpts, eventstore.WithTableName(eventstore.SagaHistoryTableName))...); err != nil {
				_ = b.Close()
				return nil, err
			}
		}

	default:
		return nil, errors.Errorf("unknown store driver %s", cfg.StoreDriver)
	}

	logger.Logf(log.InfoLevel, "event store driver %s, audit trail %t", cfg.StoreDriver, cfg.AuditTrail)

	return b, nil
}
