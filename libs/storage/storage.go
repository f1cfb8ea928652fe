// Package storage opens the event log and DLQ stores for the configured
// backend and bootstraps their schemas.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/md-rashed-zaman/storefront/libs/db"
	"github.com/md-rashed-zaman/storefront/libs/dlq"
	"github.com/md-rashed-zaman/storefront/libs/es"
	"github.com/md-rashed-zaman/storefront/libs/runtime"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Driver      string `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"storefront.db"`

	Pool db.PoolOptions
}

// Backend is one opened storage backend. Both stores share its connection.
type Backend struct {
	Driver      string
	Events      es.EventStore
	DeadLetters dlq.Store
	Ready       runtime.ReadyCheck

	close func()
}

func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

type schemaOwner interface {
	EnsureSchema(ctx context.Context) error
}

func Open(ctx context.Context, cfg Config) (*Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the %s driver", DriverPostgres)
		}
		pool, err := db.Open(ctx, cfg.DatabaseURL, cfg.Pool)
		if err != nil {
			return nil, err
		}
		events := es.NewPostgresStore(pool)
		letters := dlq.NewPostgresStore(pool)
		if err := ensure(ctx, events, letters); err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{
			Driver:      DriverPostgres,
			Events:      events,
			DeadLetters: letters,
			Ready:       runtime.ReadyCheck{Name: "db", Check: db.PostgresReadyCheck(pool)},
			close:       pool.Close,
		}, nil
	case DriverSQLite:
		sqlDB, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		events := es.NewSQLiteStore(sqlDB)
		letters := dlq.NewSQLiteStore(sqlDB)
		if err := ensure(ctx, events, letters); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return &Backend{
			Driver:      DriverSQLite,
			Events:      events,
			DeadLetters: letters,
			Ready:       runtime.ReadyCheck{Name: "db", Check: db.SQLiteReadyCheck(sqlDB)},
			close:       closeSQL(sqlDB),
		}, nil
	case DriverMemory:
		return &Backend{
			Driver:      DriverMemory,
			Events:      es.NewMemoryStore(),
			DeadLetters: dlq.NewMemoryStore(),
			Ready:       runtime.ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.Driver)
	}
}

func ensure(ctx context.Context, owners ...schemaOwner) error {
	for _, o := range owners {
		if err := o.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	return nil
}

func closeSQL(sqlDB *sql.DB) func() {
	return func() { _ = sqlDB.Close() }
}
