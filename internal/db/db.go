// Package db opens the configured storage backend and hands out the task and
// event stores built on it.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"todo-api/internal/config"
	"todo-api/pkg/eventgraph"
	"todo-api/pkg/task"
)

// Connect creates a PostgreSQL connection pool and verifies it answers.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// OpenSQLite opens an SQLite database through GORM. path may be ":memory:".
func OpenSQLite(path string, debug bool) (*gorm.DB, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	// SQLite serializes writers, and every connection to ":memory:" is a
	// separate database.
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

// Backend bundles the stores of one storage backend.
type Backend struct {
	Driver string
	Tasks  task.Store
	Events eventgraph.EventStore
	close  func() error
}

// NewBackend assembles a Backend from existing stores. closeFn may be nil.
func NewBackend(driver string, tasks task.Store, events eventgraph.EventStore, closeFn func() error) *Backend {
	return &Backend{Driver: driver, Tasks: tasks, Events: events, close: closeFn}
}

// Close releases the underlying connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Open connects to the backend selected by cfg and ensures both tables exist.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	var b *Backend
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b = NewBackend(cfg.DBDriver, task.NewPgStore(pool), eventgraph.NewPgStore(pool), func() error {
			pool.Close()
			return nil
		})
	case config.DriverSQLite:
		gdb, err := OpenSQLite(cfg.DBPath, cfg.DBDebug)
		if err != nil {
			return nil, err
		}
		b = FromGorm(gdb)
	default:
		return nil, fmt.Errorf("unknown db driver %q", cfg.DBDriver)
	}

	if err := b.Events.EnsureTable(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("ensure events table: %w", err)
	}
	if err := b.Tasks.EnsureTable(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("ensure tasks table: %w", err)
	}
	return b, nil
}

// FromGorm wraps an open GORM handle as a Backend. Tables are not created.
func FromGorm(gdb *gorm.DB) *Backend {
	closeFn := func() error {
		sqlDB, err := gdb.DB()
		if err != nil {
			return fmt.Errorf("get sql.DB: %w", err)
		}
		return sqlDB.Close()
	}
	return NewBackend(config.DriverSQLite, task.NewGormStore(gdb), eventgraph.NewGormStore(gdb), closeFn)
}
