package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"todo-api/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"

	defaultPoolSize       = 10
	defaultAcquireTimeout = 10 * time.Second
)

// Options configures the connection pool.
type Options struct {
	Driver         string
	DSN            string
	PoolSize       int
	AcquireTimeout time.Duration
}

// Querier is the statement surface shared by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Gateway owns the bounded connection pool to the relational store.
type Gateway struct {
	db             *sql.DB
	driver         string
	acquireTimeout time.Duration
}

// Open creates the pool and verifies the store is reachable.
func Open(ctx context.Context, opts Options) (*Gateway, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("empty database DSN")
	}
	if opts.Driver != DriverPostgres && opts.Driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = defaultAcquireTimeout
	}

	db, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	maxOpen := opts.PoolSize
	if opts.Driver == DriverSQLite {
		// SQLite serialises writers; one connection also keeps in-memory databases alive.
		maxOpen = 1
		db.SetConnMaxLifetime(0)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxIdleConns(max(1, maxOpen/2))
	}
	db.SetMaxOpenConns(maxOpen)

	g := &Gateway{db: db, driver: opts.Driver, acquireTimeout: opts.AcquireTimeout}
	if err := g.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info(ctx, "Database pool initialized", "driver", opts.Driver, "max_open", maxOpen)
	return g, nil
}

// WithConn acquires one connection for the whole of fn and always releases it.
// Failing to acquire a connection within the acquire timeout is a StoreError.
func (g *Gateway) WithConn(ctx context.Context, op string, fn func(q Querier) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, g.acquireTimeout)
	conn, err := g.db.Conn(acquireCtx)
	cancel()
	if err != nil {
		return Wrap(ctx, op+": acquire connection", err)
	}
	defer conn.Close()
	return fn(conn)
}

// Ping checks the store answers within the acquire timeout.
func (g *Gateway) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, g.acquireTimeout)
	defer cancel()
	return Wrap(ctx, "ping", g.db.PingContext(pingCtx))
}

// Stats exposes pool statistics.
func (g *Gateway) Stats() sql.DBStats {
	return g.db.Stats()
}

// Close releases every pooled connection.
func (g *Gateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}
