package database

import (
	"context"
	"fmt"

	"todo-api/pkg/logger"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS todos (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_todos_created_at ON todos (created_at DESC)`,
	`CREATE OR REPLACE FUNCTION todos_touch_updated_at() RETURNS TRIGGER AS $$
	BEGIN
		NEW.updated_at = NOW();
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_todos_updated ON todos`,
	`CREATE TRIGGER trg_todos_updated
		BEFORE UPDATE ON todos
		FOR EACH ROW EXECUTE FUNCTION todos_touch_updated_at()`,
}

// Timestamps keep millisecond precision so updated_at moves on quick successive writes.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS todos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title VARCHAR(255) NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now')),
		updated_at DATETIME NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_todos_created_at ON todos (created_at DESC)`,
	`CREATE TRIGGER IF NOT EXISTS trg_todos_updated
		AFTER UPDATE OF title, completed ON todos
		FOR EACH ROW BEGIN
			UPDATE todos SET updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now') WHERE id = OLD.id;
		END`,
}

// Migrate creates the todos table and its updated_at trigger when missing.
func (g *Gateway) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if g.driver == DriverSQLite {
		stmts = sqliteSchema
	}
	err := g.WithConn(ctx, "migrate", func(q Querier) error {
		for _, stmt := range stmts {
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				return Wrap(ctx, "migrate", fmt.Errorf("schema statement failed: %w", err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, "Todos table created/verified", "driver", g.driver)
	return nil
}
