// Package dbtest opens throwaway in-memory stores for tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"todo-api/internal/database"
)

// Open returns a migrated gateway over a private in-memory SQLite database
// that is closed when the test ends.
func Open(tb testing.TB) *database.Gateway {
	tb.Helper()
	return OpenWithTimeout(tb, time.Second)
}

// OpenWithTimeout is Open with a custom connection acquire timeout.
func OpenWithTimeout(tb testing.TB, acquire time.Duration) *database.Gateway {
	tb.Helper()
	ctx := context.Background()
	gw, err := database.Open(ctx, database.Options{
		Driver:         database.DriverSQLite,
		DSN:            "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		AcquireTimeout: acquire,
	})
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	tb.Cleanup(func() { _ = gw.Close() })
	if err := gw.Migrate(ctx); err != nil {
		tb.Fatalf("migrate test database: %v", err)
	}
	return gw
}
