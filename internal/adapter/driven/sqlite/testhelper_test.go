package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB returns a migrated, named shared-cache in-memory database. The
// name comes from t.Name() so each test gets its own database while the
// writer and reader pools still see the same data.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// In-memory databases have no WAL; the remaining pragmas match NewDB.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)",
		url.PathEscape(t.Name()),
	)

	writer := openTestPool(t, dsn, 1)
	reader := openTestPool(t, dsn, 4)
	db := &DB{Writer: writer, Reader: reader}

	require.NoError(t, RunMigrations(db.Writer, slog.New(slog.NewTextHandler(io.Discard, nil))), "run migrations")

	return db
}

func openTestPool(t *testing.T, dsn string, maxConns int) *sql.DB {
	t.Helper()

	pool, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	pool.SetMaxOpenConns(maxConns)
	require.NoError(t, pool.PingContext(context.Background()))

	return pool
}
