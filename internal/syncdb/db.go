// Package syncdb manages the embedded SQLite database holding the last-seen
// snapshot of every resource between extraction runs.
package syncdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// DB wraps the sync database connection. The contract is single-writer: the
// pool is capped at one connection and two concurrent extraction runs against
// the same file are not supported.
type DB struct {
	conn *sql.DB
	path string
}

func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sync database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sync database: %w", err)
	}

	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping sync database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return &DB{conn: conn, path: path}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Path() string {
	return d.path
}

func (d *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return d.conn.BeginTx(ctx, nil)
}

// RowCount reports the number of rows in a resource's main table; 0 when the
// table does not exist yet.
func (d *DB) RowCount(ctx context.Context, resourceName string) (int, error) {
	var count int
	err := d.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, resourceName)).Scan(&count)
	if err != nil {
		if tableMissing(err) {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

func tableMissing(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
