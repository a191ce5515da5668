package sequence

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteCounter is an SQLCounter on an embedded SQLite file, for single-node
// deployments without Postgres or Redis
type SQLiteCounter struct {
	*SQLCounter
	db *sql.DB
}

// OpenSQLiteCounter opens (creating if needed) the SQLite database at path
func OpenSQLiteCounter(ctx context.Context, path string) (*SQLiteCounter, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// One writer connection serializes the upserts inside this process; the
	// busy timeout covers other processes sharing the file.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, SettingsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	return &SQLiteCounter{SQLCounter: NewSQLCounter(db), db: db}, nil
}

// Close closes the underlying database
func (c *SQLiteCounter) Close() error {
	return c.db.Close()
}
