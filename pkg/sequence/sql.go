package sequence

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLCounter keeps the counter in the singleton settings row and increments
// it with a single upsert. Both PostgreSQL and SQLite lock the row for the
// duration of the statement, so concurrent callers never observe the same
// value. The row is created on first use.
type SQLCounter struct {
	db    *sql.DB
	query string
}

const upsertSequenceSQL = `INSERT INTO %[1]s (id, current_sequence, updated_at)
VALUES (1, 1, CURRENT_TIMESTAMP)
ON CONFLICT (id) DO UPDATE
SET current_sequence = %[1]s.current_sequence + 1, updated_at = CURRENT_TIMESTAMP
RETURNING current_sequence`

// SettingsSchema creates the singleton settings table
const SettingsSchema = `CREATE TABLE IF NOT EXISTS billing_settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	current_sequence BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// NewSQLCounter creates a counter backed by the billing_settings table
func NewSQLCounter(db *sql.DB) *SQLCounter {
	return &SQLCounter{
		db:    db,
		query: fmt.Sprintf(upsertSequenceSQL, "billing_settings"),
	}
}

// Next increments and returns the counter
func (c *SQLCounter) Next(ctx context.Context) (int64, error) {
	var v int64
	if err := c.db.QueryRowContext(ctx, c.query).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to increment invoice sequence: %w", err)
	}
	return v, nil
}

// Current returns the last issued value without incrementing
func (c *SQLCounter) Current(ctx context.Context) (int64, error) {
	var v int64
	err := c.db.QueryRowContext(ctx, "SELECT current_sequence FROM billing_settings WHERE id = 1").Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read invoice sequence: %w", err)
	}
	return v, nil
}
