package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"

	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

var tracer = otel.Tracer("github.com/nik-6348/sss-projects-payments/pkg/storage/postgres")

//go:embed schema.sql
var schemaSQL string

// Store implements storage.Store on PostgreSQL with raw SQL
type Store struct {
	conns *ConnectionManager
}

var _ storage.Store = (*Store)(nil)

// NewStore creates a store over an established connection manager
func NewStore(conns *ConnectionManager) *Store {
	return &Store{conns: conns}
}

// Open connects to PostgreSQL using the storage config
func Open(ctx context.Context, cfg storage.Config, logger *observability.Logger) (*Store, error) {
	conns, err := NewConnectionManager(ctx, ConnectionConfigFrom(cfg), logger)
	if err != nil {
		return nil, err
	}
	return NewStore(conns), nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// DB returns the primary handle, shared with the SQL sequence counter and
// the health checker
func (s *Store) DB() *sql.DB {
	return s.conns.Primary()
}

// Connections returns the underlying connection manager
func (s *Store) Connections() *ConnectionManager {
	return s.conns
}

// HealthCheck implements storage.Store
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.conns.HealthCheck(ctx); err != nil {
		return fmt.Errorf("postgres unhealthy: %w", err)
	}
	return nil
}

// Close implements storage.Store
func (s *Store) Close() error {
	return s.conns.Close()
}

// exists distinguishes a missing row from a version mismatch after a
// conditional write touched nothing
func (s *Store) exists(ctx context.Context, table, id string) error {
	var one int
	err := s.conns.Primary().QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = $1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("failed to check %s existence: %w", table, err)
	}
	return storage.ErrVersionConflict
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
