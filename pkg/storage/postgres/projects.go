package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

// GetProject implements storage.ProjectReader
func (s *Store) GetProject(ctx context.Context, id string) (*billing.Project, error) {
	query := `
		SELECT id, name, client_id, project_type, allocation_type, total_amount,
			currency, status, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	var (
		p              billing.Project
		projectType    string
		allocationType string
	)
	err := s.conns.Primary().QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.ClientID,
		&projectType,
		&allocationType,
		&p.TotalAmount,
		&p.Currency,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	p.ProjectType = billing.ProjectType(projectType)
	p.AllocationType = billing.AllocationType(allocationType)
	return &p, nil
}

// CommittedSubtotal implements storage.ProjectReader
func (s *Store) CommittedSubtotal(ctx context.Context, projectID, excludeInvoiceID string) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(subtotal), 0)
		FROM invoices
		WHERE project_id = $1
			AND id <> $2
			AND NOT is_deleted
			AND status <> 'cancelled'
	`

	var sum decimal.Decimal
	if err := s.conns.Primary().QueryRowContext(ctx, query, projectID, excludeInvoiceID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum committed subtotal: %w", err)
	}
	return sum, nil
}
