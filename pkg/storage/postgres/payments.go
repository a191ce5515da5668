package postgres

import (
	"context"
	"fmt"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
)

// CreatePayment implements storage.PaymentStore
func (s *Store) CreatePayment(ctx context.Context, p *billing.Payment) error {
	query := `
		INSERT INTO payments (id, project_id, invoice_id, amount, method, payment_date, reference, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := s.conns.Primary().QueryRowContext(ctx, query,
		p.ID,
		p.ProjectID,
		p.InvoiceID,
		p.Amount,
		p.Method,
		p.Date,
		p.Reference,
		p.Notes,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// ListPayments implements storage.PaymentStore
func (s *Store) ListPayments(ctx context.Context, projectID string) ([]*billing.Payment, error) {
	query := `
		SELECT id, project_id, invoice_id, amount, method, payment_date, reference, notes, created_at
		FROM payments
		WHERE project_id = $1
		ORDER BY payment_date, created_at
	`

	rows, err := s.conns.Replica().QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]*billing.Payment, 0)
	for rows.Next() {
		var p billing.Payment
		err := rows.Scan(&p.ID, &p.ProjectID, &p.InvoiceID, &p.Amount, &p.Method, &p.Date, &p.Reference, &p.Notes, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}
