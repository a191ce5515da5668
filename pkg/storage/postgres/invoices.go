package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

const invoiceColumns = `id, invoice_number, project_id, services, subtotal, gst_percentage,
	gst_amount, include_gst, total_amount, currency, status, paid_amount, balance_due,
	paid_date, issue_date, due_date, status_history, is_deleted, deletion_remark,
	payment_method, bank_account_id, payment_details, notes, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*billing.Invoice, error) {
	var (
		inv      billing.Invoice
		services []byte
		history  []byte
		paidDate sql.NullTime
		status   string
	)
	err := row.Scan(
		&inv.ID,
		&inv.InvoiceNumber,
		&inv.ProjectID,
		&services,
		&inv.Subtotal,
		&inv.GSTPercentage,
		&inv.GSTAmount,
		&inv.IncludeGST,
		&inv.TotalAmount,
		&inv.Currency,
		&status,
		&inv.PaidAmount,
		&inv.BalanceDue,
		&paidDate,
		&inv.IssueDate,
		&inv.DueDate,
		&history,
		&inv.IsDeleted,
		&inv.DeletionRemark,
		&inv.PaymentMethod,
		&inv.BankAccountID,
		&inv.PaymentDetails,
		&inv.Notes,
		&inv.Version,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.Status = billing.InvoiceStatus(status)
	if paidDate.Valid {
		t := paidDate.Time
		inv.PaidDate = &t
	}
	if err := json.Unmarshal(services, &inv.Services); err != nil {
		return nil, fmt.Errorf("failed to decode services of invoice %s: %w", inv.ID, err)
	}
	if err := json.Unmarshal(history, &inv.StatusHistory); err != nil {
		return nil, fmt.Errorf("failed to decode status history of invoice %s: %w", inv.ID, err)
	}
	return &inv, nil
}

// JSONB parameters are passed as strings; lib/pq would send []byte as bytea
func encodeInvoiceJSON(inv *billing.Invoice) (services, history string, err error) {
	items := inv.Services
	if items == nil {
		items = []billing.LineItem{}
	}
	rawServices, err := json.Marshal(items)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode services: %w", err)
	}
	events := inv.StatusHistory
	if events == nil {
		events = []billing.StatusEvent{}
	}
	rawHistory, err := json.Marshal(events)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode status history: %w", err)
	}
	return string(rawServices), string(rawHistory), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// GetInvoice implements storage.InvoiceReader
func (s *Store) GetInvoice(ctx context.Context, id string) (*billing.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	inv, err := scanInvoice(s.conns.Primary().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// ListInvoices implements storage.InvoiceReader
func (s *Store) ListInvoices(ctx context.Context, filter storage.InvoiceFilter) ([]*billing.Invoice, error) {
	var (
		where []string
		args  []any
	)
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		where = append(where, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.IncludeDeleted {
		where = append(where, "NOT is_deleted")
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, invoice_number DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	return s.queryInvoices(ctx, s.conns.Replica(), query, args...)
}

// ListOverdueCandidates implements storage.InvoiceReader
func (s *Store) ListOverdueCandidates(ctx context.Context, before time.Time, limit, offset int) ([]*billing.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices
		WHERE status = 'sent' AND NOT is_deleted AND due_date < $1
		ORDER BY due_date, id
		LIMIT $2 OFFSET $3`

	return s.queryInvoices(ctx, s.conns.Replica(), query, before, limit, offset)
}

func (s *Store) queryInvoices(ctx context.Context, db *sql.DB, query string, args ...any) ([]*billing.Invoice, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	invoices := make([]*billing.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invoices: %w", err)
	}
	return invoices, nil
}

// CreateInvoice implements storage.InvoiceWriter
func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	ctx, span := tracer.Start(ctx, "Postgres.CreateInvoice",
		trace.WithAttributes(
			attribute.String("invoice.id", inv.ID),
			attribute.String("invoice.number", inv.InvoiceNumber),
		),
	)
	defer span.End()

	services, history, err := encodeInvoiceJSON(inv)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO invoices (
			id, invoice_number, project_id, services, subtotal, gst_percentage,
			gst_amount, include_gst, total_amount, currency, status, paid_amount,
			balance_due, paid_date, issue_date, due_date, status_history, is_deleted,
			deletion_remark, payment_method, bank_account_id, payment_details, notes, version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, 1)
		RETURNING version, created_at, updated_at
	`

	err = s.conns.Primary().QueryRowContext(ctx, query,
		inv.ID,
		inv.InvoiceNumber,
		inv.ProjectID,
		services,
		inv.Subtotal,
		inv.GSTPercentage,
		inv.GSTAmount,
		inv.IncludeGST,
		inv.TotalAmount,
		inv.Currency,
		string(inv.Status),
		inv.PaidAmount,
		inv.BalanceDue,
		nullTime(inv.PaidDate),
		inv.IssueDate,
		inv.DueDate,
		history,
		inv.IsDeleted,
		inv.DeletionRemark,
		inv.PaymentMethod,
		inv.BankAccountID,
		inv.PaymentDetails,
		inv.Notes,
	).Scan(&inv.Version, &inv.CreatedAt, &inv.UpdatedAt)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to insert invoice")
		if isUniqueViolation(err) {
			return fmt.Errorf("invoice %s already exists: %w", inv.InvoiceNumber, err)
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// UpdateInvoice implements storage.InvoiceWriter
func (s *Store) UpdateInvoice(ctx context.Context, inv *billing.Invoice, expectedVersion int64) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateInvoice",
		trace.WithAttributes(
			attribute.String("invoice.id", inv.ID),
			attribute.Int64("invoice.expected_version", expectedVersion),
		),
	)
	defer span.End()

	services, history, err := encodeInvoiceJSON(inv)
	if err != nil {
		return err
	}

	query := `
		UPDATE invoices SET
			services = $3, subtotal = $4, gst_percentage = $5, gst_amount = $6,
			include_gst = $7, total_amount = $8, currency = $9, status = $10,
			paid_amount = $11, balance_due = $12, paid_date = $13, issue_date = $14,
			due_date = $15, status_history = $16, is_deleted = $17, deletion_remark = $18,
			payment_method = $19, bank_account_id = $20, payment_details = $21, notes = $22,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2
		RETURNING version, created_at, updated_at
	`

	err = s.conns.Primary().QueryRowContext(ctx, query,
		inv.ID,
		expectedVersion,
		services,
		inv.Subtotal,
		inv.GSTPercentage,
		inv.GSTAmount,
		inv.IncludeGST,
		inv.TotalAmount,
		inv.Currency,
		string(inv.Status),
		inv.PaidAmount,
		inv.BalanceDue,
		nullTime(inv.PaidDate),
		inv.IssueDate,
		inv.DueDate,
		history,
		inv.IsDeleted,
		inv.DeletionRemark,
		inv.PaymentMethod,
		inv.BankAccountID,
		inv.PaymentDetails,
		inv.Notes,
	).Scan(&inv.Version, &inv.CreatedAt, &inv.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		err = s.exists(ctx, "invoices", inv.ID)
		span.SetAttributes(attribute.Bool("invoice.conflict", errors.Is(err, storage.ErrVersionConflict)))
		return err
	} else if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update invoice")
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	return nil
}

// DeleteInvoice implements storage.InvoiceWriter
func (s *Store) DeleteInvoice(ctx context.Context, id string, expectedVersion int64) error {
	result, err := s.conns.Primary().ExecContext(ctx,
		"DELETE FROM invoices WHERE id = $1 AND version = $2", id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return s.exists(ctx, "invoices", id)
	}
	return nil
}
