package payments

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

// RecordRequest is a payment received against a project, optionally
// attributed to one of its invoices
type RecordRequest struct {
	ProjectID string          `json:"project_id"`
	InvoiceID string          `json:"invoice_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Date      *time.Time      `json:"date,omitempty"`
	Reference string          `json:"reference,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

// Drift is one invoice whose ledger total disagrees with its paid amount
type Drift struct {
	InvoiceID     string          `json:"invoice_id"`
	InvoiceNumber string          `json:"invoice_number"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	LedgerAmount  decimal.Decimal `json:"ledger_amount"`
	Difference    decimal.Decimal `json:"difference"`
}

// Reconciliation compares a project's ledger with its invoices
type Reconciliation struct {
	ProjectID string `json:"project_id"`

	// LedgerTotal sums every payment, attributed or not
	LedgerTotal decimal.Decimal `json:"ledger_total"`

	// InvoicedPaid sums paid_amount over the project's invoices, deleted ones included
	InvoicedPaid decimal.Decimal `json:"invoiced_paid"`

	// Unattributed sums payments that name no invoice
	Unattributed decimal.Decimal `json:"unattributed"`

	Drift []Drift `json:"drift"`
}

// Balanced reports whether every invoice matches its ledger entries
func (r *Reconciliation) Balanced() bool {
	return len(r.Drift) == 0
}

// Ledger records payments. The ledger is informational: recording a payment
// never changes an invoice, and invoice paid amounts are moved only through
// status transitions.
type Ledger struct {
	payments storage.PaymentStore
	projects storage.ProjectReader
	invoices storage.InvoiceReader
	logger   *observability.Logger
	location *time.Location

	now   func() time.Time
	newID func() string
}

// NewLedger creates a payment ledger. Dates default to today in loc.
func NewLedger(payments storage.PaymentStore, projects storage.ProjectReader, invoices storage.InvoiceReader, loc *time.Location, logger *observability.Logger) *Ledger {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{
		payments: payments,
		projects: projects,
		invoices: invoices,
		logger:   logger.WithComponent("payments"),
		location: loc,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Record appends a payment to the ledger
func (l *Ledger) Record(ctx context.Context, req RecordRequest) (*billing.Payment, error) {
	const op = "RecordPayment"

	if !req.Amount.IsPositive() {
		return nil, billing.Errorf(billing.KindValidation, op, "payment amount must be positive")
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		return nil, billing.Errorf(billing.KindValidation, op, "payment method is required")
	}
	if err := l.requireProject(ctx, op, req.ProjectID); err != nil {
		return nil, err
	}

	if req.InvoiceID != "" {
		inv, err := l.invoices.GetInvoice(ctx, req.InvoiceID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, billing.Errorf(billing.KindInvoiceNotFound, op, "invoice %s not found", req.InvoiceID)
		}
		if err != nil {
			return nil, billing.Wrap(billing.KindStorageUnavailable, op, err)
		}
		if inv.ProjectID != req.ProjectID {
			return nil, billing.Errorf(billing.KindValidation, op, "invoice %s does not belong to project %s", req.InvoiceID, req.ProjectID)
		}
	}

	date := l.now().In(l.location)
	if req.Date != nil {
		date = req.Date.In(l.location)
	}
	p := &billing.Payment{
		ID:        l.newID(),
		ProjectID: req.ProjectID,
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount.Round(2),
		Method:    method,
		Date:      time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, l.location),
		Reference: strings.TrimSpace(req.Reference),
		Notes:     strings.TrimSpace(req.Notes),
	}
	if err := l.payments.CreatePayment(ctx, p); err != nil {
		return nil, billing.Wrap(billing.KindStorageUnavailable, op, err)
	}

	l.logger.WithProject(p.ProjectID).WithFields(map[string]interface{}{
		"payment_id": p.ID,
		"invoice_id": p.InvoiceID,
		"amount":     p.Amount.StringFixed(2),
	}).Info("Payment recorded")
	return p, nil
}

// List returns a project's payments ordered by date
func (l *Ledger) List(ctx context.Context, projectID string) ([]*billing.Payment, error) {
	const op = "ListPayments"
	if err := l.requireProject(ctx, op, projectID); err != nil {
		return nil, err
	}
	payments, err := l.payments.ListPayments(ctx, projectID)
	if err != nil {
		return nil, billing.Wrap(billing.KindStorageUnavailable, op, err)
	}
	return payments, nil
}

// Reconcile sums the ledger per invoice and reports every invoice whose
// paid amount differs. Nothing is corrected.
func (l *Ledger) Reconcile(ctx context.Context, projectID string) (*Reconciliation, error) {
	const op = "ReconcilePayments"
	payments, err := l.List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	invoices, err := l.invoices.ListInvoices(ctx, storage.InvoiceFilter{ProjectID: projectID, IncludeDeleted: true})
	if err != nil {
		return nil, billing.Wrap(billing.KindStorageUnavailable, op, err)
	}

	rec := &Reconciliation{
		ProjectID:    projectID,
		LedgerTotal:  decimal.Zero,
		InvoicedPaid: decimal.Zero,
		Unattributed: decimal.Zero,
		Drift:        []Drift{},
	}

	byInvoice := make(map[string]decimal.Decimal)
	for _, p := range payments {
		rec.LedgerTotal = rec.LedgerTotal.Add(p.Amount)
		if p.InvoiceID == "" {
			rec.Unattributed = rec.Unattributed.Add(p.Amount)
			continue
		}
		byInvoice[p.InvoiceID] = byInvoice[p.InvoiceID].Add(p.Amount)
	}

	for _, inv := range invoices {
		rec.InvoicedPaid = rec.InvoicedPaid.Add(inv.PaidAmount)
		ledger := byInvoice[inv.ID]
		delete(byInvoice, inv.ID)
		if ledger.Equal(inv.PaidAmount) {
			continue
		}
		rec.Drift = append(rec.Drift, Drift{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			PaidAmount:    inv.PaidAmount,
			LedgerAmount:  ledger,
			Difference:    inv.PaidAmount.Sub(ledger),
		})
	}
	// payments against invoices that no longer exist
	for id, ledger := range byInvoice {
		rec.Drift = append(rec.Drift, Drift{
			InvoiceID:    id,
			PaidAmount:   decimal.Zero,
			LedgerAmount: ledger,
			Difference:   ledger.Neg(),
		})
	}
	sort.Slice(rec.Drift, func(i, j int) bool {
		if rec.Drift[i].InvoiceNumber == rec.Drift[j].InvoiceNumber {
			return rec.Drift[i].InvoiceID < rec.Drift[j].InvoiceID
		}
		return rec.Drift[i].InvoiceNumber < rec.Drift[j].InvoiceNumber
	})

	if !rec.Balanced() {
		l.logger.WithProject(projectID).WithField("drifted_invoices", len(rec.Drift)).Warn("Payment ledger does not match invoices")
	}
	return rec, nil
}

func (l *Ledger) requireProject(ctx context.Context, op, projectID string) error {
	_, err := l.projects.GetProject(ctx, projectID)
	if errors.Is(err, storage.ErrNotFound) {
		return billing.Errorf(billing.KindProjectNotFound, op, "project %s not found", projectID)
	}
	if err != nil {
		return billing.Wrap(billing.KindStorageUnavailable, op, err)
	}
	return nil
}
