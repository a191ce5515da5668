package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nik-6348/sss-projects-payments/pkg/async"
	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/notify"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

const (
	defaultMaxAttempts   = 3
	defaultNotifyTimeout = 30 * time.Second
	defaultListLimit     = 50
	maxListLimit         = 500
)

// errNoChange short-circuits a mutation that would not alter the invoice
var errNoChange = errors.New("no change")

// NumberIssuer hands out unique invoice numbers
type NumberIssuer interface {
	NextInvoiceNumber(ctx context.Context) (string, error)
}

// Notifier delivers client notifications for status changes
type Notifier interface {
	NotifyStatusChange(ctx context.Context, invoiceID string, status billing.InvoiceStatus) (*notify.Result, error)
}

// Deps wires a Manager to its collaborators. Notifier, Logger and Metrics
// are optional.
type Deps struct {
	Projects storage.ProjectReader
	Invoices storage.InvoiceStore
	Numbers  NumberIssuer
	Notifier Notifier
	Settings billing.Settings
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	// MaxAttempts bounds optimistic write retries per operation
	MaxAttempts int

	// NotifyTimeout bounds each detached notification
	NotifyTimeout time.Duration
}

// Manager owns every mutation of an invoice: issuing, editing, status
// transitions, deletion, restore and duplication. Each write is conditional
// on the version that was read, so concurrent edits of one invoice never
// silently overwrite each other.
type Manager struct {
	projects      storage.ProjectReader
	invoices      storage.InvoiceStore
	numbers       NumberIssuer
	notifier      Notifier
	settings      billing.Settings
	logger        *observability.Logger
	metrics       *observability.Metrics
	maxAttempts   int
	notifyTimeout time.Duration

	now      func() time.Time
	newID    func() string
	runAsync func(ctx context.Context, taskName string, fn func(context.Context) error)
}

// NewManager creates a Manager
func NewManager(deps Deps) *Manager {
	settings := deps.Settings
	defaults := billing.DefaultSettings()
	if settings.Location == nil {
		settings.Location = defaults.Location
	}
	if settings.DefaultDueDays <= 0 {
		settings.DefaultDueDays = defaults.DefaultDueDays
	}

	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	m := &Manager{
		projects:      deps.Projects,
		invoices:      deps.Invoices,
		numbers:       deps.Numbers,
		notifier:      deps.Notifier,
		settings:      settings,
		logger:        logger,
		metrics:       deps.Metrics,
		maxAttempts:   deps.MaxAttempts,
		notifyTimeout: deps.NotifyTimeout,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = defaultMaxAttempts
	}
	if m.notifyTimeout <= 0 {
		m.notifyTimeout = defaultNotifyTimeout
	}
	m.runAsync = func(ctx context.Context, taskName string, fn func(context.Context) error) {
		async.SafeGo(ctx, m.logger, m.notifyTimeout, taskName, fn)
	}
	return m
}

// Create validates the project, checks the budget, takes a number and
// persists a new draft. The number is taken last so a rejected request
// never consumes one.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (inv *billing.Invoice, err error) {
	const op = "CreateInvoice"
	ctx, span := observability.StartSpan(ctx, "lifecycle."+op, attribute.String("project_id", req.ProjectID))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, billing.Errorf(billing.KindValidation, op, "project_id is required")
	}
	if err := billing.ValidateLineItems(req.Services); err != nil {
		return nil, err
	}

	gstPct := m.settings.DefaultGSTPercentage
	if req.GSTPercentage != nil {
		gstPct = *req.GSTPercentage
	}
	if err := billing.ValidateGSTPercentage(gstPct); err != nil {
		return nil, err
	}
	includeGST := true
	if req.IncludeGST != nil {
		includeGST = *req.IncludeGST
	}

	project, err := m.getProject(ctx, op, req.ProjectID)
	if err != nil {
		return nil, err
	}

	totals := billing.ComputeTotals(req.Services, gstPct, includeGST)
	if err := m.checkBudget(ctx, op, project, "", totals.Subtotal); err != nil {
		return nil, err
	}

	issue := m.today()
	if req.IssueDate != nil {
		issue = *req.IssueDate
	}
	due := issue.AddDate(0, 0, m.settings.DefaultDueDays)
	if req.DueDate != nil {
		due = *req.DueDate
	}
	if due.Before(issue) {
		return nil, billing.Errorf(billing.KindValidation, op, "due date must not be before the issue date")
	}

	currency := req.Currency
	if currency == "" {
		currency = project.Currency
	}

	inv = &billing.Invoice{
		ProjectID:      project.ID,
		Services:       billing.CloneLineItems(req.Services),
		Subtotal:       totals.Subtotal,
		GSTPercentage:  gstPct,
		GSTAmount:      totals.GSTAmount,
		IncludeGST:     includeGST,
		TotalAmount:    totals.TotalAmount,
		BalanceDue:     totals.TotalAmount,
		Currency:       currency,
		Status:         billing.InvoiceStatusDraft,
		IssueDate:      issue,
		DueDate:        due,
		StatusHistory:  []billing.StatusEvent{},
		PaymentMethod:  req.PaymentMethod,
		BankAccountID:  req.BankAccountID,
		PaymentDetails: req.PaymentDetails,
		Notes:          req.Notes,
	}
	if err := m.issue(ctx, op, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Update patches a draft. When services or tax inputs change the totals are
// recomputed and the budget is re-checked without the invoice's own prior
// commitment.
func (m *Manager) Update(ctx context.Context, id string, req UpdateRequest) (inv *billing.Invoice, err error) {
	const op = "UpdateInvoice"
	ctx, span := observability.StartSpan(ctx, "lifecycle."+op, attribute.String("invoice_id", id))
	defer func() { endSpan(span, err) }()

	if req.Services != nil {
		if err := billing.ValidateLineItems(req.Services); err != nil {
			return nil, err
		}
	}
	if req.GSTPercentage != nil {
		if err := billing.ValidateGSTPercentage(*req.GSTPercentage); err != nil {
			return nil, err
		}
	}

	inv, err = m.mutate(ctx, op, id, func(inv *billing.Invoice) error {
		if inv.Status != billing.InvoiceStatusDraft || inv.IsDeleted {
			return billing.Errorf(billing.KindInvalidState, op, "invoice %s is %s, only drafts can be edited", inv.InvoiceNumber, inv.Status)
		}

		if req.Services != nil {
			inv.Services = billing.CloneLineItems(req.Services)
		}
		if req.GSTPercentage != nil {
			inv.GSTPercentage = *req.GSTPercentage
		}
		if req.IncludeGST != nil {
			inv.IncludeGST = *req.IncludeGST
		}
		if req.changesTotals() {
			totals := billing.ComputeTotals(inv.Services, inv.GSTPercentage, inv.IncludeGST)
			project, err := m.getProject(ctx, op, inv.ProjectID)
			if err != nil {
				return err
			}
			if err := m.checkBudget(ctx, op, project, inv.ID, totals.Subtotal); err != nil {
				return err
			}
			inv.Subtotal = totals.Subtotal
			inv.GSTAmount = totals.GSTAmount
			inv.TotalAmount = totals.TotalAmount
			inv.BalanceDue = remainingBalance(inv.TotalAmount, inv.PaidAmount)
		}

		if req.IssueDate != nil {
			inv.IssueDate = *req.IssueDate
		}
		if req.DueDate != nil {
			inv.DueDate = *req.DueDate
		}
		if inv.DueDate.Before(inv.IssueDate) {
			return billing.Errorf(billing.KindValidation, op, "due date must not be before the issue date")
		}
		if req.Currency != nil {
			inv.Currency = *req.Currency
		}
		if req.PaymentMethod != nil {
			inv.PaymentMethod = *req.PaymentMethod
		}
		if req.BankAccountID != nil {
			inv.BankAccountID = *req.BankAccountID
		}
		if req.PaymentDetails != nil {
			inv.PaymentDetails = *req.PaymentDetails
		}
		if req.Notes != nil {
			inv.Notes = *req.Notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithInvoice(inv.ID, inv.InvoiceNumber).Info("Invoice updated")
	return inv, nil
}

// TransitionStatus moves an invoice to req.Status and appends a history
// entry. Partial payments that settle the balance escalate to paid. Leaving
// cancelled re-checks the project budget.
// Entering cancelled, overdue or paid fires a detached notification whose
// outcome never affects the result.
func (m *Manager) TransitionStatus(ctx context.Context, id string, req TransitionRequest) (inv *billing.Invoice, err error) {
	const op = "TransitionStatus"
	ctx, span := observability.StartSpan(ctx, "lifecycle."+op,
		attribute.String("invoice_id", id),
		attribute.String("status", string(req.Status)),
	)
	defer func() { endSpan(span, err) }()

	if !req.Status.Valid() {
		return nil, billing.Errorf(billing.KindInvalidStatus, op, "unknown invoice status %q", req.Status)
	}
	if req.Status == billing.InvoiceStatusPartial && (req.PaidAmountDelta == nil || !req.PaidAmountDelta.IsPositive()) {
		return nil, billing.Errorf(billing.KindValidation, op, "a positive paid_amount_delta is required for partial payments")
	}

	var from, to billing.InvoiceStatus
	inv, err = m.mutate(ctx, op, id, func(inv *billing.Invoice) error {
		if req.IfStatus != "" && (inv.Status != req.IfStatus || inv.IsDeleted) {
			return billing.Errorf(billing.KindInvalidState, op, "invoice %s is no longer %s", inv.InvoiceNumber, req.IfStatus)
		}
		now := m.now()
		from = inv.Status
		to = req.Status

		// a cancelled invoice is outside the commitment; reviving it must fit
		if from == billing.InvoiceStatusCancelled && to != billing.InvoiceStatusCancelled && !inv.IsDeleted {
			project, err := m.getProject(ctx, op, inv.ProjectID)
			if err != nil {
				return err
			}
			if err := m.checkBudget(ctx, op, project, inv.ID, inv.Subtotal); err != nil {
				return err
			}
		}

		switch req.Status {
		case billing.InvoiceStatusPaid:
			settle(inv, req.PaidDate, now)
		case billing.InvoiceStatusPartial:
			inv.PaidAmount = inv.PaidAmount.Add(*req.PaidAmountDelta)
			inv.BalanceDue = inv.TotalAmount.Sub(inv.PaidAmount)
			if inv.BalanceDue.IsPositive() {
				inv.Status = billing.InvoiceStatusPartial
			} else {
				to = billing.InvoiceStatusPaid
				inv.Status = billing.InvoiceStatusPaid
				inv.BalanceDue = decimal.Zero
				inv.PaidDate = paidDate(req.PaidDate, now)
			}
		default:
			inv.Status = req.Status
		}

		inv.AppendStatus(to, req.Remark, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.metrics.StatusTransition(string(from), string(to))
	m.logger.WithInvoice(inv.ID, inv.InvoiceNumber).
		WithFields(map[string]interface{}{"from": from, "to": to}).
		Info("Invoice status changed")

	if to.Notifies() {
		m.notify(ctx, inv, to)
	}
	return inv, nil
}

// settle marks the invoice fully paid
func settle(inv *billing.Invoice, override *time.Time, now time.Time) {
	inv.Status = billing.InvoiceStatusPaid
	inv.PaidAmount = inv.TotalAmount
	inv.BalanceDue = decimal.Zero
	inv.PaidDate = paidDate(override, now)
}

// Delete removes a draft outright. Any other invoice needs a remark and is
// soft-deleted: it stays readable but no longer counts against the budget.
func (m *Manager) Delete(ctx context.Context, id, remark string) (res *DeleteResult, err error) {
	const op = "DeleteInvoice"
	ctx, span := observability.StartSpan(ctx, "lifecycle."+op, attribute.String("invoice_id", id))
	defer func() { endSpan(span, err) }()

	remark = strings.TrimSpace(remark)

	err = m.withRetry(op, func() error {
		inv, err := m.invoices.GetInvoice(ctx, id)
		if err != nil {
			return err
		}

		if inv.Status == billing.InvoiceStatusDraft && !inv.IsDeleted {
			if err := m.invoices.DeleteInvoice(ctx, id, inv.Version); err != nil {
				return err
			}
			res = &DeleteResult{HardDeleted: true, Invoice: inv}
			return nil
		}

		if remark == "" {
			return billing.Errorf(billing.KindRemarkRequired, op, "a remark is required to delete %s invoice %s", inv.Status, inv.InvoiceNumber)
		}
		if inv.IsDeleted {
			res = &DeleteResult{Invoice: inv}
			return nil
		}

		expected := inv.Version
		inv.IsDeleted = true
		inv.DeletionRemark = remark
		if err := m.invoices.UpdateInvoice(ctx, inv, expected); err != nil {
			return err
		}
		res = &DeleteResult{Invoice: inv}
		return nil
	})
	if err != nil {
		return nil, m.invoiceErr(op, err)
	}

	logger := m.logger.WithInvoice(res.Invoice.ID, res.Invoice.InvoiceNumber)
	if res.HardDeleted {
		logger.Info("Draft invoice deleted")
	} else {
		logger.WithField("remark", remark).Info("Invoice soft-deleted")
	}
	return res, nil
}

// Restore clears the deleted flag. The deletion remark is kept and the
// budget is not re-validated, so a restore can push a project past its
// ceiling. Restoring a live invoice is a no-op.
func (m *Manager) Restore(ctx context.Context, id string) (inv *billing.Invoice, err error) {
	const op = "RestoreInvoice"
	ctx, span := observability.StartSpan(ctx, "lifecycle."+op, attribute.String("invoice_id", id))
	defer func() { endSpan(span, err) }()

	inv, err = m.mutate(ctx, op, id, func(inv *billing.Invoice) error {
		if !inv.IsDeleted {
			return errNoChange
		}
		inv.IsDeleted = false
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithInvoice(inv.ID, inv.InvoiceNumber).Info("Invoice restored")
	return inv, nil
}

// Duplicate issues a new draft with the source's services and commercial
// terms, a fresh number and no payments. The budget is checked with the
// source's subtotal.
func (m *Manager) Duplicate(ctx context.Context, id string) (inv *billing.Invoice, err error) {
	const op = "DuplicateInvoice"
	ctx, span := observability.StartSpan(ctx, "lifecycle."+op, attribute.String("invoice_id", id))
	defer func() { endSpan(span, err) }()

	src, err := m.invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, m.invoiceErr(op, err)
	}
	project, err := m.getProject(ctx, op, src.ProjectID)
	if err != nil {
		return nil, err
	}

	totals := billing.ComputeTotals(src.Services, src.GSTPercentage, src.IncludeGST)
	if err := m.checkBudget(ctx, op, project, "", totals.Subtotal); err != nil {
		return nil, err
	}

	issue := m.today()
	term := int(src.DueDate.Sub(src.IssueDate).Hours() / 24)
	if term <= 0 {
		term = m.settings.DefaultDueDays
	}

	inv = &billing.Invoice{
		ProjectID:      src.ProjectID,
		Services:       billing.CloneLineItems(src.Services),
		Subtotal:       totals.Subtotal,
		GSTPercentage:  src.GSTPercentage,
		GSTAmount:      totals.GSTAmount,
		IncludeGST:     src.IncludeGST,
		TotalAmount:    totals.TotalAmount,
		BalanceDue:     totals.TotalAmount,
		Currency:       src.Currency,
		Status:         billing.InvoiceStatusDraft,
		IssueDate:      issue,
		DueDate:        issue.AddDate(0, 0, term),
		PaymentMethod:  src.PaymentMethod,
		BankAccountID:  src.BankAccountID,
		PaymentDetails: src.PaymentDetails,
		Notes:          src.Notes,
	}
	inv.AppendStatus(billing.InvoiceStatusDraft, "Duplicated from "+src.InvoiceNumber, m.now())

	if err := m.issue(ctx, op, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Get returns one invoice, soft-deleted or not
func (m *Manager) Get(ctx context.Context, id string) (*billing.Invoice, error) {
	inv, err := m.invoices.GetInvoice(ctx, id)
	if err != nil {
		return nil, m.invoiceErr("GetInvoice", err)
	}
	return inv, nil
}

// List returns invoices newest first. Soft-deleted invoices are only
// included when the filter asks for them.
func (m *Manager) List(ctx context.Context, filter storage.InvoiceFilter) ([]*billing.Invoice, error) {
	const op = "ListInvoices"
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, billing.Errorf(billing.KindInvalidStatus, op, "unknown invoice status %q", filter.Status)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	invoices, err := m.invoices.ListInvoices(ctx, filter)
	if err != nil {
		return nil, billing.Wrap(billing.KindStorageUnavailable, op, err)
	}
	return invoices, nil
}

// ProjectBudget summarises how much of a project's budget is committed
func (m *Manager) ProjectBudget(ctx context.Context, projectID string) (*billing.ProjectBudget, error) {
	const op = "ProjectBudget"
	project, err := m.getProject(ctx, op, projectID)
	if err != nil {
		return nil, err
	}
	committed, err := m.projects.CommittedSubtotal(ctx, projectID, "")
	if err != nil {
		return nil, billing.Wrap(billing.KindStorageUnavailable, op, err)
	}
	return &billing.ProjectBudget{
		ProjectID: projectID,
		Total:     project.TotalAmount,
		Committed: committed,
		Remaining: billing.Remaining(project.TotalAmount, committed),
	}, nil
}

// issue takes a number and inserts inv as a new invoice
func (m *Manager) issue(ctx context.Context, op string, inv *billing.Invoice) error {
	if m.numbers == nil {
		return billing.Errorf(billing.KindSequenceUnavailable, op, "no invoice number issuer configured")
	}
	number, err := m.numbers.NextInvoiceNumber(ctx)
	m.metrics.SequenceResult(err)
	if err != nil {
		if billing.KindOf(err) == "" {
			return billing.Wrap(billing.KindSequenceUnavailable, op, err)
		}
		return err
	}

	inv.ID = m.newID()
	inv.InvoiceNumber = number
	if err := m.invoices.CreateInvoice(ctx, inv); err != nil {
		m.logger.WithInvoice(inv.ID, number).WithError(err).Error("Failed to persist invoice, number is burned")
		return billing.Wrap(billing.KindStorageUnavailable, op, err)
	}

	m.metrics.InvoiceCreated()
	m.logger.WithInvoice(inv.ID, number).WithProject(inv.ProjectID).
		WithField("total", inv.TotalAmount.StringFixed(2)).
		Info("Invoice issued")
	return nil
}

// mutate reads the invoice, applies fn and writes it back conditionally on
// the version read. Lost races are retried from a fresh read.
func (m *Manager) mutate(ctx context.Context, op, id string, fn func(inv *billing.Invoice) error) (*billing.Invoice, error) {
	var out *billing.Invoice
	err := m.withRetry(op, func() error {
		inv, err := m.invoices.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		expected := inv.Version

		if err := fn(inv); err != nil {
			if errors.Is(err, errNoChange) {
				out = inv
				return nil
			}
			return err
		}

		if err := m.invoices.UpdateInvoice(ctx, inv, expected); err != nil {
			return err
		}
		out = inv
		return nil
	})
	if err != nil {
		return nil, m.invoiceErr(op, err)
	}
	return out, nil
}

// withRetry runs fn until it succeeds, fails with anything other than a
// version conflict, or exhausts the attempt budget
func (m *Manager) withRetry(op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, storage.ErrVersionConflict) {
			return err
		}

		m.metrics.VersionConflict(op)
		if attempt >= m.maxAttempts {
			return billing.Wrap(billing.KindConflict, op, fmt.Errorf("gave up after %d attempts: %w", attempt, err))
		}
		m.logger.WithField("operation", op).WithField("attempt", attempt).Debug("Version conflict, retrying")
	}
}

func (m *Manager) getProject(ctx context.Context, op, id string) (*billing.Project, error) {
	project, err := m.projects.GetProject(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, billing.Errorf(billing.KindProjectNotFound, op, "project %s not found", id)
	}
	if err != nil {
		return nil, billing.Wrap(billing.KindStorageUnavailable, op, err)
	}
	return project, nil
}

// checkBudget rejects candidate when it does not fit in the project's
// remaining budget. The commitment read is not atomic with the later write.
func (m *Manager) checkBudget(ctx context.Context, op string, project *billing.Project, excludeInvoiceID string, candidate decimal.Decimal) error {
	committed, err := m.projects.CommittedSubtotal(ctx, project.ID, excludeInvoiceID)
	if err != nil {
		return billing.Wrap(billing.KindStorageUnavailable, op, err)
	}
	if err := billing.CheckBudget(project.TotalAmount, committed, candidate); err != nil {
		m.metrics.BudgetRejected()
		remaining := billing.Remaining(project.TotalAmount, committed)
		m.logger.WithProject(project.ID).WithFields(map[string]interface{}{
			"candidate": candidate.StringFixed(2),
			"remaining": remaining.StringFixed(2),
		}).Info("Invoice rejected, project budget exceeded")
		return billing.BudgetExceeded(op, remaining)
	}
	return nil
}

// invoiceErr maps storage failures onto billing kinds. Billing errors pass
// through unchanged.
func (m *Manager) invoiceErr(op string, err error) error {
	if billing.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, storage.ErrNotFound) {
		return billing.Wrap(billing.KindInvoiceNotFound, op, err)
	}
	return billing.Wrap(billing.KindStorageUnavailable, op, err)
}

// notify runs the notifier detached from the caller's cancellation
func (m *Manager) notify(ctx context.Context, inv *billing.Invoice, status billing.InvoiceStatus) {
	if m.notifier == nil {
		return
	}
	invoiceID := inv.ID
	logger := m.logger.WithInvoice(inv.ID, inv.InvoiceNumber).WithField("status", status)

	m.runAsync(context.WithoutCancel(ctx), "invoice status notification", func(ctx context.Context) error {
		result, err := m.notifier.NotifyStatusChange(ctx, invoiceID, status)
		if err != nil {
			return fmt.Errorf("failed to notify for invoice %s: %w", invoiceID, err)
		}
		for _, failed := range result.Failed() {
			logger.WithField("channel", failed.Channel).WithError(failed.Err()).Warn("Notification channel failed")
		}
		return nil
	})
}

// today is midnight of the current day in the configured timezone
func (m *Manager) today() time.Time {
	now := m.now().In(m.settings.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, m.settings.Location)
}

func paidDate(override *time.Time, now time.Time) *time.Time {
	if override != nil {
		d := *override
		return &d
	}
	return &now
}

func remainingBalance(total, paid decimal.Decimal) decimal.Decimal {
	balance := total.Sub(paid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

func endSpan(span trace.Span, err error) {
	if kind := billing.KindOf(err); kind != "" {
		span.SetAttributes(attribute.String("error.kind", string(kind)))
	}
	observability.EndSpan(span, err)
}
