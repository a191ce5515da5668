package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/notify"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/sequence"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
	"github.com/nik-6348/sss-projects-payments/pkg/storage/memory"
)

var testNow = time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)

type stubNumbers struct {
	n   atomic.Int64
	err error
}

func (s *stubNumbers) NextInvoiceNumber(ctx context.Context) (string, error) {
	if s.err != nil {
		return "", billing.Wrap(billing.KindSequenceUnavailable, "NextInvoiceNumber", s.err)
	}
	return fmt.Sprintf("INV-2025-26/%04d", s.n.Add(1)), nil
}

type notifyCall struct {
	invoiceID string
	status    billing.InvoiceStatus
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

func (f *fakeNotifier) NotifyStatusChange(ctx context.Context, invoiceID string, status billing.InvoiceStatus) (*notify.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{invoiceID, status})
	if f.err != nil {
		return nil, f.err
	}
	return &notify.Result{InvoiceID: invoiceID, Status: status}, nil
}

func (f *fakeNotifier) Calls() []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifyCall(nil), f.calls...)
}

// conflictStore fails the first n conditional writes with a version conflict
type conflictStore struct {
	*memory.Store
	remaining atomic.Int32
}

func (c *conflictStore) UpdateInvoice(ctx context.Context, inv *billing.Invoice, expectedVersion int64) error {
	if c.remaining.Add(-1) >= 0 {
		return storage.ErrVersionConflict
	}
	return c.Store.UpdateInvoice(ctx, inv, expectedVersion)
}

type testEnv struct {
	manager  *Manager
	store    *memory.Store
	numbers  *stubNumbers
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T, opts ...func(*Deps)) *testEnv {
	t.Helper()
	store := memory.New()
	store.PutProject(billing.Project{
		ID:          "p1",
		Name:        "Website",
		ClientID:    "c1",
		ProjectType: billing.ProjectTypeFixedContract,
		TotalAmount: decimal.NewFromInt(10000),
		Currency:    "INR",
	})

	env := &testEnv{store: store, numbers: &stubNumbers{}, notifier: &fakeNotifier{}}
	deps := Deps{
		Projects: store,
		Invoices: store,
		Numbers:  env.numbers,
		Notifier: env.notifier,
		Settings: billing.DefaultSettings(),
		Logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	m := NewManager(deps)
	m.now = func() time.Time { return testNow }
	var ids atomic.Int64
	m.newID = func() string { return fmt.Sprintf("inv-%d", ids.Add(1)) }
	m.runAsync = func(ctx context.Context, taskName string, fn func(context.Context) error) {
		_ = fn(ctx)
	}
	env.manager = m
	return env
}

func services(amounts ...int64) []billing.LineItem {
	out := make([]billing.LineItem, len(amounts))
	for i, a := range amounts {
		out[i] = billing.LineItem{Description: fmt.Sprintf("Service %d", i+1), Amount: decimal.NewFromInt(a)}
	}
	return out
}

func (e *testEnv) create(t *testing.T, amounts ...int64) *billing.Invoice {
	t.Helper()
	inv, err := e.manager.Create(context.Background(), CreateRequest{ProjectID: "p1", Services: services(amounts...)})
	require.NoError(t, err)
	return inv
}

func (e *testEnv) transition(t *testing.T, id string, status billing.InvoiceStatus) *billing.Invoice {
	t.Helper()
	inv, err := e.manager.TransitionStatus(context.Background(), id, TransitionRequest{Status: status})
	require.NoError(t, err)
	return inv
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func assertKind(t *testing.T, err error, kind billing.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, billing.KindOf(err), "unexpected error: %v", err)
}

func TestCreate_Draft(t *testing.T) {
	env := newTestEnv(t)

	inv := env.create(t, 4000, 2000)

	assert.Equal(t, "inv-1", inv.ID)
	assert.Equal(t, "INV-2025-26/0001", inv.InvoiceNumber)
	assert.Equal(t, billing.InvoiceStatusDraft, inv.Status)
	assert.True(t, dec("6000").Equal(inv.Subtotal))
	assert.True(t, dec("18").Equal(inv.GSTPercentage))
	assert.True(t, dec("1080").Equal(inv.GSTAmount))
	assert.True(t, dec("7080").Equal(inv.TotalAmount))
	assert.True(t, inv.TotalAmount.Equal(inv.BalanceDue))
	assert.True(t, inv.PaidAmount.IsZero())
	assert.True(t, inv.IncludeGST)
	assert.Equal(t, "INR", inv.Currency)
	assert.Empty(t, inv.StatusHistory)
	assert.Equal(t, int64(1), inv.Version)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), inv.IssueDate)
	assert.Equal(t, time.Date(2025, 6, 25, 0, 0, 0, 0, time.UTC), inv.DueDate)

	stored, err := env.manager.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, stored.InvoiceNumber)
}

func TestCreate_WithoutGST(t *testing.T) {
	env := newTestEnv(t)
	include := false

	inv, err := env.manager.Create(context.Background(), CreateRequest{
		ProjectID:  "p1",
		Services:   services(2500),
		IncludeGST: &include,
		Currency:   "USD",
	})
	require.NoError(t, err)

	assert.True(t, inv.GSTAmount.IsZero())
	assert.True(t, dec("2500").Equal(inv.TotalAmount))
	assert.True(t, inv.Subtotal.Equal(inv.BalanceDue))
	assert.Equal(t, "USD", inv.Currency)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
		kind billing.Kind
	}{
		{
			name: "missing project",
			req:  CreateRequest{ProjectID: "nope", Services: services(100)},
			kind: billing.KindProjectNotFound,
		},
		{
			name: "no services",
			req:  CreateRequest{ProjectID: "p1"},
			kind: billing.KindValidation,
		},
		{
			name: "negative amount",
			req:  CreateRequest{ProjectID: "p1", Services: services(-5)},
			kind: billing.KindValidation,
		},
		{
			name: "gst out of range",
			req:  CreateRequest{ProjectID: "p1", Services: services(100), GSTPercentage: decPtr("120")},
			kind: billing.KindValidation,
		},
		{
			name: "over budget",
			req:  CreateRequest{ProjectID: "p1", Services: services(10001)},
			kind: billing.KindBudgetExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.manager.Create(context.Background(), tt.req)
			assertKind(t, err, tt.kind)

			// A rejected request never takes a number
			assert.Equal(t, int64(0), env.numbers.n.Load())
		})
	}
}

func TestCreate_SequenceUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.numbers.err = errors.New("redis: connection refused")

	_, err := env.manager.Create(context.Background(), CreateRequest{ProjectID: "p1", Services: services(100)})
	assertKind(t, err, billing.KindSequenceUnavailable)
	assert.True(t, billing.IsRetryable(err))

	invoices, err := env.store.ListInvoices(context.Background(), storage.InvoiceFilter{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestCreate_WithSequenceNumberer(t *testing.T) {
	settings := billing.DefaultSettings()
	env := newTestEnv(t, func(d *Deps) {
		d.Numbers = sequence.NewNumberer(sequence.NewMemoryCounter(41), settings)
	})

	inv := env.create(t, 100)
	assert.True(t, strings.HasPrefix(inv.InvoiceNumber, "INV-"))
	assert.True(t, strings.HasSuffix(inv.InvoiceNumber, "/0042"))
}

func TestBudgetScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.create(t, 6000)

	_, err := env.manager.Create(ctx, CreateRequest{ProjectID: "p1", Services: services(5000)})
	assertKind(t, err, billing.KindBudgetExceeded)
	var berr *billing.Error
	require.True(t, errors.As(err, &berr))
	assert.True(t, dec("4000").Equal(berr.Remaining), "remaining = %s", berr.Remaining)

	env.transition(t, a.ID, billing.InvoiceStatusCancelled)

	b, err := env.manager.Create(ctx, CreateRequest{ProjectID: "p1", Services: services(5000)})
	require.NoError(t, err)
	assert.Equal(t, "INV-2025-26/0002", b.InvoiceNumber)

	budget, err := env.manager.ProjectBudget(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, dec("10000").Equal(budget.Total))
	assert.True(t, dec("5000").Equal(budget.Committed))
	assert.True(t, dec("5000").Equal(budget.Remaining))
}

func TestTransitionStatus_UncancelRechecksBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.create(t, 6000)
	env.transition(t, a.ID, billing.InvoiceStatusCancelled)
	env.create(t, 5000)

	_, err := env.manager.TransitionStatus(ctx, a.ID, TransitionRequest{Status: billing.InvoiceStatusSent})
	assertKind(t, err, billing.KindBudgetExceeded)
	var berr *billing.Error
	require.True(t, errors.As(err, &berr))
	assert.True(t, dec("5000").Equal(berr.Remaining), "remaining = %s", berr.Remaining)

	got, err := env.manager.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusCancelled, got.Status)

	budget, err := env.manager.ProjectBudget(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, dec("5000").Equal(budget.Committed))
}

func TestTransitionStatus_UncancelWithinBudget(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, 6000)
	env.transition(t, a.ID, billing.InvoiceStatusCancelled)

	inv := env.transition(t, a.ID, billing.InvoiceStatusSent)
	assert.Equal(t, billing.InvoiceStatusSent, inv.Status)
}

func TestProjectBudget_NotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.ProjectBudget(context.Background(), "missing")
	assertKind(t, err, billing.KindProjectNotFound)
}

func TestUpdate_RecomputesTotals(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 6000)
	notes := "Net 15"

	updated, err := env.manager.Update(context.Background(), inv.ID, UpdateRequest{
		Services:      services(7000, 3000),
		GSTPercentage: decPtr("5"),
		Notes:         &notes,
	})
	require.NoError(t, err)

	// The invoice's own 6000 is excluded from the commitment
	assert.True(t, dec("10000").Equal(updated.Subtotal))
	assert.True(t, dec("500").Equal(updated.GSTAmount))
	assert.True(t, dec("10500").Equal(updated.TotalAmount))
	assert.True(t, dec("10500").Equal(updated.BalanceDue))
	assert.Equal(t, "Net 15", updated.Notes)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, inv.InvoiceNumber, updated.InvoiceNumber)
}

func TestUpdate_BudgetExcludesOnlySelf(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, 4000)
	inv := env.create(t, 3000)

	_, err := env.manager.Update(context.Background(), inv.ID, UpdateRequest{Services: services(6001)})
	assertKind(t, err, billing.KindBudgetExceeded)
	var berr *billing.Error
	require.True(t, errors.As(err, &berr))
	assert.True(t, dec("6000").Equal(berr.Remaining))

	stored, err := env.manager.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, dec("3000").Equal(stored.Subtotal))
	assert.Equal(t, int64(1), stored.Version)
}

func TestUpdate_OnlyDrafts(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 1000)
	env.transition(t, inv.ID, billing.InvoiceStatusSent)

	notes := "late edit"
	_, err := env.manager.Update(context.Background(), inv.ID, UpdateRequest{Notes: &notes})
	assertKind(t, err, billing.KindInvalidState)

	_, err = env.manager.Update(context.Background(), "missing", UpdateRequest{Notes: &notes})
	assertKind(t, err, billing.KindInvoiceNotFound)
}

func TestUpdate_RejectsDueBeforeIssue(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 1000)
	due := inv.IssueDate.AddDate(0, 0, -1)

	_, err := env.manager.Update(context.Background(), inv.ID, UpdateRequest{DueDate: &due})
	assertKind(t, err, billing.KindValidation)
}

func TestTransition_Paid(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 6000)
	env.transition(t, inv.ID, billing.InvoiceStatusSent)

	paid, err := env.manager.TransitionStatus(context.Background(), inv.ID, TransitionRequest{
		Status: billing.InvoiceStatusPaid,
		Remark: "NEFT ref 8812",
	})
	require.NoError(t, err)

	assert.Equal(t, billing.InvoiceStatusPaid, paid.Status)
	assert.True(t, dec("7080").Equal(paid.PaidAmount))
	assert.True(t, paid.BalanceDue.IsZero())
	require.NotNil(t, paid.PaidDate)
	assert.Equal(t, testNow, *paid.PaidDate)

	require.Len(t, paid.StatusHistory, 2)
	assert.Equal(t, billing.StatusEvent{Status: billing.InvoiceStatusSent, Date: testNow}, paid.StatusHistory[0])
	assert.Equal(t, billing.StatusEvent{Status: billing.InvoiceStatusPaid, Remark: "NEFT ref 8812", Date: testNow}, paid.StatusHistory[1])

	assert.Equal(t, []notifyCall{{inv.ID, billing.InvoiceStatusPaid}}, env.notifier.Calls())
}

func TestTransition_PaidDateOverride(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 100)
	when := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	paid, err := env.manager.TransitionStatus(context.Background(), inv.ID, TransitionRequest{
		Status:   billing.InvoiceStatusPaid,
		PaidDate: &when,
	})
	require.NoError(t, err)
	assert.Equal(t, when, *paid.PaidDate)
}

func TestTransition_PartialAccumulates(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 6000)
	ctx := context.Background()

	first, err := env.manager.TransitionStatus(ctx, inv.ID, TransitionRequest{
		Status:          billing.InvoiceStatusPartial,
		PaidAmountDelta: decPtr("3000"),
	})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPartial, first.Status)
	assert.True(t, dec("3000").Equal(first.PaidAmount))
	assert.True(t, dec("4080").Equal(first.BalanceDue))
	assert.Nil(t, first.PaidDate)
	assert.Empty(t, env.notifier.Calls())

	second, err := env.manager.TransitionStatus(ctx, inv.ID, TransitionRequest{
		Status:          billing.InvoiceStatusPartial,
		PaidAmountDelta: decPtr("4500"),
		Remark:          "final instalment",
	})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, second.Status)
	assert.True(t, dec("7500").Equal(second.PaidAmount))
	assert.True(t, second.BalanceDue.IsZero())
	require.NotNil(t, second.PaidDate)

	require.Len(t, second.StatusHistory, 2)
	assert.Equal(t, billing.InvoiceStatusPartial, second.StatusHistory[0].Status)
	assert.Equal(t, billing.InvoiceStatusPaid, second.StatusHistory[1].Status)
	assert.Equal(t, "final instalment", second.StatusHistory[1].Remark)

	assert.Equal(t, []notifyCall{{inv.ID, billing.InvoiceStatusPaid}}, env.notifier.Calls())
}

func TestTransition_PartialFullAmountIsPaid(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 6000)

	out, err := env.manager.TransitionStatus(context.Background(), inv.ID, TransitionRequest{
		Status:          billing.InvoiceStatusPartial,
		PaidAmountDelta: &inv.TotalAmount,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, out.Status)
	assert.True(t, out.BalanceDue.IsZero())
	assert.True(t, inv.TotalAmount.Equal(out.PaidAmount))
}

func TestTransition_Rejections(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 100)
	ctx := context.Background()

	_, err := env.manager.TransitionStatus(ctx, inv.ID, TransitionRequest{Status: "archived"})
	assertKind(t, err, billing.KindInvalidStatus)

	_, err = env.manager.TransitionStatus(ctx, inv.ID, TransitionRequest{Status: billing.InvoiceStatusPartial})
	assertKind(t, err, billing.KindValidation)

	_, err = env.manager.TransitionStatus(ctx, inv.ID, TransitionRequest{
		Status:          billing.InvoiceStatusPartial,
		PaidAmountDelta: decPtr("-1"),
	})
	assertKind(t, err, billing.KindValidation)

	_, err = env.manager.TransitionStatus(ctx, "missing", TransitionRequest{Status: billing.InvoiceStatusSent})
	assertKind(t, err, billing.KindInvoiceNotFound)
}

func TestTransition_Notifications(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 100)

	env.transition(t, inv.ID, billing.InvoiceStatusSent)
	env.transition(t, inv.ID, billing.InvoiceStatusOverdue)
	env.transition(t, inv.ID, billing.InvoiceStatusCancelled)

	assert.Equal(t, []notifyCall{
		{inv.ID, billing.InvoiceStatusOverdue},
		{inv.ID, billing.InvoiceStatusCancelled},
	}, env.notifier.Calls())
}

func TestTransition_NotificationFailureDoesNotFail(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("smtp: 421 service not available")
	inv := env.create(t, 100)

	out, err := env.manager.TransitionStatus(context.Background(), inv.ID, TransitionRequest{Status: billing.InvoiceStatusCancelled})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusCancelled, out.Status)
	assert.Len(t, env.notifier.Calls(), 1)
}

func TestTransition_IfStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.create(t, 100)
	env.transition(t, inv.ID, billing.InvoiceStatusSent)

	out, err := env.manager.TransitionStatus(ctx, inv.ID, TransitionRequest{
		Status:   billing.InvoiceStatusOverdue,
		IfStatus: billing.InvoiceStatusSent,
	})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusOverdue, out.Status)

	_, err = env.manager.TransitionStatus(ctx, inv.ID, TransitionRequest{
		Status:   billing.InvoiceStatusOverdue,
		IfStatus: billing.InvoiceStatusSent,
	})
	assertKind(t, err, billing.KindInvalidState)

	other := env.create(t, 100)
	env.transition(t, other.ID, billing.InvoiceStatusSent)
	_, err = env.manager.Delete(ctx, other.ID, "sent by mistake")
	require.NoError(t, err)
	_, err = env.manager.TransitionStatus(ctx, other.ID, TransitionRequest{
		Status:   billing.InvoiceStatusOverdue,
		IfStatus: billing.InvoiceStatusSent,
	})
	assertKind(t, err, billing.KindInvalidState)

	stored, err := env.manager.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusSent, stored.Status)
}

func TestTransition_NotificationIsDetached(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 100)

	var detachedErr error
	env.manager.runAsync = func(ctx context.Context, taskName string, fn func(context.Context) error) {
		detachedErr = ctx.Err()
		_ = fn(ctx)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out, err := env.manager.TransitionStatus(ctx, inv.ID, TransitionRequest{Status: billing.InvoiceStatusPaid})
	cancel()
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, out.Status)
	assert.NoError(t, detachedErr)
}

func TestDelete_Draft(t *testing.T) {
	env := newTestEnv(t)
	inv := env.create(t, 100)

	res, err := env.manager.Delete(context.Background(), inv.ID, "")
	require.NoError(t, err)
	assert.True(t, res.HardDeleted)
	assert.Equal(t, inv.ID, res.Invoice.ID)

	_, err = env.manager.Get(context.Background(), inv.ID)
	assertKind(t, err, billing.KindInvoiceNotFound)
}

func TestDelete_SentNeedsRemark(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	inv := env.create(t, 6000)
	env.transition(t, inv.ID, billing.InvoiceStatusSent)

	_, err := env.manager.Delete(ctx, inv.ID, "   ")
	assertKind(t, err, billing.KindRemarkRequired)

	res, err := env.manager.Delete(ctx, inv.ID, "raised in error")
	require.NoError(t, err)
	assert.False(t, res.HardDeleted)
	assert.True(t, res.Invoice.IsDeleted)

	got, err := env.manager.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, "raised in error", got.DeletionRemark)
	assert.Len(t, got.StatusHistory, 1)

	budget, err := env.manager.ProjectBudget(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, budget.Committed.IsZero())

	listed, err := env.manager.List(ctx, storage.InvoiceFilter{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Empty(t, listed)

	listed, err = env.manager.List(ctx, storage.InvoiceFilter{ProjectID: "p1", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestDelete_Missing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.manager.Delete(context.Background(), "missing", "x")
	assertKind(t, err, billing.KindInvoiceNotFound)
}

func TestRestore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, 6000)
	env.transition(t, a.ID, billing.InvoiceStatusSent)
	_, err := env.manager.Delete(ctx, a.ID, "duplicate entry")
	require.NoError(t, err)

	// The freed budget is taken by another invoice
	env.create(t, 8000)

	restored, err := env.manager.Restore(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted)
	assert.Equal(t, "duplicate entry", restored.DeletionRemark)

	// Restore does not re-validate, so the project is now over its ceiling
	budget, err := env.manager.ProjectBudget(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, dec("14000").Equal(budget.Committed))
	assert.True(t, budget.Remaining.IsZero())

	again, err := env.manager.Restore(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, restored.Version, again.Version)

	_, err = env.manager.Restore(ctx, "missing")
	assertKind(t, err, billing.KindInvoiceNotFound)
}

func TestDuplicate_PaidInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	src := env.create(t, 2000, 1000)
	env.transition(t, src.ID, billing.InvoiceStatusPaid)

	dup, err := env.manager.Duplicate(ctx, src.ID)
	require.NoError(t, err)

	assert.NotEqual(t, src.ID, dup.ID)
	assert.NotEqual(t, src.InvoiceNumber, dup.InvoiceNumber)
	assert.Equal(t, billing.InvoiceStatusDraft, dup.Status)
	assert.True(t, dup.PaidAmount.IsZero())
	assert.Nil(t, dup.PaidDate)
	assert.True(t, dup.TotalAmount.Equal(dup.BalanceDue))
	assert.Equal(t, src.Services, dup.Services)
	assert.True(t, src.TotalAmount.Equal(dup.TotalAmount))
	assert.Equal(t, dup.IssueDate.AddDate(0, 0, 15), dup.DueDate)

	require.Len(t, dup.StatusHistory, 1)
	assert.Equal(t, billing.InvoiceStatusDraft, dup.StatusHistory[0].Status)
	assert.Equal(t, "Duplicated from "+src.InvoiceNumber, dup.StatusHistory[0].Remark)
}

func TestDuplicate_ChecksBudget(t *testing.T) {
	env := newTestEnv(t)
	src := env.create(t, 6000)

	_, err := env.manager.Duplicate(context.Background(), src.ID)
	assertKind(t, err, billing.KindBudgetExceeded)
	assert.Equal(t, int64(1), env.numbers.n.Load())

	_, err = env.manager.Duplicate(context.Background(), "missing")
	assertKind(t, err, billing.KindInvoiceNotFound)
}

func TestVersionConflict_RetriesThenSucceeds(t *testing.T) {
	store := &conflictStore{Store: memory.New()}
	store.remaining.Store(2)
	env := newTestEnv(t, func(d *Deps) {
		d.Invoices = store
		d.MaxAttempts = 3
	})
	store.Store.PutProject(billing.Project{ID: "p1", TotalAmount: decimal.NewFromInt(10000), Currency: "INR"})
	env.manager.projects = store

	inv := env.create(t, 100)
	out, err := env.manager.TransitionStatus(context.Background(), inv.ID, TransitionRequest{Status: billing.InvoiceStatusSent})
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusSent, out.Status)
	assert.Len(t, out.StatusHistory, 1)
}

func TestVersionConflict_GivesUp(t *testing.T) {
	store := &conflictStore{Store: memory.New()}
	store.remaining.Store(100)
	env := newTestEnv(t, func(d *Deps) {
		d.Invoices = store
		d.MaxAttempts = 3
	})
	store.Store.PutProject(billing.Project{ID: "p1", TotalAmount: decimal.NewFromInt(10000), Currency: "INR"})
	env.manager.projects = store

	inv := env.create(t, 100)
	_, err := env.manager.TransitionStatus(context.Background(), inv.ID, TransitionRequest{Status: billing.InvoiceStatusSent})
	assertKind(t, err, billing.KindConflict)
	assert.True(t, billing.IsRetryable(err))
	assert.ErrorIs(t, err, storage.ErrVersionConflict)
	assert.Equal(t, int32(100-3), store.remaining.Load())
}

func TestConcurrentPartialPayments(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.MaxAttempts = 100 })
	inv := env.create(t, 6000)

	const payers = 10
	var wg sync.WaitGroup
	for i := 0; i < payers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.manager.TransitionStatus(context.Background(), inv.ID, TransitionRequest{
				Status:          billing.InvoiceStatusPartial,
				PaidAmountDelta: decPtr("100"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := env.manager.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.True(t, dec("1000").Equal(got.PaidAmount), "paid = %s", got.PaidAmount)
	assert.True(t, dec("6080").Equal(got.BalanceDue))
	assert.Len(t, got.StatusHistory, payers)
	assert.Equal(t, int64(payers+1), got.Version)
}

func TestList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.create(t, 100)
	env.create(t, 200)
	env.transition(t, a.ID, billing.InvoiceStatusSent)

	sent, err := env.manager.List(ctx, storage.InvoiceFilter{Status: billing.InvoiceStatusSent})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, a.ID, sent[0].ID)

	all, err := env.manager.List(ctx, storage.InvoiceFilter{ProjectID: "p1", Limit: 10000})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = env.manager.List(ctx, storage.InvoiceFilter{Status: "void"})
	assertKind(t, err, billing.KindInvalidStatus)
}
