package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/lifecycle"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
	"github.com/nik-6348/sss-projects-payments/pkg/storage/memory"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type staticNumbers struct {
	mu sync.Mutex
	n  int
}

func (s *staticNumbers) NextInvoiceNumber(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("INV-2025-26/%04d", s.n), nil
}

type sweepEnv struct {
	store   *memory.Store
	manager *lifecycle.Manager
	metrics *observability.Metrics
}

func newSweepEnv(t *testing.T) *sweepEnv {
	t.Helper()
	store := memory.New()
	store.PutProject(billing.Project{ID: "p1", Name: "Website", TotalAmount: decimal.NewFromInt(1000000), Currency: "INR"})
	manager := lifecycle.NewManager(lifecycle.Deps{
		Projects: store,
		Invoices: store,
		Numbers:  &staticNumbers{},
		Settings: billing.DefaultSettings(),
		Logger:   observability.NewLogger(observability.ErrorLevel, io.Discard),
	})
	return &sweepEnv{store: store, manager: manager, metrics: observability.NewMetrics(prometheus.NewRegistry())}
}

// seed creates an invoice with the given status and due date
func (e *sweepEnv) seed(t *testing.T, status billing.InvoiceStatus, due time.Time) *billing.Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := e.manager.Create(ctx, lifecycle.CreateRequest{
		ProjectID: "p1",
		Services:  []billing.LineItem{{Description: "Work", Amount: decimal.NewFromInt(100)}},
	})
	require.NoError(t, err)

	stored, err := e.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	stored.DueDate = due
	stored.Status = status
	require.NoError(t, e.store.UpdateInvoice(ctx, stored, stored.Version))
	return stored
}

func (e *sweepEnv) sweeper(lc Transitioner, cfg Config) *Sweeper {
	s := NewSweeper(e.store, lc, cfg, quietLogger(), e.metrics)
	s.now = func() time.Time { return time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC) }
	return s
}

func TestCutoff(t *testing.T) {
	env := newSweepEnv(t)

	utc := env.sweeper(env.manager, Config{})
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), utc.Cutoff())

	// 20:00 UTC is already the 11th in IST
	local := env.sweeper(env.manager, Config{Location: ist})
	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, ist), local.Cutoff())
}

func TestRun_MarksOnlyPastDueSentInvoices(t *testing.T) {
	env := newSweepEnv(t)
	ctx := context.Background()

	pastDue := env.seed(t, billing.InvoiceStatusSent, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	dueToday := env.seed(t, billing.InvoiceStatusSent, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	draft := env.seed(t, billing.InvoiceStatusDraft, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	partial := env.seed(t, billing.InvoiceStatusPartial, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	deleted := env.seed(t, billing.InvoiceStatusSent, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	_, err := env.manager.Delete(ctx, deleted.ID, "duplicate")
	require.NoError(t, err)

	res, err := env.sweeper(env.manager, Config{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scanned)
	assert.Equal(t, 1, res.Marked)
	assert.Zero(t, res.Failed)

	got, err := env.store.GetInvoice(ctx, pastDue.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusOverdue, got.Status)
	require.NotEmpty(t, got.StatusHistory)
	last := got.StatusHistory[len(got.StatusHistory)-1]
	assert.Equal(t, billing.InvoiceStatusOverdue, last.Status)
	assert.Equal(t, OverdueRemark, last.Remark)

	for _, id := range []string{dueToday.ID, draft.ID, partial.ID, deleted.ID} {
		inv, err := env.store.GetInvoice(ctx, id)
		require.NoError(t, err)
		assert.NotEqual(t, billing.InvoiceStatusOverdue, inv.Status, id)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.OverdueMarkedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SweepRunsTotal.WithLabelValues("success")))

	// a second run finds nothing
	res, err = env.sweeper(env.manager, Config{}).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)
}

func TestRun_PagesThroughAllCandidates(t *testing.T) {
	env := newSweepEnv(t)
	ctx := context.Background()
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 23; i++ {
		env.seed(t, billing.InvoiceStatusSent, due.AddDate(0, 0, i))
	}

	res, err := env.sweeper(env.manager, Config{PageSize: 5, Concurrency: 3}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 23, res.Marked)
	assert.Equal(t, 23, res.Scanned)

	overdue, err := env.store.ListInvoices(ctx, storage.InvoiceFilter{Status: billing.InvoiceStatusOverdue})
	require.NoError(t, err)
	assert.Len(t, overdue, 23)
}

// flakyTransitioner fails chosen invoices and delegates the rest
type flakyTransitioner struct {
	next Transitioner
	fail map[string]bool
}

func (f *flakyTransitioner) TransitionStatus(ctx context.Context, id string, req lifecycle.TransitionRequest) (*billing.Invoice, error) {
	if f.fail[id] {
		return nil, billing.Wrap(billing.KindStorageUnavailable, "TransitionStatus", errors.New("connection reset"))
	}
	return f.next.TransitionStatus(ctx, id, req)
}

func TestRun_FailuresDoNotStopTheSweep(t *testing.T) {
	env := newSweepEnv(t)
	ctx := context.Background()
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	fail := map[string]bool{}
	for i := 0; i < 7; i++ {
		inv := env.seed(t, billing.InvoiceStatusSent, due.AddDate(0, 0, i))
		if i%3 == 0 {
			fail[inv.ID] = true
		}
	}

	res, err := env.sweeper(&flakyTransitioner{next: env.manager, fail: fail}, Config{PageSize: 2}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 4, res.Marked)
}

// racingTransitioner pays an invoice just before the sweep reaches it
type racingTransitioner struct {
	manager *lifecycle.Manager
	payID   string
}

func (r *racingTransitioner) TransitionStatus(ctx context.Context, id string, req lifecycle.TransitionRequest) (*billing.Invoice, error) {
	if id == r.payID {
		if _, err := r.manager.TransitionStatus(ctx, id, lifecycle.TransitionRequest{Status: billing.InvoiceStatusPaid}); err != nil {
			return nil, err
		}
	}
	return r.manager.TransitionStatus(ctx, id, req)
}

func TestRun_SkipsInvoicesPaidMeanwhile(t *testing.T) {
	env := newSweepEnv(t)
	ctx := context.Background()
	inv := env.seed(t, billing.InvoiceStatusSent, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	res, err := env.sweeper(&racingTransitioner{manager: env.manager, payID: inv.ID}, Config{}).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Marked)

	got, err := env.store.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.InvoiceStatusPaid, got.Status)
}

type failingLister struct{}

func (failingLister) ListOverdueCandidates(ctx context.Context, before time.Time, limit, offset int) ([]*billing.Invoice, error) {
	return nil, errors.New("db down")
}

func TestRun_ListFailure(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	s := NewSweeper(failingLister{}, nil, Config{}, quietLogger(), metrics)

	_, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SweepRunsTotal.WithLabelValues("failure")))
}
