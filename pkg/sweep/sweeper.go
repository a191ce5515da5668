package sweep

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/lifecycle"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
)

// OverdueRemark is the history remark written by the sweep
const OverdueRemark = "Marked overdue: due date passed"

// CandidateLister pages through invoices that are sent, live and past due
type CandidateLister interface {
	ListOverdueCandidates(ctx context.Context, before time.Time, limit, offset int) ([]*billing.Invoice, error)
}

// Transitioner applies a status change through the lifecycle manager
type Transitioner interface {
	TransitionStatus(ctx context.Context, id string, req lifecycle.TransitionRequest) (*billing.Invoice, error)
}

// Config for the sweeper
type Config struct {
	PageSize    int
	Concurrency int
	Location    *time.Location
}

// DefaultConfig returns the default sweep configuration
func DefaultConfig() Config {
	return Config{
		PageSize:    100,
		Concurrency: 4,
		Location:    time.UTC,
	}
}

// Result summarises one sweep run
type Result struct {
	Cutoff  time.Time
	Scanned int
	Marked  int
	Skipped int
	Failed  int
}

// Sweeper moves sent invoices whose due date has passed to overdue
type Sweeper struct {
	candidates CandidateLister
	lifecycle  Transitioner
	config     Config
	logger     logrus.FieldLogger
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewSweeper creates a sweeper
func NewSweeper(candidates CandidateLister, lc Transitioner, config Config, logger logrus.FieldLogger, metrics *observability.Metrics) *Sweeper {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.Location == nil {
		config.Location = defaults.Location
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sweeper{
		candidates: candidates,
		lifecycle:  lc,
		config:     config,
		logger:     logger,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Cutoff returns the start of today in the configured timezone. Invoices due
// strictly before it are overdue.
func (s *Sweeper) Cutoff() time.Time {
	now := s.now().In(s.config.Location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.config.Location)
}

// Run sweeps every candidate once. A failure on one invoice does not stop
// the others; the returned error is set only when candidates could not be
// listed.
func (s *Sweeper) Run(ctx context.Context) (res Result, err error) {
	res.Cutoff = s.Cutoff()
	ctx, span := observability.StartSpan(ctx, "sweep.Run", attribute.String("cutoff", res.Cutoff.Format("2006-01-02")))
	defer func() {
		span.SetAttributes(attribute.Int("marked", res.Marked), attribute.Int("failed", res.Failed))
		observability.EndSpan(span, err)
		s.metrics.SweepRun(res.Marked, err)
	}()

	// Marked and skipped invoices leave the candidate set, so only failures
	// advance the offset.
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		page, err := s.candidates.ListOverdueCandidates(ctx, res.Cutoff, s.config.PageSize, offset)
		if err != nil {
			return res, fmt.Errorf("failed to list overdue candidates: %w", err)
		}
		if len(page) == 0 {
			break
		}
		res.Scanned += len(page)

		marked, skipped, failed := s.process(ctx, page)
		res.Marked += marked
		res.Skipped += skipped
		res.Failed += failed
		offset += failed

		if len(page) < s.config.PageSize {
			break
		}
	}

	s.logger.WithFields(logrus.Fields{
		"cutoff":  res.Cutoff.Format("2006-01-02"),
		"scanned": res.Scanned,
		"marked":  res.Marked,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	}).Info("Overdue sweep completed")
	return res, nil
}

func (s *Sweeper) process(ctx context.Context, page []*billing.Invoice) (marked, skipped, failed int) {
	var m, sk, f atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)

	for _, inv := range page {
		inv := inv
		g.Go(func() error {
			_, err := s.lifecycle.TransitionStatus(gctx, inv.ID, lifecycle.TransitionRequest{
				Status:   billing.InvoiceStatusOverdue,
				Remark:   OverdueRemark,
				IfStatus: billing.InvoiceStatusSent,
			})
			switch {
			case err == nil:
				m.Add(1)
			case billing.KindOf(err) == billing.KindInvalidState:
				// paid, cancelled or deleted since it was listed
				sk.Add(1)
			default:
				f.Add(1)
				s.logger.WithFields(logrus.Fields{
					"invoice_id":     inv.ID,
					"invoice_number": inv.InvoiceNumber,
				}).WithError(err).Warn("Failed to mark invoice overdue")
			}
			// one failed invoice must not cancel the rest of the page
			return nil
		})
	}
	_ = g.Wait()

	return int(m.Load()), int(sk.Load()), int(f.Load())
}
