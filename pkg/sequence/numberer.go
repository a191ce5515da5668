package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
)

// Counter is an atomic increment-and-fetch primitive. Next must return the
// post-increment value and must never hand the same value to two callers.
type Counter interface {
	Next(ctx context.Context) (int64, error)
}

// Numberer issues formatted invoice numbers from a Counter
type Numberer struct {
	counter  Counter
	settings billing.Settings
	now      func() time.Time
}

// NewNumberer creates a Numberer using the prefix, fiscal year start and
// timezone from settings
func NewNumberer(counter Counter, settings billing.Settings) *Numberer {
	if settings.InvoicePrefix == "" {
		settings.InvoicePrefix = "INV"
	}
	if settings.FiscalYearStartMonth == 0 {
		settings.FiscalYearStartMonth = time.April
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	return &Numberer{
		counter:  counter,
		settings: settings,
		now:      time.Now,
	}
}

// NextInvoiceNumber takes the next value from the counter and formats it as
// {prefix}-{fiscalYear}/{seq:04d}. If the counter fails no number is issued.
func (n *Numberer) NextInvoiceNumber(ctx context.Context) (string, error) {
	seq, err := n.counter.Next(ctx)
	if err != nil {
		return "", billing.Wrap(billing.KindSequenceUnavailable, "NextInvoiceNumber", err)
	}
	if seq <= 0 {
		return "", billing.Wrap(billing.KindSequenceUnavailable, "NextInvoiceNumber",
			fmt.Errorf("counter returned non-positive value %d", seq))
	}

	fy := FiscalYear(n.now().In(n.settings.Location), n.settings.FiscalYearStartMonth)
	return Format(n.settings.InvoicePrefix, fy, seq), nil
}

// Format renders an invoice number
func Format(prefix, fiscalYear string, seq int64) string {
	return fmt.Sprintf("%s-%s/%04d", prefix, fiscalYear, seq)
}

// FiscalYear returns the fiscal year label for t, e.g. "2025-26" for any
// date from April 2025 through March 2026 when the year starts in April
func FiscalYear(t time.Time, startMonth time.Month) string {
	start := t.Year()
	if t.Month() < startMonth {
		start--
	}
	if startMonth == time.January {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}
