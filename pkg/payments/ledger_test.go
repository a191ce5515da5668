package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/storage/memory"
)

var ist = time.FixedZone("IST", 5*3600+1800)

func newTestLedger(t *testing.T) (*Ledger, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.PutProject(billing.Project{ID: "p1", Name: "Storefront", TotalAmount: decimal.NewFromInt(100000), Currency: "INR"})
	store.PutProject(billing.Project{ID: "p2", Name: "Other", TotalAmount: decimal.NewFromInt(1000), Currency: "INR"})

	for i, inv := range []billing.Invoice{
		{ID: "inv-1", InvoiceNumber: "INV-2025-26/0001", ProjectID: "p1", Status: billing.InvoiceStatusPaid, PaidAmount: decimal.NewFromInt(11800)},
		{ID: "inv-2", InvoiceNumber: "INV-2025-26/0002", ProjectID: "p1", Status: billing.InvoiceStatusPartial, PaidAmount: decimal.NewFromInt(5000)},
		{ID: "inv-3", InvoiceNumber: "INV-2025-26/0003", ProjectID: "p2", Status: billing.InvoiceStatusSent, PaidAmount: decimal.Zero},
	} {
		inv := inv
		require.NoError(t, store.CreateInvoice(context.Background(), &inv), "invoice %d", i)
	}

	ledger := NewLedger(store, store, store, ist, observability.NewLogger(observability.ErrorLevel, nil))
	ledger.now = func() time.Time { return time.Date(2025, 6, 10, 20, 0, 0, 0, time.UTC) }
	n := 0
	ledger.newID = func() string {
		n++
		return fmt.Sprintf("pay-%d", n)
	}
	return ledger, store
}

func TestRecord(t *testing.T) {
	ledger, _ := newTestLedger(t)

	p, err := ledger.Record(context.Background(), RecordRequest{
		ProjectID: "p1",
		InvoiceID: "inv-1",
		Amount:    decimal.RequireFromString("11800.004"),
		Method:    "  NEFT ",
		Reference: "UTR123",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-1", p.ID)
	assert.Equal(t, "NEFT", p.Method)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(11800)), p.Amount.String())
	// 20:00 UTC is already the next day in IST
	assert.Equal(t, time.Date(2025, 6, 11, 0, 0, 0, 0, ist), p.Date)
}

func TestRecord_ExplicitDate(t *testing.T) {
	ledger, _ := newTestLedger(t)
	date := time.Date(2025, 5, 3, 15, 0, 0, 0, ist)

	p, err := ledger.Record(context.Background(), RecordRequest{ProjectID: "p1", Amount: decimal.NewFromInt(100), Method: "UPI", Date: &date})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 5, 3, 0, 0, 0, 0, ist), p.Date)
	assert.Empty(t, p.InvoiceID)
}

func TestRecord_Rejections(t *testing.T) {
	tests := []struct {
		name string
		req  RecordRequest
		want *billing.Error
	}{
		{"zero amount", RecordRequest{ProjectID: "p1", Amount: decimal.Zero, Method: "UPI"}, billing.ErrValidation},
		{"negative amount", RecordRequest{ProjectID: "p1", Amount: decimal.NewFromInt(-5), Method: "UPI"}, billing.ErrValidation},
		{"missing method", RecordRequest{ProjectID: "p1", Amount: decimal.NewFromInt(5), Method: " "}, billing.ErrValidation},
		{"unknown project", RecordRequest{ProjectID: "nope", Amount: decimal.NewFromInt(5), Method: "UPI"}, billing.ErrProjectNotFound},
		{"unknown invoice", RecordRequest{ProjectID: "p1", InvoiceID: "nope", Amount: decimal.NewFromInt(5), Method: "UPI"}, billing.ErrInvoiceNotFound},
		{"invoice of another project", RecordRequest{ProjectID: "p1", InvoiceID: "inv-3", Amount: decimal.NewFromInt(5), Method: "UPI"}, billing.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger, store := newTestLedger(t)
			_, err := ledger.Record(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)

			payments, err := store.ListPayments(context.Background(), "p1")
			require.NoError(t, err)
			assert.Empty(t, payments)
		})
	}
}

func TestRecord_DoesNotTouchInvoice(t *testing.T) {
	ledger, store := newTestLedger(t)
	before, err := store.GetInvoice(context.Background(), "inv-2")
	require.NoError(t, err)

	_, err = ledger.Record(context.Background(), RecordRequest{ProjectID: "p1", InvoiceID: "inv-2", Amount: decimal.NewFromInt(999), Method: "UPI"})
	require.NoError(t, err)

	after, err := store.GetInvoice(context.Background(), "inv-2")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.True(t, before.PaidAmount.Equal(after.PaidAmount))
}

func TestList(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	d1 := time.Date(2025, 6, 5, 0, 0, 0, 0, ist)
	d2 := time.Date(2025, 6, 1, 0, 0, 0, 0, ist)
	_, err := ledger.Record(ctx, RecordRequest{ProjectID: "p1", Amount: decimal.NewFromInt(1), Method: "UPI", Date: &d1})
	require.NoError(t, err)
	_, err = ledger.Record(ctx, RecordRequest{ProjectID: "p1", Amount: decimal.NewFromInt(2), Method: "UPI", Date: &d2})
	require.NoError(t, err)

	payments, err := ledger.List(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "pay-2", payments[0].ID)
	assert.Equal(t, "pay-1", payments[1].ID)

	_, err = ledger.List(ctx, "nope")
	require.ErrorIs(t, err, billing.ErrProjectNotFound)
}

func TestReconcile(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	record := func(invoiceID string, amount int64) {
		t.Helper()
		_, err := ledger.Record(ctx, RecordRequest{ProjectID: "p1", InvoiceID: invoiceID, Amount: decimal.NewFromInt(amount), Method: "NEFT"})
		require.NoError(t, err)
	}
	record("inv-1", 10000)
	record("inv-1", 1800)
	record("inv-2", 3000)
	record("", 500)

	rec, err := ledger.Reconcile(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, rec.Balanced())
	assert.True(t, rec.LedgerTotal.Equal(decimal.NewFromInt(15300)))
	assert.True(t, rec.Unattributed.Equal(decimal.NewFromInt(500)))
	assert.True(t, rec.InvoicedPaid.Equal(decimal.NewFromInt(16800)))

	require.Len(t, rec.Drift, 1)
	drift := rec.Drift[0]
	assert.Equal(t, "inv-2", drift.InvoiceID)
	assert.Equal(t, "INV-2025-26/0002", drift.InvoiceNumber)
	assert.True(t, drift.LedgerAmount.Equal(decimal.NewFromInt(3000)))
	assert.True(t, drift.Difference.Equal(decimal.NewFromInt(2000)))

	// reconciling never mutates invoices
	inv, err := store.GetInvoice(ctx, "inv-2")
	require.NoError(t, err)
	assert.True(t, inv.PaidAmount.Equal(decimal.NewFromInt(5000)))

	record("inv-2", 2000)
	rec, err = ledger.Reconcile(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, rec.Balanced())
}

func TestReconcile_PaymentForRemovedInvoice(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, store.CreateInvoice(ctx, &billing.Invoice{ID: "draft", InvoiceNumber: "INV-2025-26/0009", ProjectID: "p1", Status: billing.InvoiceStatusDraft}))
	_, err := ledger.Record(ctx, RecordRequest{ProjectID: "p1", InvoiceID: "draft", Amount: decimal.NewFromInt(50), Method: "UPI"})
	require.NoError(t, err)
	require.NoError(t, store.DeleteInvoice(ctx, "draft", 1))

	_, err = ledger.Record(ctx, RecordRequest{ProjectID: "p1", InvoiceID: "inv-1", Amount: decimal.NewFromInt(11800), Method: "UPI"})
	require.NoError(t, err)
	_, err = ledger.Record(ctx, RecordRequest{ProjectID: "p1", InvoiceID: "inv-2", Amount: decimal.NewFromInt(5000), Method: "UPI"})
	require.NoError(t, err)

	rec, err := ledger.Reconcile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, rec.Drift, 1)
	assert.Equal(t, "draft", rec.Drift[0].InvoiceID)
	assert.True(t, rec.Drift[0].Difference.Equal(decimal.NewFromInt(-50)))
}
