package billing

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Totals holds the derived monetary fields of an invoice
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	GSTAmount   decimal.Decimal `json:"gst_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// ComputeTotals sums the line items and applies GST.
//
// Amounts are kept at full precision while summing and rounded half-up to
// two places once per derived field, never per line item. The total is the
// sum of the rounded subtotal and rounded tax, so Subtotal+GSTAmount always
// equals TotalAmount exactly.
func ComputeTotals(services []LineItem, gstPercentage decimal.Decimal, includeGST bool) Totals {
	sum := decimal.Zero
	for _, item := range services {
		sum = sum.Add(item.Amount)
	}
	subtotal := sum.Round(2)

	gst := decimal.Zero
	if includeGST {
		gst = subtotal.Mul(gstPercentage).Div(hundred).Round(2)
	}

	return Totals{
		Subtotal:    subtotal,
		GSTAmount:   gst,
		TotalAmount: subtotal.Add(gst),
	}
}

// CheckBudget rejects a candidate subtotal that would push the project's
// commitment past its budget. committed must already exclude cancelled and
// soft-deleted invoices as well as the invoice being edited.
//
// The check reads the commitment before the caller writes, so two concurrent
// issuers can both pass and jointly overrun the budget. Callers needing a
// linearizable guarantee must run the commitment read and the insert in one
// serializable transaction.
func CheckBudget(projectTotal, committed, candidate decimal.Decimal) error {
	if committed.Add(candidate).GreaterThan(projectTotal) {
		return BudgetExceeded("CheckBudget", Remaining(projectTotal, committed))
	}
	return nil
}

// Remaining returns the unallocated budget, floored at zero
func Remaining(projectTotal, committed decimal.Decimal) decimal.Decimal {
	remaining := projectTotal.Sub(committed)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// ValidateLineItems checks the shape of an invoice's services
func ValidateLineItems(services []LineItem) error {
	if len(services) == 0 {
		return Errorf(KindValidation, "ValidateLineItems", "at least one service is required")
	}
	for i, item := range services {
		if strings.TrimSpace(item.Description) == "" {
			return Errorf(KindValidation, "ValidateLineItems", "service %d: description is required", i+1)
		}
		if item.Amount.IsNegative() {
			return Errorf(KindValidation, "ValidateLineItems", "service %d: amount must not be negative", i+1)
		}
		if item.Hours != nil && item.Hours.IsNegative() {
			return Errorf(KindValidation, "ValidateLineItems", "service %d: hours must not be negative", i+1)
		}
		if item.Rate != nil && item.Rate.IsNegative() {
			return Errorf(KindValidation, "ValidateLineItems", "service %d: rate must not be negative", i+1)
		}
	}
	return nil
}

// ValidateGSTPercentage checks that a tax rate is within 0-100
func ValidateGSTPercentage(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return Errorf(KindValidation, "ValidateGSTPercentage", "gst percentage must be between 0 and 100, got %s", pct.String())
	}
	return nil
}
