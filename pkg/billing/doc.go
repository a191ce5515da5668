// Package billing holds the domain model of project invoicing and the pure
// calculations applied to it.
//
// # Overview
//
// Projects carry a tax-exclusive budget ceiling. Invoices are issued against
// that budget, each holding line items whose amounts are summed into a
// subtotal, taxed by a GST percentage and totalled. All money is represented
// with shopspring/decimal and rounded half-up to two places.
//
// # Budget Commitment
//
// A project's commitment is the sum of subtotals over its invoices that are
// neither cancelled nor soft-deleted. CheckBudget compares the commitment plus
// a candidate subtotal against the ceiling and fails with a BudgetExceeded
// error carrying the remaining amount.
//
// The check is advisory: it runs before the write and is not atomic with it.
// Two issuers racing on the same project can both pass and overrun the budget.
//
// # Errors
//
// Every failure surfaced by the billing engine is an *Error with a stable Kind.
// Use errors.Is against the Err* sentinels, or KindOf to branch on the kind:
//
//	totals := billing.ComputeTotals(services, decimal.NewFromInt(18), true)
//	if err := billing.CheckBudget(project.TotalAmount, committed, totals.Subtotal); err != nil {
//		var be *billing.Error
//		if errors.As(err, &be) && be.Kind == billing.KindBudgetExceeded {
//			fmt.Println("remaining:", be.Remaining.StringFixed(2))
//		}
//	}
//
// Only KindSequenceUnavailable, KindStorageUnavailable and KindConflict are
// safe to retry unchanged.
//
// # Related Packages
//
//   - pkg/lifecycle: invoice state machine built on these types
//   - pkg/sequence: invoice numbering
//   - pkg/render: PDF documents
package billing
