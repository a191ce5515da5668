// Package lifecycle implements the invoice state machine: issuing drafts
// against a project budget, editing drafts, status transitions with an
// append-only history, reversible deletion, restore and duplication.
//
// # Overview
//
// Manager is the only writer of invoices. Every mutation reads the invoice,
// applies the change and writes it back conditionally on the version it
// read. A lost race is retried from a fresh read a bounded number of times
// before the caller sees a Conflict error.
//
// Budget checks read the project's committed subtotal before the write and
// are not atomic with it. Two concurrent issuers can both pass the check and
// jointly overrun the budget; callers needing a hard ceiling must serialise
// issuance per project.
//
// Create, budget-changing updates, duplication and moving an invoice out of
// cancelled are all checked. Restore is not: it may knowingly bring a
// soft-deleted invoice back over budget.
//
// # Usage Example
//
//	manager := lifecycle.NewManager(lifecycle.Deps{
//		Projects: store,
//		Invoices: store,
//		Numbers:  sequence.NewNumberer(counter, settings),
//		Notifier: notifier,
//		Settings: settings,
//		Logger:   logger,
//		Metrics:  metrics,
//	})
//
//	inv, err := manager.Create(ctx, lifecycle.CreateRequest{
//		ProjectID: "p1",
//		Services:  []billing.LineItem{{Description: "Design", Amount: decimal.NewFromInt(6000)}},
//	})
//	if billing.KindOf(err) == billing.KindBudgetExceeded {
//		// err.(*billing.Error).Remaining holds the unallocated budget
//	}
//
// # Notifications
//
// Transitions into cancelled, overdue or paid hand the invoice id to the
// Notifier on a detached goroutine. Delivery failures are logged and never
// roll back the transition.
//
// # Related Packages
//
//   - pkg/billing: totals, budget check and typed errors
//   - pkg/sequence: invoice numbering
//   - pkg/notify: notification fan-out
//   - pkg/sweep: overdue transitions on a schedule
package lifecycle
