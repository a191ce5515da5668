// Package sweep marks past-due invoices as overdue.
//
// A run lists sent, live invoices whose due date is before the start of
// today in the configured timezone and transitions each one to overdue
// through the lifecycle manager, so history, metrics and client
// notifications behave exactly as for a manual transition. Invoices that
// changed status after being listed are skipped.
package sweep
