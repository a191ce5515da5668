// Package storage defines the persistence contracts of the billing engine.
//
// # Overview
//
// The storage layer uses interface segregation so each consumer depends only
// on what it reads or writes:
//
//   - ProjectReader: projects and the committed-subtotal budget query
//   - InvoiceReader / InvoiceWriter: invoices, with versioned writes
//   - PaymentStore: the append-only payment ledger
//   - ReferenceReader: clients, bank accounts and the company profile
//
// These compose into Store, implemented by:
//
//   - memory.Store: mutex-guarded maps, for tests and local development
//   - postgres.Store: lib/pq with raw SQL
//
// # Optimistic Concurrency
//
// Every invoice carries a version. UpdateInvoice and DeleteInvoice succeed
// only when the stored version matches the caller's expectation and return
// ErrVersionConflict otherwise. The lifecycle manager re-reads and retries on
// conflict, which serializes operations per invoice without locks.
//
// # Errors
//
// Backends return ErrNotFound for missing records and wrap driver errors with
// fmt.Errorf("failed to ...: %w", err). Mapping to billing error kinds
// happens in the callers.
//
// # Related Packages
//
//   - pkg/storage/memory: in-memory implementation
//   - pkg/storage/postgres: PostgreSQL implementation, Redis client, S3 archive
package storage
