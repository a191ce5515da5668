// Package sequence issues collision-free invoice numbers.
//
// # Overview
//
// A Counter is a single persisted integer incremented with one atomic
// increment-and-fetch primitive. Read-then-write is never used. A Numberer
// formats each value as {prefix}-{fiscalYear}/{seq:04d}, for example
// INV-2025-26/0042.
//
// Backends:
//
//   - RedisCounter: INCR on a well-known key
//   - SQLCounter: INSERT ... ON CONFLICT DO UPDATE ... RETURNING on the
//     billing_settings row (PostgreSQL)
//   - SQLiteCounter: the same upsert on an embedded SQLite file
//   - MemoryCounter: sync/atomic, for tests
//
// # Failure Mode
//
// Any counter error makes NextInvoiceNumber fail with a
// billing.KindSequenceUnavailable error and no number is issued. The kind is
// retryable.
//
// # Fiscal Year
//
// The fiscal year label is computed from the current date in the configured
// timezone. With an April start, April-December of Y is "Y-(Y+1)" and
// January-March of Y is "(Y-1)-Y", both with a two-digit second year.
// The counter itself is never reset when the fiscal year rolls over.
//
// # Usage Example
//
//	counter := sequence.NewRedisCounter(redisClient, sequence.DefaultRedisKey)
//	numberer := sequence.NewNumberer(counter, billing.DefaultSettings())
//	number, err := numberer.NextInvoiceNumber(ctx)
//
// # Related Packages
//
//   - pkg/lifecycle: consumes Numberer when creating or duplicating invoices
package sequence
