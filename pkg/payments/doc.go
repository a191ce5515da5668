// Package payments keeps the append-only payment ledger of each project and
// reconciles it against invoice paid amounts.
package payments
