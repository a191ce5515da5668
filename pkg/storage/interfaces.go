package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict is returned when a conditional write finds the
	// record at a different version than expected
	ErrVersionConflict = errors.New("version conflict")
)

// ProjectReader provides read access to projects and their budget commitment
type ProjectReader interface {
	GetProject(ctx context.Context, id string) (*billing.Project, error)

	// CommittedSubtotal sums the subtotal of the project's invoices that are
	// neither cancelled nor soft-deleted. excludeInvoiceID, when non-empty,
	// is left out of the sum.
	CommittedSubtotal(ctx context.Context, projectID, excludeInvoiceID string) (decimal.Decimal, error)
}

// InvoiceReader provides read access to invoices
type InvoiceReader interface {
	GetInvoice(ctx context.Context, id string) (*billing.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]*billing.Invoice, error)

	// ListOverdueCandidates returns sent, non-deleted invoices whose due date
	// is before the given day, ordered by due date
	ListOverdueCandidates(ctx context.Context, before time.Time, limit, offset int) ([]*billing.Invoice, error)
}

// InvoiceWriter provides versioned writes to invoices
type InvoiceWriter interface {
	// CreateInvoice inserts a new invoice at version 1
	CreateInvoice(ctx context.Context, inv *billing.Invoice) error

	// UpdateInvoice writes inv only if the stored version equals
	// expectedVersion, then sets inv.Version to expectedVersion+1
	UpdateInvoice(ctx context.Context, inv *billing.Invoice, expectedVersion int64) error

	// DeleteInvoice physically removes an invoice at the expected version
	DeleteInvoice(ctx context.Context, id string, expectedVersion int64) error
}

// PaymentStore persists the append-only payment ledger
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *billing.Payment) error
	ListPayments(ctx context.Context, projectID string) ([]*billing.Payment, error)
}

// ReferenceReader provides the read-only reference data used on documents
// and notifications
type ReferenceReader interface {
	GetClient(ctx context.Context, id string) (*billing.Client, error)
	GetBankAccount(ctx context.Context, id string) (*billing.BankAccount, error)
	GetDefaultBankAccount(ctx context.Context) (*billing.BankAccount, error)
	GetCompanyProfile(ctx context.Context) (*billing.CompanyProfile, error)
}

// InvoiceStore combines invoice reads and writes
type InvoiceStore interface {
	InvoiceReader
	InvoiceWriter
}

// Store is the full persistence surface of the billing engine
type Store interface {
	ProjectReader
	InvoiceStore
	PaymentStore
	ReferenceReader
	HealthCheck(ctx context.Context) error
	Close() error
}

// InvoiceFilter narrows ListInvoices
type InvoiceFilter struct {
	ProjectID      string
	Status         billing.InvoiceStatus
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// Config for storage backend
type Config struct {
	Type string // "memory", "postgres"

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs []string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration

	// Redis config
	RedisURL        string
	RedisPassword   string
	RedisDB         int
	RedisMaxRetries int
	RedisPoolSize   int

	// S3 config for the rendered document archive
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool

	// SQLite file for the embedded sequence counter
	SQLitePath string
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		RedisDB:          0,
		RedisMaxRetries:  3,
		RedisPoolSize:    10,
		S3Region:         "us-east-1",
		SQLitePath:       "billing-sequence.db",
	}
}
