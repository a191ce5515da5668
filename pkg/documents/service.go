package documents

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/render"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

const (
	ContentTypePDF = "application/pdf"

	metaGeneratedAt   = "generated-at"
	metaInvoiceNumber = "invoice-number"
	metaLayout        = "layout"
)

// Document is a rendered invoice PDF
type Document struct {
	InvoiceID     string
	InvoiceNumber string
	Version       int64
	Layout        render.LayoutKind
	GeneratedAt   time.Time
	Data          []byte
}

// Config for the document service
type Config struct {
	// CacheEntries bounds the in-process cache. Zero disables it.
	CacheEntries int
	CacheTTL     time.Duration
}

// DefaultConfig returns the default document service configuration
func DefaultConfig() Config {
	return Config{
		CacheEntries: 256,
		CacheTTL:     time.Hour,
	}
}

// Stats reports cache effectiveness
type Stats struct {
	MemoryHits    int64   `json:"memory_hits"`
	ArchiveHits   int64   `json:"archive_hits"`
	Renders       int64   `json:"renders"`
	ItemCount     int     `json:"item_count"`
	MemoryHitRate float64 `json:"memory_hit_rate"`
}

// Deps wires a Service. Archive is optional.
type Deps struct {
	Invoices storage.InvoiceReader
	Projects storage.ProjectReader
	Refs     storage.ReferenceReader
	Archive  storage.ObjectStore
	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Config   Config
}

// Service renders invoice documents on demand. A rendered document is cached
// in memory and archived under invoices/{id}/v{version}.pdf. Every write to
// an invoice bumps its version, so cached documents never go stale.
type Service struct {
	invoices storage.InvoiceReader
	projects storage.ProjectReader
	refs     storage.ReferenceReader
	archive  storage.ObjectStore
	cache    *lru.LRU[string, *Document]
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	memoryHits  atomic.Int64
	archiveHits atomic.Int64
	renders     atomic.Int64
}

// NewService creates a document service
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Service{
		invoices: deps.Invoices,
		projects: deps.Projects,
		refs:     deps.Refs,
		archive:  deps.Archive,
		logger:   logger.WithComponent("documents"),
		metrics:  deps.Metrics,
		now:      time.Now,
	}
	if deps.Config.CacheEntries > 0 {
		s.cache = lru.NewLRU[string, *Document](deps.Config.CacheEntries, nil, deps.Config.CacheTTL)
	}
	return s
}

// ArchiveKey returns the object key of an invoice version
func ArchiveKey(invoiceID string, version int64) string {
	return fmt.Sprintf("invoices/%s/v%d.pdf", invoiceID, version)
}

func cacheKey(invoiceID string, version int64) string {
	return fmt.Sprintf("%s@%d", invoiceID, version)
}

// Get returns the document for the current version of an invoice, rendering
// it if neither the cache nor the archive has it
func (s *Service) Get(ctx context.Context, invoiceID string) (doc *Document, err error) {
	ctx, span := observability.StartSpan(ctx, "documents.Get", attribute.String("invoice_id", invoiceID))
	defer func() { observability.EndSpan(span, err) }()

	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, billing.Wrap(billing.KindInvoiceNotFound, "RenderInvoice", err)
		}
		return nil, billing.Wrap(billing.KindStorageUnavailable, "RenderInvoice", err)
	}
	logger := s.logger.WithInvoice(inv.ID, inv.InvoiceNumber)

	key := cacheKey(inv.ID, inv.Version)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			s.memoryHits.Add(1)
			s.metrics.DocumentCache("memory", true)
			return cached, nil
		}
		s.metrics.DocumentCache("memory", false)
	}

	if archived := s.fromArchive(ctx, inv, logger); archived != nil {
		s.remember(key, archived)
		return archived, nil
	}

	doc, err = s.render(ctx, inv)
	if err != nil {
		return nil, err
	}
	s.store(ctx, doc, logger)
	s.remember(key, doc)
	return doc, nil
}

// Snapshot resolves everything the renderer needs for an invoice. The
// project must exist; the bank account is the invoice's own, or the default
// one when the invoice names none.
func (s *Service) Snapshot(ctx context.Context, inv *billing.Invoice) (render.Snapshot, error) {
	const op = "RenderInvoice"
	snap := render.Snapshot{Invoice: inv, GeneratedAt: s.now().UTC()}

	project, err := s.projects.GetProject(ctx, inv.ProjectID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return snap, billing.Errorf(billing.KindRenderFailure, op, "project %s for invoice %s is missing", inv.ProjectID, inv.InvoiceNumber)
	case err != nil:
		return snap, billing.Wrap(billing.KindStorageUnavailable, op, err)
	}
	snap.Project = project

	client, err := s.refs.GetClient(ctx, project.ClientID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return snap, billing.Wrap(billing.KindStorageUnavailable, op, err)
	}
	snap.Client = client

	var bank *billing.BankAccount
	if inv.BankAccountID != "" {
		bank, err = s.refs.GetBankAccount(ctx, inv.BankAccountID)
	} else if inv.PaymentDetails == "" {
		bank, err = s.refs.GetDefaultBankAccount(ctx)
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return snap, billing.Wrap(billing.KindStorageUnavailable, op, err)
	}
	snap.BankAccount = bank

	company, err := s.refs.GetCompanyProfile(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return snap, billing.Wrap(billing.KindStorageUnavailable, op, err)
	}
	snap.Company = company

	return snap, nil
}

func (s *Service) render(ctx context.Context, inv *billing.Invoice) (*Document, error) {
	snap, err := s.Snapshot(ctx, inv)
	if err != nil {
		s.metrics.Render("", 0, err)
		return nil, err
	}

	layout := render.SelectLayout(snap.Project)
	start := time.Now()
	data, err := render.Render(snap)
	s.metrics.Render(string(layout.Kind), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	s.renders.Add(1)

	return &Document{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Version:       inv.Version,
		Layout:        layout.Kind,
		GeneratedAt:   snap.GeneratedAt,
		Data:          data,
	}, nil
}

func (s *Service) fromArchive(ctx context.Context, inv *billing.Invoice, logger *observability.Logger) *Document {
	if s.archive == nil {
		return nil
	}
	obj, err := s.archive.GetObject(ctx, ArchiveKey(inv.ID, inv.Version))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.WithError(err).Warn("Failed to read archived document, rendering instead")
		}
		s.metrics.DocumentCache("archive", false)
		return nil
	}
	s.archiveHits.Add(1)
	s.metrics.DocumentCache("archive", true)

	doc := &Document{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Version:       inv.Version,
		Layout:        render.LayoutKind(obj.Metadata[metaLayout]),
		Data:          obj.Data,
	}
	if ts, err := time.Parse(time.RFC3339, obj.Metadata[metaGeneratedAt]); err == nil {
		doc.GeneratedAt = ts
	}
	return doc
}

// store archives a freshly rendered document. Archive failures are logged;
// the caller still gets the document.
func (s *Service) store(ctx context.Context, doc *Document, logger *observability.Logger) {
	if s.archive == nil {
		return
	}
	err := s.archive.PutObject(ctx, ArchiveKey(doc.InvoiceID, doc.Version), &storage.Object{
		Data:        doc.Data,
		ContentType: ContentTypePDF,
		Metadata: map[string]string{
			metaGeneratedAt:   doc.GeneratedAt.Format(time.RFC3339),
			metaInvoiceNumber: doc.InvoiceNumber,
			metaLayout:        string(doc.Layout),
		},
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to archive rendered document")
	}
}

func (s *Service) remember(key string, doc *Document) {
	if s.cache != nil {
		s.cache.Add(key, doc)
	}
}

// Stats returns cache statistics
func (s *Service) Stats() Stats {
	stats := Stats{
		MemoryHits:  s.memoryHits.Load(),
		ArchiveHits: s.archiveHits.Load(),
		Renders:     s.renders.Load(),
	}
	if s.cache != nil {
		stats.ItemCount = s.cache.Len()
	}
	total := stats.MemoryHits + stats.ArchiveHits + stats.Renders
	if total > 0 {
		stats.MemoryHitRate = float64(stats.MemoryHits) / float64(total)
	}
	return stats
}
