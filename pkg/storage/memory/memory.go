// Package memory implements storage.Store with mutex-guarded maps. It is used
// by tests and by the server when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

// Store keeps every record in memory. All values are cloned on the way in
// and out so callers never share state with the store.
type Store struct {
	mu           sync.RWMutex
	projects     map[string]*billing.Project
	invoices     map[string]*billing.Invoice
	payments     []*billing.Payment
	clients      map[string]*billing.Client
	bankAccounts map[string]*billing.BankAccount
	company      *billing.CompanyProfile
	now          func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		projects:     make(map[string]*billing.Project),
		invoices:     make(map[string]*billing.Invoice),
		clients:      make(map[string]*billing.Client),
		bankAccounts: make(map[string]*billing.BankAccount),
		now:          time.Now,
	}
}

// PutProject inserts or replaces a project
func (s *Store) PutProject(p billing.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = &p
}

// PutClient inserts or replaces a client
func (s *Store) PutClient(c billing.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID] = &c
}

// PutBankAccount inserts or replaces a bank account
func (s *Store) PutBankAccount(b billing.BankAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bankAccounts[b.ID] = &b
}

// SetCompanyProfile replaces the company profile
func (s *Store) SetCompanyProfile(c billing.CompanyProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.company = &c
}

// GetProject implements storage.ProjectReader
func (s *Store) GetProject(ctx context.Context, id string) (*billing.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *p
	return &out, nil
}

// CommittedSubtotal implements storage.ProjectReader
func (s *Store) CommittedSubtotal(ctx context.Context, projectID, excludeInvoiceID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, inv := range s.invoices {
		if inv.ProjectID != projectID || inv.ID == excludeInvoiceID || !inv.Commits() {
			continue
		}
		sum = sum.Add(inv.Subtotal)
	}
	return sum, nil
}

// GetInvoice implements storage.InvoiceReader
func (s *Store) GetInvoice(ctx context.Context, id string) (*billing.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return inv.Clone(), nil
}

// ListInvoices implements storage.InvoiceReader
func (s *Store) ListInvoices(ctx context.Context, filter storage.InvoiceFilter) ([]*billing.Invoice, error) {
	s.mu.RLock()
	out := make([]*billing.Invoice, 0)
	for _, inv := range s.invoices {
		if filter.ProjectID != "" && inv.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if inv.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		out = append(out, inv.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].InvoiceNumber > out[j].InvoiceNumber
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return paginate(out, filter.Limit, filter.Offset), nil
}

// ListOverdueCandidates implements storage.InvoiceReader
func (s *Store) ListOverdueCandidates(ctx context.Context, before time.Time, limit, offset int) ([]*billing.Invoice, error) {
	s.mu.RLock()
	out := make([]*billing.Invoice, 0)
	for _, inv := range s.invoices {
		if inv.Status == billing.InvoiceStatusSent && !inv.IsDeleted && inv.DueDate.Before(before) {
			out = append(out, inv.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return paginate(out, limit, offset), nil
}

func paginate(in []*billing.Invoice, limit, offset int) []*billing.Invoice {
	if offset > 0 {
		if offset >= len(in) {
			return []*billing.Invoice{}
		}
		in = in[offset:]
	}
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}

// CreateInvoice implements storage.InvoiceWriter
func (s *Store) CreateInvoice(ctx context.Context, inv *billing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invoices[inv.ID]; exists {
		return fmt.Errorf("invoice %s already exists", inv.ID)
	}
	for _, existing := range s.invoices {
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return fmt.Errorf("invoice number %s already issued", inv.InvoiceNumber)
		}
	}

	now := s.now()
	inv.Version = 1
	inv.CreatedAt = now
	inv.UpdatedAt = now
	s.invoices[inv.ID] = inv.Clone()
	return nil
}

// UpdateInvoice implements storage.InvoiceWriter
func (s *Store) UpdateInvoice(ctx context.Context, inv *billing.Invoice, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.invoices[inv.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if current.Version != expectedVersion {
		return storage.ErrVersionConflict
	}

	inv.Version = expectedVersion + 1
	inv.CreatedAt = current.CreatedAt
	inv.UpdatedAt = s.now()
	s.invoices[inv.ID] = inv.Clone()
	return nil
}

// DeleteInvoice implements storage.InvoiceWriter
func (s *Store) DeleteInvoice(ctx context.Context, id string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.invoices[id]
	if !ok {
		return storage.ErrNotFound
	}
	if current.Version != expectedVersion {
		return storage.ErrVersionConflict
	}
	delete(s.invoices, id)
	return nil
}

// CreatePayment implements storage.PaymentStore
func (s *Store) CreatePayment(ctx context.Context, p *billing.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.CreatedAt = s.now()
	stored := *p
	s.payments = append(s.payments, &stored)
	return nil
}

// ListPayments implements storage.PaymentStore
func (s *Store) ListPayments(ctx context.Context, projectID string) ([]*billing.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*billing.Payment, 0)
	for _, p := range s.payments {
		if p.ProjectID == projectID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// GetClient implements storage.ReferenceReader
func (s *Store) GetClient(ctx context.Context, id string) (*billing.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *c
	return &out, nil
}

// GetBankAccount implements storage.ReferenceReader
func (s *Store) GetBankAccount(ctx context.Context, id string) (*billing.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bankAccounts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *b
	return &out, nil
}

// GetDefaultBankAccount implements storage.ReferenceReader
func (s *Store) GetDefaultBankAccount(ctx context.Context) (*billing.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.bankAccounts))
	for id, b := range s.bankAccounts {
		if b.IsDefault {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, storage.ErrNotFound
	}
	sort.Strings(ids)
	out := *s.bankAccounts[ids[0]]
	return &out, nil
}

// GetCompanyProfile implements storage.ReferenceReader
func (s *Store) GetCompanyProfile(ctx context.Context) (*billing.CompanyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.company == nil {
		return nil, storage.ErrNotFound
	}
	out := *s.company
	return &out, nil
}

// HealthCheck always succeeds
func (s *Store) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}
