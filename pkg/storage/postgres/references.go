package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

const bankAccountColumns = `id, account_name, bank_name, account_number, ifsc, branch, upi_id, is_default`

func scanBankAccount(row rowScanner) (*billing.BankAccount, error) {
	var b billing.BankAccount
	err := row.Scan(&b.ID, &b.AccountName, &b.BankName, &b.AccountNumber, &b.IFSC, &b.Branch, &b.UPIID, &b.IsDefault)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get bank account: %w", err)
	}
	return &b, nil
}

// GetClient implements storage.ReferenceReader
func (s *Store) GetClient(ctx context.Context, id string) (*billing.Client, error) {
	query := `SELECT id, name, email, phone, address, gstin FROM clients WHERE id = $1`

	var c billing.Client
	err := s.conns.Replica().QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.GSTIN)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}

// GetBankAccount implements storage.ReferenceReader
func (s *Store) GetBankAccount(ctx context.Context, id string) (*billing.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE id = $1`
	return scanBankAccount(s.conns.Replica().QueryRowContext(ctx, query, id))
}

// GetDefaultBankAccount implements storage.ReferenceReader
func (s *Store) GetDefaultBankAccount(ctx context.Context) (*billing.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE is_default ORDER BY id LIMIT 1`
	return scanBankAccount(s.conns.Replica().QueryRowContext(ctx, query))
}

// GetCompanyProfile implements storage.ReferenceReader
func (s *Store) GetCompanyProfile(ctx context.Context) (*billing.CompanyProfile, error) {
	query := `
		SELECT name, address, email, phone, gstin, pan, website, signatory_name, signatory_title
		FROM company_profile
		WHERE id = 1
	`

	var c billing.CompanyProfile
	err := s.conns.Replica().QueryRowContext(ctx, query).Scan(
		&c.Name, &c.Address, &c.Email, &c.Phone, &c.GSTIN, &c.PAN, &c.Website, &c.SignatoryName, &c.SignatoryTitle,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get company profile: %w", err)
	}
	return &c, nil
}
