package billing

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the lifecycle state of an invoice
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusPartial   InvoiceStatus = "partial"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

var invoiceStatuses = map[InvoiceStatus]struct{}{
	InvoiceStatusDraft:     {},
	InvoiceStatusSent:      {},
	InvoiceStatusPaid:      {},
	InvoiceStatusPartial:   {},
	InvoiceStatusOverdue:   {},
	InvoiceStatusCancelled: {},
}

// Valid reports whether s is one of the known invoice statuses
func (s InvoiceStatus) Valid() bool {
	_, ok := invoiceStatuses[s]
	return ok
}

// Notifies reports whether entering s should produce a client notification
func (s InvoiceStatus) Notifies() bool {
	return s == InvoiceStatusCancelled || s == InvoiceStatusOverdue || s == InvoiceStatusPaid
}

// ParseInvoiceStatus converts a raw value into an InvoiceStatus
func ParseInvoiceStatus(raw string) (InvoiceStatus, error) {
	s := InvoiceStatus(raw)
	if !s.Valid() {
		return "", Errorf(KindInvalidStatus, "ParseInvoiceStatus", "unknown invoice status %q", raw)
	}
	return s, nil
}

// ProjectType describes the commercial terms of a project
type ProjectType string

const (
	ProjectTypeFixedContract   ProjectType = "fixed_contract"
	ProjectTypeHourlyBilling   ProjectType = "hourly_billing"
	ProjectTypeMonthlyRetainer ProjectType = "monthly_retainer"
)

// AllocationType describes how work on a project is itemised
type AllocationType string

const (
	AllocationOverall       AllocationType = "overall"
	AllocationEmployeeBased AllocationType = "employee_based"
)

// Project is a client engagement with a tax-exclusive budget ceiling
type Project struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	ClientID       string          `json:"client_id"`
	ProjectType    ProjectType     `json:"project_type"`
	AllocationType AllocationType  `json:"allocation_type"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LineItem is a single billable service on an invoice. Hours, Rate and
// TeamRole are only meaningful for employee-based projects.
type LineItem struct {
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Hours       *decimal.Decimal `json:"hours,omitempty"`
	Rate        *decimal.Decimal `json:"rate,omitempty"`
	TeamRole    string           `json:"team_role,omitempty"`
}

// StatusEvent is one entry of an invoice's append-only status history
type StatusEvent struct {
	Status InvoiceStatus `json:"status"`
	Remark string        `json:"remark,omitempty"`
	Date   time.Time     `json:"date"`
}

// Invoice represents an invoice issued against a project budget
type Invoice struct {
	ID             string          `json:"id"`
	InvoiceNumber  string          `json:"invoice_number"`
	ProjectID      string          `json:"project_id"`
	Services       []LineItem      `json:"services"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	GSTPercentage  decimal.Decimal `json:"gst_percentage"`
	GSTAmount      decimal.Decimal `json:"gst_amount"`
	IncludeGST     bool            `json:"include_gst"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
	Status         InvoiceStatus   `json:"status"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	BalanceDue     decimal.Decimal `json:"balance_due"`
	PaidDate       *time.Time      `json:"paid_date,omitempty"`
	IssueDate      time.Time       `json:"issue_date"`
	DueDate        time.Time       `json:"due_date"`
	StatusHistory  []StatusEvent   `json:"status_history"`
	IsDeleted      bool            `json:"is_deleted"`
	DeletionRemark string          `json:"deletion_remark,omitempty"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	BankAccountID  string          `json:"bank_account_id,omitempty"`
	PaymentDetails string          `json:"payment_details,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Commits reports whether the invoice counts towards its project's budget commitment
func (inv *Invoice) Commits() bool {
	return !inv.IsDeleted && inv.Status != InvoiceStatusCancelled
}

// AppendStatus records a status event. History entries are never edited in place.
func (inv *Invoice) AppendStatus(status InvoiceStatus, remark string, at time.Time) {
	inv.StatusHistory = append(inv.StatusHistory, StatusEvent{
		Status: status,
		Remark: remark,
		Date:   at,
	})
}

// Clone returns a deep copy of the invoice
func (inv *Invoice) Clone() *Invoice {
	if inv == nil {
		return nil
	}
	out := *inv
	out.Services = CloneLineItems(inv.Services)
	out.StatusHistory = append([]StatusEvent(nil), inv.StatusHistory...)
	if inv.PaidDate != nil {
		paid := *inv.PaidDate
		out.PaidDate = &paid
	}
	return &out
}

// CloneLineItems deep copies a slice of line items
func CloneLineItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = item
		if item.Hours != nil {
			h := *item.Hours
			out[i].Hours = &h
		}
		if item.Rate != nil {
			r := *item.Rate
			out[i].Rate = &r
		}
	}
	return out
}

// Payment is an entry in the append-only payment ledger
type Payment struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	InvoiceID string          `json:"invoice_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Date      time.Time       `json:"date"`
	Reference string          `json:"reference,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Client is the billed party of a project
type Client struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	GSTIN   string `json:"gstin,omitempty"`
}

// BankAccount holds the remittance details printed on invoices
type BankAccount struct {
	ID            string `json:"id"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	IFSC          string `json:"ifsc,omitempty"`
	Branch        string `json:"branch,omitempty"`
	UPIID         string `json:"upi_id,omitempty"`
	IsDefault     bool   `json:"is_default"`
}

// CompanyProfile describes the issuing business
type CompanyProfile struct {
	Name           string `json:"name"`
	Address        string `json:"address,omitempty"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	GSTIN          string `json:"gstin,omitempty"`
	PAN            string `json:"pan,omitempty"`
	Website        string `json:"website,omitempty"`
	SignatoryName  string `json:"signatory_name,omitempty"`
	SignatoryTitle string `json:"signatory_title,omitempty"`
}

// Settings is the singleton configuration record consulted when issuing invoices
type Settings struct {
	InvoicePrefix        string
	FiscalYearStartMonth time.Month
	Location             *time.Location
	DefaultGSTPercentage decimal.Decimal
	DefaultDueDays       int
}

// DefaultSettings returns the settings used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		InvoicePrefix:        "INV",
		FiscalYearStartMonth: time.April,
		Location:             time.UTC,
		DefaultGSTPercentage: decimal.NewFromInt(18),
		DefaultDueDays:       15,
	}
}

// ProjectBudget summarises how much of a project's budget is committed
type ProjectBudget struct {
	ProjectID string          `json:"project_id"`
	Total     decimal.Decimal `json:"total"`
	Committed decimal.Decimal `json:"committed"`
	Remaining decimal.Decimal `json:"remaining"`
}
