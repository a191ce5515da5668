package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
)

// CreateRequest holds the inputs for issuing a new draft invoice. Optional
// fields fall back to the injected settings and the project's currency.
type CreateRequest struct {
	ProjectID      string             `json:"project_id"`
	Services       []billing.LineItem `json:"services"`
	GSTPercentage  *decimal.Decimal   `json:"gst_percentage,omitempty"`
	IncludeGST     *bool              `json:"include_gst,omitempty"`
	Currency       string             `json:"currency,omitempty"`
	IssueDate      *time.Time         `json:"issue_date,omitempty"`
	DueDate        *time.Time         `json:"due_date,omitempty"`
	PaymentMethod  string             `json:"payment_method,omitempty"`
	BankAccountID  string             `json:"bank_account_id,omitempty"`
	PaymentDetails string             `json:"payment_details,omitempty"`
	Notes          string             `json:"notes,omitempty"`
}

// UpdateRequest patches a draft invoice. Nil fields are left unchanged.
type UpdateRequest struct {
	Services       []billing.LineItem `json:"services,omitempty"`
	GSTPercentage  *decimal.Decimal   `json:"gst_percentage,omitempty"`
	IncludeGST     *bool              `json:"include_gst,omitempty"`
	Currency       *string            `json:"currency,omitempty"`
	IssueDate      *time.Time         `json:"issue_date,omitempty"`
	DueDate        *time.Time         `json:"due_date,omitempty"`
	PaymentMethod  *string            `json:"payment_method,omitempty"`
	BankAccountID  *string            `json:"bank_account_id,omitempty"`
	PaymentDetails *string            `json:"payment_details,omitempty"`
	Notes          *string            `json:"notes,omitempty"`
}

func (r UpdateRequest) changesTotals() bool {
	return r.Services != nil || r.GSTPercentage != nil || r.IncludeGST != nil
}

// TransitionRequest moves an invoice to a new status
type TransitionRequest struct {
	Status billing.InvoiceStatus `json:"status"`
	Remark string                `json:"remark,omitempty"`

	// PaidDate overrides the payment date for paid transitions
	PaidDate *time.Time `json:"paid_date,omitempty"`

	// PaidAmountDelta is required and must be positive for partial transitions
	PaidAmountDelta *decimal.Decimal `json:"paid_amount_delta,omitempty"`

	// IfStatus, when set, applies the transition only to a live invoice
	// currently in that status
	IfStatus billing.InvoiceStatus `json:"if_status,omitempty"`
}

// DeleteResult reports how an invoice was removed
type DeleteResult struct {
	// HardDeleted is set when a draft was physically removed
	HardDeleted bool `json:"hard_deleted"`

	// Invoice is the soft-deleted invoice, or the draft as it was before removal
	Invoice *billing.Invoice `json:"invoice"`
}
