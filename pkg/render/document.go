package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
)

const dateFormat = "02 Jan 2006"

// Snapshot is everything a document is rendered from. GeneratedAt is the
// only clock input, so equal snapshots produce equal documents.
type Snapshot struct {
	Invoice     *billing.Invoice
	Project     *billing.Project
	Client      *billing.Client
	BankAccount *billing.BankAccount
	Company     *billing.CompanyProfile
	GeneratedAt time.Time
}

// Field is a labelled value
type Field struct {
	Label string
	Value string
}

// SummaryRow is a totals row printed under the line item grid. The label
// spans every column but the last.
type SummaryRow struct {
	Label    string
	Value    string
	Emphasis bool
}

// Document is the laid-out content of an invoice, independent of the output
// format
type Document struct {
	Title       string
	Ribbon      Ribbon
	Company     []string
	Meta        []Field
	BillTo      []string
	Layout      Layout
	Headers     []string
	Rows        [][]string
	Summary     []SummaryRow
	Payment     []Field
	Notes       string
	Signatory   []string
	GeneratedAt time.Time
}

// Build lays out a snapshot. It fails with RenderFailure when the project is
// missing or there is neither a bank account nor free-text payment details.
func Build(snap Snapshot) (*Document, error) {
	const op = "Render"
	inv := snap.Invoice
	if inv == nil {
		return nil, billing.Errorf(billing.KindRenderFailure, op, "invoice is required")
	}
	if snap.Project == nil {
		return nil, billing.Errorf(billing.KindRenderFailure, op, "project %s for invoice %s is missing", inv.ProjectID, inv.InvoiceNumber)
	}
	if snap.BankAccount == nil && strings.TrimSpace(inv.PaymentDetails) == "" {
		return nil, billing.Errorf(billing.KindRenderFailure, op, "invoice %s has no bank account or payment details", inv.InvoiceNumber)
	}

	company := billing.CompanyProfile{}
	if snap.Company != nil {
		company = *snap.Company
	}
	layout := SelectLayout(snap.Project)

	doc := &Document{
		Title:       "INVOICE",
		Ribbon:      StatusRibbon(inv.Status),
		Company:     companyLines(company),
		Meta:        metaFields(inv, snap.Project),
		BillTo:      clientLines(snap.Client),
		Layout:      layout,
		Headers:     layout.headers(),
		Summary:     summaryRows(inv),
		Payment:     paymentFields(inv, snap.BankAccount),
		Notes:       strings.TrimSpace(inv.Notes),
		Signatory:   signatoryLines(company),
		GeneratedAt: snap.GeneratedAt.UTC(),
	}
	if inv.IncludeGST {
		doc.Title = "TAX INVOICE"
	}

	doc.Rows = make([][]string, 0, len(inv.Services))
	for _, item := range inv.Services {
		doc.Rows = append(doc.Rows, layout.cells(item, inv.Currency))
	}
	return doc, nil
}

func companyLines(c billing.CompanyProfile) []string {
	lines := []string{c.Name}
	lines = appendNonEmpty(lines, c.Address)
	lines = appendNonEmpty(lines, joinNonEmpty(" | ", c.Email, c.Phone, c.Website))
	if c.GSTIN != "" {
		lines = append(lines, "GSTIN: "+c.GSTIN)
	}
	if c.PAN != "" {
		lines = append(lines, "PAN: "+c.PAN)
	}
	return lines
}

func metaFields(inv *billing.Invoice, p *billing.Project) []Field {
	fields := []Field{
		{Label: "Invoice No", Value: inv.InvoiceNumber},
		{Label: "Issue Date", Value: inv.IssueDate.Format(dateFormat)},
		{Label: "Due Date", Value: inv.DueDate.Format(dateFormat)},
		{Label: "Project", Value: p.Name},
	}
	if inv.PaidDate != nil && inv.Status == billing.InvoiceStatusPaid {
		fields = append(fields, Field{Label: "Paid On", Value: inv.PaidDate.Format(dateFormat)})
	}
	return fields
}

func clientLines(c *billing.Client) []string {
	if c == nil {
		return []string{"-"}
	}
	lines := []string{c.Name}
	lines = appendNonEmpty(lines, c.Address)
	lines = appendNonEmpty(lines, joinNonEmpty(" | ", c.Email, c.Phone))
	if c.GSTIN != "" {
		lines = append(lines, "GSTIN: "+c.GSTIN)
	}
	return lines
}

func summaryRows(inv *billing.Invoice) []SummaryRow {
	rows := []SummaryRow{{Label: "Subtotal", Value: FormatMoney(inv.Subtotal, inv.Currency)}}
	// the tax row is always shown; excluded GST reads as 0%
	rate, tax := inv.GSTPercentage, inv.GSTAmount
	if !inv.IncludeGST {
		rate, tax = decimal.Zero, decimal.Zero
	}
	rows = append(rows, SummaryRow{
		Label: fmt.Sprintf("GST (%s%%)", rate.String()),
		Value: FormatMoney(tax, inv.Currency),
	})
	rows = append(rows, SummaryRow{Label: "Grand Total", Value: FormatMoney(inv.TotalAmount, inv.Currency), Emphasis: true})

	if inv.PaidAmount.IsPositive() && inv.Status != billing.InvoiceStatusPaid {
		rows = append(rows,
			SummaryRow{Label: "Amount Paid", Value: FormatMoney(inv.PaidAmount, inv.Currency)},
			SummaryRow{Label: "Balance Due", Value: FormatMoney(inv.BalanceDue, inv.Currency), Emphasis: true},
		)
	}
	return rows
}

func paymentFields(inv *billing.Invoice, bank *billing.BankAccount) []Field {
	var fields []Field
	if inv.PaymentMethod != "" {
		fields = append(fields, Field{Label: "Payment Method", Value: inv.PaymentMethod})
	}
	if bank != nil {
		fields = append(fields,
			Field{Label: "Account Name", Value: bank.AccountName},
			Field{Label: "Bank", Value: bank.BankName},
			Field{Label: "Account Number", Value: bank.AccountNumber},
		)
		if bank.IFSC != "" {
			fields = append(fields, Field{Label: "IFSC", Value: bank.IFSC})
		}
		if bank.Branch != "" {
			fields = append(fields, Field{Label: "Branch", Value: bank.Branch})
		}
		if bank.UPIID != "" {
			fields = append(fields, Field{Label: "UPI", Value: bank.UPIID})
		}
	}
	if details := strings.TrimSpace(inv.PaymentDetails); details != "" {
		fields = append(fields, Field{Label: "Payment Details", Value: details})
	}
	return fields
}

func signatoryLines(c billing.CompanyProfile) []string {
	lines := []string{"For " + c.Name}
	lines = appendNonEmpty(lines, c.SignatoryName)
	lines = appendNonEmpty(lines, c.SignatoryTitle)
	return lines
}

func appendNonEmpty(lines []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		return append(lines, s)
	}
	return lines
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
