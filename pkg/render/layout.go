package render

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
)

// LayoutKind names one of the closed set of line item layouts
type LayoutKind string

const (
	LayoutStandard      LayoutKind = "standard"
	LayoutEmployeeBased LayoutKind = "employee_based"
)

// Column is one column of the line item grid. Widths are in millimetres and
// always add up to the printable width of an A4 page.
type Column struct {
	Header string
	Width  float64
	Align  string
}

// Layout describes the line item grid of a document
type Layout struct {
	Kind    LayoutKind
	Columns []Column
}

var (
	// StandardLayout prints one description and one amount per service
	StandardLayout = Layout{
		Kind: LayoutStandard,
		Columns: []Column{
			{Header: "Description", Width: 140, Align: "L"},
			{Header: "Amount", Width: 40, Align: "R"},
		},
	}

	// EmployeeBasedLayout itemises services per team member
	EmployeeBasedLayout = Layout{
		Kind: LayoutEmployeeBased,
		Columns: []Column{
			{Header: "Role", Width: 32, Align: "L"},
			{Header: "Description", Width: 68, Align: "L"},
			{Header: "Hours", Width: 20, Align: "C"},
			{Header: "Rate", Width: 28, Align: "R"},
			{Header: "Amount", Width: 32, Align: "R"},
		},
	}
)

// SelectLayout picks the grid for a project. Employee-based allocation only
// changes the layout for hourly and retainer projects.
func SelectLayout(p *billing.Project) Layout {
	if p != nil && p.AllocationType == billing.AllocationEmployeeBased &&
		(p.ProjectType == billing.ProjectTypeHourlyBilling || p.ProjectType == billing.ProjectTypeMonthlyRetainer) {
		return EmployeeBasedLayout
	}
	return StandardLayout
}

// descriptionWidth is the merged width of every column but the last, used
// by summary rows
func (l Layout) descriptionWidth() float64 {
	w := 0.0
	for _, c := range l.Columns[:len(l.Columns)-1] {
		w += c.Width
	}
	return w
}

func (l Layout) amountWidth() float64 {
	return l.Columns[len(l.Columns)-1].Width
}

func (l Layout) headers() []string {
	out := make([]string, len(l.Columns))
	for i, c := range l.Columns {
		out[i] = c.Header
	}
	return out
}

// cells formats one line item for this layout
func (l Layout) cells(item billing.LineItem, currency string) []string {
	amount := FormatMoney(item.Amount, currency)
	switch l.Kind {
	case LayoutEmployeeBased:
		hours, rate := "-", "-"
		if item.Hours != nil {
			hours = item.Hours.StringFixed(2)
		}
		if item.Rate != nil {
			rate = FormatMoney(*item.Rate, currency)
		}
		role := item.TeamRole
		if role == "" {
			role = "-"
		}
		return []string{role, item.Description, hours, rate, amount}
	default:
		return []string{item.Description, amount}
	}
}

// Tone is the colour family of the status ribbon
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneDanger  Tone = "danger"
	ToneNeutral Tone = "neutral"
)

// RGB returns the fill colour for the tone
func (t Tone) RGB() (r, g, b int) {
	switch t {
	case ToneSuccess:
		return 22, 163, 74
	case ToneNeutral:
		return 107, 114, 128
	default:
		return 220, 38, 38
	}
}

// Ribbon is the status banner printed in the document header
type Ribbon struct {
	Label string
	Tone  Tone
}

// StatusRibbon maps an invoice status to its banner. Anything that is not
// settled or cancelled is shown as money owed.
func StatusRibbon(status billing.InvoiceStatus) Ribbon {
	switch status {
	case billing.InvoiceStatusPaid:
		return Ribbon{Label: "PAID", Tone: ToneSuccess}
	case billing.InvoiceStatusOverdue:
		return Ribbon{Label: "OVERDUE", Tone: ToneDanger}
	case billing.InvoiceStatusCancelled:
		return Ribbon{Label: "CANCELLED", Tone: ToneNeutral}
	case billing.InvoiceStatusPartial:
		return Ribbon{Label: "PARTIALLY PAID", Tone: ToneDanger}
	case billing.InvoiceStatusDraft:
		return Ribbon{Label: "DRAFT", Tone: ToneDanger}
	default:
		return Ribbon{Label: "UNPAID", Tone: ToneDanger}
	}
}

// CurrencySymbol returns the prefix printed before amounts. The core PDF
// fonts have no rupee glyph.
func CurrencySymbol(currency string) string {
	switch strings.ToUpper(currency) {
	case "USD":
		return "$"
	default:
		return "Rs."
	}
}

// FormatMoney renders an amount with its currency symbol, two decimals and
// digit grouping. Rupee amounts use lakh grouping (12,34,567.00).
func FormatMoney(amount decimal.Decimal, currency string) string {
	sym := CurrencySymbol(currency)
	s := amount.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var grouped string
	if sym == "Rs." {
		grouped = groupIndian(intPart)
	} else {
		grouped = groupThousands(intPart)
	}

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}
	if sym == "$" {
		return sign + sym + grouped + frac
	}
	return sign + sym + " " + grouped + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]
	var parts []string
	for len(head) > 2 {
		parts = append([]string{head[len(head)-2:]}, parts...)
		head = head[:len(head)-2]
	}
	if head != "" {
		parts = append([]string{head}, parts...)
	}
	return strings.Join(parts, ",") + "," + tail
}
