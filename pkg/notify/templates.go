package notify

import (
	"fmt"
	"html"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
)

// Template is the content sent for one status on every channel
type Template struct {
	Subject string `yaml:"subject"`
	HTML    string `yaml:"html"`
	Message string `yaml:"message"`
}

// TemplateSet is the parsed templates file
type TemplateSet struct {
	Version   string                             `yaml:"version"`
	Templates map[billing.InvoiceStatus]Template `yaml:"templates"`
}

// Vars are the values substituted into template placeholders such as
// {client_name} or {invoice_number}
type Vars struct {
	ClientName     string
	InvoiceNumber  string
	CompanyName    string
	Amount         string
	DueDate        string
	ProjectName    string
	PaidDate       string
	DeletionRemark string
}

func (v Vars) replacer(escape func(string) string) *strings.Replacer {
	return strings.NewReplacer(
		"{client_name}", escape(v.ClientName),
		"{invoice_number}", escape(v.InvoiceNumber),
		"{company_name}", escape(v.CompanyName),
		"{amount}", escape(v.Amount),
		"{due_date}", escape(v.DueDate),
		"{project_name}", escape(v.ProjectName),
		"{paid_date}", escape(v.PaidDate),
		"{deletion_remark}", escape(v.DeletionRemark),
	)
}

// Rendered is a template with every placeholder substituted
type Rendered struct {
	Subject string
	HTML    string
	Message string
}

// Render substitutes vars into the template. Values are HTML-escaped in the
// HTML body only.
func (t Template) Render(v Vars) Rendered {
	plain := v.replacer(func(s string) string { return s })
	escaped := v.replacer(html.EscapeString)
	return Rendered{
		Subject: plain.Replace(t.Subject),
		HTML:    escaped.Replace(t.HTML),
		Message: plain.Replace(t.Message),
	}
}

// DefaultTemplates returns the built-in templates used when no file is
// configured or a status is missing from it
func DefaultTemplates() *TemplateSet {
	return &TemplateSet{
		Version: "v1",
		Templates: map[billing.InvoiceStatus]Template{
			billing.InvoiceStatusPaid: {
				Subject: "Payment received for invoice {invoice_number}",
				HTML: "<p>Dear {client_name},</p>" +
					"<p>We have received your payment of <strong>{amount}</strong> for invoice {invoice_number} " +
					"({project_name}) on {paid_date}. Thank you.</p>" +
					"<p>Regards,<br>{company_name}</p>",
				Message: "{company_name}: payment of {amount} for invoice {invoice_number} received on {paid_date}. Thank you!",
			},
			billing.InvoiceStatusOverdue: {
				Subject: "Invoice {invoice_number} is overdue",
				HTML: "<p>Dear {client_name},</p>" +
					"<p>Invoice {invoice_number} for {project_name} was due on {due_date}. " +
					"The outstanding amount is <strong>{amount}</strong>. Please arrange payment at the earliest.</p>" +
					"<p>Regards,<br>{company_name}</p>",
				Message: "{company_name}: invoice {invoice_number} ({amount}) was due on {due_date} and is now overdue.",
			},
			billing.InvoiceStatusCancelled: {
				Subject: "Invoice {invoice_number} has been cancelled",
				HTML: "<p>Dear {client_name},</p>" +
					"<p>Invoice {invoice_number} for {project_name} has been cancelled. No payment is required.</p>" +
					"<p>Regards,<br>{company_name}</p>",
				Message: "{company_name}: invoice {invoice_number} for {project_name} has been cancelled.",
			},
		},
	}
}

// LoadTemplates reads a YAML templates file. Statuses missing from the file
// keep their built-in template.
func LoadTemplates(path string) (*TemplateSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates file: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates parses YAML template content over the defaults
func ParseTemplates(data []byte) (*TemplateSet, error) {
	var parsed TemplateSet
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	set := DefaultTemplates()
	if parsed.Version != "" {
		set.Version = parsed.Version
	}
	for status, tmpl := range parsed.Templates {
		if !status.Notifies() {
			return nil, fmt.Errorf("template for %q: status does not send notifications", status)
		}
		if strings.TrimSpace(tmpl.Subject) == "" && strings.TrimSpace(tmpl.HTML) == "" && strings.TrimSpace(tmpl.Message) == "" {
			return nil, fmt.Errorf("template for %q is empty", status)
		}
		base := set.Templates[status]
		if tmpl.Subject == "" {
			tmpl.Subject = base.Subject
		}
		if tmpl.HTML == "" {
			tmpl.HTML = base.HTML
		}
		if tmpl.Message == "" {
			tmpl.Message = base.Message
		}
		set.Templates[status] = tmpl
	}
	return set, nil
}
