package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nik-6348/sss-projects-payments/pkg/async"
	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/render"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

const (
	ChannelEmail     = "email"
	ChannelMessaging = "messaging"

	dateLayout = "02 Jan 2006"
)

// EmailSender delivers an HTML email
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// MessageSender delivers a text message
type MessageSender interface {
	Send(ctx context.Context, msg Message) error
}

// TemplateSource resolves the template for a status
type TemplateSource interface {
	Get(status billing.InvoiceStatus) (Template, bool)
}

// ServiceDeps wires a Service. Email and Messaging are optional; a channel
// without a sender is not attempted.
type ServiceDeps struct {
	Invoices  storage.InvoiceReader
	Projects  storage.ProjectReader
	Refs      storage.ReferenceReader
	Templates TemplateSource
	Email     EmailSender
	Messaging MessageSender
	Logger    *observability.Logger
	Metrics   *observability.Metrics

	// ChannelTimeout bounds each channel's delivery, retries included
	ChannelTimeout time.Duration
}

// Service renders status templates and fans them out to every configured channel
type Service struct {
	invoices       storage.InvoiceReader
	projects       storage.ProjectReader
	refs           storage.ReferenceReader
	templates      TemplateSource
	email          EmailSender
	messaging      MessageSender
	logger         *observability.Logger
	metrics        *observability.Metrics
	channelTimeout time.Duration
}

// NewService creates a notification service
func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	templates := deps.Templates
	if templates == nil {
		store, _ := NewTemplateStore("", logger)
		templates = store
	}
	timeout := deps.ChannelTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Service{
		invoices:       deps.Invoices,
		projects:       deps.Projects,
		refs:           deps.Refs,
		templates:      templates,
		email:          deps.Email,
		messaging:      deps.Messaging,
		logger:         logger.WithComponent("notify"),
		metrics:        deps.Metrics,
		channelTimeout: timeout,
	}
}

type delivery struct {
	channel   string
	recipient string
	send      func(ctx context.Context) error
}

// NotifyStatusChange sends the template for status on every channel. The
// returned error covers failures to resolve the invoice and its context;
// per-channel delivery failures are reported in the Result only.
func (s *Service) NotifyStatusChange(ctx context.Context, invoiceID string, status billing.InvoiceStatus) (res *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "notify.StatusChange",
		attribute.String("invoice_id", invoiceID),
		attribute.String("status", string(status)),
	)
	defer func() { observability.EndSpan(span, err) }()
	return s.notifyStatusChange(ctx, invoiceID, status)
}

func (s *Service) notifyStatusChange(ctx context.Context, invoiceID string, status billing.InvoiceStatus) (*Result, error) {
	result := &Result{InvoiceID: invoiceID, Status: status}
	if !status.Notifies() {
		result.Skipped = true
		return result, nil
	}
	tmpl, ok := s.templates.Get(status)
	if !ok || (s.email == nil && s.messaging == nil) {
		result.Skipped = true
		return result, nil
	}

	inv, err := s.invoices.GetInvoice(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, billing.Wrap(billing.KindInvoiceNotFound, "NotifyStatusChange", err)
		}
		return nil, fmt.Errorf("failed to load invoice %s: %w", invoiceID, err)
	}
	project, err := s.projects.GetProject(ctx, inv.ProjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, billing.Wrap(billing.KindProjectNotFound, "NotifyStatusChange", err)
		}
		return nil, fmt.Errorf("failed to load project %s: %w", inv.ProjectID, err)
	}
	client, err := s.refs.GetClient(ctx, project.ClientID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load client %s: %w", project.ClientID, err)
	}
	if client == nil {
		client = &billing.Client{ID: project.ClientID}
	}
	company, err := s.refs.GetCompanyProfile(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("failed to load company profile: %w", err)
	}
	if company == nil {
		company = &billing.CompanyProfile{}
	}

	rendered := tmpl.Render(templateVars(inv, project, client, company))
	deliveries := s.deliveries(inv, status, client, rendered)

	logger := s.logger.WithInvoice(inv.ID, inv.InvoiceNumber).WithField("status", string(status))
	errs := async.ForEach(ctx, logger, deliveries, len(deliveries), "notification fan-out", s.channelTimeout,
		func(ctx context.Context, d delivery) error {
			return d.send(ctx)
		})

	result.Channels = make([]ChannelResult, len(deliveries))
	for i, d := range deliveries {
		s.metrics.Notification(d.channel, errs[i])
		if errs[i] != nil {
			result.Channels[i] = failedResult(d.channel, d.recipient, errs[i])
			continue
		}
		result.Channels[i] = sentResult(d.channel, d.recipient)
	}

	if failed := result.Failed(); len(failed) > 0 {
		logger.WithError(result.Err()).Warn("Notification delivery failed on some channels")
	} else {
		logger.Info("Notification delivered")
	}
	return result, nil
}

func (s *Service) deliveries(inv *billing.Invoice, status billing.InvoiceStatus, client *billing.Client, r Rendered) []delivery {
	var out []delivery
	if s.email != nil {
		to := client.Email
		out = append(out, delivery{
			channel:   ChannelEmail,
			recipient: to,
			send: func(ctx context.Context) error {
				if to == "" {
					return permanent(ErrNoRecipient)
				}
				return s.email.Send(ctx, EmailMessage{To: []string{to}, Subject: r.Subject, HTML: r.HTML})
			},
		})
	}
	if s.messaging != nil {
		to := client.Phone
		out = append(out, delivery{
			channel:   ChannelMessaging,
			recipient: to,
			send: func(ctx context.Context) error {
				if to == "" {
					return permanent(ErrNoRecipient)
				}
				return s.messaging.Send(ctx, Message{
					To:            to,
					Text:          r.Message,
					InvoiceNumber: inv.InvoiceNumber,
					Status:        string(status),
				})
			},
		})
	}
	return out
}

func templateVars(inv *billing.Invoice, project *billing.Project, client *billing.Client, company *billing.CompanyProfile) Vars {
	amount := inv.BalanceDue
	if inv.Status == billing.InvoiceStatusPaid {
		amount = inv.TotalAmount
	}
	v := Vars{
		ClientName:     client.Name,
		InvoiceNumber:  inv.InvoiceNumber,
		CompanyName:    company.Name,
		Amount:         render.FormatMoney(amount, inv.Currency),
		DueDate:        inv.DueDate.Format(dateLayout),
		ProjectName:    project.Name,
		DeletionRemark: inv.DeletionRemark,
	}
	if inv.PaidDate != nil {
		v.PaidDate = inv.PaidDate.Format(dateLayout)
	}
	return v
}
