package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/documents"
	"github.com/nik-6348/sss-projects-payments/pkg/httputil"
	"github.com/nik-6348/sss-projects-payments/pkg/lifecycle"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
	"github.com/nik-6348/sss-projects-payments/pkg/payments"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

const defaultMaxBodyBytes = 1 << 20

// InvoiceService is the invoice lifecycle as seen by the API
type InvoiceService interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (*billing.Invoice, error)
	Update(ctx context.Context, id string, req lifecycle.UpdateRequest) (*billing.Invoice, error)
	TransitionStatus(ctx context.Context, id string, req lifecycle.TransitionRequest) (*billing.Invoice, error)
	Delete(ctx context.Context, id, remark string) (*lifecycle.DeleteResult, error)
	Restore(ctx context.Context, id string) (*billing.Invoice, error)
	Duplicate(ctx context.Context, id string) (*billing.Invoice, error)
	Get(ctx context.Context, id string) (*billing.Invoice, error)
	List(ctx context.Context, filter storage.InvoiceFilter) ([]*billing.Invoice, error)
	ProjectBudget(ctx context.Context, projectID string) (*billing.ProjectBudget, error)
}

// DocumentService returns rendered invoice PDFs
type DocumentService interface {
	Get(ctx context.Context, invoiceID string) (*documents.Document, error)
}

// PaymentLedger records and reconciles project payments
type PaymentLedger interface {
	Record(ctx context.Context, req payments.RecordRequest) (*billing.Payment, error)
	List(ctx context.Context, projectID string) ([]*billing.Payment, error)
	Reconcile(ctx context.Context, projectID string) (*payments.Reconciliation, error)
}

// Deps wires a Server. Documents and Payments are optional; their routes
// are not registered when nil.
type Deps struct {
	Invoices  InvoiceService
	Documents DocumentService
	Payments  PaymentLedger
	Logger    *observability.Logger
	Metrics   *observability.Metrics

	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server is the billing HTTP API
type Server struct {
	invoices  InvoiceService
	documents DocumentService
	payments  PaymentLedger
	logger    *observability.Logger
	metrics   *observability.Metrics
	router    *mux.Router
	handler   http.Handler
}

// NewServer creates the API server and registers its routes
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	s := &Server{
		invoices:  deps.Invoices,
		documents: deps.Documents,
		payments:  deps.Payments,
		logger:    logger.WithComponent("api"),
		metrics:   deps.Metrics,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()

	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
	}
	if len(deps.AllowedOrigins) > 0 {
		middlewares = append(middlewares, httputil.CORSMiddleware(deps.AllowedOrigins))
	}
	middlewares = append(middlewares, httputil.ContentTypeMiddleware, httputil.MaxBytesMiddleware(maxBody))
	s.handler = httputil.Chain(middlewares...)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// the route template is only known inside the router
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "no such route")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.Fail(w, http.StatusMethodNotAllowed, httputil.ErrorResponse{Error: "method not allowed", Kind: httputil.KindValidation})
	})

	// Invoice routes
	s.router.HandleFunc("/invoices", s.createInvoice).Methods(http.MethodPost)
	s.router.HandleFunc("/invoices", s.listInvoices).Methods(http.MethodGet)
	s.router.HandleFunc("/invoices/{id}", s.getInvoice).Methods(http.MethodGet)
	s.router.HandleFunc("/invoices/{id}", s.updateInvoice).Methods(http.MethodPatch)
	s.router.HandleFunc("/invoices/{id}", s.deleteInvoice).Methods(http.MethodDelete)
	s.router.HandleFunc("/invoices/{id}/restore", s.restoreInvoice).Methods(http.MethodPost)
	s.router.HandleFunc("/invoices/{id}/duplicate", s.duplicateInvoice).Methods(http.MethodPost)
	s.router.HandleFunc("/invoices/{id}/status", s.transitionInvoice).Methods(http.MethodPost)
	if s.documents != nil {
		s.router.HandleFunc("/invoices/{id}/document", s.getDocument).Methods(http.MethodGet)
	}

	// Project routes
	s.router.HandleFunc("/projects/{id}/budget", s.getBudget).Methods(http.MethodGet)
	if s.payments != nil {
		s.router.HandleFunc("/projects/{id}/payments", s.recordPayment).Methods(http.MethodPost)
		s.router.HandleFunc("/projects/{id}/payments", s.listPayments).Methods(http.MethodGet)
		s.router.HandleFunc("/projects/{id}/reconciliation", s.reconcile).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the route table, for mounting extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}
