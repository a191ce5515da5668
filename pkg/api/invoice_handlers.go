package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/documents"
	"github.com/nik-6348/sss-projects-payments/pkg/httputil"
	"github.com/nik-6348/sss-projects-payments/pkg/lifecycle"
	"github.com/nik-6348/sss-projects-payments/pkg/storage"
)

// DeleteRequest is the optional body of DELETE /invoices/{id}
type DeleteRequest struct {
	Remark string `json:"remark"`
}

// InvoiceList is the body of GET /invoices
type InvoiceList struct {
	Invoices []*billing.Invoice `json:"invoices"`
	Count    int                `json:"count"`
}

// createInvoice handles POST /invoices
func (s *Server) createInvoice(w http.ResponseWriter, r *http.Request) {
	var req lifecycle.CreateRequest
	if !httputil.BindJSON(w, r, &req) {
		return
	}

	inv, err := s.invoices.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.Created(w, "/invoices/"+inv.ID, inv)
}

// listInvoices handles GET /invoices
func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := httputil.NewQuery(r)
	filter := storage.InvoiceFilter{
		ProjectID:      q.String("project_id", ""),
		IncludeDeleted: q.Bool("include_deleted", false),
		Limit:          q.Int("limit", 0),
		Offset:         q.Int("offset", 0),
	}
	if err := q.Err(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if raw := q.String("status", ""); raw != "" {
		status, err := billing.ParseInvoiceStatus(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		filter.Status = status
	}

	invoices, err := s.invoices.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if invoices == nil {
		invoices = []*billing.Invoice{}
	}
	httputil.OK(w, InvoiceList{Invoices: invoices, Count: len(invoices)})
}

// getInvoice handles GET /invoices/{id}
func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	inv, err := s.invoices.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, inv)
}

// updateInvoice handles PATCH /invoices/{id}
func (s *Server) updateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	var req lifecycle.UpdateRequest
	if !httputil.BindJSON(w, r, &req) {
		return
	}

	inv, err := s.invoices.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, inv)
}

// deleteInvoice handles DELETE /invoices/{id}. The remark may come from
// the body or the remark query parameter.
func (s *Server) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	req := DeleteRequest{Remark: httputil.NewQuery(r).String("remark", "")}
	if !httputil.BindOptionalJSON(w, r, &req) {
		return
	}

	res, err := s.invoices.Delete(r.Context(), id, strings.TrimSpace(req.Remark))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, res)
}

// restoreInvoice handles POST /invoices/{id}/restore
func (s *Server) restoreInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	inv, err := s.invoices.Restore(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, inv)
}

// duplicateInvoice handles POST /invoices/{id}/duplicate
func (s *Server) duplicateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	inv, err := s.invoices.Duplicate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.Created(w, "/invoices/"+inv.ID, inv)
}

// transitionInvoice handles POST /invoices/{id}/status
func (s *Server) transitionInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	var req lifecycle.TransitionRequest
	if !httputil.BindJSON(w, r, &req) {
		return
	}

	inv, err := s.invoices.TransitionStatus(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, inv)
}

// getDocument handles GET /invoices/{id}/document
func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Last-Modified", doc.GeneratedAt.UTC().Format(http.TimeFormat))
	w.Header().Set("X-Invoice-Version", strconv.FormatInt(doc.Version, 10))
	httputil.Binary(w, documents.ContentTypePDF, documentFilename(doc.InvoiceNumber), doc.Data)
}

func documentFilename(invoiceNumber string) string {
	return strings.ReplaceAll(invoiceNumber, "/", "-") + ".pdf"
}
