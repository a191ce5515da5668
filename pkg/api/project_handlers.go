package api

import (
	"net/http"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/httputil"
	"github.com/nik-6348/sss-projects-payments/pkg/payments"
)

// getBudget handles GET /projects/{id}/budget
func (s *Server) getBudget(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	budget, err := s.invoices.ProjectBudget(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, budget)
}

// recordPayment handles POST /projects/{id}/payments
func (s *Server) recordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	var req payments.RecordRequest
	if !httputil.BindJSON(w, r, &req) {
		return
	}
	if req.ProjectID != "" && req.ProjectID != id {
		httputil.BadRequest(w, "project_id does not match the path")
		return
	}
	req.ProjectID = id

	p, err := s.payments.Record(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.Created(w, "", p)
}

// listPayments handles GET /projects/{id}/payments
func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	list, err := s.payments.List(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*billing.Payment{}
	}
	httputil.OK(w, list)
}

// reconcile handles GET /projects/{id}/reconciliation
func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathParam(w, r, "id")
	if !ok {
		return
	}
	rec, err := s.payments.Reconcile(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.OK(w, struct {
		*payments.Reconciliation
		Balanced bool `json:"balanced"`
	}{rec, rec.Balanced()})
}
