// Package api exposes the billing engine over JSON/HTTP.
//
// Routes are registered on a gorilla/mux router:
//
//	POST   /invoices                      create a draft
//	GET    /invoices                      list (project_id, status, include_deleted, limit, offset)
//	GET    /invoices/{id}                 fetch one, deleted or not
//	PATCH  /invoices/{id}                 edit a draft
//	DELETE /invoices/{id}                 hard delete a draft, soft delete anything else (remark required)
//	POST   /invoices/{id}/restore         undo a soft delete
//	POST   /invoices/{id}/duplicate       copy as a new draft
//	POST   /invoices/{id}/status          change status
//	GET    /invoices/{id}/document        rendered PDF
//	GET    /projects/{id}/budget          total, committed and remaining budget
//	POST   /projects/{id}/payments        record a payment
//	GET    /projects/{id}/payments        list payments
//	GET    /projects/{id}/reconciliation  compare the ledger with invoice paid amounts
//
// Failures carry the billing error kind:
//
//	HTTP/1.1 422 Unprocessable Entity
//	{"error":"project budget exceeded","kind":"budget_exceeded","details":{"remaining":"4000.00"}}
//
// Not-found kinds map to 404, budget and render failures to 422, invalid
// state and version conflicts to 409, input errors to 400 and unavailable
// storage or sequence to 503 with Retry-After.
package api
