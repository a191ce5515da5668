package api

import (
	"errors"
	"net/http"

	"github.com/nik-6348/sss-projects-payments/pkg/billing"
	"github.com/nik-6348/sss-projects-payments/pkg/httputil"
	"github.com/nik-6348/sss-projects-payments/pkg/observability"
)

// statusForKind maps a billing error kind to its HTTP status
func statusForKind(kind billing.Kind) int {
	switch kind {
	case billing.KindProjectNotFound, billing.KindInvoiceNotFound:
		return http.StatusNotFound
	case billing.KindBudgetExceeded, billing.KindRenderFailure:
		return http.StatusUnprocessableEntity
	case billing.KindInvalidState, billing.KindConflict:
		return http.StatusConflict
	case billing.KindInvalidStatus, billing.KindRemarkRequired, billing.KindValidation:
		return http.StatusBadRequest
	case billing.KindSequenceUnavailable, billing.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a typed error response. Causes are logged, never
// returned to the caller.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.FromContext(r.Context()).WithError(err)

	var e *billing.Error
	if !errors.As(err, &e) {
		logger.Error("Unclassified error in handler")
		httputil.Internal(w)
		return
	}

	status := statusForKind(e.Kind)
	resp := httputil.ErrorResponse{Error: e.Message, Kind: string(e.Kind)}
	if e.Kind == billing.KindBudgetExceeded {
		resp.Details = map[string]string{"remaining": e.Remaining.StringFixed(2)}
	}
	if e.Kind.Retryable() {
		w.Header().Set("Retry-After", "1")
	}

	if status >= http.StatusInternalServerError {
		logger.WithField("kind", string(e.Kind)).Warn("Request failed")
	}
	httputil.Fail(w, status, resp)
}
