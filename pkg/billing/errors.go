package billing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies a billing error. Kinds are stable and safe to expose to callers.
type Kind string

const (
	KindProjectNotFound     Kind = "project_not_found"
	KindInvoiceNotFound     Kind = "invoice_not_found"
	KindBudgetExceeded      Kind = "budget_exceeded"
	KindInvalidState        Kind = "invalid_state"
	KindInvalidStatus       Kind = "invalid_status"
	KindRemarkRequired      Kind = "remark_required"
	KindSequenceUnavailable Kind = "sequence_unavailable"
	KindRenderFailure       Kind = "render_failure"
	KindValidation          Kind = "validation"
	KindConflict            Kind = "conflict"
	KindStorageUnavailable  Kind = "storage_unavailable"
)

// Retryable reports whether an operation failing with this kind may be
// retried without changing its input
func (k Kind) Retryable() bool {
	switch k {
	case KindSequenceUnavailable, KindStorageUnavailable, KindConflict:
		return true
	default:
		return false
	}
}

// Sentinels for use with errors.Is. Matching is by Kind.
var (
	ErrProjectNotFound     = &Error{Kind: KindProjectNotFound, Message: "project not found"}
	ErrInvoiceNotFound     = &Error{Kind: KindInvoiceNotFound, Message: "invoice not found"}
	ErrBudgetExceeded      = &Error{Kind: KindBudgetExceeded, Message: "project budget exceeded"}
	ErrInvalidState        = &Error{Kind: KindInvalidState, Message: "invoice is not in a mutable state"}
	ErrInvalidStatus       = &Error{Kind: KindInvalidStatus, Message: "invalid invoice status"}
	ErrRemarkRequired      = &Error{Kind: KindRemarkRequired, Message: "a remark is required"}
	ErrSequenceUnavailable = &Error{Kind: KindSequenceUnavailable, Message: "invoice sequence unavailable"}
	ErrRenderFailure       = &Error{Kind: KindRenderFailure, Message: "document could not be rendered"}
	ErrValidation          = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "invoice was modified concurrently"}
	ErrStorageUnavailable  = &Error{Kind: KindStorageUnavailable, Message: "storage unavailable"}
)

var sentinels = map[Kind]*Error{
	KindProjectNotFound:     ErrProjectNotFound,
	KindInvoiceNotFound:     ErrInvoiceNotFound,
	KindBudgetExceeded:      ErrBudgetExceeded,
	KindInvalidState:        ErrInvalidState,
	KindInvalidStatus:       ErrInvalidStatus,
	KindRemarkRequired:      ErrRemarkRequired,
	KindSequenceUnavailable: ErrSequenceUnavailable,
	KindRenderFailure:       ErrRenderFailure,
	KindValidation:          ErrValidation,
	KindConflict:            ErrConflict,
	KindStorageUnavailable:  ErrStorageUnavailable,
}

// Error is the typed error returned by billing operations.
type Error struct {
	// Kind is the stable classification of the failure.
	Kind Kind

	// Op is the operation that failed (e.g. "CreateInvoice").
	Op string

	// Message is a human-readable description.
	Message string

	// Remaining is the unallocated budget, set for KindBudgetExceeded.
	Remaining decimal.Decimal

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Kind == KindBudgetExceeded {
		msg = fmt.Sprintf("%s (remaining %s)", msg, e.Remaining.StringFixed(2))
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("billing: %s: %v", msg, e.Err)
	}
	return "billing: " + msg
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an Error of the given kind with a formatted message
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an underlying error
func Wrap(kind Kind, op string, err error) *Error {
	msg := string(kind)
	if sentinel, ok := sentinels[kind]; ok {
		msg = sentinel.Message
	}
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// BudgetExceeded reports a rejected candidate along with the remaining budget
func BudgetExceeded(op string, remaining decimal.Decimal) *Error {
	return &Error{
		Kind:      KindBudgetExceeded,
		Op:        op,
		Message:   ErrBudgetExceeded.Message,
		Remaining: remaining,
	}
}

// KindOf extracts the kind of a billing error, or "" for foreign errors
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is safe to retry unchanged
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}
