// Package apperr defines the typed errors services return. The HTTP layer
// turns them into status codes and machine-readable codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindBadRequest Kind = "bad_request"
	KindConflict   Kind = "conflict"
	KindForbidden  Kind = "forbidden"
	KindInternal   Kind = "internal"
)

var statusByKind = map[Kind]int{
	KindNotFound:   http.StatusNotFound,
	KindValidation: http.StatusBadRequest,
	KindBadRequest: http.StatusBadRequest,
	KindConflict:   http.StatusConflict,
	KindForbidden:  http.StatusForbidden,
	KindInternal:   http.StatusInternalServerError,
}

// Machine-readable codes surfaced to API clients next to the message.
const (
	CodePolicyNotFound       = "POLICY_NOT_FOUND"
	CodePolicyNotOwned       = "POLICY_NOT_OWNED"
	CodePolicyInactive       = "POLICY_INACTIVE"
	CodePolicyUnassigned     = "POLICY_UNASSIGNED"
	CodeClaimPersistFailed   = "CLAIM_PERSIST_FAILED"
	CodeIdempotencyInFlight  = "IDEMPOTENCY_IN_FLIGHT"
	CodeIdempotencyKeyReused = "IDEMPOTENCY_KEY_REUSED"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeInvalidFile          = "INVALID_FILE"
	CodePayoutExceedsCover   = "PAYOUT_EXCEEDS_SUM_INSURED"
	CodeRejectionReason      = "REJECTION_REASON_REQUIRED"
	CodeValidationFailed     = "VALIDATION_FAILED"
)

// Error is a service error. Message is safe to show to clients; Err is not.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Op      string
	Err     error
	Details any
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the kind to a response status. Unknown kinds are 400.
func (e *Error) HTTPStatus() int {
	if status, ok := statusByKind[e.Kind]; ok {
		return status
	}
	return http.StatusBadRequest
}

// WithOp names the failing operation, for logs.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCode sets the machine-readable code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetails attaches a payload rendered next to the message.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// New returns an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind with err as its cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *Error { return New(KindNotFound, message) }
func Validation(message string) *Error { return New(KindValidation, message) }
func BadRequest(message string) *Error { return New(KindBadRequest, message) }
func Conflict(message string) *Error { return New(KindConflict, message) }
func Forbidden(message string) *Error { return New(KindForbidden, message) }
func Internal(message string) *Error { return New(KindInternal, message) }

// As finds the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	ok := errors.As(err, &target)
	return target, ok
}

// GetKind returns the kind of the first *Error in the chain, or "".
func GetKind(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// GetCode returns the code of the first *Error in the chain, or "".
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// Is reports whether err carries an *Error of kind.
func Is(err error, kind Kind) bool { return GetKind(err) == kind }

// HasCode reports whether err carries an *Error with code.
func HasCode(err error, code string) bool { return GetCode(err) == code }
