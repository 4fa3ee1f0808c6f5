// Package apperr holds the error taxonomy shared by the snippet store, the
// checkout lifecycle and the payment backend.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateTrigger   = errors.New("a snippet with this trigger already exists")
	ErrQuotaExceeded      = errors.New("free tier snippet limit reached")
	ErrNotFound           = errors.New("snippet not found")
	ErrImmutableRecord    = errors.New("built-in snippets cannot be changed")
	ErrNetwork            = errors.New("network request failed")
	ErrServiceUnavailable = &wrapped{msg: "payment service is unavailable", parent: ErrNetwork}

	ErrSignatureVerification = errors.New("webhook signature verification failed")
)

// wrapped is a sentinel that also matches its parent with errors.Is.
type wrapped struct {
	msg    string
	parent error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.parent }

// Kind returns a stable name for the taxonomy entry err belongs to, or
// "internal" when it belongs to none.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDuplicateTrigger):
		return "duplicate_trigger"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrImmutableRecord):
		return "immutable_record"
	case errors.Is(err, ErrServiceUnavailable):
		return "service_unavailable"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrSignatureVerification):
		return "signature_verification"
	}
	return "internal"
}

// HTTPStatus maps err onto the status code an HTTP handler should answer with.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "validation", "signature_verification":
		return http.StatusBadRequest
	case "duplicate_trigger", "immutable_record":
		return http.StatusConflict
	case "quota_exceeded":
		return http.StatusPaymentRequired
	case "not_found":
		return http.StatusNotFound
	case "service_unavailable":
		return http.StatusServiceUnavailable
	case "network":
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the user may simply try the same action again.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
