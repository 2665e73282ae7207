// Package api implements Shannon's HTTP surface (spec §6): task
// submission, status, streaming, control signals, schedules, and
// export/import, all served with github.com/go-chi/chi/v5.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shannon-run/shannon/workflow"
	"github.com/shannon-run/shannon/workflow/eventlog"
)

// ErrorKind classifies a request failure for HTTP status mapping
// (spec §7). It mirrors workflow/sandbox.ErrorKind's shape, scoped to
// the taxonomy spec §7 names for the HTTP boundary rather than the
// sandbox's own set.
type ErrorKind string

const (
	KindInvalidInput      ErrorKind = "InvalidInput"
	KindNotFound          ErrorKind = "NotFound"
	KindConflict          ErrorKind = "Conflict"
	KindPolicyViolation   ErrorKind = "PolicyViolation"
	KindDependencyFailure ErrorKind = "DependencyFailure"
	KindTimeout           ErrorKind = "Timeout"
	KindBreakerOpen       ErrorKind = "BreakerOpen"
	KindCorruption        ErrorKind = "Corruption"
	KindInternal          ErrorKind = "Internal"
)

// Error is the compact error object surfaced over HTTP: {error:{code,
// message, details?}} (spec §7).
type Error struct {
	Kind    ErrorKind `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *Error) Error() string { return e.Message }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// statusFor maps an ErrorKind to the HTTP status spec §7 names.
func statusFor(kind ErrorKind) int {
	switch kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBreakerOpen:
		return http.StatusTooManyRequests
	case KindPolicyViolation:
		return http.StatusForbidden
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindDependencyFailure:
		return http.StatusBadGateway
	case KindCorruption:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// classify maps an error returned by the workflow/schedule/eventlog
// packages to an *Error, falling back to Internal for anything
// unrecognized.
func classify(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, eventlog.ErrNotFound):
		return newError(KindNotFound, err.Error())
	case errors.Is(err, workflow.ErrUnknownWorkflow):
		return newError(KindNotFound, err.Error())
	case errors.Is(err, workflow.ErrUnknownPattern):
		return newError(KindInvalidInput, err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		return newError(KindConflict, err.Error())
	case errors.Is(err, workflow.ErrShuttingDown):
		return newError(KindConflict, err.Error())
	default:
		return newError(KindInternal, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	apiErr := classify(err)
	writeJSON(w, statusFor(apiErr.Kind), map[string]*Error{"error": apiErr})
}
