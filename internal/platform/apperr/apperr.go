// Package apperr defines the error taxonomy shared by all services: input
// validation failures, missing (or tenant-invisible) entities, and domain
// rule violations. Anything else is treated as an internal error and is never
// exposed to callers verbatim.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Kind string

const (
	KindValidation   Kind = "validation_error"
	KindNotFound     Kind = "not_found"
	KindBusinessRule Kind = "business_rule_violation"
	KindInternal     Kind = "internal_error"
)

// Error carries a stable kind, a human-readable message, and for validation
// failures the offending field names.
type Error struct {
	Kind    Kind     `json:"error"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Validation reports malformed input. Optional field names identify the
// offending fields for the caller.
func Validation(message string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent entity. A tenant mismatch produces the same
// error as true absence so that nothing leaks across tenants.
func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

// BusinessRule reports a well-formed request that violates a domain rule.
func BusinessRule(message string) *Error {
	return &Error{Kind: KindBusinessRule, Message: message}
}

// Internal wraps an unexpected error. The cause is preserved for logging but
// the client-facing message stays generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", cause: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// HTTP converts an error into an echo HTTP error with the response body
// carrying the stable kind, message and fields.
func HTTP(err error) *echo.HTTPError {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal(err)
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case KindValidation:
		status = http.StatusBadRequest
	case KindNotFound:
		status = http.StatusNotFound
	case KindBusinessRule:
		status = http.StatusConflict
	}

	body := map[string]interface{}{
		"error":   string(e.Kind),
		"message": e.Message,
	}
	if e.Kind == KindInternal {
		body["message"] = "internal error"
	}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	return echo.NewHTTPError(status, body)
}
