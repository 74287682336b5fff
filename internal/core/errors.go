package core

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a business-rule violation carrying the HTTP status the
// boundary should answer with. Unexpected errors stay plain and map to 500.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return e.Message
}

// NewValidationError reports malformed or rule-breaking input (400).
func NewValidationError(format string, args ...any) *StatusError {
	return &StatusError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError reports an absent or not-owned entity (404).
func NewNotFoundError(format string, args ...any) *StatusError {
	return &StatusError{Status: http.StatusNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError reports a duplicate operation, e.g. paying an invoice
// twice. The product answers 400 for these, not 409.
func NewConflictError(format string, args ...any) *StatusError {
	return &StatusError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the HTTP status from an error chain, defaulting to 500.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show callers. Internal errors
// collapse to a generic string so nothing leaks through the boundary.
func PublicMessage(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return "internal server error"
}
