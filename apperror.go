package main

import (
	"fmt"
	"net/http"
)

// QueueError is a stable, machine-readable error class carrying the HTTP
// status it maps to.
type QueueError struct {
	Code    string
	Message string
	Status  int
}

func (e *QueueError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *QueueError) Is(target error) bool {
	t, ok := target.(*QueueError)
	return ok && e.Code == t.Code
}

// WithMessage returns a copy with the same Code and Status.
func (e *QueueError) WithMessage(msg string) *QueueError {
	return &QueueError{Code: e.Code, Message: msg, Status: e.Status}
}

func (e *QueueError) WithMessagef(format string, args ...any) *QueueError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

var (
	ErrRequestInvalid      = &QueueError{Code: "E_REQUEST_INVALID", Status: http.StatusBadRequest}
	ErrNameInvalid         = &QueueError{Code: "E_NAME_INVALID", Status: http.StatusBadRequest}
	ErrDurationInvalid     = &QueueError{Code: "E_DURATION_INVALID", Status: http.StatusBadRequest}
	ErrInvalidPosition     = &QueueError{Code: "E_INVALID_POSITION", Status: http.StatusBadRequest}
	ErrReservationNotFound = &QueueError{Code: "E_NOT_FOUND", Status: http.StatusNotFound}
	ErrInvalidTransition   = &QueueError{Code: "E_INVALID_TRANSITION", Status: http.StatusConflict}
	ErrTokenInvalid        = &QueueError{Code: "E_TOKEN_INVALID", Status: http.StatusForbidden}
	ErrOutsideHours        = &QueueError{Code: "E_OUTSIDE_HOURS", Status: http.StatusForbidden}
	ErrForbidden           = &QueueError{Code: "E_FORBIDDEN", Status: http.StatusForbidden}
)
