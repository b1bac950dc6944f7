package apperr

import (
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP surface. The JSON envelope's "type"
// field is derived from it.
type Kind string

const (
	// KindValidation is malformed or out-of-bound client input, caught
	// before any upstream call.
	KindValidation Kind = "validation_error"
	// KindService is the upstream being unavailable, misconfigured or
	// rejecting the request.
	KindService Kind = "chat_error"
	// KindProcessing is a failure transforming accepted input into a
	// result: the request reached the upstream but could not complete.
	KindProcessing Kind = "processing_error"
)

// Error carries a status code and a user-facing message. Detail is internal
// and only surfaced in dev mode.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Detail  error
}

func (e *Error) Error() string {
	if e.Detail != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Detail)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Detail }

// Public returns the message safe to show a client. Outside dev mode the
// internal detail is suppressed.
func (e *Error) Public(devMode bool) string {
	if devMode && e.Detail != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Detail)
	}
	return e.Message
}

// Validation builds a 400 validation error.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: msg}
}

// Service builds an upstream error with the given status.
func Service(status int, msg string, detail error) *Error {
	return &Error{Kind: KindService, Status: status, Message: msg, Detail: detail}
}

// Processing builds a processing error with the given status.
func Processing(status int, msg string, detail error) *Error {
	return &Error{Kind: KindProcessing, Status: status, Message: msg, Detail: detail}
}
