package roomapi

import (
	"errors"
	"fmt"
	"strings"

	"roombook/internal/model"
)

// ConflictError is returned when the authority rejects a reservation that
// overlaps existing ones (HTTP 409). Conflicts are passed through verbatim.
type ConflictError struct {
	Detail    string           `json:"detail"`
	Conflicts []model.Conflict `json:"conflicts"`
	Messages  []string         `json:"conflict_messages"`
}

func (e *ConflictError) Error() string {
	if len(e.Messages) == 0 {
		return e.Detail
	}
	return fmt.Sprintf("%s: %s", e.Detail, strings.Join(e.Messages, "; "))
}

// AuthorizationError is returned when credentials are missing, expired
// after a refresh attempt, or insufficient.
type AuthorizationError struct {
	Status int
	Detail string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not authorized (%d): %s", e.Status, e.Detail)
}

// TransportError wraps network failures, server errors and undecodable
// responses.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: http %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is any other rejection carrying a detail message.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Detail)
}

// IsConflict reports whether err is a ConflictError and returns it.
func IsConflict(err error) (*ConflictError, bool) {
	var c *ConflictError
	if errors.As(err, &c) {
		return c, true
	}
	return nil, false
}

// IsAuthorization reports whether err is an AuthorizationError.
func IsAuthorization(err error) bool {
	var a *AuthorizationError
	return errors.As(err, &a)
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var t *TransportError
	return errors.As(err, &t)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var a *APIError
	return errors.As(err, &a) && a.Status == 404
}
