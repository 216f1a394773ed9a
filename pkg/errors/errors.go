// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the application error taxonomy.
//
// Every failure surfaced to the HTTP layer is an *Error carrying a type,
// a human-readable message and optional structured details. The routing
// layer maps the type to an HTTP status with Code and renders the wire
// body with NewResponse.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types
const (
	// ErrUnauthorized is returned for a missing, invalid or expired
	// session or OAuth state. Recoverable by forcing a re-login.
	ErrUnauthorized = "UNAUTHORIZED"

	// ErrNotFound is returned when a referenced entity is absent.
	ErrNotFound = "NOT_FOUND"

	// ErrValidation is returned for malformed or out-of-range input.
	ErrValidation = "VALIDATION_ERROR"

	// ErrConflict is returned for storage constraint violations.
	ErrConflict = "CONFLICT"

	// ErrExternalService is returned when an upstream provider returned
	// a non-success response or was unreachable.
	ErrExternalService = "EXTERNAL_SERVICE_ERROR"

	// ErrInternal is returned for uncategorized failures.
	ErrInternal = "INTERNAL_ERROR"
)

// Error represents an error in the application.
type Error struct {
	// Type is the error type, one of the Err* constants.
	Type string

	// Message is the error message.
	Message string

	// Details carries structured context included in the wire response.
	Details map[string]any

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new error.
func NewError(errorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewAuthenticationError creates a new authentication error.
func NewAuthenticationError(message string) *Error {
	if message == "" {
		message = "authentication required"
	}
	return NewError(ErrUnauthorized, message, nil)
}

// NewNotFoundError creates a new not found error for a resource,
// optionally qualified by its identifier.
func NewNotFoundError(resource, identifier string) *Error {
	message := fmt.Sprintf("%s not found", resource)
	if identifier != "" {
		message = fmt.Sprintf("%s with id %q not found", resource, identifier)
	}
	return NewError(ErrNotFound, message, nil)
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, details map[string]any) *Error {
	e := NewError(ErrValidation, message, nil)
	e.Details = details
	return e
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string) *Error {
	return NewError(ErrConflict, message, nil)
}

// NewExternalServiceError creates a new external service error. The failing
// service's name is recorded in the details so operators can tell which
// upstream misbehaved.
func NewExternalServiceError(service, message string, cause error) *Error {
	e := NewError(ErrExternalService, fmt.Sprintf("%s error: %s", service, message), cause)
	e.Details = map[string]any{"service": service}
	return e
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, cause error) *Error {
	return NewError(ErrInternal, message, cause)
}

// typeFor extracts the application error type from err, or ErrInternal
// for errors outside the taxonomy.
func typeFor(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrInternal
}

// Code maps an error to the HTTP status code the routing layer responds with.
func Code(err error) int {
	switch typeFor(err) {
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrNotFound:
		return http.StatusNotFound
	case ErrValidation:
		return http.StatusUnprocessableEntity
	case ErrConflict:
		return http.StatusConflict
	case ErrExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Response is the wire shape of an error body.
type Response struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// NewResponse builds the wire body for err. Internal errors and errors
// outside the taxonomy are rendered with a generic message so the cause
// never leaks to clients.
func NewResponse(err error) Response {
	var e *Error
	if !errors.As(err, &e) || e.Type == ErrInternal {
		return Response{
			Code:    ErrInternal,
			Message: "internal server error",
			Details: map[string]any{},
		}
	}

	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return Response{
		Code:    e.Type,
		Message: e.Message,
		Details: details,
	}
}

// IsAuthentication checks if the error is an authentication error.
func IsAuthentication(err error) bool {
	return typeFor(err) == ErrUnauthorized
}

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	return typeFor(err) == ErrNotFound
}

// IsConflict checks if the error is a conflict error.
func IsConflict(err error) bool {
	return typeFor(err) == ErrConflict
}

// IsExternalService checks if the error is an external service error.
func IsExternalService(err error) bool {
	return typeFor(err) == ErrExternalService
}
