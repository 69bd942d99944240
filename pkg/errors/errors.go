// Package errors defines the unified error types for gateway operations.
// Engine-specific failures are mapped to these kinds; the HTTP handler is
// the single point that converts a kind into a status code and envelope.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies the error category.
type Kind string

// Error kinds and their wire codes.
const (
	KindMissingTenant Kind = "missing-tenant"
	KindForbidden     Kind = "forbidden"
	KindBadRequest    Kind = "bad-request"
	KindEngineError   Kind = "engine-error"
)

// Wire-level error codes carried in the envelope.
const (
	CodeMissingTenantID = "MISSING_TENANT_ID"
	CodeForbidden       = "FORBIDDEN"
	CodeBadRequest      = "BAD_REQUEST"
	CodeEngineError     = "ENGINE_ERROR"
)

// GatewayError is the standardized error for gateway operations.
type GatewayError struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Engine  string `json:"engine,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Engine != "" {
		return fmt.Sprintf("[%s] %s (engine=%s)", e.Kind, e.Message, e.Engine)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *GatewayError) Unwrap() error { return e.cause }

// HTTPStatusCode maps the kind to its transport status.
func (e *GatewayError) HTTPStatusCode() int {
	switch e.Kind {
	case KindMissingTenant, KindBadRequest:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindEngineError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewMissingTenant reports an absent tenant identifier on a search path.
func NewMissingTenant() *GatewayError {
	return &GatewayError{
		Kind:    KindMissingTenant,
		Code:    CodeMissingTenantID,
		Message: "tenant identifier header is required",
	}
}

// NewForbidden reports an authorization rejection.
func NewForbidden(message string) *GatewayError {
	return &GatewayError{
		Kind:    KindForbidden,
		Code:    CodeForbidden,
		Message: message,
	}
}

// NewBadRequest reports a malformed body or out-of-range option.
func NewBadRequest(message string) *GatewayError {
	return &GatewayError{
		Kind:    KindBadRequest,
		Code:    CodeBadRequest,
		Message: message,
	}
}

// NewEngineError reports a non-timeout failure from an engine adapter.
func NewEngineError(engine, message string, cause error) *GatewayError {
	return &GatewayError{
		Kind:    KindEngineError,
		Code:    CodeEngineError,
		Message: message,
		Engine:  engine,
		cause:   cause,
	}
}

// AsGatewayError extracts a GatewayError, wrapping unknown errors as
// engine errors so the handler always has a kind to map.
func AsGatewayError(err error) *GatewayError {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge
	}
	return NewEngineError("", err.Error(), err)
}
