// Package apperrors provides the engine's error taxonomy (§7): a small set of
// kinds, not exception types, each carrying an HTTP-status equivalent for use
// at a public boundary. Internal packages return plain wrapped errors; no
// package of this module, cmd/engine included, wraps them into an AppError.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes, one per §7 taxonomy entry.
const (
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeAvailability       = "AVAILABILITY_ERROR"
	ErrCodeSpawn              = "SPAWN_ERROR"
	ErrCodeRuntimeProcess     = "RUNTIME_PROCESS_ERROR"
	ErrCodeProtocol           = "PROTOCOL_ERROR"
	ErrCodePermissionDenied   = "PERMISSION_DENIED"
	ErrCodeSessionDiscovery   = "SESSION_DISCOVERY_TIMEOUT"
	ErrCodeCircuitOpen        = "CIRCUIT_OPEN"
	ErrCodeCancelled          = "CANCELLED"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// AppError represents an engine error with additional context.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Configuration wraps adapter validation failures (§7.1).
func Configuration(message string) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Availability wraps a checkAvailability() == false condition (§7.2).
func Availability(agent string) *AppError {
	return &AppError{
		Code:       ErrCodeAvailability,
		Message:    fmt.Sprintf("agent %q is not available", agent),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Spawn wraps a child-process launch failure (§7.3).
func Spawn(message string, err error) *AppError {
	return &AppError{Code: ErrCodeSpawn, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// RuntimeProcess wraps a non-zero exit or signal (§7.4). Message is expected
// to be the output of formatProcessError.
func RuntimeProcess(message string) *AppError {
	return &AppError{Code: ErrCodeRuntimeProcess, Message: message, HTTPStatus: http.StatusInternalServerError}
}

// Protocol wraps a malformed frame or RPC error (§7.5).
func Protocol(message string, err error) *AppError {
	return &AppError{Code: ErrCodeProtocol, Message: message, HTTPStatus: http.StatusBadGateway, Err: err}
}

// PermissionDenied wraps an ACP permission rejection (§7.6).
func PermissionDenied(message string) *AppError {
	return &AppError{Code: ErrCodePermissionDenied, Message: message, HTTPStatus: http.StatusForbidden}
}

// SessionDiscoveryTimeout is non-fatal (§7.7); callers log it and continue.
func SessionDiscoveryTimeout(workDir string) *AppError {
	return &AppError{
		Code:       ErrCodeSessionDiscovery,
		Message:    fmt.Sprintf("session id discovery timed out for %s", workDir),
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// CircuitOpen is not a failure per se (§7.8); callers check the
// CircuitBreakerTriggered flag rather than type-asserting this.
func CircuitOpen(taskType string) *AppError {
	return &AppError{
		Code:       ErrCodeCircuitOpen,
		Message:    fmt.Sprintf("circuit breaker open for task type %q", taskType),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

// Cancelled wraps a terminal non-error cancellation outcome (§7.9).
func Cancelled(taskID string) *AppError {
	return &AppError{
		Code:       ErrCodeCancelled,
		Message:    fmt.Sprintf("task %q cancelled", taskID),
		HTTPStatus: http.StatusOK,
	}
}

// NotFound creates a not-found error for a resource.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s with id %q not found", resource, id),
		HTTPStatus: http.StatusNotFound,
	}
}

// Conflict creates a conflict error (e.g. a duplicate task id).
func Conflict(message string) *AppError {
	return &AppError{Code: ErrCodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// Wrap wraps an existing error with additional context, preserving an
// already-tagged AppError's code and status.
func Wrap(err error, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:       appErr.Code,
			Message:    fmt.Sprintf("%s: %s", message, appErr.Message),
			HTTPStatus: appErr.HTTPStatus,
			Err:        err,
		}
	}
	return &AppError{Code: ErrCodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: err}
}

// IsNotFound reports whether err is a not-found AppError.
func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

// IsCircuitOpen reports whether err is a circuit-open AppError.
func IsCircuitOpen(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeCircuitOpen
}

// GetHTTPStatus returns the HTTP status equivalent for an error, defaulting
// to 500 for non-AppError values.
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
