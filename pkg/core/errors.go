// Package core provides the error taxonomy and HTTP plumbing shared by the
// fetchers, the compiler and the tool server.
package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

// ErrorCode defines standard error codes
type ErrorCode string

// Standard error codes
const (
	// Input errors, raised before any processing
	ErrInput       ErrorCode = "INPUT_ERROR"
	ErrMissingBBox ErrorCode = "MISSING_BBOX"
	ErrInvalidBBox ErrorCode = "INVALID_BBOX"

	// Fatal mid-pass errors
	ErrParse ErrorCode = "PARSE_ERROR"

	// Destination errors
	ErrOutput ErrorCode = "OUTPUT_ERROR"

	// Service errors
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrServiceTimeout     ErrorCode = "SERVICE_TIMEOUT"
	ErrRateLimit          ErrorCode = "RATE_LIMIT"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"

	ErrNotImplemented ErrorCode = "NOT_IMPLEMENTED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error is a coded error carrying an optional file path, user guidance and
// the underlying cause.
type Error struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Path     string `json:"path,omitempty"`
	Guidance string `json:"guidance,omitempty"`
	Err      error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Guidance != "" {
		msg += ". " + e.Guidance
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    string(code),
		Message: message,
	}
}

// WithPath records the file the error relates to
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// WithGuidance adds guidance information to the error
func (e *Error) WithGuidance(guidance string) *Error {
	e.Guidance = guidance
	return e
}

// Wrap sets the underlying cause
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// HasCode reports whether err, or any error it wraps, is an *Error with code.
func HasCode(err error, code ErrorCode) bool {
	var coded *Error
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == string(code)
}

// ToMCPResult converts the error to an MCP tool result
func (e *Error) ToMCPResult() *mcp.CallToolResult {
	errorJSON, err := json.Marshal(e)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ERROR: %s - %s", e.Code, e.Message))
	}

	return mcp.NewToolResultError(string(errorJSON))
}

// ServiceError creates an error for external service failures
func ServiceError(service string, statusCode int, message string) *Error {
	var code ErrorCode
	var guidance string

	switch statusCode {
	case http.StatusTooManyRequests:
		code = ErrRateLimit
		guidance = "The service is rate-limited. Please try again in a few moments."
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = ErrServiceTimeout
		guidance = "The request timed out. Try a smaller bounding box."
	case http.StatusBadRequest:
		code = ErrInput
		guidance = "The request was rejected. The bounding box may cover too many elements."
	case http.StatusInternalServerError:
		code = ErrInternalError
		guidance = "The server encountered an error. This is likely temporary, please try again later."
	default:
		code = ErrServiceUnavailable
		guidance = "The service is temporarily unavailable. Please try again later."
	}

	return NewError(code, fmt.Sprintf("%s service error: %s", service, message)).
		WithGuidance(guidance)
}
