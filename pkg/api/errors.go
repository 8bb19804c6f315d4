package api

import "fmt"

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"

	// Infrastructure-fatal conditions. These abort a repair request before
	// or during the loop and are never folded into an "unsolved" outcome.

	// ErrorTypeEnvironmentUnavailable means the sandbox runtime cannot be
	// reached (daemon down, binary missing, cluster unreachable).
	ErrorTypeEnvironmentUnavailable ErrorType = "environment_unavailable"

	// ErrorTypeTemplateMissing means the prebuilt sandbox image or template
	// does not exist.
	ErrorTypeTemplateMissing ErrorType = "template_missing"

	// ErrorTypeUpstreamUnreachable means the fix oracle service cannot be
	// contacted.
	ErrorTypeUpstreamUnreachable ErrorType = "upstream_unreachable"

	// ErrorTypeUpstreamTimeout means the fix oracle call exceeded its time
	// budget.
	ErrorTypeUpstreamTimeout ErrorType = "upstream_timeout"
)

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Fatal reports whether the error is an infrastructure-fatal condition
// that aborts the whole repair request rather than a single attempt.
func (e *APIError) Fatal() bool {
	switch e.Type {
	case ErrorTypeEnvironmentUnavailable, ErrorTypeTemplateMissing,
		ErrorTypeUpstreamUnreachable, ErrorTypeUpstreamTimeout:
		return true
	}
	return false
}

// ErrorResponse wraps an APIError for JSON serialization as the top-level error response.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}

// NewEnvironmentUnavailableError creates an APIError for an unreachable
// sandbox runtime.
func NewEnvironmentUnavailableError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeEnvironmentUnavailable,
		Message: message,
	}
}

// NewTemplateMissingError creates an APIError for a missing sandbox image.
func NewTemplateMissingError(image string) *APIError {
	return &APIError{
		Type:    ErrorTypeTemplateMissing,
		Message: fmt.Sprintf("sandbox image %q not found; build it before starting the service", image),
	}
}

// NewUpstreamUnreachableError creates an APIError for an unreachable fix oracle.
func NewUpstreamUnreachableError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUpstreamUnreachable,
		Message: message,
	}
}

// NewUpstreamTimeoutError creates an APIError for a fix oracle call that
// exceeded its time budget.
func NewUpstreamTimeoutError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeUpstreamTimeout,
		Message: message,
	}
}
