package api

import "fmt"

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	// MaxRetriesLimit caps the per-request attempt budget.
	MaxRetriesLimit int

	// MaxSourceBytes caps the size of the submitted source text.
	MaxSourceBytes int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxRetriesLimit: 10,
		MaxSourceBytes:  1 * 1024 * 1024, // 1MB
	}
}

// ValidateRepairRequest checks a RepairRequest for validity. It returns an
// *APIError describing the first validation failure, or nil if the request
// is valid. A zero MaxRetries is valid and means "use the server default".
func ValidateRepairRequest(req *RepairRequest, cfg ValidationConfig) *APIError {
	if req.Code == "" {
		return NewInvalidRequestError("code", "code is required")
	}

	if cfg.MaxSourceBytes > 0 && len(req.Code) > cfg.MaxSourceBytes {
		return NewInvalidRequestError("code",
			fmt.Sprintf("code exceeds maximum of %d bytes", cfg.MaxSourceBytes))
	}

	if req.MaxRetries < 0 {
		return NewInvalidRequestError("max_retries", "max_retries must be positive")
	}

	if cfg.MaxRetriesLimit > 0 && req.MaxRetries > cfg.MaxRetriesLimit {
		return NewInvalidRequestError("max_retries",
			fmt.Sprintf("max_retries must be between 1 and %d", cfg.MaxRetriesLimit))
	}

	return nil
}
