package engine

import "github.com/rhuss/remedy/pkg/api"

// Config holds configuration for the repair engine.
type Config struct {
	// DefaultMaxRetries is the attempt budget applied when the request
	// omits max_retries. Zero or negative means use the default of 3.
	DefaultMaxRetries int

	// MaxRetriesLimit caps the per-request attempt budget. Zero or
	// negative means use the default of 10.
	MaxRetriesLimit int

	// MaxSourceBytes caps the size of the submitted source text. Zero or
	// negative means use the default of 1MB.
	MaxSourceBytes int
}

// defaultRetries returns the effective attempt budget default, capped by
// the configured limit.
func (c Config) defaultRetries() int {
	n := c.DefaultMaxRetries
	if n <= 0 {
		n = 3
	}
	if limit := c.retriesLimit(); n > limit {
		n = limit
	}
	return n
}

// retriesLimit returns the effective attempt budget cap, defaulting to 10.
func (c Config) retriesLimit() int {
	if c.MaxRetriesLimit <= 0 {
		return 10
	}
	return c.MaxRetriesLimit
}

// validation returns the request validation limits derived from the config.
func (c Config) validation() api.ValidationConfig {
	v := api.DefaultValidationConfig()
	v.MaxRetriesLimit = c.retriesLimit()
	if c.MaxSourceBytes > 0 {
		v.MaxSourceBytes = c.MaxSourceBytes
	}
	return v
}
