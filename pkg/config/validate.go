package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// repair retry budget must be sane.
	if c.Repair.MaxRetriesLimit < 1 {
		errs = append(errs, fmt.Errorf("repair.max_retries_limit must be >= 1, got %d", c.Repair.MaxRetriesLimit))
	}
	if c.Repair.DefaultMaxRetries < 1 || c.Repair.DefaultMaxRetries > c.Repair.MaxRetriesLimit {
		errs = append(errs, fmt.Errorf("repair.default_max_retries must be between 1 and repair.max_retries_limit, got %d", c.Repair.DefaultMaxRetries))
	}
	if c.Repair.MaxSourceBytes <= 0 {
		errs = append(errs, fmt.Errorf("repair.max_source_bytes must be > 0, got %d", c.Repair.MaxSourceBytes))
	}

	// sandbox.runtime must be a known value.
	switch c.Sandbox.Runtime {
	case "docker", "kubernetes", "remote":
		// valid
	default:
		errs = append(errs, fmt.Errorf("sandbox.runtime must be \"docker\", \"kubernetes\", or \"remote\", got %q", c.Sandbox.Runtime))
	}

	// The docker runtime needs an image to run.
	if c.Sandbox.Runtime == "docker" && c.Sandbox.Image == "" {
		errs = append(errs, fmt.Errorf("sandbox.image is required when sandbox.runtime is \"docker\""))
	}

	// The remote runtime needs a URL to talk to.
	if c.Sandbox.Runtime == "remote" && c.Sandbox.Remote.URL == "" {
		errs = append(errs, fmt.Errorf("sandbox.remote.url is required when sandbox.runtime is \"remote\""))
	}

	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must be > 0, got %v", c.Sandbox.Timeout))
	}
	if c.Sandbox.MemoryMB <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.memory_mb must be > 0, got %d", c.Sandbox.MemoryMB))
	}

	// oracle.type must be a known value.
	switch c.Oracle.Type {
	case "ollama", "openai":
		// valid
	default:
		errs = append(errs, fmt.Errorf("oracle.type must be \"ollama\" or \"openai\", got %q", c.Oracle.Type))
	}

	if c.Oracle.BaseURL == "" {
		errs = append(errs, fmt.Errorf("oracle.base_url is required"))
	}
	if c.Oracle.Model == "" {
		errs = append(errs, fmt.Errorf("oracle.model is required"))
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	// auth.type must be a known value.
	switch c.Auth.Type {
	case "none", "apikey", "jwt":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	// JWT validation needs a key source.
	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	return errors.Join(errs...)
}
