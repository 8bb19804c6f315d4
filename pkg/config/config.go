// Package config provides unified configuration for the remedy service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (REMEDY_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the remedy service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Repair        RepairConfig        `yaml:"repair"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Oracle        OracleConfig        `yaml:"oracle"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`             // default: "" (all interfaces)
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 0 (streaming repairs outlive any fixed deadline)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 10s
}

// RepairConfig holds repair loop settings.
type RepairConfig struct {
	DefaultMaxRetries int `yaml:"default_max_retries"` // default: 3
	MaxRetriesLimit   int `yaml:"max_retries_limit"`   // default: 10
	MaxSourceBytes    int `yaml:"max_source_bytes"`    // default: 1 MiB
}

// SandboxConfig holds execution sandbox settings.
type SandboxConfig struct {
	Runtime    string           `yaml:"runtime"`   // "docker", "kubernetes", or "remote", default: "docker"
	Image      string           `yaml:"image"`     // default: "remedy-sandbox"
	Timeout    time.Duration    `yaml:"timeout"`   // wall-clock limit per execution, default: 5s
	MemoryMB   int              `yaml:"memory_mb"` // default: 128
	Docker     DockerConfig     `yaml:"docker"`
	Kubernetes KubernetesConfig `yaml:"kubernetes"`
	Remote     RemoteConfig     `yaml:"remote"`
}

// DockerConfig holds settings specific to the docker runtime.
type DockerConfig struct {
	Binary string `yaml:"binary"` // default: "docker"
}

// KubernetesConfig holds settings specific to the kubernetes runtime.
type KubernetesConfig struct {
	Namespace    string        `yaml:"namespace"`     // default: "default"
	Template     string        `yaml:"template"`      // SandboxTemplate name, default: "remedy-sandbox"
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // default: 30s
}

// RemoteConfig holds settings specific to the remote runtime.
type RemoteConfig struct {
	URL string `yaml:"url"` // base URL of a sandbox-server instance
}

// OracleConfig holds fix oracle (LLM backend) settings.
type OracleConfig struct {
	Type        string        `yaml:"type"`         // "ollama" or "openai", default: "ollama"
	BaseURL     string        `yaml:"base_url"`     // default: "http://localhost:11434"
	Model       string        `yaml:"model"`        // default: "llama3"
	Timeout     time.Duration `yaml:"timeout"`      // per-request deadline, default: 30s
	APIKey      string        `yaml:"api_key"`      // optional
	APIKeyFile  string        `yaml:"api_key_file"` // _file variant for api_key
	Temperature float64       `yaml:"temperature"`  // default: 0
}

// StorageConfig holds repair persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Memory   MemoryConfig   `yaml:"memory"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MemoryConfig holds in-memory store settings.
type MemoryConfig struct {
	MaxRepairs int `yaml:"max_repairs"` // default: 1000
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	DSNFile         string        `yaml:"dsn_file"` // _file variant for dsn
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type       string          `yaml:"type"`     // "none", "apikey", or "jwt", default: "none"
	APIKeys    []APIKeyConfig  `yaml:"api_keys"` // API key entries for type=apikey
	JWT        JWTConfig       `yaml:"jwt"`      // JWT settings for type=jwt
	RateLimits RateLimitConfig `yaml:"rate_limits"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"` // _file variant for key
	Subject     string `yaml:"subject"`
	TenantID    string `yaml:"tenant_id"`
	ServiceTier string `yaml:"service_tier"`
}

// JWTConfig describes JWT bearer token validation settings.
type JWTConfig struct {
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	JWKSURL     string `yaml:"jwks_url"`
	UserClaim   string `yaml:"user_claim"`   // default: "sub"
	TenantClaim string `yaml:"tenant_claim"` // default: "tenant_id"
	ScopesClaim string `yaml:"scopes_claim"` // default: "scope"
}

// RateLimitConfig holds per-tier request rate limit settings.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"` // 0 disables limiting
	Tiers      map[string]int `yaml:"tiers"`       // tier name -> requests per minute
}

// LoggingConfig holds log level and debug category settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // default: "INFO"
	Debug string `yaml:"debug"` // comma-separated debug categories, default: ""
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Repair: RepairConfig{
			DefaultMaxRetries: 3,
			MaxRetriesLimit:   10,
			MaxSourceBytes:    1 << 20,
		},
		Sandbox: SandboxConfig{
			Runtime:  "docker",
			Image:    "remedy-sandbox",
			Timeout:  5 * time.Second,
			MemoryMB: 128,
			Docker: DockerConfig{
				Binary: "docker",
			},
			Kubernetes: KubernetesConfig{
				Namespace:    "default",
				Template:     "remedy-sandbox",
				ReadyTimeout: 30 * time.Second,
			},
		},
		Oracle: OracleConfig{
			Type:    "ollama",
			BaseURL: "http://localhost:11434",
			Model:   "llama3",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Type: "memory",
			Memory: MemoryConfig{
				MaxRepairs: 1000,
			},
			Postgres: PostgresConfig{
				MaxConns:        25,
				MinConns:        5,
				MaxConnLifetime: 5 * time.Minute,
			},
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
