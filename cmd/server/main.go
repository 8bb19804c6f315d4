// Command server runs the remedy code repair service.
//
// Configuration is layered: built-in defaults, an optional YAML config
// file, then REMEDY_* environment variables. The config file is located
// via the -config flag, the REMEDY_CONFIG environment variable,
// ./config.yaml or /etc/remedy/config.yaml, in that order. Run with
// -validate to check the configuration and exit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/rhuss/remedy/pkg/auth"
	"github.com/rhuss/remedy/pkg/auth/apikey"
	authjwt "github.com/rhuss/remedy/pkg/auth/jwt"
	"github.com/rhuss/remedy/pkg/auth/noop"
	"github.com/rhuss/remedy/pkg/config"
	"github.com/rhuss/remedy/pkg/debug"
	"github.com/rhuss/remedy/pkg/engine"
	"github.com/rhuss/remedy/pkg/oracle"
	"github.com/rhuss/remedy/pkg/oracle/ollama"
	"github.com/rhuss/remedy/pkg/oracle/openai"
	"github.com/rhuss/remedy/pkg/sandbox"
	"github.com/rhuss/remedy/pkg/sandbox/docker"
	"github.com/rhuss/remedy/pkg/sandbox/kubernetes"
	"github.com/rhuss/remedy/pkg/sandbox/remote"
	"github.com/rhuss/remedy/pkg/storage/memory"
	"github.com/rhuss/remedy/pkg/storage/postgres"
	"github.com/rhuss/remedy/pkg/transport"
	transporthttp "github.com/rhuss/remedy/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	validateOnly := flag.Bool("validate", false, "validate configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if *validateOnly {
		fmt.Println("configuration ok")
		return nil
	}

	debug.Init(cfg.Logging.Debug, cfg.Logging.Level)

	ctx := context.Background()

	// Sandbox runtime.
	runtime, err := buildRuntime(cfg.Sandbox)
	if err != nil {
		return fmt.Errorf("creating sandbox runtime: %w", err)
	}
	defer runtime.Close()
	slog.Info("sandbox runtime ready", "runtime", runtime.Name(), "timeout", cfg.Sandbox.Timeout)

	// Fix oracle.
	orc := buildOracle(cfg.Oracle)
	defer orc.Close()
	slog.Info("fix oracle ready", "oracle", orc.Name(), "model", cfg.Oracle.Model)

	// Repair store.
	store, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating repair store: %w", err)
	}
	defer store.Close()
	slog.Info("storage enabled", "type", cfg.Storage.Type)

	// Repair engine.
	eng, err := engine.New(runtime, orc, store, engine.Config{
		DefaultMaxRetries: cfg.Repair.DefaultMaxRetries,
		MaxRetriesLimit:   cfg.Repair.MaxRetriesLimit,
		MaxSourceBytes:    cfg.Repair.MaxSourceBytes,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithHealthChecks(runtime, orc),
	}
	if mw := buildAuthMiddleware(cfg.Auth); mw != nil {
		opts = append(opts, transporthttp.WithHTTPMiddleware(mw))
	}

	srv := transporthttp.NewServer(eng, store, opts...)
	return srv.ListenAndServe()
}

// buildRuntime selects the execution sandbox from the configuration.
func buildRuntime(cfg config.SandboxConfig) (sandbox.Runtime, error) {
	switch cfg.Runtime {
	case "docker":
		return docker.New(docker.Config{
			Binary:   cfg.Docker.Binary,
			Image:    cfg.Image,
			Timeout:  cfg.Timeout,
			MemoryMB: cfg.MemoryMB,
		}), nil
	case "kubernetes":
		return kubernetes.NewForCluster(kubernetes.Config{
			Namespace:    cfg.Kubernetes.Namespace,
			Template:     cfg.Kubernetes.Template,
			ReadyTimeout: cfg.Kubernetes.ReadyTimeout,
			Timeout:      cfg.Timeout,
		})
	case "remote":
		return remote.New(remote.Config{
			URL:     cfg.Remote.URL,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown sandbox runtime %q", cfg.Runtime)
	}
}

// buildOracle selects the LLM backend from the configuration.
func buildOracle(cfg config.OracleConfig) oracle.Oracle {
	switch cfg.Type {
	case "openai":
		return openai.New(openai.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			APIKey:      cfg.APIKey,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
		})
	default:
		return ollama.New(ollama.Config{
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Timeout:     cfg.Timeout,
			Temperature: cfg.Temperature,
		})
	}
}

// buildStore selects the repair store from the configuration.
func buildStore(ctx context.Context, cfg config.StorageConfig) (transport.RepairStore, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			MigrateOnStart:  cfg.Postgres.MigrateOnStart,
		})
	default:
		return memory.New(cfg.Memory.MaxRepairs), nil
	}
}

// buildAuthMiddleware assembles the authentication chain and rate
// limiter. Returns nil when neither authentication nor rate limiting is
// configured, so open deployments skip the middleware entirely.
func buildAuthMiddleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	limited := cfg.RateLimits.DefaultRPM > 0 || len(cfg.RateLimits.Tiers) > 0
	if cfg.Type == "none" && !limited {
		return nil
	}

	chain := &auth.AuthChain{DefaultDecision: auth.No}
	switch cfg.Type {
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			identity := auth.Identity{
				Subject:     k.Subject,
				ServiceTier: k.ServiceTier,
			}
			if k.TenantID != "" {
				identity.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: identity})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(entries)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{authjwt.New(authjwt.Config{
			Issuer:      cfg.JWT.Issuer,
			Audience:    cfg.JWT.Audience,
			JWKSURL:     cfg.JWT.JWKSURL,
			UserClaim:   cfg.JWT.UserClaim,
			TenantClaim: cfg.JWT.TenantClaim,
			ScopesClaim: cfg.JWT.ScopesClaim,
		})}
	default:
		// Rate limiting without authentication: every request passes the
		// chain as the anonymous identity and is limited as one subject.
		chain.Authenticators = []auth.Authenticator{&noop.Authenticator{}}
	}

	var limiter auth.RateLimiter
	if limited {
		tiers := make(map[string]auth.TierConfig, len(cfg.RateLimits.Tiers))
		for name, rpm := range cfg.RateLimits.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, cfg.RateLimits.DefaultRPM)
	}

	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints)
}
