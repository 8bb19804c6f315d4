// Package kubernetes executes source in sandbox pods provisioned
// through agent-sandbox SandboxClaim CRDs.
//
// Every run acquires a fresh claim, executes through the sandbox
// server inside the resulting pod, and releases the claim afterwards,
// so no state leaks between attempts.
package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/sandbox"
	"github.com/rhuss/remedy/pkg/sandbox/remote"
)

var _ sandbox.Runtime = (*Runtime)(nil)

// Config holds the settings for the kubernetes runtime.
type Config struct {
	// Namespace is where SandboxClaims are created.
	Namespace string

	// Template names the SandboxTemplate each claim references.
	Template string

	// ReadyTimeout bounds the wait for a claimed pod to become ready.
	ReadyTimeout time.Duration

	// Timeout is the wall-clock limit forwarded with every run.
	Timeout time.Duration
}

// Runtime executes source in per-run sandbox pods.
type Runtime struct {
	cfg      Config
	acquirer *ClaimAcquirer
	exec     *remote.Client
}

// New creates a Runtime on top of an existing kubernetes client.
func New(c client.Client, cfg Config) *Runtime {
	return &Runtime{
		cfg:      cfg,
		acquirer: NewClaimAcquirer(c, cfg.Template, cfg.Namespace, cfg.ReadyTimeout),
		exec:     remote.NewClient(),
	}
}

// NewForCluster creates a Runtime using the ambient kubeconfig or
// in-cluster configuration.
func NewForCluster(cfg Config) (*Runtime, error) {
	restCfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}
	scheme, err := NewScheme()
	if err != nil {
		return nil, err
	}
	c, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return New(c, cfg), nil
}

func (r *Runtime) Name() string { return "kubernetes" }

// Execute claims a sandbox pod, runs the source through its execution
// server and releases the claim again.
func (r *Runtime) Execute(ctx context.Context, source string) (*api.ExecutionResult, error) {
	url, release, err := r.acquirer.Acquire(ctx)
	if err != nil {
		if errors.Is(err, errSandboxNotCreated) {
			return nil, api.NewTemplateMissingError(r.cfg.Template)
		}
		return nil, api.NewEnvironmentUnavailableError(fmt.Sprintf("acquiring sandbox: %v", err))
	}
	defer release()

	resp, err := r.exec.Execute(ctx, url, &remote.ExecuteRequest{
		Code:           source,
		TimeoutSeconds: int(r.cfg.Timeout.Seconds()),
	})
	if err != nil {
		return nil, fmt.Errorf("executing in sandbox %s: %w", url, err)
	}

	return &api.ExecutionResult{
		Output:   sandbox.JoinOutput(resp.Stdout, resp.Stderr),
		ExitCode: resp.ExitCode,
	}, nil
}

// HealthCheck verifies the kubernetes API is reachable and the
// agent-sandbox CRDs are served in the configured namespace.
func (r *Runtime) HealthCheck(ctx context.Context) error {
	list := &extensionsv1alpha1.SandboxClaimList{}
	if err := r.acquirer.client.List(ctx, list, client.InNamespace(r.cfg.Namespace), client.Limit(1)); err != nil {
		return api.NewEnvironmentUnavailableError(
			fmt.Sprintf("kubernetes sandbox API not reachable: %v", err))
	}
	return nil
}

// Close is a no-op: claims are released per run.
func (r *Runtime) Close() error { return nil }
