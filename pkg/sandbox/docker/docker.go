// Package docker executes Python source in throwaway containers driven
// through the container CLI on the host.
package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/debug"
	"github.com/rhuss/remedy/pkg/sandbox"
)

// Config holds the settings for the docker executor.
type Config struct {
	// Binary is the container CLI to invoke, typically "docker" or "podman".
	Binary string

	// Image is the sandbox image each run is started from.
	Image string

	// Timeout is the wall-clock limit per execution.
	Timeout time.Duration

	// MemoryMB is the container memory ceiling in mebibytes.
	MemoryMB int
}

// Executor runs source files in one-shot containers. Every run gets a
// fresh container with no network, a memory ceiling, dropped
// capabilities and an unprivileged user; the container is removed when
// the run ends.
type Executor struct {
	cfg    Config
	runner sandbox.CommandRunner
	fs     sandbox.FileSystem
}

// Option configures an Executor.
type Option func(*Executor)

// WithCommandRunner replaces the runner used to invoke the CLI.
func WithCommandRunner(r sandbox.CommandRunner) Option {
	return func(e *Executor) {
		e.runner = r
	}
}

// WithFileSystem replaces the file system used to stage source files.
func WithFileSystem(fs sandbox.FileSystem) Option {
	return func(e *Executor) {
		e.fs = fs
	}
}

// New creates an Executor for the given configuration.
func New(cfg Config, opts ...Option) *Executor {
	if cfg.Binary == "" {
		cfg.Binary = "docker"
	}
	e := &Executor{
		cfg:    cfg,
		runner: sandbox.RealCommandRunner{},
		fs:     sandbox.RealFileSystem{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Name() string { return "docker" }

// Execute stages the source into a temporary directory, bind-mounts it
// into a fresh container and runs the interpreter under the configured
// limits. When the wall-clock limit expires the container is stopped and
// the reserved timeout result is returned in its place.
func (e *Executor) Execute(ctx context.Context, source string) (*api.ExecutionResult, error) {
	workdir, err := e.fs.MkdirTemp("", "remedy-exec-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		if rmErr := e.fs.RemoveAll(workdir); rmErr != nil {
			slog.Warn("failed to remove staging directory", "path", workdir, "error", rmErr)
		}
	}()

	if err := e.fs.WriteFile(filepath.Join(workdir, "main.py"), []byte(source), 0o644); err != nil {
		return nil, fmt.Errorf("staging source: %w", err)
	}

	containerName := fmt.Sprintf("remedy-exec-%d", time.Now().UnixNano())
	args := []string{
		e.cfg.Binary, "run",
		"--name", containerName,
		"--rm",
		"-v", fmt.Sprintf("%s:/workdir", workdir),
		"--workdir", "/workdir",
		"--memory", fmt.Sprintf("%dm", e.cfg.MemoryMB),
		"--network", "none",
		"--security-opt", "no-new-privileges:true",
		"--user", "nobody",
		"--cap-drop", "ALL",
		e.cfg.Image,
		"python", "main.py",
	}

	debug.Log("sandbox", "starting container",
		"container", containerName, "image", e.cfg.Image, "timeout", e.cfg.Timeout)
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	stdout, stderr, exitCode, err := e.runner.RunCommand(runCtx, args)

	// The CLI process is killed on deadline, but the container itself may
	// keep running. Stop it explicitly before reporting.
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		e.stopContainer(containerName)
		debug.Log("sandbox", "execution timed out",
			"container", containerName, "elapsed", time.Since(start))
		return sandbox.TimeoutResult(e.cfg.Timeout), nil
	case runCtx.Err() != nil:
		e.stopContainer(containerName)
		return nil, runCtx.Err()
	}

	if err != nil {
		return nil, fmt.Errorf("running container: %w", err)
	}

	output := sandbox.JoinOutput(stdout, stderr)
	debug.Log("sandbox", "execution finished",
		"container", containerName, "exit_code", exitCode, "elapsed", time.Since(start))
	debug.Trace("sandbox", "captured output", "output", output)

	return &api.ExecutionResult{Output: output, ExitCode: exitCode}, nil
}

// stopContainer is the backstop for containers the CLI no longer
// supervises.
func (e *Executor) stopContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, _, _, err := e.runner.RunCommand(ctx, []string{e.cfg.Binary, "stop", name}); err != nil {
		slog.Warn("failed to stop container after timeout", "container", name, "error", err)
	}
}

// HealthCheck verifies the container engine is reachable and the sandbox
// image is present locally.
func (e *Executor) HealthCheck(ctx context.Context) error {
	if _, _, code, err := e.runner.RunCommand(ctx, []string{e.cfg.Binary, "info", "--format", "{{.ServerVersion}}"}); err != nil || code != 0 {
		return api.NewEnvironmentUnavailableError(
			fmt.Sprintf("container engine %q is not available; ensure it is installed and running", e.cfg.Binary))
	}
	if _, _, code, err := e.runner.RunCommand(ctx, []string{e.cfg.Binary, "image", "inspect", e.cfg.Image}); err != nil || code != 0 {
		return api.NewTemplateMissingError(e.cfg.Image)
	}
	return nil
}

// Close is a no-op: each run cleans up its own container.
func (e *Executor) Close() error { return nil }
