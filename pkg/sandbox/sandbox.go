// Package sandbox runs untrusted Python source in isolated environments.
//
// A Runtime materializes one piece of source, executes it under resource
// constraints (no network, bounded memory, wall-clock limit) and returns
// the combined stdout/stderr text together with the interpreter's exit
// code. Timeouts are reported in-band: the run is killed and the result
// carries the reserved exit code api.ExitTimeout with a synthetic output
// line, so callers can tell a runaway script from an ordinary failure.
//
// Three implementations exist:
//   - docker shells out to the container CLI on the host
//   - kubernetes provisions pods through SandboxClaim resources
//   - remote forwards execution to a sandbox server over HTTP
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rhuss/remedy/pkg/api"
)

// Runtime executes untrusted source in an isolated environment.
type Runtime interface {
	// Name identifies the runtime in logs and readiness reports.
	Name() string

	// Execute runs the source until it terminates or the wall-clock
	// limit expires. A script that fails inside the sandbox is not an
	// error: the failure is carried in the result's exit code. An error
	// return means the run could not be carried out at all.
	Execute(ctx context.Context, source string) (*api.ExecutionResult, error)

	// HealthCheck verifies the runtime can accept executions.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the runtime.
	Close() error
}

// CommandRunner abstracts command execution so executors can be tested
// without a container engine on the host.
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner runs commands through os/exec.
type RealCommandRunner struct{}

// RunCommand executes args[0] with the remaining arguments. A non-zero
// exit from the command is reported through exitCode, not err.
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return "", "", 0, err
		}
		exitCode = exitErr.ExitCode()
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem abstracts the file operations used to stage source files
// for a run.
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem against the host file system.
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// TimeoutResult is the synthetic result recorded when a run exceeds the
// wall-clock limit. The environment is torn down before it is returned.
func TimeoutResult(limit time.Duration) *api.ExecutionResult {
	return &api.ExecutionResult{
		Output:   fmt.Sprintf("TIMEOUT ERROR: Execution exceeded %d seconds. Possible infinite loop detected.", int(limit.Seconds())),
		ExitCode: api.ExitTimeout,
	}
}

// JoinOutput merges captured stdout and stderr into the single combined
// stream recorded on attempts. Stdout comes first.
func JoinOutput(stdout, stderr string) string {
	if stdout == "" {
		return stderr
	}
	if stderr == "" {
		return stdout
	}
	if !strings.HasSuffix(stdout, "\n") {
		return stdout + "\n" + stderr
	}
	return stdout + stderr
}
