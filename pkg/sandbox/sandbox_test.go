package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/remedy/pkg/api"
)

func TestJoinOutput(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		stderr string
		want   string
	}{
		{"stdout only", "hello\n", "", "hello\n"},
		{"stderr only", "", "Traceback (most recent call last):\n", "Traceback (most recent call last):\n"},
		{"both with trailing newline", "partial output\n", "NameError: name 'x' is not defined\n", "partial output\nNameError: name 'x' is not defined\n"},
		{"stdout missing newline", "no newline", "boom", "no newline\nboom"},
		{"both empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JoinOutput(tt.stdout, tt.stderr); got != tt.want {
				t.Errorf("JoinOutput(%q, %q) = %q, want %q", tt.stdout, tt.stderr, got, tt.want)
			}
		})
	}
}

func TestTimeoutResult(t *testing.T) {
	res := TimeoutResult(5 * time.Second)

	if res.ExitCode != api.ExitTimeout {
		t.Errorf("exit code = %d, want %d", res.ExitCode, api.ExitTimeout)
	}
	if !res.TimedOut() {
		t.Error("TimedOut() = false, want true")
	}
	if res.Success() {
		t.Error("Success() = true, want false")
	}
	want := "TIMEOUT ERROR: Execution exceeded 5 seconds. Possible infinite loop detected."
	if res.Output != want {
		t.Errorf("output = %q, want %q", res.Output, want)
	}
}

func TestRealCommandRunnerCapturesStdout(t *testing.T) {
	var runner RealCommandRunner
	stdout, stderr, code, err := runner.RunCommand(context.Background(), []string{"sh", "-c", "echo hello"})
	if err != nil {
		t.Fatalf("RunCommand failed: %v", err)
	}
	if stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", stdout, "hello\n")
	}
	if stderr != "" {
		t.Errorf("stderr = %q, want empty", stderr)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestRealCommandRunnerReportsExitCode(t *testing.T) {
	var runner RealCommandRunner
	_, stderr, code, err := runner.RunCommand(context.Background(), []string{"sh", "-c", "echo boom >&2; exit 3"})
	if err != nil {
		t.Fatalf("non-zero exit should not be an error: %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
	if stderr != "boom\n" {
		t.Errorf("stderr = %q, want %q", stderr, "boom\n")
	}
}

func TestRealCommandRunnerMissingBinary(t *testing.T) {
	var runner RealCommandRunner
	_, _, _, err := runner.RunCommand(context.Background(), []string{"remedy-does-not-exist-4d1f"})
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestRealCommandRunnerEmptyArgs(t *testing.T) {
	var runner RealCommandRunner
	_, _, _, err := runner.RunCommand(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "no command") {
		t.Fatalf("err = %v, want no command error", err)
	}
}
