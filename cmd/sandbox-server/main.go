// Command sandbox-server runs the execution half of remedy inside a
// locked-down pod or VM. It accepts Python source over HTTP, runs it in
// an interpreter subprocess with a wall-clock limit, and reports the
// captured output together with the exit code. Network isolation and
// memory limits are the pod's job; this server enforces the timeout and
// the concurrency cap.
//
// Configuration:
//
//	SANDBOX_PORT            - Listen port (default: 8080)
//	SANDBOX_PYTHON          - Interpreter binary (default: python3)
//	SANDBOX_MAX_CONCURRENT  - Max concurrent executions (default: 3)
//	SANDBOX_DEFAULT_TIMEOUT - Fallback timeout in seconds (default: 5)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rhuss/remedy/pkg/api"
)

func main() {
	port := envOr("SANDBOX_PORT", "8080")
	python := envOr("SANDBOX_PYTHON", "python3")
	maxConcurrent := envOrInt("SANDBOX_MAX_CONCURRENT", 3)
	defaultTimeout := envOrInt("SANDBOX_DEFAULT_TIMEOUT", 5)

	if _, err := exec.LookPath(python); err != nil {
		slog.Error("interpreter not found in PATH", "python", python)
		os.Exit(1)
	}

	srv := &sandboxServer{
		python:         python,
		runtimeVersion: detectRuntimeVersion(python),
		maxConcurrent:  int32(maxConcurrent),
		defaultTimeout: defaultTimeout,
		startTime:      time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /execute", srv.handleExecute)
	mux.HandleFunc("GET /health", srv.handleHealth)

	httpSrv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Long timeout for code execution.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("sandbox server starting",
			"port", port, "runtime", srv.runtimeVersion, "max_concurrent", maxConcurrent)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
}

// --- Server ---

type sandboxServer struct {
	python         string
	runtimeVersion string // e.g., "Python 3.12.12"
	maxConcurrent  int32
	currentLoad    atomic.Int32
	defaultTimeout int
	startTime      time.Time
}

// --- Execute handler ---

type executeRequest struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type executeResponse struct {
	Status          string `json:"status"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

func (s *sandboxServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	// Check capacity.
	current := s.currentLoad.Add(1)
	defer s.currentLoad.Add(-1)

	if current > s.maxConcurrent {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error": fmt.Sprintf("at capacity (%d/%d concurrent executions)", current, s.maxConcurrent),
		})
		return
	}

	// Parse request.
	var req executeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 10*1024*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	// Truncate code for logging (first 120 chars).
	codePreview := req.Code
	if len(codePreview) > 120 {
		codePreview = codePreview[:120] + "..."
	}
	slog.Info("execute request", "code", codePreview, "timeout", req.TimeoutSeconds)

	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = s.defaultTimeout
	}

	// Create temporary working directory.
	tmpDir, err := os.MkdirTemp("", "remedy-exec-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create temp dir: "+err.Error())
		return
	}
	defer os.RemoveAll(tmpDir)

	// Write the code to a file.
	codePath := filepath.Join(tmpDir, "script.py")
	if err := os.WriteFile(codePath, []byte(req.Code), 0644); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write code: "+err.Error())
		return
	}

	// Execute with timeout. Isolated mode (-I) keeps the interpreter from
	// picking up environment variables and user site-packages.
	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(req.TimeoutSeconds)*time.Second)
	defer cancel()

	startTime := time.Now()
	cmd := exec.CommandContext(ctx, s.python, "-I", codePath)
	cmd.Dir = tmpDir

	var stdoutBuf, stderrBuf strings.Builder
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	execErr := cmd.Run()
	duration := time.Since(startTime)

	// Determine exit code. Timeouts are reported in-band through the
	// reserved exit code so the engine can tell a runaway script from an
	// ordinary failure.
	exitCode := 0
	status := "success"
	if execErr != nil {
		status = "error"
		if ctx.Err() == context.DeadlineExceeded {
			status = "timeout"
			exitCode = api.ExitTimeout
			stderrBuf.WriteString(fmt.Sprintf(
				"TIMEOUT ERROR: Execution exceeded %d seconds. Possible infinite loop detected.",
				req.TimeoutSeconds))
		} else if exitErr, ok := execErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderrBuf.WriteString(execErr.Error())
		}
	}

	// Log completion.
	stdoutPreview := stdoutBuf.String()
	if len(stdoutPreview) > 200 {
		stdoutPreview = stdoutPreview[:200] + "..."
	}
	slog.Info("execute complete",
		"status", status,
		"exit_code", exitCode,
		"duration_ms", duration.Milliseconds(),
		"stdout_len", stdoutBuf.Len(),
		"stdout", stdoutPreview,
	)

	// Return response.
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(executeResponse{
		Status:          status,
		Stdout:          stdoutBuf.String(),
		Stderr:          stderrBuf.String(),
		ExitCode:        exitCode,
		ExecutionTimeMs: duration.Milliseconds(),
	})
}

// --- Health handler ---

type healthResponse struct {
	Status         string `json:"status"`
	RuntimeVersion string `json:"runtime_version"`
	Capacity       int    `json:"capacity"`
	CurrentLoad    int    `json:"current_load"`
	UptimeSecs     int64  `json:"uptime_seconds"`
}

func (s *sandboxServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:         "healthy",
		RuntimeVersion: s.runtimeVersion,
		Capacity:       int(s.maxConcurrent),
		CurrentLoad:    int(s.currentLoad.Load()),
		UptimeSecs:     int64(time.Since(s.startTime).Seconds()),
	})
}

// detectRuntimeVersion returns the interpreter's version string.
func detectRuntimeVersion(python string) string {
	output, err := exec.Command(python, "--version").Output()
	if err != nil {
		return "unknown"
	}

	version := strings.TrimSpace(string(output))
	if idx := strings.Index(version, "\n"); idx > 0 {
		version = version[:idx]
	}
	return version
}

// --- Helpers ---

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return defaultVal
	}
	return n
}
