// Package remote forwards executions to a sandbox server over HTTP.
//
// The server owns the actual isolation (typically cmd/sandbox-server
// running inside a locked-down pod or VM); this package only speaks its
// REST API. The kubernetes runtime reuses the Client here against the
// per-claim sandbox URL.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/debug"
	"github.com/rhuss/remedy/pkg/sandbox"
)

// ExecuteRequest is the request body for POST /execute on the sandbox
// server.
type ExecuteRequest struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// ExecuteResponse is the response from POST /execute on the sandbox
// server.
type ExecuteResponse struct {
	Status          string `json:"status"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// ErrAtCapacity is returned when the sandbox server rejects a run with
// HTTP 429. The run may succeed once in-flight executions drain.
var ErrAtCapacity = errors.New("sandbox server at capacity")

// Client calls a sandbox server's REST API.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a sandbox HTTP client. The generous HTTP timeout is
// an upper bound only; the execution timeout is enforced by the server.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// Execute sends a code execution request to the sandbox server at
// baseURL and returns the parsed result.
func (c *Client) Execute(ctx context.Context, baseURL string, req *ExecuteRequest) (*ExecuteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrAtCapacity
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var execResp ExecuteResponse
	if err := json.Unmarshal(respBody, &execResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &execResp, nil
}

// Health checks the sandbox server's /health endpoint.
func (c *Client) Health(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sandbox health check failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sandbox health returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Config holds the settings for the remote runtime.
type Config struct {
	// URL is the sandbox server base URL, e.g. "http://sandbox:8080".
	URL string

	// Timeout is the wall-clock limit passed along with every run.
	Timeout time.Duration
}

// Runtime executes source through a fixed sandbox server.
type Runtime struct {
	cfg    Config
	client *Client
}

// New creates a Runtime talking to the server at cfg.URL.
func New(cfg Config) *Runtime {
	return &Runtime{cfg: cfg, client: NewClient()}
}

func (r *Runtime) Name() string { return "remote" }

// Execute forwards the source to the sandbox server. Timeouts are
// reported by the server itself through the reserved exit code, so the
// response maps directly onto the result.
func (r *Runtime) Execute(ctx context.Context, source string) (*api.ExecutionResult, error) {
	debug.Log("sandbox", "forwarding execution", "url", r.cfg.URL, "timeout", r.cfg.Timeout)

	resp, err := r.client.Execute(ctx, r.cfg.URL, &ExecuteRequest{
		Code:           source,
		TimeoutSeconds: int(r.cfg.Timeout.Seconds()),
	})
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, api.NewEnvironmentUnavailableError(
				fmt.Sprintf("sandbox server %s is not reachable: %v", r.cfg.URL, err))
		}
		return nil, err
	}

	debug.Log("sandbox", "execution finished",
		"status", resp.Status, "exit_code", resp.ExitCode, "execution_time_ms", resp.ExecutionTimeMs)

	return &api.ExecutionResult{
		Output:   sandbox.JoinOutput(resp.Stdout, resp.Stderr),
		ExitCode: resp.ExitCode,
	}, nil
}

// HealthCheck verifies the sandbox server is reachable.
func (r *Runtime) HealthCheck(ctx context.Context) error {
	if err := r.client.Health(ctx, r.cfg.URL); err != nil {
		return api.NewEnvironmentUnavailableError(
			fmt.Sprintf("sandbox server %s is not reachable: %v", r.cfg.URL, err))
	}
	return nil
}

// Close is a no-op: the server's lifecycle is managed elsewhere.
func (r *Runtime) Close() error { return nil }
