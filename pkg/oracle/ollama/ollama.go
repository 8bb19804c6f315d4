// Package ollama implements the fix oracle against an Ollama server
// using its generate API with JSON-constrained output.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/debug"
	"github.com/rhuss/remedy/pkg/oracle"
)

var _ oracle.Oracle = (*Client)(nil)

// healthTimeout bounds the liveness probe, separate from the per-request
// budget: readiness reporting should not hang for the full 30s.
const healthTimeout = 2 * time.Second

// Config holds the settings for the Ollama client.
type Config struct {
	// BaseURL is the Ollama server, e.g. "http://localhost:11434".
	BaseURL string

	// Model is the model name passed with every generate call.
	Model string

	// Timeout is the per-request time budget.
	Timeout time.Duration

	// Temperature is forwarded through the generate options.
	Temperature float64
}

// Client speaks the Ollama HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Client for the configured Ollama server.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (c *Client) Name() string { return "ollama" }

// generateRequest is the body for POST /api/generate. Format "json"
// constrains the model to emit a single JSON object.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is the subset of the Ollama reply we consume.
type generateResponse struct {
	Response string `json:"response"`
}

// SuggestFix asks the model for a correction and parses the reply into a
// complete suggestion.
func (c *Client) SuggestFix(ctx context.Context, source, failureSignal string) (*api.FixSuggestion, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.cfg.Model,
		Prompt: oracle.BuildPrompt(source, failureSignal),
		Stream: false,
		Format: "json",
		Options: map[string]any{
			"temperature": c.cfg.Temperature,
		},
	})
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("marshal oracle request: %s", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("create oracle request: %s", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	debug.Log("oracle", "requesting fix", "backend", "ollama", "model", c.cfg.Model)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, oracle.MapNetworkError(c.cfg.BaseURL, c.cfg.Timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, oracle.MapHTTPError(resp)
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("parse oracle response: %s", err))
	}

	debug.Trace("oracle", "raw model reply", "response", gen.Response)
	return oracle.ParseSuggestion(gen.Response, source), nil
}

// HealthCheck probes the tags endpoint, which answers without touching a
// model.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return api.NewServerError(fmt.Sprintf("create health request: %s", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return api.NewUpstreamUnreachableError(
			fmt.Sprintf("cannot connect to fix oracle at %s: %v", c.cfg.BaseURL, err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return api.NewUpstreamUnreachableError(
			fmt.Sprintf("fix oracle at %s returned HTTP %d", c.cfg.BaseURL, resp.StatusCode))
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
