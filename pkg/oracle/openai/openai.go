// Package openai implements the fix oracle against an OpenAI-compatible
// Chat Completions backend.
package openai

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

const healthTimeout = 2 * time.Second

// Config holds the settings for the OpenAI-compatible client.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com".
	BaseURL string

	// Model is the model name passed with every completion call.
	Model string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout is the per-request time budget.
	Timeout time.Duration

	// Temperature is forwarded on every request.
	Temperature float64
}

// Client speaks the Chat Completions API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New creates a Client for the configured backend.
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

func (c *Client) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// SuggestFix asks the model for a correction and parses the reply into a
// complete suggestion.
func (c *Client) SuggestFix(ctx context.Context, source, failureSignal string) (*api.FixSuggestion, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: oracle.SystemPrompt},
			{Role: "user", Content: oracle.UserPrompt(source, failureSignal)},
		},
		Temperature:    c.cfg.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("marshal oracle request: %s", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("create oracle request: %s", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	debug.Log("oracle", "requesting fix", "backend", "openai", "model", c.cfg.Model)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, oracle.MapNetworkError(c.cfg.BaseURL, c.cfg.Timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, oracle.MapHTTPError(resp)
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("parse oracle response: %s", err))
	}
	if len(chat.Choices) == 0 {
		return nil, api.NewServerError("oracle response contained no choices")
	}

	reply := chat.Choices[0].Message.Content
	debug.Trace("oracle", "raw model reply", "response", reply)
	return oracle.ParseSuggestion(reply, source), nil
}

// HealthCheck probes the models endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/models", nil)
	if err != nil {
		return api.NewServerError(fmt.Sprintf("create health request: %s", err))
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
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
