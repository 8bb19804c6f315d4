package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/oracle"
)

func newTestClient(url string) *Client {
	return New(Config{BaseURL: url, Model: "llama3", Timeout: 5 * time.Second})
}

func TestSuggestFix(t *testing.T) {
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"model":    "llama3",
			"response": `{"explanation": "x was never defined", "corrected_source": "x = 1\nprint(x)", "rationale": "initialize before use"}`,
			"done":     true,
		})
	}))
	defer srv.Close()

	fix, err := newTestClient(srv.URL).SuggestFix(context.Background(), "print(x)", "NameError: name 'x' is not defined")
	if err != nil {
		t.Fatalf("SuggestFix failed: %v", err)
	}

	if fix.Explanation != "x was never defined" {
		t.Errorf("explanation = %q", fix.Explanation)
	}
	if fix.CorrectedSource != "x = 1\nprint(x)" {
		t.Errorf("corrected source = %q", fix.CorrectedSource)
	}
	if fix.Rationale != "initialize before use" {
		t.Errorf("rationale = %q", fix.Rationale)
	}

	if gotReq.Model != "llama3" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.Format != "json" {
		t.Errorf("format = %q, want json", gotReq.Format)
	}
	if gotReq.Stream {
		t.Error("stream = true, want false")
	}
	if !strings.Contains(gotReq.Prompt, "print(x)") || !strings.Contains(gotReq.Prompt, "NameError") {
		t.Errorf("prompt missing code or error:\n%s", gotReq.Prompt)
	}
}

func TestSuggestFixMalformedReplyFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"response": "Here you go:\n```python\nprint('fixed')\n```",
		})
	}))
	defer srv.Close()

	fix, err := newTestClient(srv.URL).SuggestFix(context.Background(), "print(x)", "NameError")
	if err != nil {
		t.Fatalf("SuggestFix failed: %v", err)
	}
	if fix.CorrectedSource != "print('fixed')" {
		t.Errorf("corrected source = %q", fix.CorrectedSource)
	}
	if fix.Explanation != oracle.FallbackExplanation {
		t.Errorf("explanation = %q, want fallback", fix.Explanation)
	}
}

func TestSuggestFixUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv.URL).SuggestFix(context.Background(), "print(1)", "err")

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeUpstreamUnreachable {
		t.Fatalf("err = %v, want upstream_unreachable", err)
	}
}

func TestSuggestFixTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := New(Config{BaseURL: srv.URL, Model: "llama3", Timeout: 50 * time.Millisecond})
	_, err := client.SuggestFix(context.Background(), "print(1)", "err")

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeUpstreamTimeout {
		t.Fatalf("err = %v, want upstream_timeout", err)
	}
}

func TestSuggestFixModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model 'llama3' not found, try pulling it first"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SuggestFix(context.Background(), "print(1)", "err")

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *api.APIError", err)
	}
	if !strings.Contains(apiErr.Message, "llama3") {
		t.Errorf("message should name the model: %q", apiErr.Message)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"models":[{"name":"llama3:latest"}]}`))
	}))
	defer srv.Close()

	if err := newTestClient(srv.URL).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck failed: %v", err)
	}
}

func TestHealthCheckDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := newTestClient(srv.URL).HealthCheck(context.Background())

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeUpstreamUnreachable {
		t.Fatalf("err = %v, want upstream_unreachable", err)
	}
}

func TestBaseURLNormalization(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:11434/", Model: "llama3"})
	if c.cfg.BaseURL != "http://localhost:11434" {
		t.Errorf("base URL = %q, trailing slash not trimmed", c.cfg.BaseURL)
	}
	if c.cfg.Timeout != 30*time.Second {
		t.Errorf("timeout = %s, want 30s default", c.cfg.Timeout)
	}
	if c.Name() != "ollama" {
		t.Errorf("Name() = %q", c.Name())
	}
}
