package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/healthz")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	body := readBody(t, resp)
	if !strings.Contains(body, "ok") {
		t.Errorf("body = %q, want to contain 'ok'", body)
	}
}

func TestReadinessReportsAllComponents(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/readyz")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var report struct {
		Status  string `json:"status"`
		Sandbox string `json:"sandbox"`
		Oracle  string `json:"oracle"`
		Storage string `json:"storage"`
	}
	decodeJSON(t, resp, &report)

	if report.Status != "healthy" {
		t.Errorf("status = %q, want %q", report.Status, "healthy")
	}
	if report.Sandbox != "ok" {
		t.Errorf("sandbox = %q, want %q", report.Sandbox, "ok")
	}
	if report.Oracle != "ok" {
		t.Errorf("oracle = %q, want %q", report.Oracle, "ok")
	}
	if report.Storage != "ok" {
		t.Errorf("storage = %q, want %q", report.Storage, "ok")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	// A repair that fails once and then succeeds touches every counter:
	// requests, sandbox executions, oracle consultations, and completions.
	submitRepair(t, "print(1 / 0)\n", 2)

	resp := getURL(t, testEnv.BaseURL()+"/metrics")

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	body := readBody(t, resp)
	for _, metric := range []string{
		"remedy_requests_total",
		"remedy_repairs_total",
		"remedy_sandbox_executions_total",
		"remedy_oracle_requests_total",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output is missing %s", metric)
		}
	}
}
