// Package integration provides integration tests for the remedy API.
//
// Tests run against a real remedy HTTP server backed by a scripted
// sandbox runtime and a mock fix oracle, all started in-process using
// net/http/httptest. The oracle is reached through the production
// Ollama client, so the full request path from HTTP handler to backend
// wire format is exercised.
package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/engine"
	"github.com/rhuss/remedy/pkg/oracle/ollama"
	"github.com/rhuss/remedy/pkg/storage/memory"
	transporthttp "github.com/rhuss/remedy/pkg/transport/http"
)

// testEnv holds the shared servers for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the remedy server and mock oracle for testing.
type TestEnvironment struct {
	RemedyServer *httptest.Server
	MockOracle   *httptest.Server
}

// TestMain starts the mock oracle and remedy server before running tests.
func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

// setupTestEnvironment creates a mock fix oracle and a remedy server wired
// to it through a scripted sandbox runtime.
func setupTestEnvironment() *TestEnvironment {
	// Start mock oracle.
	mockOracle := startMockOracle()

	// Create the production Ollama client pointing to the mock oracle.
	orc := ollama.New(ollama.Config{
		BaseURL: mockOracle.URL,
		Model:   "mock-fixer",
	})

	// Create in-memory store.
	store := memory.New(100)

	// Scripted runtime shared by the engine and the readiness endpoint.
	rt := &scriptedRuntime{}

	eng, err := engine.New(rt, orc, store, engine.Config{})
	if err != nil {
		panic(fmt.Sprintf("creating engine: %v", err))
	}

	// Build the production endpoint surface.
	srv := transporthttp.NewServer(eng, store,
		transporthttp.WithHealthChecks(rt, orc),
	)
	remedyServer := httptest.NewServer(srv.Handler())

	return &TestEnvironment{
		RemedyServer: remedyServer,
		MockOracle:   mockOracle,
	}
}

// Teardown stops both servers.
func (env *TestEnvironment) Teardown() {
	if env.RemedyServer != nil {
		env.RemedyServer.Close()
	}
	if env.MockOracle != nil {
		env.MockOracle.Close()
	}
}

// BaseURL returns the remedy server base URL.
func (env *TestEnvironment) BaseURL() string {
	return env.RemedyServer.URL
}

// --- Scripted sandbox runtime ---

// Bug patterns the scripted runtime recognizes. The sources used by the
// tests contain exactly one of them.
const (
	divisionBug = "1 / 0"
	mysteryBug  = "mystery_value"
	loopBug     = "while True:"
	hangMarker  = "# hang"
)

// scriptedRuntime stands in for the Python sandbox. It recognizes the
// bug patterns used throughout the suite and reports the output a real
// interpreter run would produce, including the reserved timeout exit
// code for runaway loops.
type scriptedRuntime struct{}

func (r *scriptedRuntime) Name() string { return "scripted" }

func (r *scriptedRuntime) Execute(ctx context.Context, source string) (*api.ExecutionResult, error) {
	if strings.Contains(source, hangMarker) {
		// Block until cancelled, with a ceiling so a broken cancellation
		// path cannot stall the suite.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return nil, fmt.Errorf("scripted hang was never cancelled")
		}
	}

	switch {
	case strings.Contains(source, divisionBug):
		return &api.ExecutionResult{
			Output: "Traceback (most recent call last):\n" +
				"  File \"script.py\", line 1, in <module>\n" +
				"ZeroDivisionError: division by zero",
			ExitCode: 1,
		}, nil
	case strings.Contains(source, mysteryBug):
		return &api.ExecutionResult{
			Output: "Traceback (most recent call last):\n" +
				"  File \"script.py\", line 1, in <module>\n" +
				"RuntimeError: mystery failure",
			ExitCode: 1,
		}, nil
	case strings.Contains(source, loopBug):
		return &api.ExecutionResult{
			Output:   "TIMEOUT ERROR: Execution exceeded 5 seconds. Possible infinite loop detected.",
			ExitCode: api.ExitTimeout,
		}, nil
	default:
		return &api.ExecutionResult{Output: "ok\n", ExitCode: 0}, nil
	}
}

func (r *scriptedRuntime) HealthCheck(_ context.Context) error { return nil }

func (r *scriptedRuntime) Close() error { return nil }

// --- Mock oracle ---

// startMockOracle creates an httptest server that mimics the Ollama
// generate API with deterministic corrections.
func startMockOracle() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/generate", handleMockGenerate)
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"models":[{"name":"mock-fixer"}]}`)
	})

	return httptest.NewServer(mux)
}

// handleMockGenerate answers a generate call with a JSON fix suggestion.
// Division and loop bugs get a working correction; everything else is
// returned unchanged so the repair loop runs out of budget.
func handleMockGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}

	code, errText := promptSections(req.Prompt)

	fixed := code
	explanation := "No fix is known for this failure"
	switch {
	case strings.Contains(errText, "ZeroDivisionError"):
		fixed = strings.ReplaceAll(code, divisionBug, "1 / 1")
		explanation = "The expression divides by zero"
	case strings.Contains(errText, "TIMEOUT ERROR"):
		fixed = strings.ReplaceAll(code, loopBug, "for _ in range(3):")
		explanation = "The loop never terminates"
	}

	reply, _ := json.Marshal(map[string]string{
		"explanation":      explanation,
		"corrected_source": fixed,
		"rationale":        "deterministic test fix",
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"model":    req.Model,
		"response": string(reply),
		"done":     true,
	})
}

// promptSections extracts the source and failure signal from the
// rendered oracle prompt.
func promptSections(prompt string) (code, errText string) {
	const codeMark, errMark = "CODE:\n", "\nERROR:\n"
	ci := strings.Index(prompt, codeMark)
	if ci < 0 {
		return prompt, ""
	}
	rest := prompt[ci+len(codeMark):]
	ei := strings.Index(rest, errMark)
	if ei < 0 {
		return strings.TrimSpace(rest), ""
	}
	code = rest[:ei]
	errText = rest[ei+len(errMark):]
	if tail := strings.Index(errText, "\n\nReturn ONLY"); tail >= 0 {
		errText = errText[:tail]
	}
	return strings.TrimSpace(code), strings.TrimSpace(errText)
}

// --- HTTP helpers ---

// postJSON sends a POST request with JSON body and returns the response.
func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

// getURL sends a GET request and returns the response.
func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	return resp
}

// deleteURL sends a DELETE request and returns the response.
func deleteURL(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("creating DELETE request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s: %v", url, err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	return string(body)
}

// decodeJSON reads the response body and decodes it into the target.
func decodeJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}

// submitRepair posts a buffered repair request and returns the result.
func submitRepair(t *testing.T, code string, maxRetries int) *api.Repair {
	t.Helper()
	resp := postJSON(t, testEnv.BaseURL()+"/v1/repairs", map[string]any{
		"code":        code,
		"max_retries": maxRetries,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /v1/repairs status = %d, want 200; body: %s", resp.StatusCode, readBody(t, resp))
	}
	var repair api.Repair
	decodeJSON(t, resp, &repair)
	return &repair
}

// --- SSE helpers ---

// sseEvent is one parsed server-sent event. The [DONE] sentinel arrives
// as a data-only event with an empty name.
type sseEvent struct {
	Name string
	Data string
}

// readSSE parses every event from an SSE body.
func readSSE(t *testing.T, body io.Reader) []sseEvent {
	t.Helper()
	var events []sseEvent
	var cur sseEvent
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.Name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.Data = strings.TrimPrefix(line, "data: ")
			events = append(events, cur)
			cur = sseEvent{}
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading SSE stream: %v", err)
	}
	return events
}

// decodeEvent parses the JSON payload of one SSE event.
func decodeEvent(t *testing.T, ev sseEvent) api.RepairEvent {
	t.Helper()
	var event api.RepairEvent
	if err := json.Unmarshal([]byte(ev.Data), &event); err != nil {
		t.Fatalf("decoding event %q: %v", ev.Data, err)
	}
	return event
}
