// Command mock-oracle runs a deterministic fix oracle for conformance
// testing. It speaks both backend dialects (Ollama generate and OpenAI
// Chat Completions), extracts the failing source from the prompt and
// answers with a predictable correction based on the failure class, so
// repair runs against it always converge the same way.
//
// Scenario directives embedded in the submitted code override the
// failure-class handling:
//
//	# scenario: unfixable - answer with the source unchanged
//	# scenario: prose     - answer with prose around a fenced block
//	# scenario: fences    - answer with a fence-wrapped corrected source
//
// Configuration:
//
//	MOCK_PORT  - Listen port (default: 9090)
//	MOCK_DELAY - Artificial latency before answering (default: 0)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"
)

var delay time.Duration

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}
	if d := os.Getenv("MOCK_DELAY"); d != "" {
		parsed, err := time.ParseDuration(d)
		if err != nil {
			slog.Error("invalid MOCK_DELAY", "value", d, "error", err)
			os.Exit(1)
		}
		delay = parsed
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate", handleGenerate)
	mux.HandleFunc("GET /api/tags", handleTags)
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock oracle starting", "port", port, "delay", delay)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock oracle failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock oracle shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Ollama dialect ---

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request"}`, http.StatusBadRequest)
		return
	}

	code, errText := extractSections(req.Prompt)
	reply := classifyAndFix(code, errText)

	pause()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(generateResponse{
		Model:    req.Model,
		Response: reply,
		Done:     true,
	})
}

func handleTags(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"models":[{"name":"mock-fixer"}]}`)
}

// --- OpenAI dialect ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"message":"invalid request","type":"invalid_request_error"}}`, http.StatusBadRequest)
		return
	}

	code, errText := extractSections(lastUserMessage(req.Messages))
	reply := classifyAndFix(code, errText)

	model := req.Model
	if model == "" {
		model = "mock-fixer"
	}

	pause()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{
		ID:     "chatcmpl-mock-fix",
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{
			{
				Index:        0,
				Message:      chatMessage{Role: "assistant", Content: reply},
				FinishReason: "stop",
			},
		},
	})
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-fixer", "object": "model", "owned_by": "remedy-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Fix generation ---

// fixReply mirrors the JSON object the prompt asks the model for.
type fixReply struct {
	Explanation     string `json:"explanation"`
	CorrectedSource string `json:"corrected_source"`
	Rationale       string `json:"rationale"`
}

var nameErrorRe = regexp.MustCompile(`name '(\w+)' is not defined`)

// classifyAndFix produces the raw reply string for a failing source.
// Scenario directives come first, then the failure class decides the
// transformation.
func classifyAndFix(code, errText string) string {
	switch {
	case strings.Contains(code, "# scenario: unfixable"):
		return mustJSON(fixReply{
			Explanation:     "The failure cannot be repaired automatically",
			CorrectedSource: code,
			Rationale:       "no safe transformation applies",
		})
	case strings.Contains(code, "# scenario: prose"):
		return "The bug is straightforward. Here is the corrected code:\n\n```python\n" +
			applyFix(code, errText) + "\n```\n\nGood luck!"
	case strings.Contains(code, "# scenario: fences"):
		return mustJSON(fixReply{
			Explanation:     "Fixed the reported failure",
			CorrectedSource: "```python\n" + applyFix(code, errText) + "\n```",
			Rationale:       "minimal deterministic edit",
		})
	}

	fixed := applyFix(code, errText)
	explanation := "No deterministic fix is known for this failure"
	if fixed != code {
		explanation = explainFix(errText)
	}
	return mustJSON(fixReply{
		Explanation:     explanation,
		CorrectedSource: fixed,
		Rationale:       "minimal deterministic edit",
	})
}

// applyFix performs the per-failure-class source transformation. Unknown
// failures return the source unchanged, which exercises the repair
// loop's give-up path.
func applyFix(code, errText string) string {
	switch {
	case strings.Contains(errText, "ZeroDivisionError"):
		code = strings.ReplaceAll(code, "/ 0", "/ 1")
		return strings.ReplaceAll(code, "/0", "/1")
	case strings.Contains(errText, "NameError"):
		if m := nameErrorRe.FindStringSubmatch(errText); m != nil {
			return m[1] + " = 0\n" + code
		}
		return code
	case strings.Contains(errText, "TIMEOUT ERROR"):
		return strings.ReplaceAll(code, "while True:", "for _ in range(10):")
	case strings.Contains(errText, "AssertionError"):
		return strings.ReplaceAll(code, "assert ", "# assert ")
	default:
		return code
	}
}

func explainFix(errText string) string {
	switch {
	case strings.Contains(errText, "ZeroDivisionError"):
		return "The code divides by zero; the divisor was changed to one"
	case strings.Contains(errText, "NameError"):
		return "A variable is used before assignment; it is now initialized"
	case strings.Contains(errText, "TIMEOUT ERROR"):
		return "The loop never terminates; it is now bounded"
	case strings.Contains(errText, "AssertionError"):
		return "A failing assertion was disabled"
	default:
		return "Adjusted the code to address the reported failure"
	}
}

// --- Helpers ---

// extractSections pulls the source and failure signal out of the
// rendered prompt. The prompt carries them under CODE: and ERROR:
// headings with a fixed closing instruction.
func extractSections(prompt string) (code, errText string) {
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

func lastUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func pause() {
	if delay > 0 {
		time.Sleep(delay)
	}
}
