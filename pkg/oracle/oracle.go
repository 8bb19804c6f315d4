// Package oracle defines the fix oracle contract and the shared prompt
// and response handling used by its backends.
//
// An Oracle turns a failing piece of source plus its captured output into
// a structured FixSuggestion. Backends differ only in transport: ollama
// speaks the local Ollama generate API, openai speaks Chat Completions.
// Both request bare JSON and run their replies through ParseSuggestion,
// which degrades gracefully when a model ignores the instructions.
package oracle

import (
	"context"

	"github.com/rhuss/remedy/pkg/api"
)

// Oracle proposes corrections for failing source.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Oracle interface {
	// Name returns the backend identifier (e.g. "ollama", "openai").
	Name() string

	// SuggestFix sends the failing source and its captured output to the
	// backend and returns a complete suggestion. The suggestion is always
	// fully populated: when the reply is malformed the corrected source
	// falls back to a fenced-block extraction or the input itself. An
	// error is returned only when no suggestion is possible at all, such
	// as an unreachable backend or an expired time budget.
	SuggestFix(ctx context.Context, source, failureSignal string) (*api.FixSuggestion, error)

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases client resources.
	Close() error
}

// Diagnostic strings substituted when a backend reply cannot be parsed
// as the requested structure.
const (
	// FallbackExplanation replaces the explanation when the reply was not
	// the requested JSON object.
	FallbackExplanation = "AI attempted to fix the code"

	// FallbackRationale marks a suggestion recovered from an unstructured
	// reply.
	FallbackRationale = "reply was not the requested JSON object; recovered best-effort"

	// DefaultExplanation fills in when the reply parsed but carried no
	// explanation of its own.
	DefaultExplanation = "AI provided a fix"
)
