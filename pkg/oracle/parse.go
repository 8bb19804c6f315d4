package oracle

import (
	"encoding/json"
	"strings"

	"github.com/rhuss/remedy/pkg/api"
)

// wireSuggestion is the object the prompt asks for. The fixed_code key is
// accepted as an alias for corrected_source since some models answer with
// that name.
type wireSuggestion struct {
	Explanation     string `json:"explanation"`
	CorrectedSource string `json:"corrected_source"`
	FixedCode       string `json:"fixed_code"`
	Rationale       string `json:"rationale"`
}

// ParseSuggestion turns a raw backend reply into a complete FixSuggestion.
//
// The reply is first parsed as the requested JSON object, with residual
// fence markers stripped from the corrected source. If that fails, a
// fenced code block anywhere in the reply is used as the correction. As
// the last resort the original source is returned unchanged. The fallback
// paths substitute fixed diagnostic strings for explanation and
// rationale, so the result is fully populated either way.
func ParseSuggestion(raw, source string) *api.FixSuggestion {
	var wire wireSuggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &wire); err == nil {
		corrected := wire.CorrectedSource
		if corrected == "" {
			corrected = wire.FixedCode
		}
		if corrected == "" {
			corrected = source
		}
		explanation := strings.TrimSpace(wire.Explanation)
		if explanation == "" {
			explanation = DefaultExplanation
		}
		return &api.FixSuggestion{
			Explanation:     explanation,
			CorrectedSource: StripFences(corrected),
			Rationale:       strings.TrimSpace(wire.Rationale),
		}
	}

	if block, ok := extractFencedBlock(raw); ok {
		return &api.FixSuggestion{
			Explanation:     FallbackExplanation,
			CorrectedSource: block,
			Rationale:       FallbackRationale,
		}
	}

	return &api.FixSuggestion{
		Explanation:     FallbackExplanation,
		CorrectedSource: source,
		Rationale:       FallbackRationale,
	}
}

// StripFences removes leading and trailing markdown fence markers that
// models sometimes wrap around source despite instructions.
func StripFences(code string) string {
	code = strings.TrimSpace(code)
	if strings.HasPrefix(code, "```python") {
		code = code[len("```python"):]
	} else if strings.HasPrefix(code, "```") {
		code = code[3:]
	}
	code = strings.TrimSuffix(code, "```")
	return strings.TrimSpace(code)
}

// extractFencedBlock finds the first fenced code block in an otherwise
// unstructured reply. Python-tagged fences are preferred over bare ones.
func extractFencedBlock(raw string) (string, bool) {
	for _, marker := range []string{"```python", "```"} {
		start := strings.Index(raw, marker)
		if start < 0 {
			continue
		}
		rest := raw[start+len(marker):]
		end := strings.Index(rest, "```")
		if end <= 0 {
			continue
		}
		return strings.TrimSpace(rest[:end]), true
	}
	return "", false
}
