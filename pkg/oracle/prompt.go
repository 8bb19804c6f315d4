package oracle

import "fmt"

// SystemPrompt instructs the backend to answer with a bare JSON object.
// Backends with separate system/user roles send it as the system message;
// single-prompt backends prepend it via BuildPrompt.
const SystemPrompt = `You are an expert Python debugging assistant. Analyze the code and error, then respond with ONLY a valid JSON object.

Your response MUST be valid JSON with this exact structure:
{
  "explanation": "Single sentence explaining why the bug occurred",
  "corrected_source": "Complete corrected Python code",
  "rationale": "Optional single sentence on why the fix is the right one"
}

Do not include markdown, code blocks, or any text outside the JSON object.`

// UserPrompt renders the per-request part of the prompt.
func UserPrompt(source, failureSignal string) string {
	return fmt.Sprintf(`CODE:
%s

ERROR:
%s

Return ONLY the JSON object with explanation, corrected_source and rationale.`, source, failureSignal)
}

// BuildPrompt renders the full single-string prompt for backends without
// message roles.
func BuildPrompt(source, failureSignal string) string {
	return SystemPrompt + "\n\n" + UserPrompt(source, failureSignal)
}
