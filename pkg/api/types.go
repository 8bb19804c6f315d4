package api

import "encoding/json"

// ExitTimeout is the reserved termination status reported when a sandbox
// run exceeds its wall-clock limit. It is distinct from ordinary failure
// codes so callers can tell a runaway run from a logical error.
const ExitTimeout = 124

// RepairRequest is the immutable input to one repair run.
type RepairRequest struct {
	// Code is the failing source to repair. Required.
	Code string `json:"code"`

	// MaxRetries bounds the number of execution attempts (1..10).
	// Zero means use the server default.
	MaxRetries int `json:"max_retries,omitempty"`

	// Stream selects incremental delivery: when true the server emits
	// repair events as they happen instead of one buffered result.
	Stream bool `json:"stream,omitempty"`
}

// ExecutionResult is the outcome of a single sandbox run: the combined
// stdout/stderr text and the interpreter's termination status.
type ExecutionResult struct {
	Output   string `json:"output"`
	ExitCode int    `json:"exit_code"`
}

// Success reports whether the run terminated cleanly.
func (r *ExecutionResult) Success() bool {
	return r.ExitCode == 0
}

// TimedOut reports whether the run was killed for exceeding its wall-clock limit.
func (r *ExecutionResult) TimedOut() bool {
	return r.ExitCode == ExitTimeout
}

// FixSuggestion is a structured correction proposed by the fix oracle.
// Oracle clients always return a fully populated suggestion, falling back
// to the unmodified source with diagnostic text when the upstream reply
// is malformed.
type FixSuggestion struct {
	Explanation     string `json:"explanation"`
	CorrectedSource string `json:"corrected_source"`
	Rationale       string `json:"rationale,omitempty"`
}

// AttemptRecord captures one execute-evaluate cycle. Records are appended
// in order with contiguous indices starting at 1 and are never mutated
// after creation.
type AttemptRecord struct {
	// Attempt is the 1-based index of this cycle within the run.
	Attempt int `json:"attempt"`

	// Output is the combined stdout/stderr captured from the sandbox.
	Output string `json:"output"`

	// ExitCode is the termination status; zero is success, ExitTimeout
	// marks a wall-clock kill.
	ExitCode int `json:"exit_code"`

	// Explanation, Diff, and Rationale describe the fix derived from this
	// attempt's failure. On the terminal success record only Explanation
	// is set (the canned success text); Diff stays empty.
	Explanation string `json:"explanation,omitempty"`
	Diff        string `json:"diff,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
}

// RepairStatus is the lifecycle status of a repair run.
type RepairStatus string

const (
	RepairStatusInProgress RepairStatus = "in_progress"
	RepairStatusSolved     RepairStatus = "solved"
	RepairStatusUnsolved   RepairStatus = "unsolved"
	RepairStatusFailed     RepairStatus = "failed"
	RepairStatusCancelled  RepairStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s RepairStatus) Terminal() bool {
	switch s {
	case RepairStatusSolved, RepairStatusUnsolved, RepairStatusFailed, RepairStatusCancelled:
		return true
	}
	return false
}

// Repair is the artifact of one repair run: the final source, whether the
// loop solved the failure, and the full attempt history. A Repair with a
// non-terminal status is still being processed.
type Repair struct {
	ID         string          `json:"-"`
	Object     string          `json:"-"`
	Status     RepairStatus    `json:"-"`
	FinalCode  string          `json:"-"`
	MaxRetries int             `json:"-"`
	History    []AttemptRecord `json:"-"`
	Error      *APIError       `json:"-"`
	CreatedAt  int64           `json:"-"`
}

// repairWire is the JSON shape of a Repair.
type repairWire struct {
	ID         string          `json:"id"`
	Object     string          `json:"object"`
	Status     RepairStatus    `json:"status"`
	FinalCode  string          `json:"final_code"`
	MaxRetries int             `json:"max_retries"`
	History    []AttemptRecord `json:"history"`
	Error      *APIError       `json:"error,omitempty"`
	CreatedAt  int64           `json:"created_at"`
}

// MarshalJSON ensures History is always an array, never null.
func (r Repair) MarshalJSON() ([]byte, error) {
	w := repairWire{
		ID:         r.ID,
		Object:     r.Object,
		Status:     r.Status,
		FinalCode:  r.FinalCode,
		MaxRetries: r.MaxRetries,
		History:    r.History,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
	}
	if w.History == nil {
		w.History = []AttemptRecord{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON deserializes a Repair.
func (r *Repair) UnmarshalJSON(data []byte) error {
	var w repairWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.ID = w.ID
	r.Object = w.Object
	r.Status = w.Status
	r.FinalCode = w.FinalCode
	r.MaxRetries = w.MaxRetries
	r.History = w.History
	r.Error = w.Error
	r.CreatedAt = w.CreatedAt
	return nil
}

// Solved reports whether the run ended with a clean execution.
func (r *Repair) Solved() bool {
	return r.Status == RepairStatusSolved
}

// LastAttempt returns the most recent attempt record, or nil when the
// history is empty.
func (r *Repair) LastAttempt() *AttemptRecord {
	if len(r.History) == 0 {
		return nil
	}
	return &r.History[len(r.History)-1]
}
