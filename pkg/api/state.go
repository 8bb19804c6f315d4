package api

import "fmt"

// Phase is a state of the repair loop state machine. One attempt walks
// executing → evaluating and then either terminates (solved) or continues
// requesting_fix → patching back into executing, until the attempt budget
// runs out (budget_exhausted).
type Phase string

const (
	PhaseExecuting       Phase = "executing"
	PhaseEvaluating      Phase = "evaluating"
	PhaseSolved          Phase = "solved"
	PhaseRequestingFix   Phase = "requesting_fix"
	PhasePatching        Phase = "patching"
	PhaseBudgetExhausted Phase = "budget_exhausted"
)

// ValidatePhaseTransition checks whether a repair loop phase transition is
// valid. An empty "from" phase represents the initial state before the
// first execution. Terminal phases (solved, budget_exhausted) do not allow
// outgoing transitions.
func ValidatePhaseTransition(from, to Phase) *APIError {
	valid := map[Phase][]Phase{
		"":                 {PhaseExecuting},
		PhaseExecuting:     {PhaseEvaluating},
		PhaseEvaluating:    {PhaseSolved, PhaseRequestingFix},
		PhaseRequestingFix: {PhasePatching},
		PhasePatching:      {PhaseExecuting, PhaseBudgetExhausted},
	}

	allowed, exists := valid[from]
	if !exists {
		return NewInvalidRequestError("phase",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, p := range allowed {
		if p == to {
			return nil
		}
	}

	return NewInvalidRequestError("phase",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}

// ValidateRepairTransition checks whether a repair status transition is valid.
// An empty "from" status represents the initial state before any status has
// been set. Terminal states (solved, unsolved, failed, cancelled) do not
// allow outgoing transitions.
func ValidateRepairTransition(from, to RepairStatus) *APIError {
	valid := map[RepairStatus][]RepairStatus{
		"":                     {RepairStatusInProgress},
		RepairStatusInProgress: {RepairStatusSolved, RepairStatusUnsolved, RepairStatusFailed, RepairStatusCancelled},
	}

	allowed, exists := valid[from]
	if !exists {
		return NewInvalidRequestError("status",
			fmt.Sprintf("invalid transition from %s to %s", from, to))
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return NewInvalidRequestError("status",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
