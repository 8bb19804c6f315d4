package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/debug"
	"github.com/rhuss/remedy/pkg/observability"
)

// runRepairLoop drives the execute-evaluate-fix cycle for one repair. It
// mutates rep as the run progresses and returns the infrastructure error
// that aborted it, or nil once the loop reached a verdict on the code.
//
// The oracle is consulted on every failing attempt, including the last
// one: an unsolved repair still carries a correction the caller can apply
// by hand.
func (e *Engine) runRepairLoop(ctx context.Context, source string, rep *api.Repair, em *emitter) error {
	current := source

	for attempt := 1; attempt <= rep.MaxRetries; attempt++ {
		// Check context before each attempt.
		if ctx.Err() != nil {
			return e.finish(rep, api.RepairStatusCancelled, current)
		}

		if err := em.status(ctx, api.PhaseExecuting, attempt, rep.MaxRetries); err != nil {
			return e.finish(rep, api.RepairStatusCancelled, current)
		}

		result, err := e.execute(ctx, rep.ID, attempt, current)
		if err != nil {
			if ctx.Err() != nil {
				return e.finish(rep, api.RepairStatusCancelled, current)
			}
			return e.fail(rep, current, asAPIError(err, "sandbox execution failed"))
		}

		if result.Success() {
			rec := api.AttemptRecord{
				Attempt:     attempt,
				Output:      result.Output,
				ExitCode:    result.ExitCode,
				Explanation: SuccessExplanation,
			}
			rep.History = append(rep.History, rec)
			if err := em.attempt(ctx, rec); err != nil {
				debug.Log("engine", "attempt event not delivered", "id", rep.ID, "error", err)
			}
			return e.finish(rep, api.RepairStatusSolved, current)
		}

		if err := em.status(ctx, api.PhaseRequestingFix, attempt, rep.MaxRetries); err != nil {
			return e.finish(rep, api.RepairStatusCancelled, current)
		}

		suggestion, err := e.suggestFix(ctx, current, result.Output)
		if err != nil {
			if ctx.Err() != nil {
				return e.finish(rep, api.RepairStatusCancelled, current)
			}
			return e.fail(rep, current, asAPIError(err, "requesting fix"))
		}

		rec := api.AttemptRecord{
			Attempt:     attempt,
			Output:      result.Output,
			ExitCode:    result.ExitCode,
			Explanation: suggestion.Explanation,
			Diff:        unifiedDiff(current, suggestion.CorrectedSource),
			Rationale:   suggestion.Rationale,
		}
		rep.History = append(rep.History, rec)
		current = suggestion.CorrectedSource

		if err := em.attempt(ctx, rec); err != nil {
			return e.finish(rep, api.RepairStatusCancelled, current)
		}
	}

	// Budget exhausted: the last correction is the best code we have.
	return e.finish(rep, api.RepairStatusUnsolved, current)
}

// finish moves the repair into a terminal status and records the final code.
func (e *Engine) finish(rep *api.Repair, status api.RepairStatus, code string) error {
	rep.Status = status
	rep.FinalCode = code
	return nil
}

// fail marks the repair failed with the aborting error and returns it.
func (e *Engine) fail(rep *api.Repair, code string, apiErr *api.APIError) error {
	rep.Status = api.RepairStatusFailed
	rep.FinalCode = code
	rep.Error = apiErr
	return apiErr
}

// execute runs one sandbox attempt and records execution metrics.
func (e *Engine) execute(ctx context.Context, id string, attempt int, code string) (*api.ExecutionResult, error) {
	start := time.Now()
	result, err := e.runtime.Execute(ctx, code)
	duration := time.Since(start)

	observability.SandboxExecutionDuration.Observe(duration.Seconds())
	observability.SandboxExecutionsTotal.WithLabelValues(terminationLabel(result, err)).Inc()

	if err != nil {
		return nil, err
	}
	debug.Log("engine", "sandbox run finished",
		"id", id, "attempt", attempt, "exit_code", result.ExitCode, "duration", duration)
	return result, nil
}

// suggestFix asks the oracle for a correction and records oracle metrics.
func (e *Engine) suggestFix(ctx context.Context, code, failureSignal string) (*api.FixSuggestion, error) {
	backend := e.oracle.Name()
	start := time.Now()
	suggestion, err := e.oracle.SuggestFix(ctx, code, failureSignal)
	observability.OracleLatency.WithLabelValues(backend).Observe(time.Since(start).Seconds())

	if err != nil {
		observability.OracleRequestsTotal.WithLabelValues(backend, oracleOutcome(err)).Inc()
		return nil, err
	}
	observability.OracleRequestsTotal.WithLabelValues(backend, "ok").Inc()
	debug.Trace("engine", "oracle suggestion", "explanation", suggestion.Explanation)
	return suggestion, nil
}

// terminationLabel classifies a sandbox run for metrics.
func terminationLabel(result *api.ExecutionResult, err error) string {
	switch {
	case err != nil:
		return "error"
	case result.TimedOut():
		return "timeout"
	case result.Success():
		return "ok"
	default:
		return "error"
	}
}

// oracleOutcome classifies an oracle failure for metrics.
func oracleOutcome(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Type == api.ErrorTypeUpstreamTimeout {
		return "timeout"
	}
	return "error"
}

// asAPIError returns err as an APIError, wrapping unexpected failures as
// server errors so the transport always has a mappable type.
func asAPIError(err error, msg string) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return api.NewServerError(fmt.Sprintf("%s: %v", msg, err))
}
