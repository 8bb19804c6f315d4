package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/engine"
)

const buggySource = `def divide():
    return 1 / 0

print(divide())
`

func main() {
	fmt.Println("=== remedy repair protocol demo ===")
	fmt.Println()

	// 1. Build a repair request
	req := &api.RepairRequest{
		Code:       buggySource,
		MaxRetries: 3,
		Stream:     true,
	}

	// 2. Validate request
	if err := api.ValidateRepairRequest(req, api.DefaultValidationConfig()); err != nil {
		fmt.Printf("Validation FAILED: %v\n", err)
		return
	}
	fmt.Println("[1] Request validated successfully")

	// 3. Serialize request to JSON
	data, _ := json.MarshalIndent(req, "", "  ")
	fmt.Printf("\n[2] Request JSON:\n%s\n", data)

	// 4. Run the repair loop against scripted runtime and oracle
	eng, err := engine.New(&scriptedRuntime{}, &scriptedOracle{}, nil, engine.Config{})
	if err != nil {
		fmt.Printf("Engine creation FAILED: %v\n", err)
		return
	}

	fmt.Println("\n[3] Streaming repair run:")
	pw := &printWriter{}
	if err := eng.CreateRepair(context.Background(), req, pw); err != nil {
		fmt.Printf("Repair FAILED: %v\n", err)
		return
	}

	// 5. Buffered run of the same request
	fmt.Println("\n[4] Buffered repair run:")
	req.Stream = false
	collector := &printWriter{}
	if err := eng.CreateRepair(context.Background(), req, collector); err != nil {
		fmt.Printf("Repair FAILED: %v\n", err)
		return
	}
	data, _ = json.MarshalIndent(collector.repair, "", "  ")
	fmt.Printf("%s\n", data)

	// 6. State machine transitions
	fmt.Println("\n[5] Repair loop phase transitions:")
	phases := []struct {
		from api.Phase
		to   api.Phase
	}{
		{"", api.PhaseExecuting},
		{api.PhaseExecuting, api.PhaseEvaluating},
		{api.PhaseEvaluating, api.PhaseRequestingFix},
		{api.PhaseRequestingFix, api.PhasePatching},
		{api.PhasePatching, api.PhaseExecuting},
		{api.PhaseEvaluating, api.PhaseSolved},
		{api.PhaseSolved, api.PhaseExecuting},
		{api.PhaseExecuting, api.PhaseSolved},
	}
	for _, t := range phases {
		from := string(t.from)
		if from == "" {
			from = "(initial)"
		}
		if err := api.ValidatePhaseTransition(t.from, t.to); err != nil {
			fmt.Printf("    %s -> %s: BLOCKED (%s)\n", from, t.to, err.Message)
		} else {
			fmt.Printf("    %s -> %s: OK\n", from, t.to)
		}
	}

	fmt.Println("\n[6] Repair status transitions:")
	statuses := []struct {
		from api.RepairStatus
		to   api.RepairStatus
	}{
		{"", api.RepairStatusInProgress},
		{api.RepairStatusInProgress, api.RepairStatusSolved},
		{api.RepairStatusInProgress, api.RepairStatusCancelled},
		{api.RepairStatusSolved, api.RepairStatusInProgress},
	}
	for _, t := range statuses {
		from := string(t.from)
		if from == "" {
			from = "(initial)"
		}
		if err := api.ValidateRepairTransition(t.from, t.to); err != nil {
			fmt.Printf("    %s -> %s: BLOCKED (%s)\n", from, t.to, err.Message)
		} else {
			fmt.Printf("    %s -> %s: OK\n", from, t.to)
		}
	}

	// 7. Validation error demo
	fmt.Println("\n[7] Validation error examples:")
	badReq := &api.RepairRequest{Code: ""}
	if err := api.ValidateRepairRequest(badReq, api.DefaultValidationConfig()); err != nil {
		fmt.Printf("    Missing code: %v\n", err)
	}

	badReq2 := &api.RepairRequest{Code: "print(1)", MaxRetries: 99}
	if err := api.ValidateRepairRequest(badReq2, api.DefaultValidationConfig()); err != nil {
		fmt.Printf("    Bad max_retries: %v\n", err)
	}

	fmt.Println("\n=== demo complete ===")
}

// scriptedRuntime fails any source that still divides by zero and
// succeeds otherwise, so one fix round is always enough.
type scriptedRuntime struct{}

func (r *scriptedRuntime) Name() string { return "scripted" }

func (r *scriptedRuntime) Execute(_ context.Context, source string) (*api.ExecutionResult, error) {
	if strings.Contains(source, "1 / 0") {
		return &api.ExecutionResult{
			Output: "Traceback (most recent call last):\n" +
				"  File \"script.py\", line 4, in <module>\n" +
				"    print(divide())\n" +
				"ZeroDivisionError: division by zero",
			ExitCode: 1,
		}, nil
	}
	return &api.ExecutionResult{Output: "1.0\n", ExitCode: 0}, nil
}

func (r *scriptedRuntime) HealthCheck(_ context.Context) error { return nil }

func (r *scriptedRuntime) Close() error { return nil }

// scriptedOracle proposes the same deterministic correction every time.
type scriptedOracle struct{}

func (o *scriptedOracle) Name() string { return "scripted" }

func (o *scriptedOracle) SuggestFix(_ context.Context, source, _ string) (*api.FixSuggestion, error) {
	return &api.FixSuggestion{
		Explanation:     "The function divides by zero",
		CorrectedSource: strings.ReplaceAll(source, "1 / 0", "1 / 1"),
		Rationale:       "a non-zero constant keeps the expression defined",
	}, nil
}

func (o *scriptedOracle) HealthCheck(_ context.Context) error { return nil }

func (o *scriptedOracle) Close() error { return nil }

// printWriter renders streamed events one per line and keeps the
// buffered repair for printing.
type printWriter struct {
	repair *api.Repair
}

func (w *printWriter) WriteEvent(_ context.Context, ev api.RepairEvent) error {
	switch ev.Type {
	case api.EventRepairStatus:
		fmt.Printf("    seq=%d %-15s attempt=%d step=%s %s\n",
			ev.SequenceNumber, ev.Type, ev.Attempt, ev.Step, ev.Message)
	case api.EventRepairAttempt:
		fmt.Printf("    seq=%d %-15s attempt=%d exit_code=%d\n",
			ev.SequenceNumber, ev.Type, ev.Record.Attempt, ev.Record.ExitCode)
	case api.EventRepairComplete:
		fmt.Printf("    seq=%d %-15s status=%s\n",
			ev.SequenceNumber, ev.Type, ev.Status)
	}
	return nil
}

func (w *printWriter) WriteRepair(_ context.Context, repair *api.Repair) error {
	w.repair = repair
	return nil
}

func (w *printWriter) Flush() error { return nil }
