package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExecutionResultSuccess(t *testing.T) {
	tests := []struct {
		name     string
		exitCode int
		success  bool
		timedOut bool
	}{
		{"clean exit", 0, true, false},
		{"ordinary failure", 1, false, false},
		{"timeout sentinel", ExitTimeout, false, true},
		{"other failure", 42, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ExecutionResult{Output: "x", ExitCode: tt.exitCode}
			if got := r.Success(); got != tt.success {
				t.Errorf("Success() = %v, want %v", got, tt.success)
			}
			if got := r.TimedOut(); got != tt.timedOut {
				t.Errorf("TimedOut() = %v, want %v", got, tt.timedOut)
			}
		})
	}
}

func TestTimeoutSentinelDistinctFromOrdinaryFailures(t *testing.T) {
	if ExitTimeout == 0 || ExitTimeout == 1 || ExitTimeout == 2 {
		t.Fatalf("ExitTimeout = %d collides with common exit codes", ExitTimeout)
	}
}

func TestAttemptRecordWireFormat(t *testing.T) {
	rec := AttemptRecord{
		Attempt:     2,
		Output:      "NameError: name 'x' is not defined",
		ExitCode:    1,
		Explanation: "x was never assigned",
		Diff:        "--- original.py\n+++ fixed.py\n",
		Rationale:   "assign before use",
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, field := range []string{`"attempt":2`, `"output":`, `"exit_code":1`, `"explanation":`, `"diff":`, `"rationale":`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("wire JSON missing %s: %s", field, data)
		}
	}
}

func TestAttemptRecordOmitsEmptyOptionalFields(t *testing.T) {
	rec := AttemptRecord{Attempt: 1, Output: "ok\n", ExitCode: 0, Explanation: "Code executed successfully"}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if strings.Contains(string(data), `"diff"`) {
		t.Errorf("empty diff should be omitted: %s", data)
	}
	if strings.Contains(string(data), `"rationale"`) {
		t.Errorf("empty rationale should be omitted: %s", data)
	}
}

func TestRepairMarshalHistoryNeverNull(t *testing.T) {
	r := Repair{
		ID:        NewRepairID(),
		Object:    "repair",
		Status:    RepairStatusFailed,
		CreatedAt: 1700000000,
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if strings.Contains(string(data), `"history":null`) {
		t.Errorf("history marshaled as null: %s", data)
	}
	if !strings.Contains(string(data), `"history":[]`) {
		t.Errorf("history not marshaled as empty array: %s", data)
	}
}

func TestRepairJSONRoundTrip(t *testing.T) {
	orig := Repair{
		ID:         NewRepairID(),
		Object:     "repair",
		Status:     RepairStatusSolved,
		FinalCode:  "print('hello')",
		MaxRetries: 3,
		History: []AttemptRecord{
			{Attempt: 1, Output: "NameError", ExitCode: 1, Explanation: "typo", Diff: "-a\n+b\n"},
			{Attempt: 2, Output: "hello\n", ExitCode: 0, Explanation: "Code executed successfully"},
		},
		CreatedAt: 1700000000,
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var parsed Repair
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if parsed.ID != orig.ID {
		t.Errorf("ID = %q, want %q", parsed.ID, orig.ID)
	}
	if parsed.Status != orig.Status {
		t.Errorf("Status = %q, want %q", parsed.Status, orig.Status)
	}
	if parsed.FinalCode != orig.FinalCode {
		t.Errorf("FinalCode = %q, want %q", parsed.FinalCode, orig.FinalCode)
	}
	if len(parsed.History) != 2 {
		t.Fatalf("History length = %d, want 2", len(parsed.History))
	}
	if parsed.History[1].ExitCode != 0 {
		t.Errorf("last record ExitCode = %d, want 0", parsed.History[1].ExitCode)
	}
}

func TestRepairSolved(t *testing.T) {
	solved := &Repair{Status: RepairStatusSolved}
	if !solved.Solved() {
		t.Error("Solved() = false for solved repair")
	}
	unsolved := &Repair{Status: RepairStatusUnsolved}
	if unsolved.Solved() {
		t.Error("Solved() = true for unsolved repair")
	}
}

func TestRepairLastAttempt(t *testing.T) {
	empty := &Repair{}
	if got := empty.LastAttempt(); got != nil {
		t.Errorf("LastAttempt() on empty history = %+v, want nil", got)
	}

	r := &Repair{History: []AttemptRecord{
		{Attempt: 1, ExitCode: 1},
		{Attempt: 2, ExitCode: 0},
	}}
	last := r.LastAttempt()
	if last == nil {
		t.Fatal("LastAttempt() = nil")
	}
	if last.Attempt != 2 {
		t.Errorf("LastAttempt().Attempt = %d, want 2", last.Attempt)
	}
}
