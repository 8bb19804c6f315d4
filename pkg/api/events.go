package api

// RepairEventType identifies the type of a repair progress event.
type RepairEventType string

const (
	// EventRepairStatus is a status notice emitted before each execution
	// and before each fix request.
	EventRepairStatus RepairEventType = "repair.status"

	// EventRepairAttempt carries one completed AttemptRecord, emitted
	// immediately after the record is appended to the history.
	EventRepairAttempt RepairEventType = "repair.attempt"

	// EventRepairComplete is the terminal event carrying the final code
	// and outcome status. Nothing is emitted after it.
	EventRepairComplete RepairEventType = "repair.complete"
)

// Terminal reports whether no further events follow this one.
func (t RepairEventType) Terminal() bool {
	return t == EventRepairComplete
}

// RepairEvent represents a single event in an incremental repair stream.
// Events are strictly sequential: SequenceNumber increases monotonically
// from 0 and the producer stops the instant a terminal event is emitted.
type RepairEvent struct {
	Type           RepairEventType `json:"type"`
	SequenceNumber int             `json:"sequence_number"`

	// RepairID names the repair the stream belongs to so consumers can
	// correlate events and cancel the run while it is still in flight.
	RepairID string `json:"repair_id,omitempty"`

	// Status event fields. Step names the loop phase that is about to run;
	// Attempt is the 1-based index of the attempt the notice belongs to.
	Message string `json:"message,omitempty"`
	Step    Phase  `json:"step,omitempty"`
	Attempt int    `json:"attempt,omitempty"`

	// Attempt event payload.
	Record *AttemptRecord `json:"record,omitempty"`

	// Complete event payload. Error is set only when the run aborted on
	// an infrastructure failure after the stream had already started.
	FinalCode string       `json:"final_code,omitempty"`
	Status    RepairStatus `json:"status,omitempty"`
	Error     *APIError    `json:"error,omitempty"`
}
