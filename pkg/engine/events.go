package engine

import (
	"context"
	"fmt"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/transport"
)

// emitter sequences progress events onto a ProgressWriter for streaming
// repairs. A nil emitter swallows every emission, so the loop reads the
// same in buffered and streaming mode.
type emitter struct {
	w  transport.ProgressWriter
	id string

	seq int
}

func newEmitter(w transport.ProgressWriter, repairID string) *emitter {
	return &emitter{w: w, id: repairID}
}

// nextSeq returns the current sequence number and increments it.
func (e *emitter) nextSeq() int {
	n := e.seq
	e.seq++
	return n
}

// status announces the phase about to run for the given attempt.
func (e *emitter) status(ctx context.Context, step api.Phase, attempt, budget int) error {
	if e == nil {
		return nil
	}
	var msg string
	switch step {
	case api.PhaseExecuting:
		msg = fmt.Sprintf("Attempt %d/%d: executing code in sandbox", attempt, budget)
	case api.PhaseRequestingFix:
		msg = fmt.Sprintf("Attempt %d/%d: execution failed, requesting fix", attempt, budget)
	default:
		msg = string(step)
	}
	return e.w.WriteEvent(ctx, api.RepairEvent{
		Type:           api.EventRepairStatus,
		SequenceNumber: e.nextSeq(),
		RepairID:       e.id,
		Message:        msg,
		Step:           step,
		Attempt:        attempt,
	})
}

// attempt delivers a completed attempt record right after it was appended
// to the history.
func (e *emitter) attempt(ctx context.Context, rec api.AttemptRecord) error {
	if e == nil {
		return nil
	}
	return e.w.WriteEvent(ctx, api.RepairEvent{
		Type:           api.EventRepairAttempt,
		SequenceNumber: e.nextSeq(),
		RepairID:       e.id,
		Attempt:        rec.Attempt,
		Record:         &rec,
	})
}

// complete closes the stream with the terminal outcome. Nothing may be
// emitted on this emitter afterwards.
func (e *emitter) complete(ctx context.Context, rep *api.Repair) error {
	if e == nil {
		return nil
	}
	return e.w.WriteEvent(ctx, api.RepairEvent{
		Type:           api.EventRepairComplete,
		SequenceNumber: e.nextSeq(),
		RepairID:       e.id,
		FinalCode:      rep.FinalCode,
		Status:         rep.Status,
		Error:          rep.Error,
	})
}
