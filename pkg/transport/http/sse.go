package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/transport"
)

// writerState tracks the state of an SSE ProgressWriter.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // WriteEvent has been called at least once
	writerCompleted                    // Terminal event sent or WriteRepair called
)

// sseProgressWriter implements transport.ProgressWriter for HTTP responses.
// It handles both streaming (SSE) and buffered (JSON) output.
type sseProgressWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState

	// onFirstEvent is called with the repair ID carried by the first
	// event, giving the adapter a handle for in-flight registration.
	onFirstEvent func(id string)
}

var _ transport.ProgressWriter = (*sseProgressWriter)(nil)

// newSSEProgressWriter creates a ProgressWriter wrapping an http.ResponseWriter.
// The onFirstEvent callback is called with the repair ID when the first
// event is written (may be nil if not needed).
func newSSEProgressWriter(w http.ResponseWriter, onFirstEvent func(id string)) *sseProgressWriter {
	return &sseProgressWriter{
		w:            w,
		rc:           http.NewResponseController(w),
		onFirstEvent: onFirstEvent,
	}
}

// WriteEvent sends a single SSE event. The event is formatted as:
//
//	event: {type}\n
//	data: {json}\n
//	\n
//
// After the terminal repair.complete event, it also sends:
//
//	data: [DONE]\n
//	\n
func (s *sseProgressWriter) WriteEvent(ctx context.Context, event api.RepairEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write event: writer is completed")
	}

	// First event: set SSE headers.
	if s.state == writerIdle {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.state = writerStreaming

		if s.onFirstEvent != nil && event.RepairID != "" {
			s.onFirstEvent(event.RepairID)
			s.onFirstEvent = nil
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	// Flush immediately so events reach the client as they happen.
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	if event.Type.Terminal() {
		if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
			return fmt.Errorf("failed to write [DONE]: %w", err)
		}
		if err := s.rc.Flush(); err != nil {
			return fmt.Errorf("failed to flush [DONE]: %w", err)
		}
		s.state = writerCompleted
	}

	return nil
}

// WriteRepair sends a complete buffered JSON repair.
// This is mutually exclusive with WriteEvent.
func (s *sseProgressWriter) WriteRepair(ctx context.Context, rep *api.Repair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerStreaming {
		return errors.New("cannot write repair: streaming has already started")
	}
	if s.state == writerCompleted {
		return errors.New("cannot write repair: writer is completed")
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(rep); err != nil {
		return fmt.Errorf("failed to encode repair: %w", err)
	}

	return nil
}

// Flush ensures buffered data is sent to the client.
func (s *sseProgressWriter) Flush() error {
	return s.rc.Flush()
}

// hasStartedStreaming returns true if at least one SSE event has been written.
func (s *sseProgressWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == writerStreaming || (s.state == writerCompleted && s.w.Header().Get("Content-Type") == "text/event-stream")
}
