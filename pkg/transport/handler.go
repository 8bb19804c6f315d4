package transport

import (
	"context"

	"github.com/rhuss/remedy/pkg/api"
)

// RepairCreator handles the core create-repair operation. The
// implementation receives a validated request and writes the result
// (incremental progress events or the complete repair) to the
// ProgressWriter.
type RepairCreator interface {
	CreateRepair(ctx context.Context, req *api.RepairRequest, w ProgressWriter) error
}

// RepairCreatorFunc is an adapter that allows using an ordinary function
// as a RepairCreator.
type RepairCreatorFunc func(ctx context.Context, req *api.RepairRequest, w ProgressWriter) error

// CreateRepair calls f(ctx, req, w).
func (f RepairCreatorFunc) CreateRepair(ctx context.Context, req *api.RepairRequest, w ProgressWriter) error {
	return f(ctx, req, w)
}

// ListOptions controls pagination, filtering, and ordering for list
// operations.
type ListOptions struct {
	After  string // Cursor: return items after this ID.
	Before string // Cursor: return items before this ID.
	Limit  int    // Maximum number of items to return (default 20, max 100).
	Status string // Filter repairs by terminal status.
	Order  string // Sort order: "asc" or "desc" (default "desc").
}

// RepairList holds a paginated list of repairs.
type RepairList struct {
	Object  string        `json:"object"`
	Data    []*api.Repair `json:"data"`
	HasMore bool          `json:"has_more"`
	FirstID string        `json:"first_id,omitempty"`
	LastID  string        `json:"last_id,omitempty"`
}

// RepairStore handles persistence, retrieval, and deletion of repairs.
// It is only available in deployments with persistence configured.
type RepairStore interface {
	// SaveRepair persists a new repair. The repair is saved once when the
	// run starts and updated as it progresses.
	SaveRepair(ctx context.Context, rep *api.Repair) error

	// GetRepair retrieves a repair by ID. Returns storage.ErrNotFound if
	// the repair does not exist or has been deleted (soft delete).
	GetRepair(ctx context.Context, id string) (*api.Repair, error)

	// UpdateRepair replaces the stored snapshot of an in-progress repair,
	// typically when it reaches a terminal status.
	UpdateRepair(ctx context.Context, rep *api.Repair) error

	// DeleteRepair soft-deletes a repair by ID.
	DeleteRepair(ctx context.Context, id string) error

	// ListRepairs returns a paginated list of stored repairs. Results are
	// filtered by tenant (when present in context) and optionally by
	// status. Supports cursor-based pagination and ordering.
	ListRepairs(ctx context.Context, opts ListOptions) (*RepairList, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}

// ProgressWriter abstracts incremental and buffered output for the
// handler. The transport layer creates a ProgressWriter per request and
// hands it to the RepairCreator. The handler uses WriteEvent for
// incremental delivery or WriteRepair for the buffered result.
//
// WriteEvent and WriteRepair are mutually exclusive on a single writer.
// Calling WriteEvent after WriteRepair (or vice versa) returns an error,
// as does WriteEvent after a terminal repair.complete event.
type ProgressWriter interface {
	// WriteEvent sends a single progress event. Returns an error if
	// called after a terminal event has been sent or after WriteRepair
	// was called.
	WriteEvent(ctx context.Context, event api.RepairEvent) error

	// WriteRepair sends the complete repair. Returns an error if called
	// after WriteEvent was called on this writer.
	WriteRepair(ctx context.Context, rep *api.Repair) error

	// Flush ensures buffered data is sent to the client. Returns an
	// error if the client has disconnected.
	Flush() error
}
