package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/debug"
	"github.com/rhuss/remedy/pkg/observability"
	"github.com/rhuss/remedy/pkg/oracle"
	"github.com/rhuss/remedy/pkg/sandbox"
	"github.com/rhuss/remedy/pkg/transport"
)

// SuccessExplanation is recorded on the terminal attempt of a solved repair.
const SuccessExplanation = "Code executed successfully"

// Engine orchestrates repair runs between the transport layer, the sandbox
// runtime and the fix oracle. It implements transport.RepairCreator.
type Engine struct {
	runtime sandbox.Runtime
	oracle  oracle.Oracle
	store   transport.RepairStore
	cfg     Config
}

// Ensure Engine implements transport.RepairCreator at compile time.
var _ transport.RepairCreator = (*Engine)(nil)

// New creates a new Engine. Runtime and oracle must not be nil. The store
// can be nil for ephemeral operation; repairs are then only delivered to
// the caller and cannot be retrieved later.
func New(rt sandbox.Runtime, orc oracle.Oracle, store transport.RepairStore, cfg Config) (*Engine, error) {
	if rt == nil {
		return nil, fmt.Errorf("engine: sandbox runtime must not be nil")
	}
	if orc == nil {
		return nil, fmt.Errorf("engine: fix oracle must not be nil")
	}
	return &Engine{
		runtime: rt,
		oracle:  orc,
		store:   store,
		cfg:     cfg,
	}, nil
}

// CreateRepair runs the repair loop for one request and delivers the
// outcome through w: the full event sequence when req.Stream is set, the
// complete repair otherwise. Infrastructure failures during the run abort
// it and are returned for the transport to map onto an error response; the
// persisted repair then carries status failed with the same error attached.
func (e *Engine) CreateRepair(ctx context.Context, req *api.RepairRequest, w transport.ProgressWriter) error {
	if apiErr := api.ValidateRepairRequest(req, e.cfg.validation()); apiErr != nil {
		return apiErr
	}

	// A runtime that cannot execute at all rejects the request up front:
	// no run is created and no attempt is ever recorded against it.
	if err := e.runtime.HealthCheck(ctx); err != nil {
		return asAPIError(err, "sandbox runtime unavailable")
	}

	budget := req.MaxRetries
	if budget == 0 {
		budget = e.cfg.defaultRetries()
	}

	rep := &api.Repair{
		ID:         api.NewRepairID(),
		Object:     "repair",
		Status:     api.RepairStatusInProgress,
		MaxRetries: budget,
		History:    []api.AttemptRecord{},
		CreatedAt:  time.Now().Unix(),
	}

	if e.store != nil {
		if err := e.store.SaveRepair(ctx, rep); err != nil {
			return api.NewServerError(fmt.Sprintf("saving repair %s: %v", rep.ID, err))
		}
	}

	var em *emitter
	if req.Stream {
		em = newEmitter(w, rep.ID)
	}

	start := time.Now()
	loopErr := e.runRepairLoop(ctx, req.Code, rep, em)

	debug.Log("engine", "repair finished",
		"id", rep.ID,
		"status", rep.Status,
		"attempts", len(rep.History),
		"duration", time.Since(start))

	e.persist(rep)

	observability.RepairsTotal.WithLabelValues(string(rep.Status)).Inc()
	observability.RepairAttempts.Observe(float64(len(rep.History)))

	if em != nil {
		if err := em.complete(ctx, rep); err != nil {
			debug.Log("engine", "terminal event not delivered", "id", rep.ID, "error", err)
		}
		return loopErr
	}
	if loopErr != nil {
		return loopErr
	}
	return w.WriteRepair(ctx, rep)
}

// persist updates the stored repair with its terminal state. Store failures
// are logged, not surfaced: the outcome already exists and is still
// delivered to the caller.
func (e *Engine) persist(rep *api.Repair) {
	if e.store == nil {
		return
	}
	// The request context may already be cancelled; the update must still
	// go through so the stored repair does not stay in_progress forever.
	updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.UpdateRepair(updateCtx, rep); err != nil {
		slog.Warn("failed to persist repair", "id", rep.ID, "error", err)
	}
}
