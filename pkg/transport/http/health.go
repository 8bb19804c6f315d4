package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// HealthChecker reports whether a service dependency can currently serve.
// The sandbox runtime, the fix oracle, and the repair store all satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// readyReport is the JSON body returned by the readiness endpoint. Each
// dependency field carries "ok" or the probe error message; fields for
// dependencies that are not configured are omitted.
type readyReport struct {
	Status  string `json:"status"`
	Sandbox string `json:"sandbox,omitempty"`
	Oracle  string `json:"oracle,omitempty"`
	Storage string `json:"storage,omitempty"`
}

// ReadyzHandler probes the service dependencies and reports aggregate
// readiness. A degraded report is served with 503 so load balancers stop
// routing repairs at a replica whose sandbox or oracle is unreachable.
type ReadyzHandler struct {
	sandbox HealthChecker
	oracle  HealthChecker
	storage HealthChecker
	timeout time.Duration
}

// NewReadyzHandler creates a readiness handler for the given dependencies.
// Nil checkers are skipped and omitted from the report.
func NewReadyzHandler(sandbox, oracle, storage HealthChecker) *ReadyzHandler {
	return &ReadyzHandler{
		sandbox: sandbox,
		oracle:  oracle,
		storage: storage,
		timeout: 5 * time.Second,
	}
}

func (h *ReadyzHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	healthy := true
	probe := func(c HealthChecker) string {
		if c == nil {
			return ""
		}
		if err := c.HealthCheck(ctx); err != nil {
			healthy = false
			return err.Error()
		}
		return "ok"
	}

	report := readyReport{
		Sandbox: probe(h.sandbox),
		Oracle:  probe(h.oracle),
		Storage: probe(h.storage),
	}

	status := http.StatusOK
	report.Status = "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		report.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(report)
}
