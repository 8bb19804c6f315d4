package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rhuss/remedy/pkg/api"
	"github.com/rhuss/remedy/pkg/observability"
	"github.com/rhuss/remedy/pkg/storage"
	"github.com/rhuss/remedy/pkg/transport"
)

// Adapter serves the repair API over HTTP.
// It routes requests to the appropriate handler and serializes results.
type Adapter struct {
	creator  transport.RepairCreator
	store    transport.RepairStore // nil if ephemeral-only
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     10 << 20, // 10 MB
		ShutdownTimeout: 30,
	}
}

// NewAdapter creates an HTTP adapter with the given RepairCreator and options.
// The RepairStore is optional; when nil, GET and DELETE endpoints return
// an error indicating the operation is not available.
// Middleware is applied to the RepairCreator in the given order.
func NewAdapter(creator transport.RepairCreator, store transport.RepairStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}

	a := &Adapter{
		creator:  creator,
		store:    store,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/repairs", a.handleCreateRepair)
	a.mux.HandleFunc("GET /v1/repairs/{id}", a.handleGetRepair)
	a.mux.HandleFunc("GET /v1/repairs", a.handleListRepairs)
	a.mux.HandleFunc("DELETE /v1/repairs/{id}", a.handleDeleteRepair)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler includes
// HTTP-level middleware for request ID propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. If present in the request, it is forwarded to
// the response. After the handler runs, it checks the context for a
// request ID (set by the transport-level RequestID middleware) and adds
// it to the response headers if not already set.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// If client sent X-Request-ID, propagate it into context.
		if id := r.Header.Get("X-Request-ID"); id != "" {
			ctx := transport.ContextWithRequestID(r.Context(), id)
			r = r.WithContext(ctx)
		}
		// Use a response writer wrapper to capture and set the request ID
		// header before the first write.
		rw := &requestIDResponseWriter{ResponseWriter: w, r: r}
		next.ServeHTTP(rw, r)
	})
}

// requestIDResponseWriter wraps http.ResponseWriter to inject the
// X-Request-ID header before the first write.
type requestIDResponseWriter struct {
	http.ResponseWriter
	r           *http.Request
	headersSent bool
}

func (w *requestIDResponseWriter) WriteHeader(statusCode int) {
	w.ensureRequestIDHeader()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *requestIDResponseWriter) Write(b []byte) (int, error) {
	w.ensureRequestIDHeader()
	return w.ResponseWriter.Write(b)
}

func (w *requestIDResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *requestIDResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *requestIDResponseWriter) ensureRequestIDHeader() {
	if w.headersSent {
		return
	}
	w.headersSent = true
	if id := transport.RequestIDFromContext(w.r.Context()); id != "" {
		w.ResponseWriter.Header().Set("X-Request-ID", id)
	}
}

// handleCreateRepair handles POST /v1/repairs.
func (a *Adapter) handleCreateRepair(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.RepairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if req.Stream {
		a.handleStreamingRepair(w, r, &req)
		return
	}

	// Buffered: create ProgressWriter and dispatch.
	pw := newSSEProgressWriter(w, nil)
	if err := a.creator.CreateRepair(r.Context(), &req, pw); err != nil {
		a.writeHandlerError(w, pw, err)
		return
	}
}

// handleStreamingRepair handles streaming POST requests (stream: true).
func (a *Adapter) handleStreamingRepair(w http.ResponseWriter, r *http.Request, req *api.RepairRequest) {
	observability.StreamingConnections.Inc()
	defer observability.StreamingConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var registeredID string
	pw := newSSEProgressWriter(w, func(id string) {
		registeredID = id
		a.inflight.Register(id, cancel)
	})

	err := a.creator.CreateRepair(ctx, req, pw)

	// Clean up in-flight registry after completion.
	if registeredID != "" {
		a.inflight.Remove(registeredID)
	}

	if err != nil {
		a.writeHandlerError(w, pw, err)
	}
}

// handleGetRepair handles GET /v1/repairs/{id}.
func (a *Adapter) handleGetRepair(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "repair retrieval is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	id := r.PathValue("id")
	if !api.ValidateRepairID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed repair ID"),
			http.StatusBadRequest,
		)
		return
	}

	rep, err := a.store.GetRepair(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, id, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rep)
}

// handleDeleteRepair handles DELETE /v1/repairs/{id}.
// It first checks the in-flight registry (cancelling an active run), then
// falls through to the repair store for standard deletion.
func (a *Adapter) handleDeleteRepair(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateRepairID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed repair ID"),
			http.StatusBadRequest,
		)
		return
	}

	// Check in-flight registry first. The cancelled run is persisted with
	// status cancelled; a second DELETE removes the stored record.
	if a.inflight.Cancel(id) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "repair deletion is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	if err := a.store.DeleteRepair(r.Context(), id); err != nil {
		a.writeStoreError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListRepairs handles GET /v1/repairs.
func (a *Adapter) handleListRepairs(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "repair listing is not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, http.StatusBadRequest)
		return
	}

	result, err := a.store.ListRepairs(r.Context(), opts)
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) {
			transport.WriteAPIError(w, apiErr)
		} else {
			transport.WriteAPIError(w, api.NewServerError(err.Error()))
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// validStatusFilter lists the status values accepted by the list endpoint.
var validStatusFilter = map[string]bool{
	string(api.RepairStatusInProgress): true,
	string(api.RepairStatusSolved):     true,
	string(api.RepairStatusUnsolved):   true,
	string(api.RepairStatusFailed):     true,
	string(api.RepairStatusCancelled):  true,
}

// parseListOptions extracts pagination parameters from the query string.
func parseListOptions(r *http.Request) (transport.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := transport.ListOptions{
		After:  q.Get("after"),
		Before: q.Get("before"),
		Status: q.Get("status"),
		Order:  q.Get("order"),
	}

	if opts.After != "" && opts.Before != "" {
		return opts, api.NewInvalidRequestError("after", "cannot use both 'after' and 'before' cursors")
	}

	if opts.Status != "" && !validStatusFilter[opts.Status] {
		return opts, api.NewInvalidRequestError("status", "unknown status filter "+strconv.Quote(opts.Status))
	}

	if opts.Order != "" && opts.Order != "asc" && opts.Order != "desc" {
		return opts, api.NewInvalidRequestError("order", "order must be 'asc' or 'desc'")
	}
	if opts.Order == "" {
		opts.Order = "desc"
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

// writeStoreError maps store lookup failures onto API error responses.
func (a *Adapter) writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		transport.WriteAPIError(w, api.NewNotFoundError("repair "+id+" not found"))
		return
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		transport.WriteAPIError(w, apiErr)
		return
	}
	transport.WriteAPIError(w, api.NewServerError(err.Error()))
}

// writeHandlerError writes an error response from the repair handler. Once
// streaming has started the engine has already closed the stream with a
// terminal repair.complete event carrying the failure, so there is nothing
// left to send. Before that point a standard JSON error is written.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, pw *sseProgressWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}

	if pw.hasStartedStreaming() {
		return
	}

	transport.WriteAPIError(w, apiErr)
}
