// Package transport defines the handler interfaces and middleware chain for
// the remedy HTTP/SSE transport layer.
//
// The transport layer bridges external clients and remedy's repair engine.
// It deserializes incoming requests into the core types defined in pkg/api,
// dispatches them for processing, and serializes results back to the client
// in either buffered (JSON) or streaming (SSE) format.
//
// # Handler Interfaces
//
// Two handler interfaces define the contract between the transport layer and
// the repair engine:
//
//   - RepairCreator handles the core repair operation, available in both
//     stateless and stateful deployments.
//   - RepairStore handles get, list, and delete operations for stored
//     repairs, available only in deployments with persistence.
//
// The ProgressWriter interface abstracts streaming and buffered output,
// allowing the engine to emit SSE events or a complete JSON repair without
// knowing the underlying transport protocol.
//
// # Middleware
//
// The middleware chain wraps RepairCreator with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog. Custom middleware
// can be added for application-specific concerns.
//
// # Cancellation
//
// Streaming repairs register themselves in an InFlightRegistry keyed by
// repair ID. A DELETE on an active repair cancels its context, which the
// engine observes between attempts and records as a cancelled run.
package transport
