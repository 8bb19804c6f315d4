// Package api defines the core wire types for the remedy repair service.
//
// This package provides all data types needed by the repair protocol:
// repair requests and outcomes, attempt records, execution results, fix
// suggestions, streaming events, error types, state machine validation,
// and ID generation.
//
// The package has zero external dependencies (Go standard library only) and
// performs no I/O. All types serialize to the JSON wire format consumed by
// the HTTP API and the streaming event protocol.
//
// Core types:
//   - [RepairRequest]: Client request carrying failing source and an attempt budget
//   - [Repair]: Terminal artifact of one repair run (final code, status, history)
//   - [AttemptRecord]: One execute-evaluate cycle, appended per loop iteration
//   - [ExecutionResult]: Captured output and termination status of one sandbox run
//   - [FixSuggestion]: Structured correction proposed by the fix oracle
//   - [RepairEvent]: Server-sent event for incremental progress delivery
//   - [APIError]: Structured error with type, code, param, and message
package api
