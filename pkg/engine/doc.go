// Package engine implements the core repair loop for Remedy.
// The Engine struct implements transport.RepairCreator, bridging incoming
// repair requests to a sandbox runtime and a fix oracle. It executes the
// submitted source, asks the oracle for a correction when a run fails,
// derives a unified diff for each correction, and retries until the code
// runs cleanly or the attempt budget is spent. Optional capabilities
// (storage, streaming progress) use nil-safe composition for graceful
// degradation.
package engine
