// Package emit provides pluggable observability for pipeline execution.
package emit

// Emitter receives and processes observability events from pipeline runs.
//
// Emitters enable pluggable observability backends:
//   - Logging: stdout, files, syslog
//   - Distributed tracing: OpenTelemetry
//   - In-memory capture for tests and dashboards
//
// Implementations should be:
//   - Non-blocking: avoid slowing down phase execution
//   - Thread-safe: handlers may emit from their own goroutines
//   - Resilient: a broken backend must not crash the run
type Emitter interface {
	// Emit sends an observability event to the configured backend.
	//
	// Emit should not panic and should not block the executor. Errors
	// are handled internally (logged or dropped), never returned.
	Emit(event Event)
}
