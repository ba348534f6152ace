// Package analysis turns an engine's fragment stream into exactly one terminal
// notification per request. It is structured into small files by concern:
//
//   - gate.go: Gate, the exactly-once latch shared by the completion and timer paths.
//   - notify.go: Sink (caller notifications), Outcome, and Stream, a channel-backed Sink.
//   - aggregator.go: Aggregator, the per-request buffer that runs the completion detector.
//   - supervisor.go: Supervisor, single-flight admission, timeout timers and retirement.
//   - config.go: Config and package defaults.
//   - errors.go: admission error types and Is* helpers.
//   - events.go, eventpub_memory.go: lifecycle events and an in-memory publisher.
//   - metrics.go: Prometheus collectors.
//
// Lock order is Supervisor.mu before Aggregator.mu. The aggregator reports
// settlement to the supervisor only after releasing its own mutex. Sink
// implementations must not block and must not call back into the Supervisor.
package analysis
