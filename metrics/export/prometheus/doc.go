// Package prometheus exposes engine metrics as a Prometheus collector.
//
// [NewCollector] reads [goSession.Engine.MetricsSnapshot] on every scrape and
// emits const metrics, so the engine never depends on a registry. Counter
// names are prefixed gosession_*_total; the single histogram is
// gosession_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry. Callers pick the registry.
//   - Mutate engine state.
package prometheus
