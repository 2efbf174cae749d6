// Package otel binds engine metrics to OpenTelemetry instruments.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine counter and,
// for validate latency, a cumulative bucket gauge keyed by an "le" attribute
// plus a count gauge. One callback reads [goSession.Engine.MetricsSnapshot] on
// each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
