// Package telemetry wires OpenTelemetry tracing and metrics for the
// data-acquisition pipeline: per-cycle spans, fetch outcome counters,
// and guard deferral counters.
package telemetry
