// Package otel publishes engine counters and the validate latency histogram
// as OpenTelemetry asynchronous instruments.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads
// [authcore.Engine.MetricsSnapshot] on each collection. Callers own the
// MeterProvider.
package otel
