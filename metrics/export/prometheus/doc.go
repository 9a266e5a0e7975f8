// Package prometheus exposes engine counters and the validate latency
// histogram through a prometheus.Collector.
//
// Register the [Collector] on your own registry, or mount [Collector.Handler]
// which serves it from a private one. Series are named authcore_*_total and
// authcore_validate_latency_seconds.
package prometheus
