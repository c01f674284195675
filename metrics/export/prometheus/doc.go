// Package prometheus exposes authcore engine metrics as a
// prometheus.Collector.
//
// [NewCollector] reads [authcore.Engine.MetricsSnapshot] on every scrape.
// Counter names are prefixed authcore_*_total; the single histogram is
// authcore_validate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register with the global Prometheus registry; callers choose the
//     registry.
//   - Mutate engine state.
package prometheus
