// Package metric provides Prometheus metrics for the time machine.
//
// Metrics include:
//
//   - Snapshot write counters
//   - Restore outcome counters and latency histogram
//   - Garbage collection counters
//   - Storage size gauge
//   - HTTP request counters and latency
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
