// Package metric provides Prometheus metrics for trustm-go.
//
// Metrics include:
//
//   - Element command counters and latency histograms
//   - Open session gauge
//   - Pre-submission rejection counters by error code
//   - Abort counter for timed out or cancelled commands
//
// The CLI writes them with WriteTextfile when --metrics-file is set.
package metric
