package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "trustm"

// Registry holds all application metrics.
//
// All methods are safe on a nil *Registry so that components can be built
// without metrics.
type Registry struct {
	registry *prometheus.Registry

	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	SessionsOpen    prometheus.Gauge
	Rejections      *prometheus.CounterVec
	Aborts          prometheus.Counter
	PayloadBytes    prometheus.Counter
}

// NewRegistry creates a registry with all metrics registered.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "element_commands_total",
			Help:      "Commands submitted to the secure element, by opcode and result.",
		}, []string{"op", "result"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "element_command_duration_seconds",
			Help:      "Time from submission to completion of element commands.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"op"}),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Currently open element sessions.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_rejected_total",
			Help:      "Requests rejected before reaching the element, by error code.",
		}, []string{"code"}),
		Aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "element_aborts_total",
			Help:      "In-flight commands aborted by timeout or cancellation.",
		}),
		PayloadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payload_bytes_total",
			Help:      "Plaintext bytes submitted for encryption.",
		}),
	}

	r.registry.MustRegister(
		r.CommandsTotal,
		r.CommandDuration,
		r.SessionsOpen,
		r.Rejections,
		r.Aborts,
		r.PayloadBytes,
	)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// ObserveCommand records a completed (or failed) command.
func (r *Registry) ObserveCommand(op, result string, d time.Duration) {
	if r == nil {
		return
	}
	r.CommandsTotal.WithLabelValues(op, result).Inc()
	r.CommandDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SessionOpened increments the open session gauge.
func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.SessionsOpen.Inc()
}

// SessionClosed decrements the open session gauge.
func (r *Registry) SessionClosed() {
	if r == nil {
		return
	}
	r.SessionsOpen.Dec()
}

// Rejected records a request refused before submission.
func (r *Registry) Rejected(code string) {
	if r == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	r.Rejections.WithLabelValues(code).Inc()
}

// Aborted records an aborted command.
func (r *Registry) Aborted() {
	if r == nil {
		return
	}
	r.Aborts.Inc()
}

// AddPayload records submitted plaintext volume.
func (r *Registry) AddPayload(n int) {
	if r == nil {
		return
	}
	r.PayloadBytes.Add(float64(n))
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.Gatherer())
}
