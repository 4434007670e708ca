package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes relay counters and gauges via Prometheus.
type Recorder struct {
	signalsReceived   *prometheus.CounterVec
	heartbeats        *prometheus.CounterVec
	registrations     *prometheus.CounterVec
	connectedAccounts prometheus.Gauge
	retainedSignals   prometheus.Gauge
	evictions         prometheus.Counter
	archiveErrors     *prometheus.CounterVec
	latency           *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		signalsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copyrelay_signals_received_total",
				Help: "Total number of trade signals accepted from the master",
			},
			[]string{"action", "symbol"},
		),
		heartbeats: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copyrelay_heartbeats_total",
				Help: "Total number of heartbeats received",
			},
			[]string{"result"},
		),
		registrations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copyrelay_registrations_total",
				Help: "Total number of account registrations",
			},
			[]string{"role"},
		),
		connectedAccounts: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "copyrelay_connected_accounts",
				Help: "Current number of accounts in the registry",
			},
		),
		retainedSignals: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "copyrelay_retained_signals",
				Help: "Current number of signals held in the in-memory log",
			},
		),
		evictions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "copyrelay_stale_evictions_total",
				Help: "Total number of accounts evicted by the staleness reaper",
			},
		),
		archiveErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copyrelay_archive_errors_total",
				Help: "Total number of failed archive writes",
			},
			[]string{"backend"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copyrelay_operation_duration_seconds",
				Help:    "Duration of relay operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSignal records an accepted signal. Labels use the two trade fields
// every terminal sends; missing values come through as empty strings.
func (r *Recorder) RecordSignal(action, symbol string) {
	r.signalsReceived.WithLabelValues(action, symbol).Inc()
}

// RecordHeartbeat records a heartbeat by result ("known" or "unknown").
func (r *Recorder) RecordHeartbeat(result string) {
	r.heartbeats.WithLabelValues(result).Inc()
}

// RecordRegistration records a registration by role ("master" or "slave").
func (r *Recorder) RecordRegistration(role string) {
	r.registrations.WithLabelValues(role).Inc()
}

// SetConnectedAccounts updates the registry size gauge.
func (r *Recorder) SetConnectedAccounts(n int) {
	r.connectedAccounts.Set(float64(n))
}

// SetRetainedSignals updates the signal log size gauge.
func (r *Recorder) SetRetainedSignals(n int) {
	r.retainedSignals.Set(float64(n))
}

// RecordEvictions adds to the reaper eviction counter.
func (r *Recorder) RecordEvictions(n int) {
	r.evictions.Add(float64(n))
}

// RecordArchiveError records a failed archive write for a backend.
func (r *Recorder) RecordArchiveError(backend string) {
	r.archiveErrors.WithLabelValues(backend).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
