package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchAttempts *prometheus.CounterVec
	failovers     *prometheus.CounterVec
	exhausted     *prometheus.CounterVec
	symbols       *prometheus.CounterVec
	hits          *prometheus.CounterVec
	scans         *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New creates a recorder registered on reg. Pass prometheus.DefaultRegisterer in
// production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		fetchAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscan_fetch_attempts_total",
				Help: "Upstream HTTP attempts by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		failovers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscan_fetch_failovers_total",
				Help: "Times an endpoint was abandoned for the next candidate",
			},
			[]string{"endpoint"},
		),
		exhausted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscan_fetch_exhausted_total",
				Help: "Fetches that failed on every endpoint",
			},
			[]string{"path"},
		),
		symbols: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscan_symbols_total",
				Help: "Per-symbol scan outcomes",
			},
			[]string{"kind", "status"},
		),
		hits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscan_bucket_hits_total",
				Help: "Classified instruments by bucket",
			},
			[]string{"kind", "bucket"},
		),
		scans: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalscan_scan_duration_seconds",
				Help:    "Wall time of full scans",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"kind", "reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalscan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalscan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordFetchAttempt(endpoint, outcome string) {
	r.fetchAttempts.WithLabelValues(endpoint, outcome).Inc()
}

func (r *Recorder) RecordFailover(endpoint string) {
	r.failovers.WithLabelValues(endpoint).Inc()
}

func (r *Recorder) RecordExhausted(path string) {
	r.exhausted.WithLabelValues(path).Inc()
}

func (r *Recorder) RecordSymbol(kind, status string) {
	r.symbols.WithLabelValues(kind, status).Inc()
}

func (r *Recorder) RecordHits(kind, bucket string, n int) {
	r.hits.WithLabelValues(kind, bucket).Add(float64(n))
}

func (r *Recorder) RecordScan(kind, reason string, seconds float64) {
	r.scans.WithLabelValues(kind, reason).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordFetchAttempt(string, string) {}
func (Nop) RecordFailover(string) {}
func (Nop) RecordExhausted(string) {}
func (Nop) RecordSymbol(string, string) {}
func (Nop) RecordHits(string, string, int) {}
func (Nop) RecordScan(string, string, float64) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
