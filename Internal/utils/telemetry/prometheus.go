package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes scan and grid-search counters. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	seriesScanned  *prometheus.CounterVec
	signalsFound   *prometheus.CounterVec
	verdicts       *prometheus.CounterVec
	gridCandidates *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// serve them from promhttp.Handler.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		seriesScanned: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benfordscan_series_scanned_total",
				Help: "Number of series scanned per signal kind",
			},
			[]string{"kind"},
		),
		signalsFound: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benfordscan_signals_total",
				Help: "Number of deduplicated signals per kind",
			},
			[]string{"kind"},
		),
		verdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benfordscan_verdicts_total",
				Help: "Validation verdicts per signal kind",
			},
			[]string{"kind", "verdict"},
		),
		gridCandidates: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benfordscan_grid_candidates_total",
				Help: "Grid candidates by outcome (scored, excluded)",
			},
			[]string{"search", "outcome"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "benfordscan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "benfordscan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordSeriesScanned(kind string) {
	if r == nil {
		return
	}
	r.seriesScanned.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordSignals(kind string, n int) {
	if r == nil {
		return
	}
	r.signalsFound.WithLabelValues(kind).Add(float64(n))
}

func (r *Recorder) RecordVerdict(kind, verdict string) {
	if r == nil {
		return
	}
	r.verdicts.WithLabelValues(kind, verdict).Inc()
}

func (r *Recorder) RecordGridCandidate(search, outcome string) {
	if r == nil {
		return
	}
	r.gridCandidates.WithLabelValues(search, outcome).Inc()
}

func (r *Recorder) RecordError(kind string) {
	if r == nil {
		return
	}
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(seconds)
}
