package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus instruments for the prediction service.
type Metrics struct {
	RunsTotal    prometheus.Counter
	RunsFailed   prometheus.Counter
	RunsRejected prometheus.Counter

	UnitsProcessed *prometheus.CounterVec
	UnitsSkipped   prometheus.Counter
	PredictionRows prometheus.Counter

	RunDuration  prometheus.Histogram
	UnitDuration prometheus.Histogram

	DegreeDayCacheHits   prometheus.Counter
	DegreeDayCacheMisses prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enercast_runs_total",
			Help: "Total number of prediction runs started",
		}),
		RunsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enercast_runs_failed",
			Help: "Number of prediction runs that ended with an error",
		}),
		RunsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enercast_runs_rejected",
			Help: "Number of run requests rejected because the building was already running",
		}),
		UnitsProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "enercast_units_processed",
				Help: "Number of (delivery point, fluid) units trained, per fluid",
			},
			[]string{"fluid"},
		),
		UnitsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enercast_units_skipped",
			Help: "Number of units skipped after a training failure",
		}),
		PredictionRows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enercast_prediction_rows",
			Help: "Number of monthly prediction rows persisted",
		}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "enercast_run_duration_seconds",
			Help:    "Wall time of one building run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		UnitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "enercast_unit_duration_seconds",
			Help:    "Wall time of one unit's training",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		DegreeDayCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enercast_degreeday_cache_hits",
			Help: "Degree-day lookups served from cache",
		}),
		DegreeDayCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enercast_degreeday_cache_misses",
			Help: "Degree-day lookups that reached the silver store",
		}),
	}
}
