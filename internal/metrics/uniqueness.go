package metrics

import "github.com/prometheus/client_golang/prometheus"

const subsystem = "uniqueness"

// Uniqueness pipeline metrics.
var (
	ComputationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "computations_total",
			Help:      "Completed uniqueness computations by resulting tier",
		},
		[]string{"tier"},
	)

	DegradationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "degradations_total",
			Help:      "Fallbacks taken while computing uniqueness",
		},
		[]string{"reason"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_total",
			Help:      "Cache lookups by kind and result",
		},
		[]string{"kind", "result"}, // result: "hit" / "miss" / "error"
	)

	ModerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "moderation_total",
			Help:      "Moderation gate outcomes",
		},
		[]string{"outcome"},
	)
)

var uniquenessMetricsRegistered bool

// RegisterUniquenessMetrics registers pipeline metrics. Must be called once from main.
func RegisterUniquenessMetrics() {
	if uniquenessMetricsRegistered {
		return
	}
	prometheus.MustRegister(ComputationsTotal)
	prometheus.MustRegister(DegradationsTotal)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(CacheTotal)
	prometheus.MustRegister(ModerationTotal)
	uniquenessMetricsRegistered = true
}
