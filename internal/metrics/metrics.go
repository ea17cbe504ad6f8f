package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "admitq_queue_length",
			Help: "Current ordered-index cardinality per resource",
		},
		[]string{"resource_id"},
	)

	operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admitq_operations_total",
			Help: "Total admission engine operations",
		},
		[]string{"operation", "resource_id", "status"},
	)

	noShows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admitq_no_shows_total",
			Help: "Entries expired to no-show by the timer",
		},
		[]string{"resource_id"},
	)

	lockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admitq_lock_wait_seconds",
			Help:    "Time spent acquiring the per-resource admission lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

func SetQueueLength(resourceID string, n int64) {
	queueLength.WithLabelValues(resourceID).Set(float64(n))
}

func TrackOperation(operation, resourceID, status string) {
	operations.WithLabelValues(operation, resourceID, status).Inc()
}

func TrackNoShow(resourceID string) {
	noShows.WithLabelValues(resourceID).Inc()
}

func ObserveLockWait(d time.Duration) {
	lockWait.Observe(d.Seconds())
}
