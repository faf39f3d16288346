package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bookingsync"

var (
	once sync.Once

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Read cache lookups by result.",
		},
		[]string{"result"},
	)

	queueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "offline_queue_length",
			Help:      "Mutations waiting in the offline queue.",
		},
	)

	drainItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drain_items_total",
			Help:      "Queued mutations replayed, by outcome.",
		},
		[]string{"outcome"},
	)

	drains = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drains_total",
			Help:      "Drain passes by result.",
		},
		[]string{"result"},
	)

	reconcileEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_events_total",
			Help:      "Realtime events handled by the reconciler, by outcome.",
		},
		[]string{"outcome"},
	)

	faults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_total",
			Help:      "Best-effort failures absorbed, by source.",
		},
		[]string{"source"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(cacheLookups, queueLength, drainItems, drains, reconcileEvents, faults)
	})
}

// IncCacheLookup counts a cache lookup: hit, miss or expired.
func IncCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func SetQueueLength(n int) {
	queueLength.Set(float64(n))
}

// IncDrainItem counts a replayed mutation: succeeded or failed.
func IncDrainItem(outcome string) {
	drainItems.WithLabelValues(outcome).Inc()
}

// IncDrain counts a drain pass: completed, skipped or error.
func IncDrain(result string) {
	drains.WithLabelValues(result).Inc()
}

// IncReconcile counts a reconciled event: replaced, prepended, buffered or discarded.
func IncReconcile(outcome string) {
	reconcileEvents.WithLabelValues(outcome).Inc()
}

func IncFault(source string) {
	faults.WithLabelValues(source).Inc()
}
