// Package metrics exposes Prometheus instrumentation for the scheduling
// engine.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	availabilitySearches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "washplan",
			Name:      "availability_searches_total",
			Help:      "Count of availability searches executed.",
		},
	)

	searchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "washplan",
			Name:      "availability_search_duration_seconds",
			Help:      "Latency of availability searches.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2},
		},
	)

	conflictsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "washplan",
			Name:      "conflicts_detected_total",
			Help:      "Count of scheduling conflicts by kind.",
		},
		[]string{"kind"},
	)

	capacityDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "washplan",
			Name:      "capacity_decisions_total",
			Help:      "Count of capacity allocate/release outcomes.",
		},
		[]string{"op", "outcome"},
	)

	walkInOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "washplan",
			Name:      "walkin_outcomes_total",
			Help:      "Count of walk-in requests by final state.",
		},
		[]string{"state"},
	)

	displacements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "washplan",
			Name:      "displacements_total",
			Help:      "Count of booking displacements by resolution strategy.",
		},
		[]string{"strategy"},
	)

	cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "washplan",
			Name:      "availability_cache_requests_total",
			Help:      "Availability cache hits, misses and errors.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "washplan",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers all engine metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			availabilitySearches,
			searchDuration,
			conflictsDetected,
			capacityDecisions,
			walkInOutcomes,
			displacements,
			cacheRequests,
			httpRequests,
		)
	})
}

func IncSearch()                      { availabilitySearches.Inc() }
func ObserveSearchDuration(s float64) { searchDuration.Observe(s) }
func IncConflict(kind string)         { conflictsDetected.WithLabelValues(kind).Inc() }
func IncCapacity(op, outcome string)  { capacityDecisions.WithLabelValues(op, outcome).Inc() }
func IncWalkIn(state string)          { walkInOutcomes.WithLabelValues(state).Inc() }
func IncDisplacement(strategy string) { displacements.WithLabelValues(strategy).Inc() }
func IncCacheRequest(result string)   { cacheRequests.WithLabelValues(result).Inc() }
func IncHTTP(endpoint string)         { httpRequests.WithLabelValues(endpoint).Inc() }
