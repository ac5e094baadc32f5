package recipes

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecipesLoaded is the size of the indexed corpus (0 = retrieval disabled).
	RecipesLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "codefix",
			Subsystem: "recipes",
			Name:      "loaded",
			Help:      "Number of recipes in the retrieval index",
		},
	)

	// RetrievalDuration tracks query embedding plus index search.
	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "codefix",
			Subsystem: "recipes",
			Name:      "retrieval_duration_seconds",
			Help:      "Duration of recipe retrieval in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RetrievalsTotal counts retrievals by result (hit, disabled, error).
	RetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codefix",
			Subsystem: "recipes",
			Name:      "retrievals_total",
			Help:      "Total number of recipe retrievals by result",
		},
		[]string{"result"},
	)
)
