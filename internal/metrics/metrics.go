// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecommendationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tastebud_recommendations_total",
		Help: "Recommendations served, by outcome and degrade reason.",
	}, []string{"outcome", "reason"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tastebud_generation_duration_seconds",
		Help:    "Latency of text-generation calls, including failures.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
	})

	IngestedRestaurantsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tastebud_ingested_restaurants_total",
		Help: "Restaurant records written by ingestion.",
	})
)
