package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval metrics.
var (
	RAGMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_matches_total",
			Help:      "Retrieved results by match strength",
		},
		[]string{"strength"},
	)

	RAGPartitionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rag_partition_errors_total",
			Help:      "Partition queries that failed and were skipped",
		},
		[]string{"partition"},
	)

	RAGRetrieveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rag_retrieve_duration_seconds",
			Help:      "End-to-end retrieve duration including query embedding",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
)
