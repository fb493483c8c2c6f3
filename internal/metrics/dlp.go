package metrics

import "github.com/prometheus/client_golang/prometheus"

// DLP metrics. Labels never carry matched text.
var (
	DLPScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlp_scans_total",
			Help:      "Total DLP scans by context and outcome",
		},
		[]string{"context", "outcome"}, // outcome: clean / findings / blocked
	)

	DLPFindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlp_findings_total",
			Help:      "Total DLP findings by data type and action",
		},
		[]string{"data_type", "action"},
	)

	DLPRecognizerDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlp_recognizer_degraded_total",
			Help:      "Scans that fell back to structural patterns because entity recognition failed",
		},
	)
)
