package analysis

import "github.com/prometheus/client_golang/prometheus"

var (
	admissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analysisd",
			Subsystem: "analysis",
			Name:      "admissions_total",
			Help:      "Admission attempts by outcome",
		},
		[]string{"outcome"},
	)

	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "analysisd",
			Subsystem: "analysis",
			Name:      "settlements_total",
			Help:      "Settled requests by winning path",
		},
		[]string{"path"},
	)

	partialsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "analysisd",
			Subsystem: "analysis",
			Name:      "partials_dropped_total",
			Help:      "Partial notifications the caller could not accept",
		},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "analysisd",
			Subsystem: "analysis",
			Name:      "request_duration_seconds",
			Help:      "Time from admission to settlement",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(admissionsTotal, settlementsTotal, partialsDropped, requestDuration)
}
