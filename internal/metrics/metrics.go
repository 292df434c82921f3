package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Apply results
const (
	ResultApplied = "applied"
	ResultFailed  = "failed"
)

type metrics struct {
	submittedTotal    *prometheus.CounterVec
	decisionsTotal    *prometheus.CounterVec
	applyTotal        *prometheus.CounterVec
	blobFailuresTotal *prometheus.CounterVec
	applyLatency      *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		submittedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "changes_submitted_total",
			Help:      "Total number of change records created.",
		}, []string{"change_type"}),
		decisionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "decisions_total",
			Help:      "Total number of approve/reject decisions.",
		}, []string{"change_type", "decision"}),
		applyTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "apply_total",
			Help:      "Total number of apply attempts by result.",
		}, []string{"change_type", "result"}),
		blobFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moderation",
			Name:      "blob_resolution_failures_total",
			Help:      "Signed ids that could not be resolved during apply.",
		}, []string{"change_type"}),
		applyLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "moderation",
			Name:      "apply_latency_seconds",
			Help:      "Latency distribution for applying approved changes.",
			Buckets: []float64{
				0.005, 0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10, 30,
			},
		}, []string{"change_type", "result"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func ObserveSubmitted(changeType string) {
	getMetrics().submittedTotal.WithLabelValues(changeType).Inc()
}

func ObserveDecision(changeType, decision string) {
	getMetrics().decisionsTotal.WithLabelValues(changeType, decision).Inc()
}

func ObserveApply(changeType, result string, took time.Duration) {
	m := getMetrics()
	m.applyTotal.WithLabelValues(changeType, result).Inc()
	m.applyLatency.WithLabelValues(changeType, result).Observe(took.Seconds())
}

func ObserveBlobFailure(changeType string) {
	getMetrics().blobFailuresTotal.WithLabelValues(changeType).Inc()
}
