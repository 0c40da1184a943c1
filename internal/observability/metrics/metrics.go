package metrics

import "github.com/prometheus/client_golang/prometheus"

// IntentMetrics exposes counters/histograms for the intent pipeline.
type IntentMetrics struct {
	classificationsTotal  *prometheus.CounterVec
	classificationLatency *prometheus.HistogramVec
	fallbackTotal         *prometheus.CounterVec
	providerErrors        *prometheus.CounterVec
	reasoningTotal        *prometheus.CounterVec
	workerJobsTotal       *prometheus.CounterVec
}

func NewIntentMetrics(reg prometheus.Registerer) *IntentMetrics {
	m := &IntentMetrics{
		classificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querylens",
			Subsystem: "intent",
			Name:      "classifications_total",
			Help:      "Total classification calls by recommended action",
		}, []string{"action"}),
		classificationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "querylens",
			Subsystem: "intent",
			Name:      "classification_latency_seconds",
			Help:      "Latency of classification calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"contextual"}),
		fallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querylens",
			Subsystem: "intent",
			Name:      "fallback_total",
			Help:      "Total fallback escalations by terminal level",
		}, []string{"level", "successful"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querylens",
			Subsystem: "intent",
			Name:      "provider_errors_total",
			Help:      "Total provider call failures by operation",
		}, []string{"operation"}),
		reasoningTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querylens",
			Subsystem: "intent",
			Name:      "reasoning_total",
			Help:      "Total chain-of-thought runs by verification outcome",
		}, []string{"verified"}),
		workerJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "querylens",
			Subsystem: "intent",
			Name:      "worker_jobs_total",
			Help:      "Total queued classification jobs by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.classificationsTotal, m.classificationLatency, m.fallbackTotal, m.providerErrors, m.reasoningTotal, m.workerJobsTotal)
	return m
}

func (m *IntentMetrics) ObserveClassification(action string, contextual bool, seconds float64) {
	if m == nil {
		return
	}
	label := "false"
	if contextual {
		label = "true"
	}
	m.classificationsTotal.WithLabelValues(action).Inc()
	m.classificationLatency.WithLabelValues(label).Observe(seconds)
}

func (m *IntentMetrics) ObserveFallback(level string, successful bool) {
	if m == nil {
		return
	}
	label := "false"
	if successful {
		label = "true"
	}
	m.fallbackTotal.WithLabelValues(level, label).Inc()
}

func (m *IntentMetrics) ObserveProviderError(operation string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(operation).Inc()
}

func (m *IntentMetrics) ObserveReasoning(verified bool) {
	if m == nil {
		return
	}
	label := "false"
	if verified {
		label = "true"
	}
	m.reasoningTotal.WithLabelValues(label).Inc()
}

func (m *IntentMetrics) ObserveWorkerJob(outcome string) {
	if m == nil {
		return
	}
	m.workerJobsTotal.WithLabelValues(outcome).Inc()
}
