package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
)

const namespace = "irobot"

// PipelineMetrics observes the query pipeline and the resilience executor.
type PipelineMetrics struct {
	service string

	cacheLookups      *prometheus.CounterVec
	cacheLookupTime   *prometheus.HistogramVec
	retrievalDuration *prometheus.HistogramVec
	retrievedCount    *prometheus.HistogramVec
	rerankTotal       *prometheus.CounterVec
	generationTotal   *prometheus.CounterVec
	generationTime    *prometheus.HistogramVec
	tokensTotal       *prometheus.CounterVec
	cacheWrites       *prometheus.CounterVec
	invalidated       *prometheus.CounterVec
	purged            *prometheus.CounterVec
	retries           *prometheus.CounterVec
	breakerState      *prometheus.GaugeVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		service: service,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by outcome level (miss, l1, l2).",
		}, []string{"service", "level"}),
		cacheLookupTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookup_duration_seconds",
			Help:      "Cache lookup duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"service", "level"}),
		retrievalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Hybrid retrieval duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "status"}),
		retrievedCount: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "candidates",
			Help:      "Candidates returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"service"}),
		rerankTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rerank",
			Name:      "runs_total",
			Help:      "Rerank runs, degraded when the model could not score.",
		}, []string{"service", "degraded"}),
		generationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "generations_total",
			Help:      "Answer generations by model and status.",
		}, []string{"service", "model", "status"}),
		generationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "generation_duration_seconds",
			Help:      "Answer generation duration in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"service", "model"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Token usage by direction.",
		}, []string{"service", "direction", "model"}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Cache writes by outcome.",
		}, []string{"service", "outcome"}),
		invalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "invalidated_entries_total",
			Help:      "Cache entries removed by document invalidation.",
		}, []string{"service"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "purged_entries_total",
			Help:      "Expired cache entries removed by purge.",
		}, []string{"service"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried outbound calls by operation.",
		}, []string{"service", "operation"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state by operation: 0 closed, 1 half-open, 2 open.",
		}, []string{"service", "operation"}),
	}

	registerer.MustRegister(
		m.cacheLookups,
		m.cacheLookupTime,
		m.retrievalDuration,
		m.retrievedCount,
		m.rerankTotal,
		m.generationTotal,
		m.generationTime,
		m.tokensTotal,
		m.cacheWrites,
		m.invalidated,
		m.purged,
		m.retries,
		m.breakerState,
	)
	return m
}

func (m *PipelineMetrics) ObserveCacheLookup(level domain.CacheStatus, duration time.Duration) {
	m.cacheLookups.WithLabelValues(m.service, string(level)).Inc()
	m.cacheLookupTime.WithLabelValues(m.service, string(level)).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveRetrieval(candidates int, duration time.Duration, err error) {
	m.retrievalDuration.WithLabelValues(m.service, statusLabel(err)).Observe(duration.Seconds())
	if err == nil {
		m.retrievedCount.WithLabelValues(m.service).Observe(float64(candidates))
	}
}

func (m *PipelineMetrics) ObserveRerank(degraded bool, _ time.Duration) {
	label := "false"
	if degraded {
		label = "true"
	}
	m.rerankTotal.WithLabelValues(m.service, label).Inc()
}

func (m *PipelineMetrics) ObserveGeneration(model string, promptTokens, completionTokens int, duration time.Duration, err error) {
	if model == "" {
		model = "unknown"
	}
	m.generationTotal.WithLabelValues(m.service, model, statusLabel(err)).Inc()
	m.generationTime.WithLabelValues(m.service, model).Observe(duration.Seconds())
	if promptTokens > 0 {
		m.tokensTotal.WithLabelValues(m.service, "in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.tokensTotal.WithLabelValues(m.service, "out", model).Add(float64(completionTokens))
	}
}

func (m *PipelineMetrics) ObserveCacheWrite(outcome string) {
	m.cacheWrites.WithLabelValues(m.service, outcome).Inc()
}

func (m *PipelineMetrics) ObserveInvalidation(entries int) {
	if entries > 0 {
		m.invalidated.WithLabelValues(m.service).Add(float64(entries))
	}
}

func (m *PipelineMetrics) ObservePurge(entries int) {
	if entries > 0 {
		m.purged.WithLabelValues(m.service).Add(float64(entries))
	}
}

func (m *PipelineMetrics) ObserveRetry(operation string) {
	m.retries.WithLabelValues(m.service, operation).Inc()
}

func (m *PipelineMetrics) ObserveBreakerState(operation string, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
