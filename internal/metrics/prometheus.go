package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinscribe_http_requests_total",
			Help: "Total HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clinscribe_http_request_duration_seconds",
			Help:    "HTTP request latency by endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	SpellCheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clinscribe_spellcheck_duration_seconds",
			Help:    "Time spent resolving a single term",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		},
	)

	TermResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinscribe_term_resolutions_total",
			Help: "Resolved terms by source",
		},
		[]string{"source"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinscribe_cache_hits_total",
			Help: "Cache hits by tier",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinscribe_cache_misses_total",
			Help: "Cache misses by tier",
		},
		[]string{"tier"},
	)

	CachePurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinscribe_cache_purged_total",
			Help: "Expired cache entries removed by purge cycles",
		},
	)

	TerminologyCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinscribe_terminology_calls_total",
			Help: "Terminology service calls by outcome",
		},
		[]string{"status"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clinscribe_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinscribe_llm_tokens_total",
			Help: "LLM tokens consumed by operation",
		},
		[]string{"operation"},
	)

	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinscribe_llm_calls_total",
			Help: "LLM calls by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	TranscriptionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinscribe_transcriptions_total",
			Help: "Audio transcriptions completed",
		},
	)

	SOAPNotesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clinscribe_soap_notes_total",
			Help: "SOAP notes generated",
		},
	)

	VocabularySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clinscribe_vocabulary_terms",
			Help: "Confirmed terms in the persisted vocabulary",
		},
	)
)

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
