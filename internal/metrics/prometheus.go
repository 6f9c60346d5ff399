package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConversionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kcb_text2sql_conversion_duration_seconds",
			Help:    "End-to-end question to SQL conversion duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"source"},
	)

	ConversionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kcb_text2sql_conversion_total",
			Help: "Total number of conversions by SQL source",
		},
		[]string{"source"},
	)

	LLMFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kcb_text2sql_llm_fallback_total",
			Help: "Conversions that fell back to rules, by reason",
		},
		[]string{"reason"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kcb_text2sql_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	PreprocessDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kcb_text2sql_preprocess_duration_seconds",
			Help:    "Hybrid preprocessing duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	PreprocessErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kcb_text2sql_preprocess_errors_total",
			Help: "Preprocessing runs that ended in an error result",
		},
	)

	ClausesPerQuery = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kcb_text2sql_clauses_per_query",
			Help:    "Number of clauses segmented per query",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	ClauseConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kcb_text2sql_clause_confidence",
			Help:    "Heuristic clause confidence scores",
			Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	DictionaryMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kcb_text2sql_dictionary_mutations_total",
			Help: "Dictionary management operations by outcome",
		},
		[]string{"op", "status"},
	)

	DictionaryEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kcb_text2sql_dictionary_entries",
			Help: "Entries currently loaded per dictionary",
		},
		[]string{"dictionary"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kcb_text2sql_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kcb_text2sql_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	RAGResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kcb_text2sql_rag_results_count",
			Help:    "Number of RAG chunks retrieved per question",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kcb_text2sql_documents_processed_total",
			Help: "RAG documents ingested by domain",
		},
		[]string{"domain"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kcb_text2sql_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ConversionDuration,
			ConversionTotal,
			LLMFallbackTotal,
			LLMTokensUsed,
			PreprocessDuration,
			PreprocessErrors,
			ClausesPerQuery,
			ClauseConfidence,
			DictionaryMutations,
			DictionaryEntries,
			CacheHits,
			CacheMisses,
			RAGResultsCount,
			DocumentsProcessed,
			RateLimited,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
