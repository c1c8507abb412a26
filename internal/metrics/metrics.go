package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinesearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cinesearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20, 60},
	}, []string{"method", "path"})

	ProviderRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinesearch",
		Name:      "provider_requests_total",
		Help:      "Total requests to external providers by provider, operation and result status.",
	}, []string{"provider", "operation", "status"})

	ProviderRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cinesearch",
		Name:      "provider_request_duration_seconds",
		Help:      "External provider request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"provider"})

	QueryPipelinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinesearch",
		Name:      "query_pipelines_total",
		Help:      "Search pipelines executed by branch.",
	}, []string{"branch"})

	QueryFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinesearch",
		Name:      "query_failures_total",
		Help:      "Search pipelines that failed inside the executor, by reason.",
	}, []string{"reason"})

	CatalogWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinesearch",
		Name:      "catalog_writes_total",
		Help:      "Catalog batch upserts by status.",
	}, []string{"status"})

	VectorWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cinesearch",
		Name:      "vector_writes_total",
		Help:      "Vector index batch upserts by status.",
	}, []string{"status"})

	MalformedRecordsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cinesearch",
		Name:      "malformed_records_total",
		Help:      "Provider records skipped because they failed validation.",
	})

	EmbeddingCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cinesearch",
		Name:      "embedding_cache_hits_total",
		Help:      "Total number of query embedding cache hits.",
	})

	EmbeddingCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cinesearch",
		Name:      "embedding_cache_misses_total",
		Help:      "Total number of query embedding cache misses.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ProviderRequestsTotal,
		ProviderRequestDuration,
		QueryPipelinesTotal,
		QueryFailuresTotal,
		CatalogWritesTotal,
		VectorWritesTotal,
		MalformedRecordsTotal,
		EmbeddingCacheHitsTotal,
		EmbeddingCacheMissesTotal,
	)
}
