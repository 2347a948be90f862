// Package metrics holds the Prometheus collectors for the retrieval engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "embedding_cache_total",
			Help:      "Embedding lookups by outcome",
		},
		[]string{"result"}, // "hit" / "decoded" / "computed" / "miss"
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "embedding_requests_total",
			Help:      "Embedding provider calls by status",
		},
		[]string{"status"}, // "ok" / "error" / "unavailable"
	)

	IndexingStageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "indexing_stage_total",
			Help:      "Indexing pipeline stage runs by outcome",
		},
		[]string{"stage", "status"},
	)

	BackfillRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Name:      "backfill_rejected_total",
			Help:      "Backfill requests dropped because one was already running",
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry. Safe to call
// more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(EmbeddingCacheTotal)
		prometheus.MustRegister(EmbeddingRequestsTotal)
		prometheus.MustRegister(IndexingStageTotal)
		prometheus.MustRegister(BackfillRejectedTotal)
	})
}

// Handler returns a router serving /metrics.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}
