// Package metrics exposes Prometheus instrumentation for the request path,
// embedding/LLM calls, retrieval and the answer cache.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the metric families and their registry.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	embeddingCalls   *prometheus.CounterVec
	llmCalls         *prometheus.CounterVec
	llmTokens        *prometheus.CounterVec
	retrievalResults prometheus.Histogram
	cacheEvents      *prometheus.CounterVec
	storeDocuments   prometheus.Gauge
}

// NewCollector builds and registers all metric families.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Name:      "http_requests_total",
			Help:      "HTTP requests by path, method and status code.",
		}, []string{"path", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ragflow",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
		embeddingCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Name:      "embedding_calls_total",
			Help:      "Embedding calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Name:      "llm_calls_total",
			Help:      "Chat completion calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Name:      "llm_tokens_total",
			Help:      "Tokens consumed by chat completions.",
		}, []string{"provider", "kind"}),
		retrievalResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ragflow",
			Name:      "retrieval_results",
			Help:      "Result count per retrieval.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Name:      "answer_cache_events_total",
			Help:      "Answer cache hits and misses.",
		}, []string{"event"}),
		storeDocuments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ragflow",
			Name:      "store_documents",
			Help:      "Documents currently held by the vector store.",
		}),
	}

	registry.MustRegister(
		c.httpRequests, c.httpDuration,
		c.embeddingCalls, c.llmCalls, c.llmTokens,
		c.retrievalResults, c.cacheEvents, c.storeDocuments,
	)
	return c
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTP(path, method string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveEmbedding(provider string, err error) {
	c.embeddingCalls.WithLabelValues(provider, outcome(err)).Inc()
}

func (c *Collector) ObserveLLM(provider string, promptTokens, completionTokens int, err error) {
	c.llmCalls.WithLabelValues(provider, outcome(err)).Inc()
	if err == nil {
		c.llmTokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
		c.llmTokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	}
}

func (c *Collector) ObserveRetrieval(resultCount int) {
	c.retrievalResults.Observe(float64(resultCount))
}

func (c *Collector) ObserveCache(hit bool) {
	if hit {
		c.cacheEvents.WithLabelValues("hit").Inc()
	} else {
		c.cacheEvents.WithLabelValues("miss").Inc()
	}
}

func (c *Collector) SetStoreDocuments(n int) {
	c.storeDocuments.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
