// Package metrics exposes Prometheus collectors for the API service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"surfsense/internal/util"
)

const namespace = "surfsense"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route pattern and status code",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// podcastGenerations counts finished background generations.
	// Labels: outcome (completed, failed)
	podcastGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "podcast",
		Name:      "generations_total",
		Help:      "Podcast generations by outcome",
	}, []string{"outcome"})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Open websocket connections",
	})

	streamBatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "chat",
		Name:      "stream_batches_total",
		Help:      "Streamed answer batches sent to websocket clients",
	})

	indexedChunks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "chunks_total",
		Help:      "Document chunks written to the search index",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &util.StatusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		route := util.RoutePattern(r)
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.Code())).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// PodcastGenerated records a finished generation.
func PodcastGenerated(ok bool) {
	outcome := "completed"
	if !ok {
		outcome = "failed"
	}
	podcastGenerations.WithLabelValues(outcome).Inc()
}

// WSOpened and WSClosed track live websocket connections.
func WSOpened() { wsConnections.Inc() }

func WSClosed() { wsConnections.Dec() }

// StreamBatch records one flushed answer batch.
func StreamBatch() { streamBatches.Inc() }

// ChunksIndexed records n chunks added to the index.
func ChunksIndexed(n int) { indexedChunks.Add(float64(n)) }
