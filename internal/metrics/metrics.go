// Package metrics provides Prometheus instrumentation for the Amoura
// matchmaking services. It exposes gauges for connection and queue depth,
// counters for swipe/match throughput, and histograms for latency tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "amoura_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// WaitingQueueSize tracks the current number of users in the live
	// matchmaking queue.
	WaitingQueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "amoura_waiting_queue_size",
		Help: "Current number of users waiting for a chat partner",
	})

	// PairingsTotal counts completed pairings, labeled by mode: "scored"
	// for threshold pairings, "fifo" for degraded pairings.
	PairingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amoura_pairings_total",
		Help: "Total number of completed queue pairings",
	}, []string{"mode"}) // mode = "scored", "fifo"

	// SwipesTotal counts recorded swipe decisions, labeled by action.
	SwipesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "amoura_swipes_total",
		Help: "Total number of swipe decisions recorded",
	}, []string{"action"}) // action = "like", "dislike"

	// MatchesTotal counts mutual matches created.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amoura_matches_total",
		Help: "Total number of mutual matches created",
	})

	// ScoreLatency records end-to-end pair scoring latency in seconds.
	ScoreLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "amoura_score_latency_seconds",
		Help:    "Compatibility scoring latency in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// DeckLatency records swipe deck build latency in seconds.
	DeckLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "amoura_deck_latency_seconds",
		Help:    "Swipe deck build latency in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	// EmbedCacheHits counts embedding cache hits (either cache level).
	EmbedCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amoura_embed_cache_hits_total",
		Help: "Total embedding cache hits",
	})

	// EmbedCacheMisses counts embedding cache misses.
	EmbedCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "amoura_embed_cache_misses_total",
		Help: "Total embedding cache misses",
	})

	// EmbedLatency records embedding provider round-trip latency in seconds.
	EmbedLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "amoura_embed_latency_seconds",
		Help:    "Embedding provider request latency in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		WaitingQueueSize,
		PairingsTotal,
		SwipesTotal,
		MatchesTotal,
		ScoreLatency,
		DeckLatency,
		EmbedCacheHits,
		EmbedCacheMisses,
		EmbedLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
