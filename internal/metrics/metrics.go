// Package metrics defines larder's Prometheus metrics. They live on a private
// registry so the CLI can expose them on demand without the default
// process collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "larder"

// Registry holds every larder metric.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// MirrorCallsTotal counts server cart mirror calls.
// Labels:
//   - op: "create", "update", "delete", "clear"
//   - result: "ok", "error", "skipped", "stale"
var MirrorCallsTotal = factory.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_mirror_calls_total",
		Help:      "Server cart mirror calls, by operation and result.",
	},
	[]string{"op", "result"},
)

// SyncQueueDepth is the number of failed mirror calls waiting for replay.
var SyncQueueDepth = factory.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cart_sync_queue_depth",
		Help:      "Failed cart mirror calls waiting to be replayed.",
	},
)

// SyncQueueDroppedTotal counts mirror calls evicted from a full retry queue.
var SyncQueueDroppedTotal = factory.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cart_sync_queue_dropped_total",
		Help:      "Failed cart mirror calls dropped because the retry queue was full.",
	},
)

// TokenRefreshTotal counts access-token refresh attempts.
// Label:
//   - result: "ok" or "error"
var TokenRefreshTotal = factory.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refresh_total",
		Help:      "Access token refresh attempts, by result.",
	},
	[]string{"result"},
)

// SessionsExpiredTotal counts sessions ended by an irrecoverable 401.
var SessionsExpiredTotal = factory.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_expired_total",
		Help:      "Sessions cleared because the server rejected every credential.",
	},
)

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
