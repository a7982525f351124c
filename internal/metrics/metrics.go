package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// RPC
	// ============================================
	RPCCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_rpc_calls_total",
			Help: "Total number of RPC requests issued",
		},
		[]string{"chain_id", "kind"},
	)

	RPCCallFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_rpc_call_failures_total",
			Help: "Total number of failed RPC requests or batch elements",
		},
		[]string{"chain_id", "kind"},
	)

	RPCBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_rpc_batch_size",
		Help:    "Number of eth_call elements per JSON-RPC batch",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	LedgerItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_ledger_items",
			Help: "Number of identifiers returned by the last ledger enumeration",
		},
		[]string{"chain_id", "kind"},
	)

	// ============================================
	// View cache
	// ============================================
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_cache_hits_total",
			Help: "View cache lookups served from a fresh entry",
		},
		[]string{"query"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_cache_misses_total",
			Help: "View cache lookups that triggered a fetch",
		},
		[]string{"query"},
	)

	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_refresh_duration_seconds",
			Help:    "Time spent fetching one cached query",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// ============================================
	// Actions
	// ============================================
	Actions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_actions_total",
			Help: "Approve/execute actions by outcome",
		},
		[]string{"action", "status"},
	)

	// ============================================
	// NATS
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_nats_messages_published_total",
			Help: "Total number of NATS messages published",
		},
		[]string{"subject"},
	)

	// ============================================
	// WebSocket
	// ============================================
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_websocket_connections",
		Help: "Number of connected push clients",
	})
)
