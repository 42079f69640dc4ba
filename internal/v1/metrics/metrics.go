package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the signaling rendezvous.
//
// Naming convention: namespace_subsystem_name
// - namespace: ringline (application-level grouping)
// - subsystem: websocket, room, call (feature-level grouping)
//
// Metric Types:
// - Gauge: current state (connections, rooms, calls)
// - Counter: cumulative events (frames processed, resends, reaps)
// - Histogram: durations (call length)

var (
	// ActiveWebSocketConnections tracks the current number of live client channels
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ringline",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of rooms in the registry
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ringline",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomMembers tracks membership per room
	RoomMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ringline",
		Subsystem: "room",
		Name:      "members_count",
		Help:      "Number of members in each room",
	}, []string{"room"})

	// ActiveCalls tracks calls currently in RINGING or CONNECTING
	ActiveCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ringline",
		Subsystem: "call",
		Name:      "calls_active",
		Help:      "Current number of non-ended calls",
	})

	// FramesTotal tracks inbound frames by type and outcome
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ringline",
		Subsystem: "websocket",
		Name:      "frames_total",
		Help:      "Total inbound frames processed",
	}, []string{"frame_type", "status"})

	// RingResendsTotal tracks how often the ring notification had to be re-sent
	RingResendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ringline",
		Subsystem: "call",
		Name:      "ring_resends_total",
		Help:      "Total ring notification resends",
	})

	// CallsEndedTotal tracks call terminations by reason
	CallsEndedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ringline",
		Subsystem: "call",
		Name:      "ended_total",
		Help:      "Total ended calls by reason",
	}, []string{"reason"})

	// CallDurationSeconds tracks the CONNECTING-to-end duration of answered calls
	CallDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ringline",
		Subsystem: "call",
		Name:      "duration_seconds",
		Help:      "Duration of answered calls from start to end",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	})

	// HeartbeatReapsTotal tracks connections terminated by the liveness sweep
	HeartbeatReapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ringline",
		Subsystem: "websocket",
		Name:      "heartbeat_reaps_total",
		Help:      "Total connections reaped for missing heartbeats",
	})

	// RateLimitExceeded tracks requests rejected by the rate limiter
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ringline",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total requests rejected by rate limiting",
	}, []string{"path", "limit_type"})

	// CircuitBreakerState tracks breaker state per backend (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ringline",
		Subsystem: "bus",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
