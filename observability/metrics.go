package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActionsSubmitted tracks accepted action submissions by kind.
	ActionsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuroshield_actions_submitted_total",
		Help: "Total number of actions accepted into the queue",
	}, []string{"kind"})

	// ActionsCompleted tracks terminal action outcomes.
	ActionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuroshield_actions_completed_total",
		Help: "Total number of actions reaching a terminal state",
	}, []string{"kind", "outcome"}) // outcome: completed, failed, cancelled

	// ActionsInFlight tracks currently executing actions (ceiling invariant signal).
	ActionsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neuroshield_actions_in_flight",
		Help: "Current number of actions in progress",
	})

	// ActionQueueDepth tracks pending actions waiting for dispatch.
	ActionQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neuroshield_action_queue_depth",
		Help: "Current number of queued actions awaiting dispatch",
	})

	// ActionDuration tracks effect execution time by kind.
	ActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "neuroshield_action_duration_seconds",
		Help:    "Effect execution time distribution",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
	}, []string{"kind"})

	// ActionTimeouts tracks effects forcibly terminated by the execution deadline.
	ActionTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuroshield_action_timeouts_total",
		Help: "Actions failed by the per-effect execution timeout",
	}, []string{"kind"})

	// EventsEmitted tracks events accepted by the broadcaster.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuroshield_events_emitted_total",
		Help: "Total number of events accepted for broadcast",
	}, []string{"type"})

	// EventsDropped tracks events discarded because the delivery queue was full.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuroshield_events_dropped_total",
		Help: "Events dropped at emit time (delivery queue full, best-effort)",
	}, []string{"type"})

	// SubscriberErrors tracks panics recovered from subscriber delivery.
	SubscriberErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuroshield_subscriber_errors_total",
		Help: "Subscriber delivery failures isolated by the broadcaster",
	}, []string{"scope"}) // scope: global, type, device

	// WSConnections tracks currently registered websocket connections.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "neuroshield_ws_connections",
		Help: "Current number of registered websocket connections",
	})

	// WSSendFailures tracks per-connection delivery failures during fan-out.
	WSSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroshield_ws_send_failures_total",
		Help: "Connection sends that failed and caused pruning",
	})

	// WSInboundRejected tracks inbound frames rejected by the rate limiter.
	WSInboundRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroshield_ws_inbound_rejected_total",
		Help: "Inbound websocket frames rejected by the per-connection limiter",
	})

	// BridgeDispatches tracks durable queue poll outcomes per record.
	BridgeDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "neuroshield_bridge_dispatches_total",
		Help: "Durable queue records processed by outcome",
	}, []string{"outcome"}) // outcome: submitted, poison, deferred

	// BridgePollDuration tracks the duration of a full poll pass.
	BridgePollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "neuroshield_bridge_poll_duration_seconds",
		Help:    "Duration of a durable queue poll pass",
		Buckets: prometheus.DefBuckets,
	})

	// RedisLatency tracks durable store operation roundtrip latency.
	RedisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "neuroshield_redis_roundtrip_latency_seconds",
		Help:    "Durable store operation latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
	})

	// ArchiveErrors tracks action archive writes that failed (log-and-continue).
	ArchiveErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "neuroshield_archive_errors_total",
		Help: "Action archive writes that failed",
	})
)
