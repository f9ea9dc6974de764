// Package metrics provides Prometheus metrics collection for the chatrelay service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebSocketConnections tracks the current number of active WebSocket connections
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_websocket_connections",
		Help: "Current number of active WebSocket connections",
	})

	// ActiveSessions tracks the current number of authenticated sessions
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_active_sessions",
		Help: "Current number of authenticated sessions in the registry",
	})

	// SessionsExpired tracks the total number of sessions evicted by the expiry sweep
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_sessions_expired_total",
		Help: "Total number of sessions evicted because their token expired",
	})

	// RejectedConnects tracks connect attempts refused at the auth gate
	RejectedConnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_rejected_connects_total",
		Help: "Total number of connect attempts rejected by the auth gate",
	})

	// FramesReceived tracks the total number of frames received from clients
	FramesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_frames_received_total",
		Help: "Total number of protocol frames received from clients",
	})

	// Deliveries tracks pushed messages by transport
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_deliveries_total",
		Help: "Total number of messages delivered to clients by transport",
	}, []string{"transport"})

	// SendFailures tracks failed pushes by transport
	SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatrelay_send_failures_total",
		Help: "Total number of failed message pushes by transport",
	}, []string{"transport"})

	// RelayPublished tracks events published to the distributed bus
	RelayPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_relay_published_total",
		Help: "Total number of per-recipient events published to the relay bus",
	})

	// RelayReceived tracks events received from the distributed bus
	RelayReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_relay_received_total",
		Help: "Total number of events received from the relay bus",
	})

	// RelayErrors tracks relay publish/subscribe failures
	RelayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_relay_errors_total",
		Help: "Total number of relay bus failures",
	})

	// RelayUserSubscriptions tracks the current number of relay user channels
	// this instance is subscribed to
	RelayUserSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_relay_user_subscriptions",
		Help: "Current number of user channels subscribed on the relay bus",
	})

	// SSESubscribers tracks the current number of open SSE streams
	SSESubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_sse_subscribers",
		Help: "Current number of open SSE subscriber streams",
	})

	// LongPollWaiters tracks the current number of held long-poll requests
	LongPollWaiters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatrelay_longpoll_waiters",
		Help: "Current number of held long-poll requests",
	})

	// HandlerFailures tracks application handler errors and recovered panics
	HandlerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatrelay_handler_failures_total",
		Help: "Total number of application handler failures (isolated per handler)",
	})

	// HTTPRequestDuration tracks HTTP request latency per endpoint and method
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatrelay_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method"})
)
