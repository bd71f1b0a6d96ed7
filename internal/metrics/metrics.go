package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultavatar_transitions_total",
			Help: "Admitted animation state transitions",
		},
		[]string{"from", "to"},
	)

	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultavatar_rejections_total",
			Help: "Animation requests rejected by the priority gate",
		},
		[]string{"current", "requested"},
	)

	Drops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "consultavatar_dropped_requests_total",
			Help: "Animation requests dropped before the avatar was ready",
		},
	)

	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultavatar_play_fallbacks_total",
			Help: "Failed plays that fell back to idle",
		},
		[]string{"requested"},
	)

	IdleReturns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultavatar_idle_returns_total",
			Help: "Automatic returns to idle",
		},
		[]string{"from"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "consultavatar_active_sessions",
			Help: "Number of page sessions with a running avatar loop",
		},
	)

	ReadyTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "consultavatar_ready_timeouts_total",
			Help: "Sessions whose avatar never became ready",
		},
	)

	ChatLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "consultavatar_chat_latency_seconds",
			Help:    "Chat API round trip in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		},
	)

	VoiceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultavatar_voice_requests_total",
			Help: "Voice API requests",
		},
		[]string{"endpoint", "status"},
	)

	WidgetConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "consultavatar_widget_connections",
			Help: "Open widget WebSocket connections",
		},
	)

	WidgetMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultavatar_widget_messages_total",
			Help: "Messages received from widget pages",
		},
		[]string{"type"},
	)

	WidgetDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "consultavatar_widget_dropped_total",
			Help: "Outbound widget messages dropped on a full send buffer",
		},
	)
)
