package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Roles label the peer that recorded a packet metric.
const (
	RoleDaemon = "daemon"
	RoleLink   = "link"
)

// Session outcomes.
const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

var (
	registerOnce sync.Once

	packetsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oro",
			Subsystem: "link",
			Name:      "packets_sent_total",
			Help:      "Packets written to the secure channel.",
		},
		[]string{"role", "kind"},
	)
	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oro",
			Subsystem: "link",
			Name:      "packets_received_total",
			Help:      "Packets read from the secure channel.",
		},
		[]string{"role", "kind"},
	)
	packetsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oro",
			Subsystem: "link",
			Name:      "packets_dropped_total",
			Help:      "Packets ignored because they were unexpected in the current state.",
		},
		[]string{"role", "kind"},
	)
	sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "oro",
			Subsystem: "link",
			Name:      "test_sessions_total",
			Help:      "Test sessions by outcome.",
		},
		[]string{"role", "outcome"},
	)
	testsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "oro",
			Subsystem: "link",
			Name:      "tests_started_total",
			Help:      "StartTest packets emitted by the daemon.",
		},
	)
	resets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "oro",
			Subsystem: "link",
			Name:      "machine_resets_total",
			Help:      "PressReset packets emitted by the daemon.",
		},
	)
	connectionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkd",
			Name:      "connection_errors_total",
			Help:      "Connection failures by class.",
		},
		[]string{"kind"},
	)
	activeConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "linkd",
			Name:      "active_connections",
			Help:      "Links currently connected to the daemon.",
		},
	)
	negotiationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "oro",
			Subsystem: "link",
			Name:      "negotiation_duration_seconds",
			Help:      "Channel negotiation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role", "success"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linkd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "linkd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			packetsSent,
			packetsReceived,
			packetsDropped,
			sessions,
			testsStarted,
			resets,
			connectionErrors,
			activeConnections,
			negotiationDuration,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordPacketSent(role, kind string) {
	RegisterMetrics()
	packetsSent.WithLabelValues(role, kind).Inc()
}

func RecordPacketReceived(role, kind string) {
	RegisterMetrics()
	packetsReceived.WithLabelValues(role, kind).Inc()
}

func RecordPacketDropped(role, kind string) {
	RegisterMetrics()
	packetsDropped.WithLabelValues(role, kind).Inc()
}

func RecordSession(role, outcome string) {
	RegisterMetrics()
	sessions.WithLabelValues(role, outcome).Inc()
}

func RecordTestStarted() {
	RegisterMetrics()
	testsStarted.Inc()
}

func RecordReset() {
	RegisterMetrics()
	resets.Inc()
}

func RecordConnectionError(kind string) {
	RegisterMetrics()
	connectionErrors.WithLabelValues(kind).Inc()
}

// TrackConnection bumps the active connection gauge and returns the matching
// decrement.
func TrackConnection() func() {
	RegisterMetrics()
	activeConnections.Inc()
	return activeConnections.Dec
}

func RecordNegotiation(role string, duration time.Duration, success bool) {
	RegisterMetrics()
	negotiationDuration.WithLabelValues(role, strconv.FormatBool(success)).Observe(duration.Seconds())
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
