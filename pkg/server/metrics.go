package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime TCP connections accepted
	ActiveConnections atomic.Int64 // current live sessions
	TotalDisconnects  atomic.Int64 // total disconnects (clean + unclean)

	// Auth counters
	SuccessfulAuths atomic.Int64 // successful logins and registrations
	FailedAuths     atomic.Int64 // failed authentication attempts
	UsersRegistered atomic.Int64 // users created during this run

	// Routing counters
	MessagesRouted atomic.Int64 // direct messages delivered
	RoutingErrors  atomic.Int64 // direct messages to absent recipients

	// Protocol counters
	DecodeErrors   atomic.Int64 // frames rejected by the codec
	AccessDenied   atomic.Int64 // frames Nacked by the access table
	HeartbeatsSent atomic.Int64 // server to client heartbeats enqueued
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	SuccessfulAuths int64 `json:"successful_auths"`
	FailedAuths     int64 `json:"failed_auths"`
	UsersRegistered int64 `json:"users_registered"`

	MessagesRouted int64 `json:"messages_routed"`
	RoutingErrors  int64 `json:"routing_errors"`

	DecodeErrors   int64 `json:"decode_errors"`
	AccessDenied   int64 `json:"access_denied"`
	HeartbeatsSent int64 `json:"heartbeats_sent"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		SuccessfulAuths:   m.SuccessfulAuths.Load(),
		FailedAuths:       m.FailedAuths.Load(),
		UsersRegistered:   m.UsersRegistered.Load(),
		MessagesRouted:    m.MessagesRouted.Load(),
		RoutingErrors:     m.RoutingErrors.Load(),
		DecodeErrors:      m.DecodeErrors.Load(),
		AccessDenied:      m.AccessDenied.Load(),
		HeartbeatsSent:    m.HeartbeatsSent.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"auth_ok", s.SuccessfulAuths,
		"auth_failed", s.FailedAuths,
		"msgs_routed", s.MessagesRouted,
		"routing_errors", s.RoutingErrors,
		"decode_errors", s.DecodeErrors,
	)
}
