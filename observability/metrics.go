// Package observability aggregates hub metrics for logs and the debug
// dashboard. Counters are atomic; nothing here sits on a hot-path lock.
package observability

import (
	"sync/atomic"
	"time"
)

type Metrics struct {
	startedAt time.Time

	ActiveConnections atomic.Int64
	BoundSessions     atomic.Int64
	ActiveCalls       atomic.Int64

	MessagesPersisted atomic.Uint64
	EventsDelivered   atomic.Uint64
	EventsDropped     atomic.Uint64
	HeartbeatAcks     atomic.Uint64
	AuthRejected      atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

// Snapshot renders the counters for the debug server's stats panel and
// the health worker's periodic log line.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"UptimeSeconds":     int64(time.Since(m.startedAt).Seconds()),
		"ActiveConnections": m.ActiveConnections.Load(),
		"BoundSessions":     m.BoundSessions.Load(),
		"ActiveCalls":       m.ActiveCalls.Load(),
		"MessagesPersisted": m.MessagesPersisted.Load(),
		"EventsDelivered":   m.EventsDelivered.Load(),
		"EventsDropped":     m.EventsDropped.Load(),
		"HeartbeatAcks":     m.HeartbeatAcks.Load(),
		"AuthRejected":      m.AuthRejected.Load(),
	}
}
