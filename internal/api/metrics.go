package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory API metrics using atomic counters.
type Metrics struct {
	startTime    time.Time
	requests     atomic.Int64
	serverErrors atomic.Int64
	clientErrors atomic.Int64
	dispatches   atomic.Int64
	replays      atomic.Int64
	watchers     atomic.Int64
}

// MetricsSnapshot is a point-in-time view of API metrics.
type MetricsSnapshot struct {
	UptimeSeconds float64 `json:"uptime_seconds"`
	Requests      int64   `json:"requests"`
	ServerErrors  int64   `json:"server_errors"`
	ClientErrors  int64   `json:"client_errors"`
	Dispatches    int64   `json:"dispatches"`
	Replays       int64   `json:"replays"`
	Watchers      int64   `json:"watchers"`
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) RecordRequest()     { m.requests.Add(1) }
func (m *Metrics) RecordError()       { m.serverErrors.Add(1) }
func (m *Metrics) RecordClientError() { m.clientErrors.Add(1) }
func (m *Metrics) RecordDispatch()    { m.dispatches.Add(1) }
func (m *Metrics) RecordReplay()      { m.replays.Add(1) }

// WatcherJoined and WatcherLeft track open /v1/watch streams.
func (m *Metrics) WatcherJoined() { m.watchers.Add(1) }
func (m *Metrics) WatcherLeft()   { m.watchers.Add(-1) }

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds: time.Since(m.startTime).Seconds(),
		Requests:      m.requests.Load(),
		ServerErrors:  m.serverErrors.Load(),
		ClientErrors:  m.clientErrors.Load(),
		Dispatches:    m.dispatches.Load(),
		Replays:       m.replays.Load(),
		Watchers:      m.watchers.Load(),
	}
}
