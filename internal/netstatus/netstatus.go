// Package netstatus tracks whether the remote store is reachable and tells
// subscribers when that changes.
package netstatus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultInterval = 5 * time.Second

// Prober answers whether the remote side is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor holds the current online flag. Probes, failure reports and manual
// overrides all feed it; subscribers see only transitions.
type Monitor struct {
	prober   Prober
	interval time.Duration

	mu     sync.Mutex
	online bool
	forced *bool
	subs   map[int]chan bool
	nextID int
}

// New returns a monitor that starts online. A nil prober disables polling;
// the flag then changes only through Set and Force.
func New(p Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Monitor{
		prober:   p,
		interval: interval,
		online:   true,
		subs:     make(map[int]chan bool),
	}
}

// Online reports the current flag.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Forced reports whether a manual override is in effect.
func (m *Monitor) Forced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forced != nil
}

// Set records an observation. It is ignored while an override is active.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forced != nil {
		return
	}
	m.setLocked(online)
}

// Force pins the flag until Release, whatever the probes say.
func (m *Monitor) Force(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced = &online
	m.setLocked(online)
}

// Release drops a manual override; the next probe decides.
func (m *Monitor) Release() {
	m.mu.Lock()
	m.forced = nil
	m.mu.Unlock()
}

func (m *Monitor) setLocked(online bool) {
	if m.online == online {
		return
	}
	m.online = online
	slog.Info("netstatus: transition", "online", online)
	for _, ch := range m.subs {
		publish(ch, online)
	}
}

// publish delivers v without blocking. A subscriber that has fallen behind
// loses the oldest pending value, never the latest.
func publish(ch chan bool, v bool) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}

// Subscribe returns a channel of transitions. cancel closes it.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	ch := make(chan bool, 8)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Run probes immediately and then every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	if m.prober == nil {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Probe runs one reachability check and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.prober == nil {
		return m.Online()
	}
	pctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	err := m.prober.Ping(pctx)
	if ctx.Err() != nil {
		return m.Online()
	}
	if err != nil {
		slog.Debug("netstatus: probe failed", "err", err)
	}
	m.Set(err == nil)
	return m.Online()
}
