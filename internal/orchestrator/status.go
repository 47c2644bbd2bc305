package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/queue"
	"github.com/marcus/agencysync/internal/state"
	"go.opentelemetry.io/otel/codes"
)

// Snapshot returns the current state. The slices are shared and must not be
// modified.
func (o *Orchestrator) Snapshot() state.AppState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Watch streams the state after every reduction, starting with the current
// one. A slow reader skips intermediate states and always sees the latest.
func (o *Orchestrator) Watch() (<-chan state.AppState, func()) {
	ch := make(chan state.AppState, 1)
	ch <- o.Snapshot()

	o.watchMu.Lock()
	id := o.nextWatch
	o.nextWatch++
	o.watchers[id] = ch
	o.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.watchMu.Lock()
			if _, ok := o.watchers[id]; ok {
				delete(o.watchers, id)
				close(ch)
			}
			o.watchMu.Unlock()
		})
	}
}

func (o *Orchestrator) notifyWatchers(s state.AppState) {
	o.watchMu.Lock()
	defer o.watchMu.Unlock()
	for _, ch := range o.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Refresh reloads every collection and replaces the local state with it.
// Remote wins: local changes not yet persisted are dropped.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if err := o.checkRunning(); err != nil {
		return err
	}
	ctx, span := o.tracer.Start(ctx, "orchestrator.refresh")
	defer span.End()

	if err := o.loadAndSeed(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		return fmt.Errorf("refresh: %w", err)
	}
	slog.Info("orchestrator: refreshed", "src", o.opts.SourceID)
	return nil
}

// Pending lists the queued actions awaiting replay.
func (o *Orchestrator) Pending(ctx context.Context) ([]queue.Entry, error) {
	return o.queue.All(ctx)
}

// ClearQueue drops every queued action without replaying it.
func (o *Orchestrator) ClearQueue(ctx context.Context) (int64, error) {
	o.replayMu.Lock()
	defer o.replayMu.Unlock()
	n, err := o.queue.Clear(ctx)
	if err != nil {
		return 0, err
	}
	o.mu.Lock()
	clear(o.applied)
	o.mu.Unlock()
	// touched stays: it still orders later local writes.
	slog.Warn("orchestrator: queue cleared", "dropped", n)
	return n, nil
}

// SetOnline forces the connectivity flag; Release hands control back to the
// probes.
func (o *Orchestrator) SetOnline(online bool) { o.monitor.Force(online) }

func (o *Orchestrator) ReleaseOnline() { o.monitor.Release() }

// Stats are cumulative counters since New.
type Stats struct {
	Dispatched    int64 `json:"dispatched"`
	Enqueued      int64 `json:"enqueued"`
	Reductions    int64 `json:"reductions"`
	EchoesDropped int64 `json:"echoes_dropped"`
	Relayed       int64 `json:"relayed"`
	Realtime      int64 `json:"realtime"`
	Persisted     int64 `json:"persisted"`
	PersistFailed int64 `json:"persist_failed"`
	ReplayedTotal int64 `json:"replayed"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Dispatched:    o.stats.dispatched.Load(),
		Enqueued:      o.stats.enqueued.Load(),
		Reductions:    o.stats.reductions.Load(),
		EchoesDropped: o.stats.echoes.Load(),
		Relayed:       o.stats.relayed.Load(),
		Realtime:      o.stats.realtime.Load(),
		Persisted:     o.stats.persisted.Load(),
		PersistFailed: o.stats.persistFails.Load(),
		ReplayedTotal: o.stats.replayed.Load(),
	}
}

// Status summarizes the instance for the API and the monitor.
type Status struct {
	SourceID     string                    `json:"source_id"`
	Online       bool                      `json:"online"`
	Forced       bool                      `json:"forced"`
	Replaying    bool                      `json:"replaying"`
	QueueDepth   int                       `json:"queue_depth"`
	LastReplayed int64                     `json:"last_replayed_seq"`
	LastReplayAt *time.Time                `json:"last_replay_at,omitempty"`
	Counts       map[models.Collection]int `json:"counts"`
	Stats        Stats                     `json:"stats"`
}

func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	depth, err := o.queue.Len(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}
	cur, err := o.queue.Cursor(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("status: %w", err)
	}
	return Status{
		SourceID:     o.opts.SourceID,
		Online:       o.monitor.Online(),
		Forced:       o.monitor.Forced(),
		Replaying:    o.replaying.Load(),
		QueueDepth:   depth,
		LastReplayed: cur.LastReplayedSeq,
		LastReplayAt: cur.LastReplayAt,
		Counts:       o.Snapshot().Counts(),
		Stats:        o.Stats(),
	}, nil
}
