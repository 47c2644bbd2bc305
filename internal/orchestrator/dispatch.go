package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/marcus/agencysync/internal/broadcast"
	"github.com/marcus/agencysync/internal/gateway"
	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/state"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Dispatch applies a locally originated action. While offline the action
// is made durable in the queue before it touches the state; while online
// its remote write is handed to the persistence worker and Dispatch returns
// without waiting for it.
func (o *Orchestrator) Dispatch(ctx context.Context, a state.Action) error {
	if err := o.checkRunning(); err != nil {
		return err
	}
	if a == nil {
		return fmt.Errorf("dispatch: %w", state.ErrMalformedAction)
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.dispatch", trace.WithAttributes(
		attribute.String("action.type", string(a.Type())),
	))
	defer span.End()

	a = state.StampOrigin(a, models.OriginLocal)
	online := o.monitor.Online()
	span.SetAttributes(attribute.Bool("online", online))

	if !online {
		e, err := o.queue.Enqueue(ctx, a)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "enqueue failed")
			return fmt.Errorf("dispatch %s: %w", a.Type(), err)
		}
		o.stats.enqueued.Add(1)
		o.applyLocal(a, e.Seq)
		o.publish(ctx, a)
		o.stats.dispatched.Add(1)
		// The instance may have come back online between the check and the
		// enqueue, after the reconnect pass read the queue.
		if o.monitor.Online() {
			o.kickReplay()
		}
		return nil
	}

	changes, st := o.applyLocal(a, 0)
	o.publish(ctx, a)
	o.stats.dispatched.Add(1)

	if !o.worker.push(job{ctx: context.WithoutCancel(ctx), action: a, changes: changes, stamp: st}) {
		return ErrClosed
	}
	return nil
}

type recordKey struct {
	collection models.Collection
	id         int64
}

// stamp places a local write: the seed generation it was reduced in and its
// position among this process's local writes.
type stamp struct {
	gen, at uint64
}

// ownEntry is a queued action this process has already reduced, with the
// records as it left them.
type ownEntry struct {
	changes []state.Change
	at      uint64
}

// apply reduces an action that came from elsewhere: a sibling, the remote
// store or a seed.
func (o *Orchestrator) apply(a state.Action) []state.Change {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reduceLocked(a)
}

// applyLocal reduces an action originated by this instance and records it
// as the latest local write of every record it changed. A non-zero seq
// marks the queue entry with that key as already reduced.
func (o *Orchestrator) applyLocal(a state.Action, seq int64) ([]state.Change, stamp) {
	o.mu.Lock()
	defer o.mu.Unlock()
	changes := o.reduceLocked(a)
	o.localSeq++
	for _, ch := range changes {
		o.touched[recordKey{ch.Collection, ch.ID}] = o.localSeq
	}
	if seq > 0 {
		o.applied[seq] = ownEntry{changes: changes, at: o.localSeq}
	}
	return changes, stamp{gen: o.seedGen, at: o.localSeq}
}

// reduceLocked is the only place the state changes. Callers hold mu.
func (o *Orchestrator) reduceLocked(a state.Action) []state.Change {
	next := state.Reduce(o.state, a)
	o.state = next
	if _, ok := a.(state.SetState); ok {
		o.seedGen++
		clear(o.applied)
		clear(o.touched)
	}
	o.stats.reductions.Add(1)
	// Under mu so watchers see states in reduction order.
	o.notifyWatchers(next)
	return state.Affected(next, a)
}

// markApplied records that the queue entry seq holds an action already
// reduced with result changes, unless a SetState has replaced the state
// since.
func (o *Orchestrator) markApplied(seq int64, changes []state.Change, st stamp) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if st.gen == o.seedGen {
		o.applied[seq] = ownEntry{changes: changes, at: st.at}
	}
}

// ownChanges returns the writes still owed for the queue entry seq if this
// process already reduced it. Records a later local action changed again
// are left out; that action writes them itself.
func (o *Orchestrator) ownChanges(seq int64) ([]state.Change, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.applied[seq]
	if !ok {
		return nil, false
	}
	var out []state.Change
	for _, ch := range e.changes {
		if o.touched[recordKey{ch.Collection, ch.ID}] == e.at {
			out = append(out, ch)
		}
	}
	return out, true
}

func (o *Orchestrator) forgetApplied(seq int64) {
	o.mu.Lock()
	delete(o.applied, seq)
	o.mu.Unlock()
}

func (o *Orchestrator) publish(ctx context.Context, a state.Action) {
	env := broadcast.Envelope{Action: a, SourceID: o.opts.SourceID}
	if err := o.channel.Publish(ctx, env); err != nil {
		slog.Warn("orchestrator: broadcast failed", "type", a.Type(), "err", err)
	}
}

// onBroadcast handles envelopes from sibling instances. Our own envelopes
// come back too and are dropped before they reach the reducer.
func (o *Orchestrator) onBroadcast(env broadcast.Envelope) {
	if env.SourceID == o.opts.SourceID {
		o.stats.echoes.Add(1)
		return
	}
	o.stats.relayed.Add(1)
	o.apply(env.Action)
}

// realtimeHandlers turn remote notifications for c into local actions. They
// are applied only: siblings get the same notification themselves, and the
// change already lives remotely.
func (o *Orchestrator) realtimeHandlers(c models.Collection) gateway.Handlers {
	return gateway.Handlers{
		OnInsert: func(r gateway.Record) { o.applyRemote(c, state.RemoteInsert, r.ID, r.Data) },
		OnUpdate: func(r gateway.Record) { o.applyRemote(c, state.RemoteUpdate, r.ID, r.Data) },
		OnDelete: func(id int64) { o.applyRemote(c, state.RemoteDelete, id, nil) },
	}
}

func (o *Orchestrator) applyRemote(c models.Collection, op state.RemoteOp, id int64, data json.RawMessage) {
	a, err := state.RemoteAction(c, op, id, data)
	if err != nil {
		slog.Warn("orchestrator: dropping realtime change", "collection", c, "op", op, "id", id, "err", err)
		return
	}
	o.stats.realtime.Add(1)
	o.apply(state.StampOrigin(a, models.OriginRemote))
}
