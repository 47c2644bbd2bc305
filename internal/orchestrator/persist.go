package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marcus/agencysync/internal/gateway"
	"github.com/marcus/agencysync/internal/state"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// job is one dispatched action and the records it left behind.
type job struct {
	ctx     context.Context
	action  state.Action
	changes []state.Change
	stamp   stamp
}

// persister runs remote writes one at a time in submission order, so an
// instance's own writes reach the remote store in dispatch order.
type persister struct {
	handle func(job)

	mu      sync.Mutex
	pending []job
	wake    chan struct{}
	closing bool
	done    chan struct{}
}

func newPersister(handle func(job)) *persister {
	return &persister{
		handle: handle,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push queues j without blocking. It reports false once stop has begun.
func (p *persister) push(j job) bool {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return false
	}
	p.pending = append(p.pending, j)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

func (p *persister) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		batch := p.pending
		p.pending = nil
		closing := p.closing
		p.mu.Unlock()

		for _, j := range batch {
			p.handle(j)
		}
		if len(batch) > 0 {
			continue
		}
		if closing {
			return
		}
		<-p.wake
	}
}

// stop refuses new work, lets queued writes finish, and waits for the run
// loop to exit. run must have been started.
func (p *persister) stop() {
	p.mu.Lock()
	p.closing = true
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	<-p.done
}

// persistJob is the worker body for dispatches made while online. A write
// that fails because the remote store is unreachable sends the action to
// the queue and marks the instance offline; other failures are logged and
// the local state is kept.
func (o *Orchestrator) persistJob(j job) {
	err := o.persist(j.ctx, j.action, j.changes)
	if err == nil {
		return
	}
	if !errors.Is(err, gateway.ErrUnavailable) {
		slog.Error("orchestrator: remote write rejected", "type", j.action.Type(), "err", err)
		return
	}

	slog.Warn("orchestrator: remote unreachable, queueing for replay", "type", j.action.Type(), "err", err)
	o.monitor.Set(false)
	e, qerr := o.queue.Enqueue(j.ctx, j.action)
	if qerr != nil {
		slog.Error("orchestrator: enqueue after failed write", "type", j.action.Type(), "err", qerr)
		return
	}
	o.markApplied(e.Seq, j.changes, j.stamp)
	o.stats.enqueued.Add(1)
}

// persist writes changes to the remote store in order, stopping at the first
// failure. The caller's cancellation does not abort it; PersistTimeout does.
func (o *Orchestrator) persist(ctx context.Context, a state.Action, changes []state.Change) error {
	if len(changes) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "orchestrator.persist", trace.WithAttributes(
		attribute.String("action.type", string(a.Type())),
		attribute.Int("changes", len(changes)),
	))
	defer span.End()

	for _, ch := range changes {
		var err error
		switch ch.Op {
		case state.OpDelete:
			err = o.gw.DeleteRecord(ctx, ch.Collection, ch.ID)
		default:
			var doc []byte
			doc, err = ch.Document()
			if err == nil {
				err = o.gw.SaveRecord(ctx, ch.Collection, gateway.Record{ID: ch.ID, Data: doc})
			}
		}
		if err != nil {
			o.stats.persistFails.Add(1)
			span.RecordError(err)
			span.SetStatus(codes.Error, "persist failed")
			return fmt.Errorf("persist %s %s/%d: %w", a.Type(), ch.Collection, ch.ID, err)
		}
	}
	o.stats.persisted.Add(1)
	return nil
}
