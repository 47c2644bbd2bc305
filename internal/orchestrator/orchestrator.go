// Package orchestrator ties the reducer, the broadcast channel, the offline
// queue and the remote gateway together for one client instance.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marcus/agencysync/internal/broadcast"
	"github.com/marcus/agencysync/internal/gateway"
	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/netstatus"
	"github.com/marcus/agencysync/internal/queue"
	"github.com/marcus/agencysync/internal/state"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPersistTimeout = 10 * time.Second
	tracerName            = "github.com/marcus/agencysync/internal/orchestrator"
)

var (
	ErrClosed     = errors.New("orchestrator closed")
	ErrNotStarted = errors.New("orchestrator not started")
)

// Queue is the durable store of actions awaiting replay.
type Queue interface {
	Enqueue(ctx context.Context, a state.Action) (queue.Entry, error)
	All(ctx context.Context) ([]queue.Entry, error)
	Ack(ctx context.Context, seq int64) error
	Clear(ctx context.Context) (int64, error)
	Len(ctx context.Context) (int, error)
	Cursor(ctx context.Context) (queue.Cursor, error)
}

// Deps are the collaborators an Orchestrator drives. All are required.
type Deps struct {
	Gateway gateway.Gateway
	Queue   Queue
	Channel broadcast.Channel
	Monitor *netstatus.Monitor
}

type Options struct {
	// ReplayDelay is waited between replayed entries.
	ReplayDelay time.Duration
	// PersistTimeout bounds each remote write.
	PersistTimeout time.Duration
	// SourceID identifies this instance on the broadcast channel; a random
	// UUID when empty.
	SourceID string
}

// Orchestrator owns one instance's AppState. Reductions are serialized by mu,
// so every action is applied in the order it arrived.
type Orchestrator struct {
	gw      gateway.Gateway
	queue   Queue
	channel broadcast.Channel
	monitor *netstatus.Monitor
	opts    Options
	tracer  trace.Tracer

	mu    sync.Mutex
	state state.AppState
	// applied maps the queue keys of entries this process has already
	// reduced to the records they changed. touched holds, per record, the
	// last local write. A SetState wipes local effects, so it clears both
	// and bumps seedGen.
	applied  map[int64]ownEntry
	touched  map[recordKey]uint64
	localSeq uint64
	seedGen  uint64

	watchMu   sync.Mutex
	watchers  map[int]chan state.AppState
	nextWatch int

	replayMu   sync.Mutex
	replaying  atomic.Bool
	loaded     atomic.Bool
	replayKick chan struct{}

	worker *persister
	stats  counters

	lifeMu          sync.Mutex
	started, closed bool
	subsMu          sync.Mutex
	subs            map[models.Collection]*gateway.Subscription
	cancelBroadcast func()
	cancelNet       func()
	bgCancel        context.CancelFunc
	bg              sync.WaitGroup
}

type counters struct {
	dispatched   atomic.Int64
	enqueued     atomic.Int64
	reductions   atomic.Int64
	echoes       atomic.Int64
	relayed      atomic.Int64
	realtime     atomic.Int64
	persisted    atomic.Int64
	persistFails atomic.Int64
	replayed     atomic.Int64
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = defaultPersistTimeout
	}
	if opts.SourceID == "" {
		opts.SourceID = uuid.NewString()
	}
	o := &Orchestrator{
		gw:       deps.Gateway,
		queue:    deps.Queue,
		channel:  deps.Channel,
		monitor:  deps.Monitor,
		opts:     opts,
		tracer:   otel.Tracer(tracerName),
		watchers:   make(map[int]chan state.AppState),
		subs:       make(map[models.Collection]*gateway.Subscription),
		applied:    make(map[int64]ownEntry),
		touched:    make(map[recordKey]uint64),
		replayKick: make(chan struct{}, 1),
	}
	o.worker = newPersister(o.persistJob)
	return o
}

// SourceID is this instance's identity on the broadcast channel.
func (o *Orchestrator) SourceID() string { return o.opts.SourceID }

// Start loads every collection, seeds the state, subscribes to realtime
// changes, the broadcast channel and connectivity transitions, and replays
// the queue if online. A remote store that is down at startup is not fatal:
// the instance starts empty and offline and loads on the next reconnect.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.lifeMu.Lock()
	if o.closed {
		o.lifeMu.Unlock()
		return ErrClosed
	}
	if o.started {
		o.lifeMu.Unlock()
		return nil
	}
	if err := o.start(ctx); err != nil {
		o.lifeMu.Unlock()
		return err
	}
	o.started = true
	o.lifeMu.Unlock()

	if o.monitor.Online() && o.loaded.Load() {
		if _, err := o.drainAndReplay(ctx); err != nil {
			slog.Warn("orchestrator: startup replay incomplete", "err", err)
		}
	}
	slog.Info("orchestrator: started", "src", o.opts.SourceID, "online", o.monitor.Online())
	return nil
}

// start does the work of Start; callers hold lifeMu.
func (o *Orchestrator) start(ctx context.Context) error {
	// Subscribe before loading so a reconnect during the load is not missed.
	transitions, cancelNet := o.monitor.Subscribe()

	if err := o.loadAndSeed(ctx); err != nil {
		if !errors.Is(err, gateway.ErrUnavailable) {
			cancelNet()
			return fmt.Errorf("initial load: %w", err)
		}
		slog.Warn("orchestrator: remote unavailable at startup, starting offline", "err", err)
		o.monitor.Set(false)
	}

	o.subscribeCollections(ctx)

	cancel, err := o.channel.Subscribe(o.onBroadcast)
	if err != nil {
		cancelNet()
		o.unsubscribeCollections()
		return fmt.Errorf("subscribe broadcast: %w", err)
	}
	o.cancelBroadcast = cancel
	o.cancelNet = cancelNet

	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))
	o.bgCancel = bgCancel

	o.bg.Add(2)
	go func() {
		defer o.bg.Done()
		o.worker.run()
	}()
	go func() {
		defer o.bg.Done()
		o.watchConnectivity(bgCtx, transitions)
	}()
	return nil
}

// watchConnectivity reacts to offline→online transitions: it re-establishes
// realtime subscriptions, performs the deferred initial load if startup
// happened offline, then replays the queue. Replay waits for the load, since
// queued updates and approvals reduce against the records they name.
func (o *Orchestrator) watchConnectivity(ctx context.Context, transitions <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.replayKick:
			if !o.monitor.Online() || !o.loaded.Load() {
				continue
			}
			if _, err := o.drainAndReplay(ctx); err != nil {
				slog.Warn("orchestrator: replay incomplete", "err", err)
			}
		case online, ok := <-transitions:
			if !ok {
				return
			}
			if !online {
				continue
			}
			o.subscribeCollections(ctx)
			if !o.loaded.Load() {
				if err := o.loadAndSeed(ctx); err != nil {
					slog.Warn("orchestrator: deferred load failed, queue kept", "err", err)
					if errors.Is(err, gateway.ErrUnavailable) {
						o.monitor.Set(false)
					}
					continue
				}
				slog.Info("orchestrator: deferred load complete", "src", o.opts.SourceID)
			}
			if _, err := o.drainAndReplay(ctx); err != nil {
				slog.Warn("orchestrator: replay incomplete", "err", err)
			}
		}
	}
}

// kickReplay asks the connectivity loop for a replay pass without waiting.
func (o *Orchestrator) kickReplay() {
	select {
	case o.replayKick <- struct{}{}:
	default:
	}
}

// load fetches every collection concurrently.
func (o *Orchestrator) load(ctx context.Context) (state.SetState, error) {
	docs := make([][]json.RawMessage, len(models.Collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range models.Collections {
		g.Go(func() error {
			recs, err := o.gw.LoadCollection(gctx, c)
			if err != nil {
				return fmt.Errorf("load %s: %w", c, err)
			}
			raw := make([]json.RawMessage, len(recs))
			for j, r := range recs {
				raw[j] = r.Data
			}
			docs[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return state.SetState{}, err
	}

	byName := make(map[models.Collection][]json.RawMessage, len(docs))
	for i, c := range models.Collections {
		byName[c] = docs[i]
	}
	return state.Seed(byName)
}

func (o *Orchestrator) loadAndSeed(ctx context.Context) error {
	seed, err := o.load(ctx)
	if err != nil {
		return err
	}
	o.apply(seed)
	o.loaded.Store(true)
	return nil
}

// subscribeCollections opens realtime feeds for collections that have none.
// Failures are logged; the next reconnect retries them.
func (o *Orchestrator) subscribeCollections(ctx context.Context) {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for _, c := range models.Collections {
		if o.subs[c] != nil {
			continue
		}
		sub, err := o.gw.Subscribe(ctx, c, o.realtimeHandlers(c))
		if err != nil {
			slog.Warn("orchestrator: realtime subscribe failed", "collection", c, "err", err)
			continue
		}
		o.subs[c] = sub
	}
}

func (o *Orchestrator) unsubscribeCollections() {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	for c, sub := range o.subs {
		sub.Unsubscribe()
		delete(o.subs, c)
	}
}

// Close tears down every subscription and waits for pending remote writes
// to finish. The queue, channel and gateway belong to the caller.
func (o *Orchestrator) Close() error {
	o.lifeMu.Lock()
	if o.closed {
		o.lifeMu.Unlock()
		return nil
	}
	o.closed = true
	started := o.started
	o.lifeMu.Unlock()

	if !started {
		return nil
	}

	o.unsubscribeCollections()
	o.cancelBroadcast()
	o.cancelNet()
	o.worker.stop()
	o.bgCancel()
	o.bg.Wait()

	o.watchMu.Lock()
	for id, ch := range o.watchers {
		close(ch)
		delete(o.watchers, id)
	}
	o.watchMu.Unlock()

	slog.Info("orchestrator: closed", "src", o.opts.SourceID)
	return nil
}

func (o *Orchestrator) checkRunning() error {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()
	switch {
	case o.closed:
		return ErrClosed
	case !o.started:
		return ErrNotStarted
	}
	return nil
}
