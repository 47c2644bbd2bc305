package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/marcus/agencysync/internal/gateway"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ReplayResult reports one drain pass.
type ReplayResult struct {
	Replayed  int `json:"replayed"`
	Remaining int `json:"remaining"`
}

// DrainAndReplay persists every queued action in enqueue order. Entries
// inherited from an earlier process are reduced and broadcast first. Entries
// this process queued are already in the state; they write the records as
// they left them, skipping any this instance has changed again since. Each entry is
// removed only after its remote write succeeded; the first failure ends the
// pass and leaves that entry and the rest for the next one. Passes never
// overlap, and entries queued while a pass runs are picked up before it
// returns as long as the instance stays online.
func (o *Orchestrator) DrainAndReplay(ctx context.Context) (ReplayResult, error) {
	if err := o.checkRunning(); err != nil {
		return ReplayResult{}, err
	}
	return o.drainAndReplay(ctx)
}

func (o *Orchestrator) drainAndReplay(ctx context.Context) (res ReplayResult, err error) {
	o.replayMu.Lock()
	defer o.replayMu.Unlock()
	o.replaying.Store(true)
	defer o.replaying.Store(false)

	ctx, span := o.tracer.Start(ctx, "orchestrator.replay")
	defer func() {
		span.SetAttributes(
			attribute.Int("replayed", res.Replayed),
			attribute.Int("remaining", res.Remaining),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "replay incomplete")
		}
		span.End()
	}()

	for {
		pass, err := o.replayPass(ctx)
		res.Replayed += pass.Replayed
		res.Remaining = pass.Remaining
		if err != nil {
			return res, err
		}
		if pass.Replayed == 0 || !o.monitor.Online() {
			break
		}
		n, err := o.queue.Len(ctx)
		if err != nil {
			return res, fmt.Errorf("read queue: %w", err)
		}
		if n == 0 {
			break
		}
		slog.Debug("orchestrator: entries queued during replay", "entries", n)
	}
	if res.Replayed > 0 {
		slog.Info("orchestrator: replay complete", "replayed", res.Replayed)
	}
	return res, nil
}

// replayPass replays the entries queued when it starts.
func (o *Orchestrator) replayPass(ctx context.Context) (res ReplayResult, err error) {
	entries, err := o.queue.All(ctx)
	if err != nil {
		return res, fmt.Errorf("read queue: %w", err)
	}
	if len(entries) == 0 {
		return res, nil
	}
	slog.Info("orchestrator: replaying queue", "entries", len(entries), "src", o.opts.SourceID)

	for i, e := range entries {
		res.Remaining = len(entries) - i
		if i > 0 && o.opts.ReplayDelay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(o.opts.ReplayDelay):
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		changes, own := o.ownChanges(e.Seq)
		if !own {
			changes, _ = o.applyLocal(e.Action, 0)
			o.publish(ctx, e.Action)
		}

		if err := o.persist(ctx, e.Action, changes); err != nil {
			if errors.Is(err, gateway.ErrUnavailable) {
				o.monitor.Set(false)
			}
			return res, fmt.Errorf("replay seq=%d: %w", e.Seq, err)
		}
		if err := o.queue.Ack(ctx, e.Seq); err != nil {
			return res, fmt.Errorf("replay seq=%d: %w", e.Seq, err)
		}
		o.forgetApplied(e.Seq)
		res.Replayed++
		o.stats.replayed.Add(1)
	}
	res.Remaining = 0
	return res, nil
}
