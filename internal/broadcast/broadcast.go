// Package broadcast relays applied actions between sibling client instances
// so every instance converges on the same local state without a round trip
// to the remote store.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/marcus/agencysync/internal/state"
)

// Channel kinds accepted by Open.
const (
	KindMemory = "memory"
	KindRedis  = "redis"
	KindNone   = "none"
)

// ErrClosed is returned by Publish and Subscribe after Close.
var ErrClosed = errors.New("broadcast channel closed")

// Envelope is one broadcast message: the action plus the id of the instance
// that dispatched it.
type Envelope struct {
	Action   state.Action
	SourceID string
}

type wireEnvelope struct {
	Action   json.RawMessage `json:"action"`
	SourceID string          `json:"sourceId"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	raw, err := state.MarshalAction(e.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{Action: raw, SourceID: e.SourceID})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	a, err := state.UnmarshalAction(w.Action)
	if err != nil {
		return err
	}
	e.Action = a
	e.SourceID = w.SourceID
	return nil
}

// Handler receives envelopes. It is called from the channel's delivery
// goroutine, one envelope at a time, in publish order.
type Handler func(Envelope)

// Channel is a named publish/subscribe medium shared by sibling instances.
// Every subscriber receives every published envelope, including the
// publisher's own; receivers filter by SourceID.
type Channel interface {
	Publish(ctx context.Context, env Envelope) error
	Subscribe(h Handler) (cancel func(), err error)
	Close() error
}

// Options selects and configures the channel returned by Open.
type Options struct {
	Kind     string
	Name     string
	RedisURL string
	// Hub backs KindMemory; the process-wide default hub when nil.
	Hub *Hub
}

// Open returns the configured channel. A channel that cannot be established
// degrades to Nop with a warning so dispatch keeps working without
// cross-instance relay.
func Open(ctx context.Context, opts Options) Channel {
	switch opts.Kind {
	case KindMemory, "":
		hub := opts.Hub
		if hub == nil {
			hub = defaultHub
		}
		return hub.Channel(opts.Name)
	case KindRedis:
		ch, err := NewRedis(ctx, opts.RedisURL, opts.Name)
		if err != nil {
			slog.Warn("broadcast: redis unavailable, cross-instance relay disabled", "err", err)
			return Nop{}
		}
		return ch
	case KindNone:
		return Nop{}
	default:
		slog.Warn("broadcast: unknown kind, cross-instance relay disabled", "kind", opts.Kind)
		return Nop{}
	}
}

func decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Nop is used where no broadcast medium is available. Publish succeeds and
// nothing is ever delivered.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
func (Nop) Subscribe(Handler) (func(), error)       { return func() {}, nil }
func (Nop) Close() error                            { return nil }
