// Package gateway is the contract between the client core and the remote
// record store, plus its implementations.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/marcus/agencysync/internal/models"
)

var (
	// ErrUnavailable marks failures caused by the remote store being
	// unreachable, as opposed to a rejected write.
	ErrUnavailable = errors.New("remote store unavailable")

	ErrUnknownCollection = errors.New("unknown collection")
)

// Record is one stored document: its id and its JSON body.
type Record struct {
	ID   int64           `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Handlers receive realtime changes for one collection. Nil handlers are
// skipped.
type Handlers struct {
	OnInsert func(Record)
	OnUpdate func(Record)
	OnDelete func(id int64)
}

// Gateway is the remote store. SaveRecord is an idempotent upsert by id.
// Subscribers may see their own writes echoed back, possibly more than once.
type Gateway interface {
	LoadCollection(ctx context.Context, c models.Collection) ([]Record, error)
	SaveRecord(ctx context.Context, c models.Collection, r Record) error
	DeleteRecord(ctx context.Context, c models.Collection, id int64) error
	Subscribe(ctx context.Context, c models.Collection, h Handlers) (*Subscription, error)
	Ping(ctx context.Context) error
}

// Subscription is a live realtime feed. Unsubscribe is safe to call more
// than once.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func newSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

func checkCollection(c models.Collection) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	return nil
}
