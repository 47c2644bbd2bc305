package gateway

import (
	"cmp"
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/marcus/agencysync/internal/models"
)

// Memory is an in-process remote store. Every save or delete is echoed to
// all subscribers of the collection, the writer's own included.
type Memory struct {
	mu        sync.Mutex
	data      map[models.Collection]map[int64]json.RawMessage
	subs      map[models.Collection]map[int]Handlers
	nextSub   int
	available bool
}

func NewMemory() *Memory {
	return &Memory{
		data:      make(map[models.Collection]map[int64]json.RawMessage),
		subs:      make(map[models.Collection]map[int]Handlers),
		available: true,
	}
}

// SetAvailable toggles a simulated outage. While unavailable every call
// fails with ErrUnavailable.
func (m *Memory) SetAvailable(ok bool) {
	m.mu.Lock()
	m.available = ok
	m.mu.Unlock()
}

// Put stores records without notifying subscribers.
func (m *Memory) Put(c models.Collection, records ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.table(c)[r.ID] = slices.Clone(r.Data)
	}
}

func (m *Memory) table(c models.Collection) map[int64]json.RawMessage {
	t := m.data[c]
	if t == nil {
		t = make(map[int64]json.RawMessage)
		m.data[c] = t
	}
	return t
}

func (m *Memory) check(c models.Collection) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	if !m.available {
		return ErrUnavailable
	}
	return nil
}

func (m *Memory) LoadCollection(_ context.Context, c models.Collection) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(c); err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(m.data[c]))
	for id, data := range m.data[c] {
		out = append(out, Record{ID: id, Data: slices.Clone(data)})
	}
	slices.SortFunc(out, func(a, b Record) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *Memory) SaveRecord(_ context.Context, c models.Collection, r Record) error {
	m.mu.Lock()
	if err := m.check(c); err != nil {
		m.mu.Unlock()
		return err
	}
	t := m.table(c)
	_, exists := t[r.ID]
	t[r.ID] = slices.Clone(r.Data)
	handlers := m.handlers(c)
	m.mu.Unlock()

	for _, h := range handlers {
		rec := Record{ID: r.ID, Data: slices.Clone(r.Data)}
		if exists && h.OnUpdate != nil {
			h.OnUpdate(rec)
		} else if !exists && h.OnInsert != nil {
			h.OnInsert(rec)
		}
	}
	return nil
}

func (m *Memory) DeleteRecord(_ context.Context, c models.Collection, id int64) error {
	m.mu.Lock()
	if err := m.check(c); err != nil {
		m.mu.Unlock()
		return err
	}
	delete(m.data[c], id)
	handlers := m.handlers(c)
	m.mu.Unlock()

	for _, h := range handlers {
		if h.OnDelete != nil {
			h.OnDelete(id)
		}
	}
	return nil
}

func (m *Memory) Subscribe(_ context.Context, c models.Collection, h Handlers) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(c); err != nil {
		return nil, err
	}

	id := m.nextSub
	m.nextSub++
	if m.subs[c] == nil {
		m.subs[c] = make(map[int]Handlers)
	}
	m.subs[c][id] = h

	return newSubscription(func() {
		m.mu.Lock()
		delete(m.subs[c], id)
		m.mu.Unlock()
	}), nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.available {
		return ErrUnavailable
	}
	return nil
}

// handlers snapshots the subscribers of c in subscription order; callers
// hold m.mu.
func (m *Memory) handlers(c models.Collection) []Handlers {
	ids := make([]int, 0, len(m.subs[c]))
	for id := range m.subs[c] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Handlers, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.subs[c][id])
	}
	return out
}
