package broadcast

import (
	"context"
	"log/slog"
	"sync"
)

var defaultHub = NewHub()

// Hub is an in-process broadcast medium. Channels obtained from the same Hub
// with the same name reach each other.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Channel opens a handle on the named channel.
func (h *Hub) Channel(name string) *HubChannel {
	return &HubChannel{hub: h, name: name, own: make(map[*subscriber]struct{})}
}

func (h *Hub) add(name string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[name] == nil {
		h.subs[name] = make(map[*subscriber]struct{})
	}
	h.subs[name][s] = struct{}{}
}

func (h *Hub) remove(name string, s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[name], s)
	if len(h.subs[name]) == 0 {
		delete(h.subs, name)
	}
}

func (h *Hub) deliver(name string, data []byte) {
	h.mu.Lock()
	targets := make([]*subscriber, 0, len(h.subs[name]))
	for s := range h.subs[name] {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		s.push(data)
	}
}

// HubChannel is one instance's handle on a Hub channel.
type HubChannel struct {
	hub  *Hub
	name string

	mu     sync.Mutex
	own    map[*subscriber]struct{}
	closed bool
}

// Publish encodes env and queues it for every subscriber of the channel.
// It never blocks on slow subscribers.
func (c *HubChannel) Publish(_ context.Context, env Envelope) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	// Receivers decode their own copy, so no state is shared across instances.
	data, err := env.MarshalJSON()
	if err != nil {
		return err
	}
	c.hub.deliver(c.name, data)
	return nil
}

func (c *HubChannel) Subscribe(h Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	s := newSubscriber(h)
	c.own[s] = struct{}{}
	c.hub.add(c.name, s)
	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.own, s)
			c.mu.Unlock()
			c.hub.remove(c.name, s)
			s.stop()
		})
	}, nil
}

// Close cancels every subscription made through this handle.
func (c *HubChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subs := make([]*subscriber, 0, len(c.own))
	for s := range c.own {
		subs = append(subs, s)
	}
	c.own = nil
	c.mu.Unlock()

	for _, s := range subs {
		c.hub.remove(c.name, s)
		s.stop()
	}
	return nil
}

// subscriber owns an unbounded FIFO drained by one goroutine.
type subscriber struct {
	handler Handler

	mu      sync.Mutex
	pending [][]byte
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

func newSubscriber(h Handler) *subscriber {
	return &subscriber{
		handler: h,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (s *subscriber) push(data []byte) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, data)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.done)
	}
	s.mu.Unlock()
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, data := range batch {
			select {
			case <-s.done:
				return
			default:
			}
			env, err := decode(data)
			if err != nil {
				slog.Warn("broadcast: dropping malformed envelope", "err", err)
				continue
			}
			s.handler(env)
		}
	}
}
