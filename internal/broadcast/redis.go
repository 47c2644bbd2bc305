package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisDialTimeout    = 2 * time.Second
	redisPublishTimeout = 2 * time.Second
)

// Redis relays envelopes over Redis pub/sub, reaching instances in other
// processes or on other hosts.
type Redis struct {
	client *redis.Client
	name   string

	mu     sync.Mutex
	subs   map[*redis.PubSub]struct{}
	closed bool
}

// NewRedis connects to url and verifies the server answers.
func NewRedis(ctx context.Context, url, name string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = redisDialTimeout
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client, name: name, subs: make(map[*redis.PubSub]struct{})}, nil
}

// Publish sends env on the channel, bounded by a short timeout so a stalled
// server cannot hold up dispatch.
func (r *Redis) Publish(ctx context.Context, env Envelope) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := env.MarshalJSON()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, redisPublishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.name, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(h Handler) (func(), error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	ps := r.client.Subscribe(ctx, r.name)
	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", r.name, err)
	}

	r.mu.Lock()
	r.subs[ps] = struct{}{}
	r.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			env, err := decode([]byte(msg.Payload))
			if err != nil {
				slog.Warn("broadcast: dropping malformed envelope", "channel", r.name, "err", err)
				continue
			}
			h(env)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ps)
			r.mu.Unlock()
			ps.Close()
		})
	}, nil
}

func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for ps := range subs {
		ps.Close()
	}
	return r.client.Close()
}
