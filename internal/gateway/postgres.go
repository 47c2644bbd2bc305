package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marcus/agencysync/internal/models"
)

const (
	notifyChannel = "agencysync_changes"

	listenRetryInitial = 250 * time.Millisecond
	listenRetryMax     = 10 * time.Second
)

const notifyFunction = `
CREATE OR REPLACE FUNCTION agencysync_notify() RETURNS trigger AS $$
DECLARE
	rec_id BIGINT;
BEGIN
	IF TG_OP = 'DELETE' THEN
		rec_id := OLD.id;
	ELSE
		rec_id := NEW.id;
	END IF;
	PERFORM pg_notify('` + notifyChannel + `', json_build_object(
		'collection', TG_TABLE_NAME,
		'op', lower(TG_OP),
		'id', rec_id
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`

// notification is the trigger payload.
type notification struct {
	Collection models.Collection `json:"collection"`
	Op         string            `json:"op"`
	ID         int64             `json:"id"`
}

// Postgres stores each collection in its own table of JSONB documents and
// streams changes through LISTEN/NOTIFY.
type Postgres struct {
	pool *pgxpool.Pool

	mu        sync.Mutex
	subs      map[models.Collection]map[int]Handlers
	nextSub   int
	listening bool
	stop      context.CancelFunc
	done      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

// NewPostgres connects to url. Call EnsureSchema before first use against a
// fresh database.
func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, classify(fmt.Errorf("connect: %w", err))
	}
	return &Postgres{
		pool: pool,
		subs: make(map[models.Collection]map[int]Handlers),
	}, nil
}

// EnsureSchema creates the collection tables and their change triggers.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin schema: %w", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, notifyFunction); err != nil {
		return fmt.Errorf("create notify function: %w", err)
	}
	for _, c := range models.Collections {
		table := tableName(c)
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS ` + table + ` (
				id         BIGINT PRIMARY KEY,
				data       JSONB NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`DROP TRIGGER IF EXISTS agencysync_notify ON ` + table,
			`CREATE TRIGGER agencysync_notify AFTER INSERT OR UPDATE OR DELETE ON ` + table +
				` FOR EACH ROW EXECUTE FUNCTION agencysync_notify()`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema for %s: %w", c, err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit schema: %w", err))
	}
	return nil
}

func tableName(c models.Collection) string {
	return pgx.Identifier{string(c)}.Sanitize()
}

func (p *Postgres) LoadCollection(ctx context.Context, c models.Collection) ([]Record, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `SELECT id, data FROM `+tableName(c)+` ORDER BY id`)
	if err != nil {
		return nil, classify(fmt.Errorf("load %s: %w", c, err))
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.ID, &r.Data)
		return r, err
	})
	if err != nil {
		return nil, classify(fmt.Errorf("load %s: %w", c, err))
	}
	return out, nil
}

func (p *Postgres) SaveRecord(ctx context.Context, c models.Collection, r Record) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO `+tableName(c)+` (id, data, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		r.ID, []byte(r.Data))
	if err != nil {
		return classify(fmt.Errorf("save %s/%d: %w", c, r.ID, err))
	}
	return nil
}

func (p *Postgres) DeleteRecord(ctx context.Context, c models.Collection, id int64) error {
	if err := checkCollection(c); err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM `+tableName(c)+` WHERE id = $1`, id); err != nil {
		return classify(fmt.Errorf("delete %s/%d: %w", c, id, err))
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return classify(fmt.Errorf("ping: %w", err))
	}
	return nil
}

// Subscribe registers h for changes to c. All subscriptions share one
// listening connection, started on first use; Subscribe returns once that
// connection is listening.
func (p *Postgres) Subscribe(ctx context.Context, c models.Collection, h Handlers) (*Subscription, error) {
	if err := checkCollection(c); err != nil {
		return nil, err
	}

	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	if p.subs[c] == nil {
		p.subs[c] = make(map[int]Handlers)
	}
	p.subs[c][id] = h

	if !p.listening {
		lctx, cancel := context.WithCancel(context.Background())
		p.listening = true
		p.stop = cancel
		p.done = make(chan struct{})
		p.ready = make(chan struct{})
		p.readyOnce = sync.Once{}
		go p.listen(lctx, p.done)
	}
	ready := p.ready
	p.mu.Unlock()

	sub := newSubscription(func() {
		p.mu.Lock()
		delete(p.subs[c], id)
		p.mu.Unlock()
	})

	select {
	case <-ready:
		return sub, nil
	case <-ctx.Done():
		sub.Unsubscribe()
		return nil, classify(fmt.Errorf("subscribe %s: %w", c, ctx.Err()))
	}
}

// listen holds a dedicated connection in LISTEN mode, reconnecting with
// backoff until ctx is cancelled.
func (p *Postgres) listen(ctx context.Context, done chan struct{}) {
	defer close(done)
	backoff := listenRetryInitial
	for {
		err := p.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("gateway: listener dropped, reconnecting", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, listenRetryMax)
	}
}

func (p *Postgres) listenOnce(ctx context.Context) error {
	pc, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listener: %w", err)
	}
	// A connection left in LISTEN mode must not go back to the pool.
	conn := pc.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	p.mu.Lock()
	ready := p.ready
	p.mu.Unlock()
	p.readyOnce.Do(func() { close(ready) })

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		var note notification
		if err := json.Unmarshal([]byte(n.Payload), &note); err != nil {
			slog.Warn("gateway: malformed notification", "payload", n.Payload, "err", err)
			continue
		}
		p.dispatch(ctx, note)
	}
}

func (p *Postgres) dispatch(ctx context.Context, note notification) {
	p.mu.Lock()
	handlers := make([]Handlers, 0, len(p.subs[note.Collection]))
	for _, h := range p.subs[note.Collection] {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()
	if len(handlers) == 0 {
		return
	}

	if note.Op == "delete" {
		for _, h := range handlers {
			if h.OnDelete != nil {
				h.OnDelete(note.ID)
			}
		}
		return
	}

	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT data FROM `+tableName(note.Collection)+` WHERE id = $1`, note.ID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		// Deleted again before we looked; the delete notification follows.
		return
	}
	if err != nil {
		slog.Warn("gateway: fetch changed row", "collection", note.Collection, "id", note.ID, "err", err)
		return
	}

	rec := Record{ID: note.ID, Data: data}
	for _, h := range handlers {
		switch {
		case note.Op == "insert" && h.OnInsert != nil:
			h.OnInsert(rec)
		case note.Op == "update" && h.OnUpdate != nil:
			h.OnUpdate(rec)
		}
	}
}

// Close stops the listener and closes the pool.
func (p *Postgres) Close() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.listening = false
	p.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	p.pool.Close()
}

// classify wraps connectivity failures with ErrUnavailable so callers can
// tell an outage from a rejected write.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var (
		connErr *pgconn.ConnectError
		netErr  net.Error
	)
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
