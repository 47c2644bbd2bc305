package gateway

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/marcus/agencysync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("AGENCYSYNC_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("AGENCYSYNC_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	p, err := NewPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	require.NoError(t, p.EnsureSchema(ctx))
	_, err = p.pool.Exec(ctx, `TRUNCATE `+tableName(models.CollectionPayments))
	require.NoError(t, err)
	return p
}

func TestPostgres_SaveLoadDelete(t *testing.T) {
	p := openPostgres(t)
	ctx := context.Background()

	require.NoError(t, p.SaveRecord(ctx, models.CollectionPayments, rec(2, `{"id":2,"amount":10}`)))
	require.NoError(t, p.SaveRecord(ctx, models.CollectionPayments, rec(1, `{"id":1,"amount":5}`)))
	require.NoError(t, p.SaveRecord(ctx, models.CollectionPayments, rec(2, `{"id":2,"amount":20}`)))

	got, err := p.LoadCollection(ctx, models.CollectionPayments)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.JSONEq(t, `{"id":2,"amount":20}`, string(got[1].Data))

	require.NoError(t, p.DeleteRecord(ctx, models.CollectionPayments, 1))
	require.NoError(t, p.DeleteRecord(ctx, models.CollectionPayments, 1))
	got, err = p.LoadCollection(ctx, models.CollectionPayments)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPostgres_RealtimeNotifications(t *testing.T) {
	p := openPostgres(t)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}
	sub, err := p.Subscribe(ctx, models.CollectionPayments, Handlers{
		OnInsert: func(r Record) { record("insert") },
		OnUpdate: func(r Record) { record("update") },
		OnDelete: func(id int64) { record("delete") },
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Each step waits for its notification: a row deleted before its insert
	// notification is handled yields no callback.
	waitFor := func(n int) {
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(events) == n
		}, 5*time.Second, 20*time.Millisecond)
	}
	require.NoError(t, p.SaveRecord(ctx, models.CollectionPayments, rec(7, `{"id":7}`)))
	waitFor(1)
	require.NoError(t, p.SaveRecord(ctx, models.CollectionPayments, rec(7, `{"id":7,"amount":1}`)))
	waitFor(2)
	require.NoError(t, p.DeleteRecord(ctx, models.CollectionPayments, 7))
	waitFor(3)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"insert", "update", "delete"}, events)
}
