package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/marcus/agencysync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id int64, body string) Record {
	return Record{ID: id, Data: json.RawMessage(body)}
}

func TestMemory_LoadSortedByID(t *testing.T) {
	m := NewMemory()
	m.Put(models.CollectionCustomers, rec(3, `{"id":3}`), rec(1, `{"id":1}`), rec(2, `{"id":2}`))

	got, err := m.LoadCollection(context.Background(), models.CollectionCustomers)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, int64(i+1), r.ID)
	}

	empty, err := m.LoadCollection(context.Background(), models.CollectionClaims)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemory_SaveIsUpsertAndEchoes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var inserts, updates []Record
	var deletes []int64
	sub, err := m.Subscribe(ctx, models.CollectionMessages, Handlers{
		OnInsert: func(r Record) { inserts = append(inserts, r) },
		OnUpdate: func(r Record) { updates = append(updates, r) },
		OnDelete: func(id int64) { deletes = append(deletes, id) },
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, m.SaveRecord(ctx, models.CollectionMessages, rec(42, `{"id":42,"body":"a"}`)))
	require.NoError(t, m.SaveRecord(ctx, models.CollectionMessages, rec(42, `{"id":42,"body":"b"}`)))
	require.NoError(t, m.DeleteRecord(ctx, models.CollectionMessages, 42))
	require.NoError(t, m.DeleteRecord(ctx, models.CollectionMessages, 42))

	require.Len(t, inserts, 1)
	require.Len(t, updates, 1)
	assert.JSONEq(t, `{"id":42,"body":"b"}`, string(updates[0].Data))
	assert.Equal(t, []int64{42, 42}, deletes)

	got, err := m.LoadCollection(ctx, models.CollectionMessages)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemory_UnsubscribeStopsCallbacks(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	calls := 0
	sub, err := m.Subscribe(ctx, models.CollectionAgents, Handlers{OnInsert: func(Record) { calls++ }})
	require.NoError(t, err)
	sub.Unsubscribe()
	sub.Unsubscribe()

	require.NoError(t, m.SaveRecord(ctx, models.CollectionAgents, rec(1, `{}`)))
	assert.Zero(t, calls)
}

func TestMemory_Unavailable(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.SetAvailable(false)

	assert.ErrorIs(t, m.Ping(ctx), ErrUnavailable)
	_, err := m.LoadCollection(ctx, models.CollectionCustomers)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, m.SaveRecord(ctx, models.CollectionCustomers, rec(1, `{}`)), ErrUnavailable)
	assert.ErrorIs(t, m.DeleteRecord(ctx, models.CollectionCustomers, 1), ErrUnavailable)

	m.SetAvailable(true)
	assert.NoError(t, m.Ping(ctx))
}

func TestMemory_UnknownCollection(t *testing.T) {
	m := NewMemory()
	_, err := m.LoadCollection(context.Background(), models.Collection("policies"))
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestMemory_StoredDataIsCopied(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	data := []byte(`{"id":1}`)
	require.NoError(t, m.SaveRecord(ctx, models.CollectionAdmins, Record{ID: 1, Data: data}))
	data[2] = 'X'

	got, err := m.LoadCollection(ctx, models.CollectionAdmins)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1}`, string(got[0].Data))
}
