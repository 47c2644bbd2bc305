package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Queue, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instances", "a", "queue.db")
	q, err := Open(path, Options{})
	require.NoError(t, err)
	return q, path
}

func actions() []state.Action {
	return []state.Action{
		state.SendMessage{ID: 1, SenderID: 10, ReceiverID: 20, Body: "one", Status: models.MessageUnread},
		state.UpdateCustomer{ID: 5, Name: "Ada", Status: models.PolicyActive},
		state.DeleteClaim{ID: 9},
		state.ApproveRequest{RequestID: 3, ApprovedBy: 2},
	}
}

func TestQueue_EnqueueAssignsIncreasingSeq(t *testing.T) {
	q, _ := openTemp(t)
	defer q.Close()
	ctx := context.Background()

	var last int64
	for _, a := range actions() {
		e, err := q.Enqueue(ctx, a)
		require.NoError(t, err)
		assert.Greater(t, e.Seq, last)
		last = e.Seq
	}

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestQueue_SurvivesReopenInOrder(t *testing.T) {
	q, path := openTemp(t)
	ctx := context.Background()
	for _, a := range actions() {
		_, err := q.Enqueue(ctx, a)
		require.NoError(t, err)
	}
	require.NoError(t, q.Close())

	q, err := Open(path, Options{})
	require.NoError(t, err)
	defer q.Close()

	entries, err := q.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i, a := range actions() {
		assert.Equal(t, a, entries[i].Action)
		assert.False(t, entries[i].EnqueuedAt.IsZero())
	}
}

func TestQueue_AckRemovesThroughSeq(t *testing.T) {
	q, _ := openTemp(t)
	defer q.Close()
	ctx := context.Background()

	var seqs []int64
	for _, a := range actions() {
		e, err := q.Enqueue(ctx, a)
		require.NoError(t, err)
		seqs = append(seqs, e.Seq)
	}

	require.NoError(t, q.Ack(ctx, seqs[1]))

	entries, err := q.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, seqs[2], entries[0].Seq)

	cur, err := q.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, seqs[1], cur.LastReplayedSeq)
	require.NotNil(t, cur.LastReplayAt)

	// An older ack never moves the cursor back.
	require.NoError(t, q.Ack(ctx, seqs[0]))
	cur, err = q.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, seqs[1], cur.LastReplayedSeq)
}

func TestQueue_SeqNotReusedAfterAck(t *testing.T) {
	q, _ := openTemp(t)
	defer q.Close()
	ctx := context.Background()

	e1, err := q.Enqueue(ctx, state.DeleteAgent{ID: 1})
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, e1.Seq))

	e2, err := q.Enqueue(ctx, state.DeleteAgent{ID: 2})
	require.NoError(t, err)
	assert.Greater(t, e2.Seq, e1.Seq)

	entries, err := q.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, state.DeleteAgent{ID: 2}, entries[0].Action)
}

func TestQueue_Clear(t *testing.T) {
	q, _ := openTemp(t)
	defer q.Close()
	ctx := context.Background()

	for _, a := range actions() {
		_, err := q.Enqueue(ctx, a)
		require.NoError(t, err)
	}
	n, err := q.Clear(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)

	left, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestQueue_SecondOwnerIsLocked(t *testing.T) {
	q, path := openTemp(t)
	defer q.Close()

	_, err := Open(path, Options{LockTimeout: 20 * time.Millisecond})
	assert.ErrorIs(t, err, ErrLocked)
}

func TestQueue_ReadOnlyWhileOwned(t *testing.T) {
	q, path := openTemp(t)
	defer q.Close()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, state.DeleteAdmin{ID: 4})
	require.NoError(t, err)

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()

	entries, err := ro.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, state.DeleteAdmin{ID: 4}, entries[0].Action)
}

func TestQueue_UnknownActionIsStoredAndReturned(t *testing.T) {
	q, _ := openTemp(t)
	defer q.Close()
	ctx := context.Background()

	u := state.Unknown{Kind: "SET_THEME", Payload: []byte(`{"dark":true}`)}
	_, err := q.Enqueue(ctx, u)
	require.NoError(t, err)

	entries, err := q.All(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got, ok := entries[0].Action.(state.Unknown)
	require.True(t, ok)
	assert.Equal(t, state.Type("SET_THEME"), got.Kind)
	assert.JSONEq(t, `{"dark":true}`, string(got.Payload))
}
