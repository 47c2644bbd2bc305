package broadcast

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/marcus/agencysync/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("AGENCYSYNC_TEST_REDIS_URL")
	if url == "" {
		t.Skip("AGENCYSYNC_TEST_REDIS_URL not set")
	}
	return url
}

func TestRedis_RelaysBetweenClients(t *testing.T) {
	url := redisURL(t)
	ctx := context.Background()
	name := "agency-sync-test-" + uuid.NewString()

	pub, err := NewRedis(ctx, url, name)
	require.NoError(t, err)
	defer pub.Close()
	sub, err := NewRedis(ctx, url, name)
	require.NoError(t, err)
	defer sub.Close()

	var got collector
	_, err = sub.Subscribe(got.handle)
	require.NoError(t, err)

	env := Envelope{Action: state.ApproveRequest{RequestID: 3, ApprovedBy: 1}, SourceID: "tab-a"}
	require.NoError(t, pub.Publish(ctx, env))
	require.NoError(t, pub.Publish(ctx, Envelope{Action: state.DeleteClaim{ID: 2}, SourceID: "tab-a"}))

	envs := got.waitFor(t, 2)
	assert.Equal(t, env, envs[0])
	assert.Equal(t, state.DeleteClaim{ID: 2}, envs[1].Action)
}

func TestRedis_ClosedRejects(t *testing.T) {
	url := redisURL(t)
	r, err := NewRedis(context.Background(), url, "agency-sync-test")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.ErrorIs(t, r.Publish(context.Background(), Envelope{Action: state.DeleteClaim{ID: 1}}), ErrClosed)
}
