package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStub(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestDispatch_SendsRawAction(t *testing.T) {
	const action = `{"type":"DELETE_CLAIM","payload":{"id":9}}`
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/v1/actions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, action, string(body))
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"type":"DELETE_CLAIM","online":false}`))
	})

	resp, err := c.Dispatch(context.Background(), json.RawMessage(action))
	require.NoError(t, err)
	assert.Equal(t, "DELETE_CLAIM", string(resp.Type))
	assert.False(t, resp.Online)
}

func TestErrors_MapToSentinels(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusBadRequest, ErrBadRequest},
		{http.StatusServiceUnavailable, ErrUnavailable},
	}
	for _, tc := range cases {
		c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(`{"error":{"code":"x","message":"boom"}}`))
		})
		_, err := c.Status(context.Background())
		assert.ErrorIs(t, err, tc.want)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "boom", apiErr.Message)
		assert.Equal(t, tc.status, apiErr.Status)
	}
}

func TestErrors_UnstructuredBody(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusInternalServerError)
	})
	_, err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
}

func TestReplay_PartialResult(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"replayed":2,"remaining":3,"error":"replay seq=7: remote unavailable"}`))
	})

	res, err := c.Replay(context.Background())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Replayed)
	assert.Equal(t, 3, res.Remaining)
}

func TestSetNetwork_Body(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PUT", r.Method)
		var body map[string]bool
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]bool{"online": false}, body)
		w.Write([]byte(`{"online":false,"forced":true}`))
	})

	st, err := c.SetNetwork(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, st.Online)
	assert.True(t, st.Forced)
}

func TestClearQueue(t *testing.T) {
	c := newStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DELETE", r.Method)
		w.Write([]byte(`{"cleared":4}`))
	})
	n, err := c.ClearQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
