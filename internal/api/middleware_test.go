package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestScope_KeepsCallerID(t *testing.T) {
	var logged bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logged, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := requestScope(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logFor(r.Context()).Info("inside")
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set(requestIDHeader, "tab-7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "tab-7", rec.Header().Get(requestIDHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(logged.Bytes(), &line))
	assert.Equal(t, "tab-7", line["rid"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	assert.Len(t, rec.Header().Get(requestIDHeader), 36)
}

func TestObserve_CountsOutcomes(t *testing.T) {
	m := NewMetrics()
	h := observe(m)(recoverJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "nope")
		case "/boom":
			panic("reducer exploded")
		default:
			w.Write([]byte("ok"))
		}
	})))

	for _, path := range []string{"/ok", "/missing", "/boom"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
	}

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.Requests)
	assert.EqualValues(t, 1, snap.ClientErrors)
	assert.EqualValues(t, 1, snap.ServerErrors)
}

func TestRecoverJSON_WritesErrorBody(t *testing.T) {
	h := recoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("bad state")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/state", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"internal"`)
}
