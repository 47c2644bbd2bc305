package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/marcus/agencysync/internal/broadcast"
	"github.com/marcus/agencysync/internal/gateway"
	"github.com/marcus/agencysync/internal/netstatus"
	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/queue"
)

// testHarness wraps a full Server over a running instance with a real HTTP
// listener.
type testHarness struct {
	t       *testing.T
	Server  *Server
	Orch    *orchestrator.Orchestrator
	Gateway *gateway.Memory
	Queue   *queue.Queue
	BaseURL string
	client  *http.Client
}

func newTestHarness(t *testing.T, opts ...func(*Config)) *testHarness {
	t.Helper()

	gw := gateway.NewMemory()
	q, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"), queue.Options{})
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	ch := broadcast.NewHub().Channel("agency-sync")
	mon := netstatus.New(nil, time.Second)

	o := orchestrator.New(
		orchestrator.Deps{Gateway: gw, Queue: q, Channel: ch, Monitor: mon},
		orchestrator.Options{PersistTimeout: time.Second},
	)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start orchestrator: %v", err)
	}

	cfg := Config{ListenAddr: "127.0.0.1:0"}
	for _, opt := range opts {
		opt(&cfg)
	}
	srv := NewServer(cfg, o)
	httpSrv := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		httpSrv.Close()
		o.Close()
		ch.Close()
		q.Close()
	})

	return &testHarness{
		t:       t,
		Server:  srv,
		Orch:    o,
		Gateway: gw,
		Queue:   q,
		BaseURL: httpSrv.URL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// do sends a request with an optional JSON body and returns the response.
// The response body has been read and closed; it is returned as bytes.
func (h *testHarness) do(method, path string, body any) (*http.Response, []byte) {
	h.t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.BaseURL+path, r)
	if err != nil {
		h.t.Fatalf("new request: %v", err)
	}
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read body: %v", err)
	}
	return resp, data
}

// decode unmarshals data into v or fails the test.
func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return v
}
