package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/orchestrator"
	"github.com/marcus/agencysync/internal/queue"
	"github.com/marcus/agencysync/internal/state"
)

const watchWriteTimeout = 5 * time.Second

// QueueEntry is the wire form of one pending action.
type QueueEntry struct {
	Seq        int64           `json:"seq"`
	Type       state.Type      `json:"type"`
	Action     json.RawMessage `json:"action"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// QueueEntries converts queue entries to their wire form.
func QueueEntries(entries []queue.Entry) ([]QueueEntry, error) {
	out := make([]QueueEntry, 0, len(entries))
	for _, e := range entries {
		raw, err := state.MarshalAction(e.Action)
		if err != nil {
			return nil, fmt.Errorf("encode seq=%d: %w", e.Seq, err)
		}
		out = append(out, QueueEntry{Seq: e.Seq, Type: e.Action.Type(), Action: raw, EnqueuedAt: e.EnqueuedAt})
	}
	return out, nil
}

// DispatchResponse is returned by POST /v1/actions.
type DispatchResponse struct {
	Type   state.Type `json:"type"`
	Online bool       `json:"online"`
}

// ReplayResponse is returned by POST /v1/queue/replay. Error is set when
// replay stopped before draining the queue.
type ReplayResponse struct {
	orchestrator.ReplayResult
	Error string `json:"error,omitempty"`
}

// NetworkRequest is the body of PUT /v1/network.
type NetworkRequest struct {
	Online *bool `json:"online"`
}

// WatchEvent is one frame on /v1/watch.
type WatchEvent struct {
	Type  string         `json:"type"`
	State state.AppState `json:"state"`
	At    time.Time      `json:"at"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	c := models.Collection(chi.URLParam(r, "collection"))
	v, ok := s.svc.Snapshot().Collection(c)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, fmt.Sprintf("unknown collection %q", c))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "read body: "+err.Error())
		return
	}

	a, err := state.UnmarshalAction(body)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	// Unknown types are relayed when they arrive from a sibling, but a
	// client asking for one has made a mistake.
	if !state.Known(a.Type()) {
		writeError(w, http.StatusBadRequest, ErrCodeUnknownAction, fmt.Sprintf("unknown action type %q", a.Type()))
		return
	}

	if err := s.svc.Dispatch(r.Context(), a); err != nil {
		writeServiceError(w, r, err)
		return
	}
	s.metrics.RecordDispatch()

	online := false
	if st, err := s.svc.Status(r.Context()); err == nil {
		online = st.Online
	}
	writeJSON(w, http.StatusAccepted, DispatchResponse{Type: a.Type(), Online: online})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Refresh(r.Context()); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Snapshot().Counts())
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.Pending(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out, err := QueueEntries(entries)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleQueueReplay(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.DrainAndReplay(r.Context())
	s.metrics.RecordReplay()
	if err != nil {
		if errors.Is(err, orchestrator.ErrClosed) || errors.Is(err, orchestrator.ErrNotStarted) {
			writeServiceError(w, r, err)
			return
		}
		logFor(r.Context()).Warn("replay incomplete", "replayed", res.Replayed, "remaining", res.Remaining, "err", err)
		writeJSON(w, http.StatusBadGateway, ReplayResponse{ReplayResult: res, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ReplayResponse{ReplayResult: res})
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.ClearQueue(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"cleared": n})
}

func (s *Server) handleNetworkSet(w http.ResponseWriter, r *http.Request) {
	var req NetworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Online == nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "online is required")
		return
	}
	s.svc.SetOnline(*req.Online)
	logFor(r.Context()).Info("network forced", "online", *req.Online)
	s.handleStatus(w, r)
}

func (s *Server) handleNetworkRelease(w http.ResponseWriter, r *http.Request) {
	s.svc.ReleaseOnline()
	logFor(r.Context()).Info("network override released")
	s.handleStatus(w, r)
}

// handleWatch streams a snapshot on connect and after every reduction.
func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.config.CORSAllowedOrigins) > 0 {
		opts.OriginPatterns = s.config.CORSAllowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		logFor(r.Context()).Warn("watch: accept", "err", err)
		return
	}
	s.metrics.WatcherJoined()
	defer s.metrics.WatcherLeft()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	snapshots, stop := s.svc.Watch()
	defer stop()

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case snap, ok := <-snapshots:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "instance closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, watchWriteTimeout)
			err := wsjson.Write(writeCtx, conn, WatchEvent{Type: "state", State: snap, At: time.Now().UTC()})
			cancelWrite()
			if err != nil {
				conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}
