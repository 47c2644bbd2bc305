package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	watchPath       = "/v1/watch"
)

type contextKey int

const ctxKeyLogger contextKey = iota

// logFor returns the request's logger, or the default one outside a request.
func logFor(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// requestScope tags the request with an id and a logger carrying it. A
// caller-supplied X-Request-ID is kept so a UI can correlate its own logs.
func requestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), ctxKeyLogger, slog.Default().With("rid", id))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observe counts every request by outcome and logs it when it ends. Reads
// log at debug: the monitor polls status and queue every few seconds. A
// watch stream ends when its client goes away, so it is logged as a session.
func observe(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			m.RecordRequest()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			switch {
			case status >= 500:
				m.RecordError()
			case status >= 400:
				m.RecordClientError()
			}

			l := logFor(r.Context())
			dur := time.Since(start).Round(time.Millisecond)
			switch {
			case r.URL.Path == watchPath && status < 400:
				l.Info("watch ended", "remote", r.RemoteAddr, "lasted", dur)
			case status >= 500:
				l.Warn("req", "method", r.Method, "path", r.URL.Path, "status", status, "dur", dur)
			case r.Method == http.MethodGet || r.Method == http.MethodOptions:
				l.Debug("req", "method", r.Method, "path", r.URL.Path, "status", status, "dur", dur)
			default:
				l.Info("req", "method", r.Method, "path", r.URL.Path, "status", status, "dur", dur, "bytes", ww.BytesWritten())
			}
		})
	}
}

// recoverJSON turns a handler panic into the API's JSON 500.
func recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logFor(r.Context()).Error("handler panic", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
