// internal/handlers/middleware/middleware.go
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ammerola/stockflow/internal/pkg/logger"
)

const slowRequest = 5 * time.Second

// Middleware wraps a handler
type Middleware func(http.Handler) http.Handler

// Chain applies mws so the first one is outermost
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RequestID propagates or generates a request id under header
func RequestID(header string) Middleware {
	if header == "" {
		header = "X-Request-ID"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(header)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(header, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), logger.ContextKeyRequestID, id)))
		})
	}
}

// RequestIDFrom returns the request id stored by RequestID
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(logger.ContextKeyRequestID).(string)
	return id
}

// requestState lets inner middleware report back to Logger after the
// handler returns
type requestState struct {
	userID string
}

type requestStateKey struct{}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(requestStateKey{}).(*requestState)
	return st
}

// Logger puts request fields on the context, where the logger's context
// handler picks them up, and logs one line per completed request.
func Logger(l *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = uuid.NewString()
			}
			w.Header().Set("X-Trace-ID", traceID)

			st := &requestState{}
			ctx := withValues(r.Context(), map[logger.ContextKey]string{
				logger.ContextKeyTraceID:   traceID,
				logger.ContextKeyClientIP:  clientIP(r),
				logger.ContextKeyUserAgent: r.UserAgent(),
				logger.ContextKeyMethod:    r.Method,
				logger.ContextKeyPath:      r.URL.Path,
			})
			ctx = context.WithValue(ctx, requestStateKey{}, st)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))
			took := time.Since(start)

			if st.userID != "" {
				ctx = context.WithValue(ctx, logger.ContextKeyUserID, st.userID)
			}
			l.LogAttrs(ctx, completionLevel(rec.status, took), "request_completed",
				slog.String("query", r.URL.RawQuery),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Duration("duration", took),
			)
		})
	}
}

func withValues(ctx context.Context, kv map[logger.ContextKey]string) context.Context {
	for k, v := range kv {
		ctx = context.WithValue(ctx, k, v)
	}
	return ctx
}

// completionLevel raises server errors to error, and client errors and slow
// requests to warn
func completionLevel(status int, took time.Duration) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest, took > slowRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// Recovery turns panics into 500 responses. http.ErrAbortHandler is re-raised
// so the server can drop the connection.
func Recovery(l *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				l.ErrorContext(r.Context(), "panic recovered",
					slog.Any("panic", p),
					slog.String("stack", string(debug.Stack())))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":      "Internal Server Error",
					"request_id": RequestIDFrom(r.Context()),
				})
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// statusRecorder captures the status and body size of a response
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (rec *statusRecorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.status, rec.wroteHeader = code, true
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.WriteHeader(http.StatusOK)
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

// clientIP prefers the first forwarded address over the socket peer
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
