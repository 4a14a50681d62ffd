package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammerola/stockflow/internal/handlers/middleware"
	"github.com/ammerola/stockflow/internal/pkg/logger"
	"github.com/ammerola/stockflow/test/helpers"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "ok")
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// jsonLog captures records as decoded JSON lines
type jsonLog struct{ buf bytes.Buffer }

func (j *jsonLog) logger() *slog.Logger {
	return slog.New(logger.NewContextHandler(slog.NewJSONHandler(&j.buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func (j *jsonLog) last(t *testing.T) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(j.buf.Bytes()), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
	return entry
}

func TestChain_FirstIsOutermost(t *testing.T) {
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	serve(middleware.Chain(okHandler, tag("request_id"), tag("logger"), tag("auth")), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"request_id", "logger", "auth"}, order)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := middleware.RequestID("X-Correlation-ID")(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = middleware.RequestIDFrom(r.Context())
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/stock", nil))
	generated := rec.Header().Get("X-Correlation-ID")
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, seen)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stock", nil)
	req.Header.Set("X-Correlation-ID", "upstream-7f3a")
	rec = serve(h, req)
	assert.Equal(t, "upstream-7f3a", rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "upstream-7f3a", seen)

	assert.Empty(t, middleware.RequestIDFrom(context.Background()))
}

func TestLogger_RecordsRequestAndUser(t *testing.T) {
	var out jsonLog
	auth := middleware.AuthConfig{Secret: []byte("secret"), Issuer: "stockflow"}
	h := middleware.Chain(okHandler,
		middleware.RequestID(""),
		middleware.Logger(out.logger()),
		middleware.Authenticate(auth, helpers.TestLogger()),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stock?warehouse_id=3", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "secret", "stockflow", "user-42", time.Now().Add(time.Hour)))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	entry := out.last(t)
	assert.Equal(t, "request_completed", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "user-42", entry["user_id"])
	assert.Equal(t, "/api/v1/stock", entry["path"])
	assert.Equal(t, "warehouse_id=3", entry["query"])
	assert.Equal(t, "203.0.113.9", entry["client_ip"])
	assert.EqualValues(t, 2, entry["bytes"])
	assert.Equal(t, rec.Header().Get("X-Request-ID"), entry["request_id"])
	assert.Equal(t, rec.Header().Get("X-Trace-ID"), entry["trace_id"])
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusCreated, "INFO"},
		{http.StatusConflict, "WARN"},
		{http.StatusBadGateway, "ERROR"},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var out jsonLog
			h := middleware.Logger(out.logger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				w.WriteHeader(http.StatusOK)
			}))

			rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/purchase-orders/9/receive", nil))
			assert.Equal(t, tt.status, rec.Code)

			entry := out.last(t)
			assert.Equal(t, tt.level, entry["level"])
			assert.EqualValues(t, tt.status, entry["status"])
		})
	}
}

func TestRecovery(t *testing.T) {
	var out jsonLog
	h := middleware.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("ledger exploded")
	}), middleware.RequestID(""), middleware.Recovery(out.logger()))

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/stock/adjust", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body["error"])
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body["request_id"])

	entry := out.last(t)
	assert.Equal(t, "panic recovered", entry["msg"])
	assert.Equal(t, "ledger exploded", entry["panic"])
}

func TestRecovery_ReraisesAbort(t *testing.T) {
	h := middleware.Recovery(helpers.TestLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/reports/turnover", nil))
	})
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := middleware.NewRateLimiter(ctx, 2, time.Minute).Middleware(okHandler)
	from := func(addr string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
		req.RemoteAddr = addr
		return req
	}

	for range 2 {
		assert.Equal(t, http.StatusOK, serve(h, from("198.51.100.4:40000")).Code)
	}

	// a new source port is the same client
	rec := serve(h, from("198.51.100.4:40001"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(h, from("198.51.100.5:40000")).Code)
}
