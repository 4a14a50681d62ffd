// internal/pkg/logger/logger_test.go
package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandler_AddsContextValues(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := context.WithValue(context.Background(), ContextKeyRequestID, "req-1")
	ctx = context.WithValue(ctx, ContextKeyMethod, "POST")
	ctx = context.WithValue(ctx, ContextKeyJobID, "job-9")
	ctx = context.WithValue(ctx, ContextKeyUserID, "")

	log.InfoContext(ctx, "hello")

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "req-1", out["request_id"])
	assert.Equal(t, "POST", out["method"])
	assert.Equal(t, "job-9", out["job_id"])
	assert.NotContains(t, out, "user_id")
}

func TestContextHandler_ExplicitKeys(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil), ContextKeyTaskType))

	ctx := context.WithValue(context.Background(), ContextKeyRequestID, "req-1")
	ctx = context.WithValue(ctx, ContextKeyTaskType, "report:export")
	log.InfoContext(ctx, "hello")

	assert.Contains(t, buf.String(), `"task_type":"report:export"`)
	assert.NotContains(t, buf.String(), "req-1")
}

func TestSanitizationHandler(t *testing.T) {
	tests := []struct {
		name     string
		log      func(*slog.Logger)
		hidden   string
		retained string
	}{
		{
			name:     "sensitive_key",
			log:      func(l *slog.Logger) { l.Info("login", slog.String("password", "hunter2"), slog.String("user", "bob")) },
			hidden:   "hunter2",
			retained: "bob",
		},
		{
			name:     "inline_secret",
			log:      func(l *slog.Logger) { l.Info("retrying with token=abc123 for catalog") },
			hidden:   "abc123",
			retained: "for catalog",
		},
		{
			name:     "bearer_in_attr",
			log:      func(l *slog.Logger) { l.Info("request", slog.String("header", "Bearer eyJhbGciOi.x.y")) },
			hidden:   "eyJhbGciOi",
			retained: "Bearer",
		},
		{
			name: "grouped_attr",
			log: func(l *slog.Logger) {
				l.Info("config", slog.Group("db", slog.String("host", "pg"), slog.String("secret", "s3cr3t")))
			},
			hidden:   "s3cr3t",
			retained: "pg",
		},
		{
			name:     "bound_attr",
			log:      func(l *slog.Logger) { l.With(slog.String("jwt_secret", "topsecret")).Info("boot") },
			hidden:   "topsecret",
			retained: "boot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(slog.New(NewSanitizationHandler(slog.NewJSONHandler(&buf, nil))))

			assert.NotContains(t, buf.String(), tt.hidden)
			assert.Contains(t, buf.String(), redacted)
			assert.Contains(t, buf.String(), tt.retained)
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LogConfig{
		Level:       "debug",
		Format:      "json",
		Writer:      &buf,
		Service:     "stockflow-api",
		Environment: "test",
	})
	defer l.Close()

	ctx := context.WithValue(context.Background(), ContextKeyRequestID, "req-7")
	l.DebugContext(ctx, "stock adjusted", slog.Int64("delta", -2), slog.String("api_key", "k"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "DEBUG", out["severity"])
	assert.Equal(t, "stockflow-api", out["service"])
	assert.Equal(t, "test", out["env"])
	assert.Equal(t, "req-7", out["request_id"])
	assert.Equal(t, float64(-2), out["delta"])
	assert.Equal(t, redacted, out["api_key"])
}

func TestNewLogger_TextFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LogConfig{Level: "warn", Format: "text", Writer: &buf})

	l.Info("quiet")
	l.With(slog.String("component", "ledger")).WithGroup("adj").Warn("loud", slog.Int("delta", 3))

	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "loud")
	assert.Contains(t, out, "component")
	assert.Contains(t, out, "adj.delta")
}

func TestELKHandler_FlushesOnClose(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewELKHandler(ELKConfig{
		URL:           srv.URL,
		Index:         "stockflow",
		BatchSize:     50,
		FlushInterval: time.Hour,
	}, slog.LevelInfo)

	log := slog.New(h).With(slog.String("component", "test"))
	log.Debug("dropped")
	log.Info("one")
	log.Error("two", slog.String("error", "boom"))

	h.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 1)

	lines := strings.Split(strings.TrimSpace(bodies[0]), "\n")
	// two documents, each preceded by an index action line
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"_index":"stockflow-`)

	var doc elkDocument
	require.NoError(t, json.Unmarshal([]byte(lines[3]), &doc))
	assert.Equal(t, "two", doc.Message)
	assert.Equal(t, "boom", doc.Error)
	assert.Equal(t, "test", doc.Fields["component"])
}
