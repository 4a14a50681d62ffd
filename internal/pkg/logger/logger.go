// internal/pkg/logger/logger.go
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ContextKey names a context value the logger copies onto records
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyUserID    ContextKey = "user_id"
	ContextKeyTraceID   ContextKey = "trace_id"
	ContextKeyClientIP  ContextKey = "client_ip"
	ContextKeyUserAgent ContextKey = "user_agent"
	ContextKeyMethod    ContextKey = "method"
	ContextKeyPath      ContextKey = "path"
	ContextKeyJobID     ContextKey = "job_id"
	ContextKeyTaskType  ContextKey = "task_type"
)

// loggedContextKeys is what ContextHandler copies when given no keys
var loggedContextKeys = []ContextKey{
	ContextKeyRequestID,
	ContextKeyUserID,
	ContextKeyTraceID,
	ContextKeyClientIP,
	ContextKeyUserAgent,
	ContextKeyMethod,
	ContextKeyPath,
	ContextKeyJobID,
	ContextKeyTaskType,
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string
	Format      string // json or text
	Output      string // stdout, stderr or file:<path>
	Writer      io.Writer
	AddSource   bool
	SampleRate  float64
	Service     string
	Version     string
	Environment string
	ELK         *ELKConfig
}

// Logger is a configured slog.Logger plus the remote sinks it owns
type Logger struct {
	*slog.Logger
	elk *ELKHandler
}

var (
	processMu     sync.Mutex
	processLogger *Logger
)

// Options selects the logger shape at process start
type Options struct {
	Level       string
	Format      string
	Service     string
	Version     string
	Environment string
	ELKURL      string
}

// SetupLogger builds the process logger and installs it as the slog
// default. Calling it again replaces the previous logger and flushes it.
func SetupLogger(opts Options) *slog.Logger {
	cfg := &LogConfig{
		Level:       opts.Level,
		Format:      opts.Format,
		Output:      "stdout",
		AddSource:   strings.EqualFold(opts.Level, "debug"),
		Service:     opts.Service,
		Version:     opts.Version,
		Environment: opts.Environment,
	}
	if opts.ELKURL != "" {
		cfg.ELK = &ELKConfig{
			URL:           opts.ELKURL,
			Index:         opts.Service,
			BatchSize:     100,
			FlushInterval: 5 * time.Second,
		}
	}

	l := NewLogger(cfg)

	processMu.Lock()
	prev := processLogger
	processLogger = l
	processMu.Unlock()
	if prev != nil {
		prev.Close()
	}

	slog.SetDefault(l.Logger)
	return l.Logger
}

// Shutdown flushes the process logger's remote sinks
func Shutdown() {
	processMu.Lock()
	l := processLogger
	processMu.Unlock()
	if l != nil {
		l.Close()
	}
}

// NewLogger builds the handler chain:
// format -> context -> sampling -> sanitization, fanned out to ELK when set.
func NewLogger(cfg *LogConfig) *Logger {
	if cfg == nil {
		cfg = &LogConfig{}
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && cfg.Format != "text" {
				a.Key = "severity"
			}
			return a
		},
	}

	w := cfg.Writer
	if w == nil {
		w = openOutput(cfg.Output)
	}

	var h slog.Handler
	if cfg.Format == "text" {
		h = NewPrettyTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	h = NewContextHandler(h)
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		h = NewSamplingHandler(h, cfg.SampleRate)
	}

	l := &Logger{}
	if cfg.ELK != nil {
		l.elk = NewELKHandler(*cfg.ELK, level)
		h = NewMultiHandler(h, NewContextHandler(l.elk))
	}
	h = NewSanitizationHandler(h)

	var attrs []slog.Attr
	if cfg.Service != "" {
		attrs = append(attrs, slog.String("service", cfg.Service))
	}
	if cfg.Version != "" {
		attrs = append(attrs, slog.String("version", cfg.Version))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, slog.String("env", cfg.Environment))
	}
	if len(attrs) > 0 {
		h = h.WithAttrs(attrs)
	}

	l.Logger = slog.New(h)
	return l
}

// Close flushes buffered remote output
func (l *Logger) Close() {
	if l.elk != nil {
		l.elk.Close()
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openOutput(output string) io.Writer {
	if path, ok := strings.CutPrefix(output, "file:"); ok {
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			return f
		}
	}
	if output == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}
