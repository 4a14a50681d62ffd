// internal/pkg/logger/handlers.go
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ContextHandler copies selected context values onto every record
type ContextHandler struct {
	next slog.Handler
	keys []ContextKey
}

// NewContextHandler wraps next. With no keys it copies the request and job
// keys set by the HTTP middleware and the worker.
func NewContextHandler(next slog.Handler, keys ...ContextKey) *ContextHandler {
	if len(keys) == 0 {
		keys = loggedContextKeys
	}
	return &ContextHandler{next: next, keys: keys}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	var added bool
	for _, key := range h.keys {
		v := ctx.Value(key)
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		if !added {
			r = r.Clone()
			added = true
		}
		r.AddAttrs(slog.Any(string(key), v))
	}
	return h.next.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{next: h.next.WithAttrs(attrs), keys: h.keys}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name), keys: h.keys}
}

// SamplingHandler keeps a fraction of debug and info records. Warnings and
// errors always pass.
type SamplingHandler struct {
	next slog.Handler
	rate float64
}

// NewSamplingHandler wraps next, keeping rate (0..1) of low level records
func NewSamplingHandler(next slog.Handler, rate float64) *SamplingHandler {
	return &SamplingHandler{next: next, rate: rate}
}

func (h *SamplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if !h.next.Enabled(ctx, level) {
		return false
	}
	return level >= slog.LevelWarn || rand.Float64() < h.rate
}

func (h *SamplingHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.next.Handle(ctx, r)
}

func (h *SamplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SamplingHandler{next: h.next.WithAttrs(attrs), rate: h.rate}
}

func (h *SamplingHandler) WithGroup(name string) slog.Handler {
	return &SamplingHandler{next: h.next.WithGroup(name), rate: h.rate}
}

const redacted = "***REDACTED***"

var (
	// attribute keys containing any of these are masked whole
	sensitiveKeys = []string{"password", "secret", "token", "authorization", "jwt", "api_key", "apikey", "credential"}

	// key=value secrets and bearer credentials embedded in free text
	inlineSecret = regexp.MustCompile(`(?i)\b(password|pwd|secret|token|api[-_]?key)(\s*[:=]\s*)["']?[^"'\s,]+`)
	bearerSecret = regexp.MustCompile(`(?i)\b(bearer)(\s+)[A-Za-z0-9._~+/=-]+`)
)

// SanitizationHandler masks secrets in messages and attributes
type SanitizationHandler struct {
	next slog.Handler
}

// NewSanitizationHandler wraps next
func NewSanitizationHandler(next slog.Handler) *SanitizationHandler {
	return &SanitizationHandler{next: next}
}

func (h *SanitizationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *SanitizationHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, maskInline(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(sanitize(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *SanitizationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = sanitize(a)
	}
	return &SanitizationHandler{next: h.next.WithAttrs(clean)}
}

func (h *SanitizationHandler) WithGroup(name string) slog.Handler {
	return &SanitizationHandler{next: h.next.WithGroup(name)}
}

func sanitize(a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, maskInline(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = sanitize(g)
		}
		return slog.Group(a.Key, clean...)
	}
	return a
}

func maskInline(s string) string {
	s = inlineSecret.ReplaceAllString(s, "${1}${2}"+redacted)
	return bearerSecret.ReplaceAllString(s, "${1}${2}"+redacted)
}

// MultiHandler fans records out to several handlers
type MultiHandler struct {
	handlers []slog.Handler
}

// NewMultiHandler creates a fan-out handler
func NewMultiHandler(handlers ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (h *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, next := range h.handlers {
		if next.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, next := range h.handlers {
		if !next.Enabled(ctx, r.Level) {
			continue
		}
		if err := next.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h *MultiHandler) WithGroup(name string) slog.Handler {
	return h.derive(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h *MultiHandler) derive(fn func(slog.Handler) slog.Handler) *MultiHandler {
	derived := make([]slog.Handler, len(h.handlers))
	for i, next := range h.handlers {
		derived[i] = fn(next)
	}
	return &MultiHandler{handlers: derived}
}

// PrettyTextHandler writes colored single-line records for local development
type PrettyTextHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	prefix string
	attrs  []slog.Attr
}

// NewPrettyTextHandler creates a text handler writing to w
func NewPrettyTextHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyTextHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &PrettyTextHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *PrettyTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyTextHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	color := levelColor(r.Level)
	fmt.Fprintf(&b, "%s%s %-5s\033[0m %s", color, r.Time.Format(time.DateTime+".000"), r.Level.String(), r.Message)

	write := func(key string, v slog.Value) {
		fmt.Fprintf(&b, " \033[36m%s\033[0m=%v", key, v)
	}
	for _, a := range h.attrs {
		write(a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		write(h.prefix+a.Key, a.Value)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		c.attrs = append(c.attrs, slog.Attr{Key: h.prefix + a.Key, Value: a.Value})
	}
	return &c
}

func (h *PrettyTextHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[34m"
	default:
		return "\033[37m"
	}
}
