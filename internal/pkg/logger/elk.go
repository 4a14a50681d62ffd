// internal/pkg/logger/elk.go
package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// ELKConfig configures shipping to Elasticsearch
type ELKConfig struct {
	URL           string
	Index         string
	BatchSize     int
	FlushInterval time.Duration
	Username      string
	Password      string
}

// ELKHandler buffers records and ships them to the Elasticsearch _bulk
// endpoint, one daily index per Index prefix. Handlers derived through
// WithAttrs and WithGroup share the buffer.
type ELKHandler struct {
	shipper *bulkShipper
	level   slog.Leveler
	group   string
	attrs   map[string]any
}

type elkDocument struct {
	Timestamp time.Time      `json:"@timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

type bulkShipper struct {
	cfg    ELKConfig
	client *http.Client

	mu   sync.Mutex
	docs []elkDocument

	stop      chan struct{}
	closeOnce sync.Once
}

// NewELKHandler starts a shipper flushing every FlushInterval or BatchSize records
func NewELKHandler(cfg ELKConfig, level slog.Leveler) *ELKHandler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	if cfg.Index == "" {
		cfg.Index = "logs"
	}

	s := &bulkShipper{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		stop:   make(chan struct{}),
	}
	go s.loop()

	return &ELKHandler{shipper: s, level: level}
}

func (h *ELKHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ELKHandler) Handle(_ context.Context, r slog.Record) error {
	doc := elkDocument{
		Timestamp: r.Time.UTC(),
		Level:     r.Level.String(),
		Message:   r.Message,
		Fields:    make(map[string]any, len(h.attrs)+r.NumAttrs()),
	}
	for k, v := range h.attrs {
		doc.Fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "error" {
			doc.Error = a.Value.String()
			return true
		}
		doc.Fields[h.group+a.Key] = a.Value.Resolve().Any()
		return true
	})

	if h.shipper.add(doc) {
		go h.shipper.flush()
	}
	return nil
}

func (h *ELKHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make(map[string]any, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		c.attrs[k] = v
	}
	for _, a := range attrs {
		c.attrs[h.group+a.Key] = a.Value.Resolve().Any()
	}
	return &c
}

func (h *ELKHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.group = h.group + name + "."
	return &c
}

// Close stops the periodic flush and ships what is buffered
func (h *ELKHandler) Close() {
	h.shipper.closeOnce.Do(func() {
		close(h.shipper.stop)
		h.shipper.flush()
	})
}

// add buffers doc and reports whether the batch is full
func (s *bulkShipper) add(doc elkDocument) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return len(s.docs) >= s.cfg.BatchSize
}

func (s *bulkShipper) loop() {
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.stop:
			return
		}
	}
}

func (s *bulkShipper) flush() {
	s.mu.Lock()
	docs := s.docs
	s.docs = nil
	s.mu.Unlock()

	if len(docs) == 0 {
		return
	}
	if err := s.send(docs); err != nil {
		// stderr is the only place left to report a failing log sink
		fmt.Fprintf(os.Stderr, "elk: dropped %d log records: %v\n", len(docs), err)
	}
}

func (s *bulkShipper) send(docs []elkDocument) error {
	action, err := json.Marshal(map[string]any{
		"index": map[string]string{"_index": s.cfg.Index + "-" + time.Now().UTC().Format("2006.01.02")},
	})
	if err != nil {
		return err
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, doc := range docs {
		body.Write(action)
		body.WriteByte('\n')
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(http.MethodPost, s.cfg.URL+"/_bulk", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if s.cfg.Username != "" {
		req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("bulk request returned %d", resp.StatusCode)
	}
	return nil
}
