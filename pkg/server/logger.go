package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// LogEntry is one log line recorded against an index job.
type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

type jobLog struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *jobLog) add(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.ID = len(l.entries) + 1
	l.entries = append(l.entries, e)
}

func (l *jobLog) snapshot() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// JobLogHandler is a slog.Handler that records every record in a job's log
// and forwards it to next.
type JobLogHandler struct {
	log   *jobLog
	next  slog.Handler
	attrs []slog.Attr
}

func NewJobLogHandler(log *jobLog, next slog.Handler) *JobLogHandler {
	return &JobLogHandler{log: log, next: next}
}

func (h *JobLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true // Log everything
}

func (h *JobLogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = attrValue(a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = attrValue(a.Value)
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}
	h.log.add(LogEntry{
		Timestamp: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Metadata:  metaJSON,
	})

	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

func (h *JobLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := &JobLogHandler{log: h.log, next: h.next}
	out.attrs = append(append(out.attrs, h.attrs...), attrs...)
	if h.next != nil {
		out.next = h.next.WithAttrs(attrs)
	}
	return out
}

// WithGroup only affects the forwarded output; recorded metadata stays flat.
func (h *JobLogHandler) WithGroup(name string) slog.Handler {
	out := &JobLogHandler{log: h.log, next: h.next, attrs: h.attrs}
	if h.next != nil {
		out.next = h.next.WithGroup(name)
	}
	return out
}

func attrValue(v slog.Value) any {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time()
	default:
		return v.Any()
	}
}
