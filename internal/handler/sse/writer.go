package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"folio/internal/domain/models/fanout"
)

// Writer serializes SSE frames onto one response. Keep-alive comments are
// written from a separate goroutine, so every write holds mu.
type Writer struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the SSE headers and returns a writer, or an error when the
// response cannot be flushed incrementally
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteRetry sends the reconnect delay hint
func (s *Writer) WriteRetry(d time.Duration) error {
	return s.write(fmt.Sprintf("retry: %d\n\n", d.Milliseconds()))
}

// WriteEvent sends one hub event. The frame id is "<topic>/<seq>" so a
// client can spot gaps per topic.
func (s *Writer) WriteEvent(evt fanout.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return s.write(fmt.Sprintf("id: %s/%d\nevent: %s\ndata: %s\n\n", evt.Topic, evt.Seq, evt.Type, data))
}

// WriteNamed sends a control frame such as "ready" or "missed"
func (s *Writer) WriteNamed(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return s.write(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}

// WriteKeepAlive writes an SSE comment line, used as the heartbeat
func (s *Writer) WriteKeepAlive() error {
	return s.write(": keepalive\n\n")
}

func (s *Writer) write(frame string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	s.flusher.Flush()
	return nil
}
