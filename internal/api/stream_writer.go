package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

// SSEStreamWriter emits generation.* server-sent events. Nothing is written,
// headers included, until Begin.
type SSEStreamWriter struct {
	w             http.ResponseWriter
	flusher       func()
	startingAfter int
	seq           int
	begun         bool
}

func NewSSEStreamWriter(c *echo.Context) (*SSEStreamWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, fmt.Errorf("streaming unsupported")
	}
	return &SSEStreamWriter{
		w:             res,
		flusher:       flusher.Flush,
		startingAfter: parseStartingAfter(c.QueryParam("starting_after")),
		seq:           1,
	}, nil
}

func (s *SSEStreamWriter) Begin(gen Generation) error {
	s.begun = true
	h := s.w.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	return s.emit(streamEvent{Type: "generation.created", Generation: &gen})
}

func (s *SSEStreamWriter) Started() bool {
	return s.begun
}

func (s *SSEStreamWriter) EmitDelta(delta string) error {
	return s.emit(streamEvent{Type: "generation.delta", Delta: delta})
}

func (s *SSEStreamWriter) Complete(gen Generation) error {
	return s.emit(streamEvent{Type: "generation.completed", Generation: &gen})
}

func (s *SSEStreamWriter) Failed(gen Generation) error {
	return s.emit(streamEvent{Type: "generation.failed", Generation: &gen})
}

func (s *SSEStreamWriter) emit(ev streamEvent) error {
	ev.SequenceNumber = s.seq
	s.seq++
	if s.startingAfter >= ev.SequenceNumber {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, b); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher()
	}
	return nil
}

// parseStartingAfter reads the replay cursor. Anything but a positive
// sequence number replays the whole stream.
func parseStartingAfter(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
