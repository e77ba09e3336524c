package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

type StreamMode string

const (
	StreamInstant    StreamMode = "instant"
	StreamTypewriter StreamMode = "typewriter"
	StreamQuiet      StreamMode = "quiet"
)

func parseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", StreamInstant:
		return StreamInstant, nil
	case StreamTypewriter, StreamQuiet:
		return m, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (expected instant, typewriter, or quiet)", s)
	}
}

// StreamWriter prints committed text as the driver releases it.
type StreamWriter struct {
	mode   StreamMode
	buffer *bufio.Writer

	mu          sync.Mutex
	accumulator strings.Builder
}

func NewStreamWriter(mode StreamMode, w io.Writer) *StreamWriter {
	return &StreamWriter{
		mode:   mode,
		buffer: bufio.NewWriterSize(w, 4096),
	}
}

// Write handles one chunk of newly printable text.
func (w *StreamWriter) Write(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.accumulator.WriteString(text)
	switch w.mode {
	case StreamInstant:
		_, _ = w.buffer.WriteString(text)
		_ = w.buffer.Flush()
	case StreamTypewriter:
		for _, r := range text {
			_, _ = w.buffer.WriteRune(r)
			_ = w.buffer.Flush()
		}
	}
}

// Flush writes anything held back and returns the full text.
func (w *StreamWriter) Flush() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := w.accumulator.String()
	if w.mode == StreamQuiet {
		_, _ = w.buffer.WriteString(result)
	}
	_ = w.buffer.Flush()
	return result
}
