package device

import (
	"fmt"
	"math"
	"sync"
)

// EventKind classifies entries in a Host trace.
type EventKind int

const (
	EventLaunch EventKind = iota
	EventSync
	EventRead
)

func (k EventKind) String() string {
	switch k {
	case EventLaunch:
		return "launch"
	case EventSync:
		return "sync"
	case EventRead:
		return "read"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is one recorded device interaction.
type Event struct {
	Kind  EventKind
	Label string
}

// Host is a CPU device that keeps the asynchronous contract of an
// accelerator: every write is considered in flight until Synchronize, and
// host reads of in-flight buffers fail with ErrNotSynchronized.
type Host struct {
	name string

	mu       sync.Mutex
	gen      uint64
	syncs    int
	reads    int
	launches int
	trace    []Event
	tracing  bool
}

// NewHost creates a host device with the given name.
func NewHost(name string) *Host {
	if name == "" {
		name = "host"
	}
	return &Host{name: name}
}

func (h *Host) Name() string { return h.name }

// Trace enables or disables event recording and clears the current trace.
func (h *Host) Trace(on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tracing = on
	h.trace = h.trace[:0]
}

// Events returns a copy of the recorded trace.
func (h *Host) Events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.trace...)
}

// Syncs reports how many barriers have completed on this device.
func (h *Host) Syncs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.syncs
}

// Reads reports how many host readbacks have been served.
func (h *Host) Reads() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reads
}

// Launches reports how many kernels have been queued via Launch.
func (h *Host) Launches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.launches
}

// Launch records a queued kernel. Model implementations call it once per
// forward so traces show where work was issued relative to barriers.
func (h *Host) Launch(label string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.launches++
	h.record(EventLaunch, label)
}

func (h *Host) Synchronize() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen++
	h.syncs++
	h.record(EventSync, "")
	return nil
}

func (h *Host) Upload(tokens []Token) (Tokens, error) {
	data := append([]Token(nil), tokens...)
	t := h.newTokens(data)
	t.state.mark(h.generation())
	return t, nil
}

func (h *Host) Alloc(n int) (Tokens, error) {
	if n < 0 {
		return nil, fmt.Errorf("alloc: negative length %d", n)
	}
	t := h.newTokens(make([]Token, n))
	t.state.mark(h.generation())
	return t, nil
}

// NewLogits wraps kernel output as an in-flight logits matrix.
func (h *Host) NewLogits(rows, vocab int, data []float32) (Logits, error) {
	if rows < 0 || vocab <= 0 || len(data) != rows*vocab {
		return nil, fmt.Errorf("logits: shape [%d,%d] does not match %d values", rows, vocab, len(data))
	}
	l := &hostLogits{dev: h, rows: rows, vocab: vocab, data: data, state: &bufState{}}
	l.state.mark(h.generation())
	return l, nil
}

func (h *Host) newTokens(data []Token) *hostTokens {
	return &hostTokens{dev: h, data: data, off: 0, n: len(data), state: &bufState{}}
}

func (h *Host) generation() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen
}

func (h *Host) checkRead(st *bufState, label string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if st.written && st.gen == h.gen {
		return ErrNotSynchronized
	}
	h.reads++
	h.record(EventRead, label)
	return nil
}

func (h *Host) record(kind EventKind, label string) {
	if h.tracing {
		h.trace = append(h.trace, Event{Kind: kind, Label: label})
	}
}

type bufState struct {
	written bool
	gen     uint64
}

func (s *bufState) mark(gen uint64) {
	s.written = true
	s.gen = gen
}

type hostTokens struct {
	dev   *Host
	data  []Token
	off   int
	n     int
	state *bufState
}

func (t *hostTokens) Len() int { return t.n }

func (t *hostTokens) Slice(start, end int) Tokens {
	if start < 0 || end < start || end > t.n {
		panic(fmt.Sprintf("device: slice [%d:%d] out of range for length %d", start, end, t.n))
	}
	return &hostTokens{dev: t.dev, data: t.data, off: t.off + start, n: end - start, state: t.state}
}

func (t *hostTokens) CopyFrom(dst int, src Tokens) error {
	vals, err := Values(src)
	if err != nil {
		return err
	}
	if dst < 0 || dst+len(vals) > t.n {
		return fmt.Errorf("copy: %d values at %d overflow length %d", len(vals), dst, t.n)
	}
	copy(t.data[t.off+dst:], vals)
	t.state.mark(t.dev.generation())
	return nil
}

func (t *hostTokens) Host() ([]Token, error) {
	if err := t.dev.checkRead(t.state, "tokens"); err != nil {
		return nil, err
	}
	return append([]Token(nil), t.data[t.off:t.off+t.n]...), nil
}

type hostLogits struct {
	dev   *Host
	rows  int
	vocab int
	data  []float32
	state *bufState
}

func (l *hostLogits) Rows() int  { return l.rows }
func (l *hostLogits) Vocab() int { return l.vocab }

func (l *hostLogits) ArgMax() (Tokens, error) {
	out := make([]Token, l.rows)
	for r := range l.rows {
		out[r] = Token(argmax(l.data[r*l.vocab : (r+1)*l.vocab]))
	}
	t := l.dev.newTokens(out)
	t.state.mark(l.dev.generation())
	return t, nil
}

func (l *hostLogits) Row(i int) ([]float32, error) {
	if i < 0 || i >= l.rows {
		return nil, fmt.Errorf("logits: row %d out of range [0,%d)", i, l.rows)
	}
	if err := l.dev.checkRead(l.state, "logits"); err != nil {
		return nil, err
	}
	return append([]float32(nil), l.data[i*l.vocab:(i+1)*l.vocab]...), nil
}

// Values exposes the contents of a host buffer to kernels running in queue
// order. It is not a host readback and does not require a barrier.
func Values(t Tokens) ([]Token, error) {
	ht, ok := t.(*hostTokens)
	if !ok {
		return nil, fmt.Errorf("device: %T is not a host buffer", t)
	}
	return ht.data[ht.off : ht.off+ht.n], nil
}

// argmax returns the first index of the largest value. NaN never wins.
func argmax(v []float32) int {
	best := 0
	bestVal := float32(math.Inf(-1))
	for i, x := range v {
		if x > bestVal {
			best = i
			bestVal = x
		}
	}
	return best
}
