// Package device describes accelerator-resident buffers used by the
// decoding engine. Values stay on the device between synchronisation points;
// the host only reads them after an explicit barrier.
package device

import (
	"errors"
	"fmt"
)

// Token is an opaque vocabulary id. The engine never interprets it.
type Token = uint32

// ErrNotSynchronized is returned when the host reads a buffer that was
// written after the owning device's last barrier.
var ErrNotSynchronized = errors.New("device: buffer read before synchronize")

// Tokens is a device-resident, one-dimensional token buffer.
type Tokens interface {
	Len() int
	// Slice returns a view over [start, end). No data moves.
	Slice(start, end int) Tokens
	// CopyFrom queues a device-side write of src into [dst, dst+src.Len()).
	CopyFrom(dst int, src Tokens) error
	// Host copies the buffer to host memory. Only valid after a barrier.
	Host() ([]Token, error)
}

// Logits is a device-resident [rows, vocab] matrix of scores.
type Logits interface {
	Rows() int
	Vocab() int
	// ArgMax queues a per-row greedy arg-max and returns the result buffer.
	ArgMax() (Tokens, error)
	// Row copies one row's distribution to host memory. Only valid after a barrier.
	Row(i int) ([]float32, error)
}

// Device queues work and exposes a single blocking barrier.
type Device interface {
	Name() string
	Upload(tokens []Token) (Tokens, error)
	Alloc(n int) (Tokens, error)
	Synchronize() error
}

// Barrier synchronises each distinct device once.
func Barrier(devs ...Device) error {
	seen := make([]Device, 0, len(devs))
	var errs []error
	for _, d := range devs {
		if d == nil {
			continue
		}
		dup := false
		for _, s := range seen {
			if s == d {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen = append(seen, d)
		if err := d.Synchronize(); err != nil {
			errs = append(errs, fmt.Errorf("synchronize %s: %w", d.Name(), err))
		}
	}
	return errors.Join(errs...)
}
