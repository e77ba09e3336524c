package speculative

import (
	"fmt"

	"github.com/samcharles93/speculate/internal/device"
	"github.com/samcharles93/speculate/internal/model"
)

// DraftWindow is one iteration's candidates, written into the verification
// batch [seed, d1 … dk] on the device.
type DraftWindow struct {
	Batch device.Tokens
	K     int
	// Start is the draft position of d1.
	Start int
}

// Tokens is the device view over d1 … dk.
func (w DraftWindow) Tokens() device.Tokens {
	return w.Batch.Slice(1, w.K+1)
}

// Propose drafts k tokens with the draft model behind cur.
//
// first is d1: the draft's arg-max from the previous prefill or resync
// forward, so that forward doubles as the window's first step. Steps 2..k
// each forward the previous step's arg-max at the advancing draft cursor.
// Every intermediate token stays on the device and is written into the batch
// allocated on batchDev; nothing in the loop synchronises with the host.
func Propose(cur *model.Cursor, batchDev device.Device, k int, seed, first device.Tokens) (DraftWindow, error) {
	if k < 1 {
		return DraftWindow{}, fmt.Errorf("propose: window must be at least 1, got %d", k)
	}
	if batchDev == nil {
		batchDev = cur.Model.Device()
	}
	batch, err := batchDev.Alloc(k + 1)
	if err != nil {
		return DraftWindow{}, fmt.Errorf("propose: alloc batch: %w", err)
	}
	if err := batch.CopyFrom(0, seed); err != nil {
		return DraftWindow{}, fmt.Errorf("propose: write seed: %w", err)
	}
	if err := batch.CopyFrom(1, first); err != nil {
		return DraftWindow{}, fmt.Errorf("propose: write d1: %w", err)
	}

	w := DraftWindow{Batch: batch, K: k, Start: cur.Position}
	current := first
	for i := 1; i < k; i++ {
		logits, err := forward(cur.Model, current, cur.Position, PhaseDraft)
		if err != nil {
			return DraftWindow{}, err
		}
		next, err := lastArgMax(logits)
		if err != nil {
			return DraftWindow{}, &ForwardError{Model: cur.Model.Name(), Phase: PhaseDraft, Pos: cur.Position, Err: err}
		}
		if err := batch.CopyFrom(i+1, next); err != nil {
			return DraftWindow{}, fmt.Errorf("propose: write d%d: %w", i+1, err)
		}
		current = next
		cur.Position++
	}
	return w, nil
}

// lastArgMax queues the arg-max of every row and returns a view of the last.
func lastArgMax(logits device.Logits) (device.Tokens, error) {
	am, err := logits.ArgMax()
	if err != nil {
		return nil, err
	}
	n := am.Len()
	if n == 0 {
		return nil, fmt.Errorf("empty logits")
	}
	return am.Slice(n-1, n), nil
}
