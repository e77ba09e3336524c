package speculative

import (
	"fmt"

	"github.com/samcharles93/speculate/internal/device"
	"github.com/samcharles93/speculate/internal/model"
)

// PendingVerification is a queued verifier pass. Its results can be read
// once the devices have passed a barrier.
type PendingVerification struct {
	window DraftWindow
	logits device.Logits
	argmax device.Tokens
}

// LaunchVerify issues the single verifier forward over [seed, d1 … dk] at
// the verifier cursor. Causal attention makes row i the verifier's
// prediction for what follows the first i+1 batch tokens, directly
// comparable to d(i+1); row k is the bonus distribution.
func LaunchVerify(cur *model.Cursor, w DraftWindow) (*PendingVerification, error) {
	logits, err := forward(cur.Model, w.Batch, cur.Position, PhaseVerify)
	if err != nil {
		return nil, err
	}
	if logits.Rows() != w.K+1 {
		return nil, &ForwardError{
			Model: cur.Model.Name(), Phase: PhaseVerify, Pos: cur.Position,
			Err: fmt.Errorf("expected %d logits rows, got %d", w.K+1, logits.Rows()),
		}
	}
	am, err := logits.ArgMax()
	if err != nil {
		return nil, &ForwardError{Model: cur.Model.Name(), Phase: PhaseVerify, Pos: cur.Position, Err: err}
	}
	return &PendingVerification{window: w, logits: logits, argmax: am}, nil
}

// VerifierResult holds the host copies needed for the acceptance decision.
type VerifierResult struct {
	// Draft is d1 … dk.
	Draft []device.Token
	// Predictions are the verifier's arg-max for rows 0 … k-1.
	Predictions []device.Token
	// Bonus is the arg-max of row k.
	Bonus device.Token

	k      int
	batch  device.Tokens
	logits device.Logits
	argmax device.Tokens
}

// Collect reads the comparison inputs back to the host. It must follow the
// barrier that closes the draft phase.
func (p *PendingVerification) Collect() (VerifierResult, error) {
	batch, err := p.window.Batch.Host()
	if err != nil {
		return VerifierResult{}, fmt.Errorf("read draft batch: %w", err)
	}
	preds, err := p.argmax.Host()
	if err != nil {
		return VerifierResult{}, fmt.Errorf("read verifier predictions: %w", err)
	}
	k := p.window.K
	return VerifierResult{
		Draft:       batch[1 : k+1],
		Predictions: preds[:k],
		Bonus:       preds[k],
		k:           k,
		batch:       p.window.Batch,
		logits:      p.logits,
		argmax:      p.argmax,
	}, nil
}

// BonusDistribution reads the raw verifier distribution at row k.
func (r VerifierResult) BonusDistribution() ([]float32, error) {
	return r.logits.Row(r.k)
}

// K is the window size that was verified.
func (r VerifierResult) K() int { return r.k }

// predicted is the device-resident verifier arg-max at row i.
func (r VerifierResult) predicted(i int) device.Tokens {
	return r.argmax.Slice(i, i+1)
}

// drafted is the device-resident draft token at batch slot i.
func (r VerifierResult) drafted(i int) device.Tokens {
	return r.batch.Slice(i, i+1)
}

// Verify runs a full verifier step: launch, barrier on both devices, collect.
func Verify(cur *model.Cursor, w DraftWindow, devs ...device.Device) (VerifierResult, error) {
	p, err := LaunchVerify(cur, w)
	if err != nil {
		return VerifierResult{}, err
	}
	if err := device.Barrier(append(devs, cur.Model.Device())...); err != nil {
		return VerifierResult{}, &ForwardError{Model: cur.Model.Name(), Phase: PhaseVerify, Pos: cur.Position, Err: err}
	}
	return p.Collect()
}
