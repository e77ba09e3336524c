package speculative

import (
	"fmt"

	"github.com/samcharles93/speculate/internal/device"
	"github.com/samcharles93/speculate/internal/model"
)

// Next is the device-resident input for the following window: the seed is
// the last committed token, first is the draft's prediction after it.
type Next struct {
	Seed  device.Tokens
	First device.Tokens
}

// Resync brings both caches back in line with the committed sequence after
// a decision that does not end the session.
//
// The verifier already absorbed [seed, d1 … dk] during verification, so its
// cursor only moves forward by the committed count; the final token becomes
// the next seed and is absorbed by the next verification.
//
// The draft never saw dk or the bonus on a full accept, so both go through
// one forward at the draft cursor. On a partial accept the replacement is
// forwarded at the slot right after the accepted prefix, which is derived
// from the verifier cursor; draft entries past it are superseded by that
// forward.
func Resync(verifier, draft *model.Cursor, res VerifierResult, out Outcome) (Next, error) {
	before := verifier.Position
	verifier.Position += out.Advanced()

	var (
		input device.Tokens
		pos   int
		seed  device.Tokens
	)
	switch out.Kind {
	case FullAccept:
		k := res.K()
		seed = res.predicted(k)
		pair, err := draft.Model.Device().Alloc(2)
		if err != nil {
			return Next{}, fmt.Errorf("resync: alloc: %w", err)
		}
		if err := pair.CopyFrom(0, res.drafted(k)); err != nil {
			return Next{}, fmt.Errorf("resync: write d%d: %w", k, err)
		}
		if err := pair.CopyFrom(1, seed); err != nil {
			return Next{}, fmt.Errorf("resync: write bonus: %w", err)
		}
		input, pos = pair, draft.Position
	case PartialAccept:
		seed = res.predicted(out.Accepted)
		// Batch slot 0 holds the seed at before, so draft i sits at before+i.
		// The replacement takes the rejected draft's slot, one past the last
		// accepted draft; without the +1 it would overwrite an accepted token.
		input, pos = seed, before+out.Accepted+1
	default:
		return Next{}, fmt.Errorf("resync: unknown outcome %v", out.Kind)
	}

	logits, err := forward(draft.Model, input, pos, PhaseResync)
	if err != nil {
		return Next{}, err
	}
	first, err := lastArgMax(logits)
	if err != nil {
		return Next{}, &ForwardError{Model: draft.Model.Name(), Phase: PhaseResync, Pos: pos, Err: err}
	}
	draft.Position = pos + input.Len()
	return Next{Seed: seed, First: first}, nil
}
