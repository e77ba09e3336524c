package speculative

import (
	"fmt"

	"github.com/samcharles93/speculate/internal/device"
)

// OutcomeKind tags an acceptance decision.
type OutcomeKind int

const (
	// FullAccept commits every draft token plus the verifier's bonus token.
	FullAccept OutcomeKind = iota
	// PartialAccept commits the agreeing prefix plus the verifier's replacement.
	PartialAccept
)

func (k OutcomeKind) String() string {
	switch k {
	case FullAccept:
		return "full"
	case PartialAccept:
		return "partial"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the acceptance decision for one window.
type Outcome struct {
	Kind OutcomeKind
	// Accepted is the number of draft tokens committed.
	Accepted int
	// Bonus is set for FullAccept.
	Bonus device.Token
	// Replacement is set for PartialAccept.
	Replacement device.Token
}

// Advanced is the number of positions the decision commits, in both kinds.
func (o Outcome) Advanced() int { return o.Accepted + 1 }

// Final is the verifier-produced token that ends the commit.
func (o Outcome) Final() device.Token {
	if o.Kind == FullAccept {
		return o.Bonus
	}
	return o.Replacement
}

// Committed returns the tokens this decision commits: the accepted draft
// prefix followed by the bonus or replacement. Draft tokens after a
// mismatch are never included.
func (o Outcome) Committed(draft []device.Token) []device.Token {
	out := make([]device.Token, 0, o.Advanced())
	out = append(out, draft[:o.Accepted]...)
	return append(out, o.Final())
}

func (o Outcome) String() string {
	if o.Kind == FullAccept {
		return fmt.Sprintf("FullAccept(bonus=%d)", o.Bonus)
	}
	return fmt.Sprintf("PartialAccept(accepted=%d, replacement=%d)", o.Accepted, o.Replacement)
}

// Compare finds the first index where the draft and the verifier disagree.
// The verifier is authoritative from that index on.
func Compare(draft, predictions []device.Token, bonus device.Token) Outcome {
	if len(draft) != len(predictions) {
		panic(fmt.Sprintf("speculative: compare %d draft tokens with %d predictions", len(draft), len(predictions)))
	}
	for i := range draft {
		if draft[i] != predictions[i] {
			return Outcome{Kind: PartialAccept, Accepted: i, Replacement: predictions[i]}
		}
	}
	return Outcome{Kind: FullAccept, Accepted: len(draft), Bonus: bonus}
}
