package speculative

import (
	"time"

	"github.com/samcharles93/speculate/internal/device"
)

// Stats are informative counters for one session. The committed sequence
// is the only authoritative output.
type Stats struct {
	TokensGenerated int
	Iterations      int
	// Drafted counts draft tokens put up for verification.
	Drafted int
	// Accepted counts draft tokens the verifier agreed with.
	Accepted       int
	AcceptanceRate float64
	BonusTokens    int
	Rejections     int

	WindowIncreases int
	WindowDecreases int
	FinalK          int

	VerifierForwards int
	DraftForwards    int
	Barriers         int

	PrefillDuration time.Duration
	DraftDuration   time.Duration
	VerifyDuration  time.Duration
	ResyncDuration  time.Duration
	Duration        time.Duration
	TPS             float64
	// TokensPerIteration is the mean number of positions committed per
	// verifier pass.
	TokensPerIteration float64
}

func (s *Stats) finish(elapsed time.Duration) {
	s.Duration = elapsed
	if s.Drafted > 0 {
		s.AcceptanceRate = float64(s.Accepted) / float64(s.Drafted)
	}
	if s.Iterations > 0 {
		s.TokensPerIteration = float64(s.TokensGenerated) / float64(s.Iterations)
	}
	if elapsed.Seconds() > 0 {
		s.TPS = float64(s.TokensGenerated) / elapsed.Seconds()
	}
}

// IterationReport describes one Draft → Verify → Compare → Resync pass.
type IterationReport struct {
	Iteration int
	// K is the window used for this pass.
	K       int
	Outcome Outcome
	// Committed are the tokens appended to the sequence, after budget and
	// stop-token clipping.
	Committed []device.Token
	// VerifierPos and DraftPos are the cursors after resync. They are left
	// unchanged on the terminal pass.
	VerifierPos int
	DraftPos    int
	// WindowK is the window size chosen for the next pass.
	WindowK int
	Final   bool
}
