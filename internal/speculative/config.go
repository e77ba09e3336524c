package speculative

import "github.com/samcharles93/speculate/internal/device"

// Config controls one speculative session.
type Config struct {
	// MaxTokens is the number of tokens to commit after the prompt.
	MaxTokens int
	// InitialK is the first speculative window size.
	InitialK int
	MinK     int
	MaxK     int
	// LowThreshold and HighThreshold bound the rolling acceptance ratio
	// that shrinks or grows the window.
	LowThreshold  float64
	HighThreshold float64
	// AdjustEvery is the number of iterations averaged per adjustment.
	AdjustEvery int
	// StopTokens end the session as soon as one is committed.
	StopTokens []device.Token
	// OnIteration, when set, receives a report after every decision.
	OnIteration func(IterationReport)
}

// DefaultConfig returns the window settings the engine was tuned with.
func DefaultConfig() Config {
	return Config{
		MaxTokens:     256,
		InitialK:      3,
		MinK:          1,
		MaxK:          8,
		LowThreshold:  0.4,
		HighThreshold: 0.6,
		AdjustEvery:   12,
	}
}

// Validate rejects settings the window controller cannot honour.
func (c Config) Validate() error {
	switch {
	case c.MaxTokens < 1:
		return configErr("max_tokens", "must be at least 1, got %d", c.MaxTokens)
	case c.MinK < 1:
		return configErr("min_k", "must be at least 1, got %d", c.MinK)
	case c.MinK > c.MaxK:
		return configErr("min_k", "%d exceeds max_k %d", c.MinK, c.MaxK)
	case c.InitialK < c.MinK || c.InitialK > c.MaxK:
		return configErr("initial_k", "%d outside [%d, %d]", c.InitialK, c.MinK, c.MaxK)
	case c.LowThreshold < 0 || c.HighThreshold > 1:
		return configErr("thresholds", "must lie in [0, 1], got %g/%g", c.LowThreshold, c.HighThreshold)
	case c.LowThreshold > c.HighThreshold:
		return configErr("thresholds", "low %g exceeds high %g", c.LowThreshold, c.HighThreshold)
	case c.AdjustEvery < 1:
		return configErr("adjust_every", "must be at least 1, got %d", c.AdjustEvery)
	}
	return nil
}
