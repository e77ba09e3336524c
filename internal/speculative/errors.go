package speculative

import (
	"errors"
	"fmt"

	"github.com/samcharles93/speculate/internal/device"
	"github.com/samcharles93/speculate/internal/model"
)

var (
	// ErrModelForward marks device or kernel failures. Fatal for the session.
	ErrModelForward = errors.New("model forward failed")
	// ErrTokenization marks prompt encoding failures.
	ErrTokenization = errors.New("tokenization failed")
	// ErrConfig marks configurations rejected at construction.
	ErrConfig = errors.New("invalid config")
)

// Phase names the point in the loop where a forward was issued.
type Phase string

const (
	PhasePrefill Phase = "prefill"
	PhaseDraft   Phase = "draft"
	PhaseVerify  Phase = "verify"
	PhaseResync  Phase = "resync"
)

// ForwardError reports a failed forward pass or cache reset.
type ForwardError struct {
	Model string
	Phase Phase
	Pos   int
	Err   error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("%s forward (%s) at position %d: %v", e.Model, e.Phase, e.Pos, e.Err)
}

func (e *ForwardError) Unwrap() []error {
	return []error{ErrModelForward, e.Err}
}

// TokenizationError wraps a failure to encode the prompt.
type TokenizationError struct {
	Err error
}

func (e *TokenizationError) Error() string {
	return fmt.Sprintf("encode prompt: %v", e.Err)
}

func (e *TokenizationError) Unwrap() []error {
	return []error{ErrTokenization, e.Err}
}

// ConfigError names the offending setting.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrConfig
}

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// forward calls m.Forward, converting failures and panics into ForwardErrors.
func forward(m model.Model, input device.Tokens, pos int, phase Phase) (logits device.Logits, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ForwardError{Model: m.Name(), Phase: phase, Pos: pos, Err: fmt.Errorf("panic in Forward: %v", rec)}
		}
	}()
	logits, err = m.Forward(input, pos)
	if err != nil {
		return nil, &ForwardError{Model: m.Name(), Phase: phase, Pos: pos, Err: err}
	}
	return logits, nil
}

func clearCache(m model.Model) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ForwardError{Model: m.Name(), Phase: PhasePrefill, Err: fmt.Errorf("panic in ClearCache: %v", rec)}
		}
	}()
	if err := m.ClearCache(); err != nil {
		return &ForwardError{Model: m.Name(), Phase: PhasePrefill, Err: fmt.Errorf("clear cache: %w", err)}
	}
	return nil
}
