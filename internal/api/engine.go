package api

import (
	"context"
	"errors"
	"sync"

	"github.com/samcharles93/speculate/internal/model"
	"github.com/samcharles93/speculate/internal/speculative"
	"github.com/samcharles93/speculate/internal/tokenizer"
)

// Options are the per-request overrides of the engine defaults. Zero values
// keep the default.
type Options struct {
	Prompt    string
	MaxTokens int
	InitialK  int
}

// Generator runs one speculative session.
type Generator interface {
	Generate(ctx context.Context, opts Options, stream speculative.StreamFunc) (*speculative.Result, error)
}

// Engine serialises sessions over one verifier/draft pair. The pair owns
// mutable caches, so a second request while one is running is rejected
// rather than queued.
type Engine struct {
	verifier model.Model
	draft    model.Model
	tok      tokenizer.Tokenizer
	defaults speculative.Config

	mu   sync.Mutex
	busy bool
}

// NewEngine checks the pair and defaults once so that per-request failures
// are limited to the overrides.
func NewEngine(verifier, draft model.Model, tok tokenizer.Tokenizer, defaults speculative.Config) (*Engine, error) {
	if _, err := speculative.New(verifier, draft, tok, defaults); err != nil {
		return nil, err
	}
	return &Engine{verifier: verifier, draft: draft, tok: tok, defaults: defaults}, nil
}

func (e *Engine) Generate(ctx context.Context, opts Options, stream speculative.StreamFunc) (*speculative.Result, error) {
	if !e.acquire() {
		return nil, ErrEngineBusy
	}
	defer e.release()

	cfg := e.defaults
	if opts.MaxTokens != 0 {
		cfg.MaxTokens = opts.MaxTokens
	}
	if opts.InitialK != 0 {
		cfg.InitialK = opts.InitialK
	}
	d, err := speculative.New(e.verifier, e.draft, e.tok, cfg)
	if err != nil {
		var cerr *speculative.ConfigError
		if errors.As(err, &cerr) {
			return nil, &RequestError{Param: cerr.Field, Reason: cerr.Reason}
		}
		return nil, err
	}
	return d.Generate(ctx, opts.Prompt, stream)
}

// Busy reports whether a session is running.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Models names the verifier and draft.
func (e *Engine) Models() (verifier, draft string) {
	return e.verifier.Name(), e.draft.Name()
}

func (e *Engine) acquire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy {
		return false
	}
	e.busy = true
	return true
}

func (e *Engine) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}
