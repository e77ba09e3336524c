// Package speculative implements greedy speculative decoding over a draft
// and a verifier model kept in lock-step on device-resident buffers.
package speculative

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samcharles93/speculate/internal/device"
	"github.com/samcharles93/speculate/internal/logger"
	"github.com/samcharles93/speculate/internal/model"
	"github.com/samcharles93/speculate/internal/tokenizer"
)

// StreamFunc receives newly printable text as tokens are committed.
type StreamFunc func(text string)

// Result is the outcome of a session. It is returned alongside any error
// with whatever prefix was committed before the failure.
type Result struct {
	// Tokens is the prompt followed by every committed token.
	Tokens []device.Token
	// Generated is the committed suffix after the prompt.
	Generated []device.Token
	Text      string
	Stats     Stats
}

// Driver runs greedy speculative decoding: a draft model proposes a window
// of tokens, the verifier checks them in one batched forward, and the
// agreeing prefix plus one verifier token is committed. The output equals
// greedy decoding with the verifier alone.
//
// A Driver owns both model caches. Sessions must not run concurrently.
type Driver struct {
	verifier model.Model
	draft    model.Model
	tok      tokenizer.Tokenizer
	cfg      Config
}

// New validates the configuration and binds the two models.
func New(verifier, draft model.Model, tok tokenizer.Tokenizer, cfg Config) (*Driver, error) {
	if verifier == nil {
		return nil, configErr("verifier", "model is required")
	}
	if draft == nil {
		return nil, configErr("draft", "model is required")
	}
	if tok == nil {
		return nil, configErr("tokenizer", "tokenizer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if verifier.VocabSize() != draft.VocabSize() {
		return nil, configErr("draft", "vocab size %d does not match verifier vocab %d", draft.VocabSize(), verifier.VocabSize())
	}
	cfg.StopTokens = slices.Clone(cfg.StopTokens)
	return &Driver{verifier: verifier, draft: draft, tok: tok, cfg: cfg}, nil
}

// Config returns the validated session settings.
func (d *Driver) Config() Config { return d.cfg }

// Generate encodes prompt once and decodes up to MaxTokens tokens.
func (d *Driver) Generate(ctx context.Context, prompt string, stream StreamFunc) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	ids, err := safeEncode(d.tok, prompt)
	if err != nil {
		return nil, &TokenizationError{Err: err}
	}
	return d.GenerateTokens(ctx, ids, stream)
}

// GenerateTokens decodes from an already encoded prompt.
func (d *Driver) GenerateTokens(ctx context.Context, prompt []device.Token, stream StreamFunc) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if len(prompt) == 0 {
		return nil, &TokenizationError{Err: errors.New("prompt encodes to no tokens")}
	}
	s := &session{
		Driver: d,
		log:    logger.FromContext(ctx).With("verifier", d.verifier.Name(), "draft", d.draft.Name()),
		seq:    NewSequence(prompt),
		window: NewWindow(d.cfg),
		stream: stream,
		ver:    model.Cursor{Model: d.verifier},
		drf:    model.Cursor{Model: d.draft},
	}
	start := time.Now()
	err := s.run(ctx)
	return s.result(time.Since(start)), err
}

// session is the state of one Generate call.
type session struct {
	*Driver
	log    logger.Logger
	seq    *Sequence
	window *Window
	stream StreamFunc
	stats  Stats

	ver  model.Cursor
	drf  model.Cursor
	next Next
}

func (s *session) run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.prefill(); err != nil {
		return err
	}
	for iter := 1; ; iter++ {
		if err := ctx.Err(); err != nil {
			s.log.Info("generation cancelled", "generated", len(s.seq.Generated()), "error", err)
			return err
		}
		done, err := s.iterate(iter)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// prefill absorbs the prompt into both caches. The verifier cursor stops at
// the last prompt token, which seeds the first window; the draft's arg-max
// after the prompt is the first draft token.
func (s *session) prefill() error {
	start := time.Now()
	defer func() { s.stats.PrefillDuration = time.Since(start) }()

	if err := errors.Join(clearCache(s.verifier), clearCache(s.draft)); err != nil {
		return err
	}
	prompt := s.seq.Tokens()
	n := len(prompt)

	vin, err := s.verifier.Device().Upload(prompt)
	if err != nil {
		return &ForwardError{Model: s.verifier.Name(), Phase: PhasePrefill, Err: fmt.Errorf("upload prompt: %w", err)}
	}
	if _, err := forward(s.verifier, vin, 0, PhasePrefill); err != nil {
		return err
	}
	s.stats.VerifierForwards++

	din, err := s.draft.Device().Upload(prompt)
	if err != nil {
		return &ForwardError{Model: s.draft.Name(), Phase: PhasePrefill, Err: fmt.Errorf("upload prompt: %w", err)}
	}
	logits, err := forward(s.draft, din, 0, PhasePrefill)
	if err != nil {
		return err
	}
	s.stats.DraftForwards++
	first, err := lastArgMax(logits)
	if err != nil {
		return &ForwardError{Model: s.draft.Name(), Phase: PhasePrefill, Err: err}
	}

	if err := s.barrier(PhasePrefill); err != nil {
		return err
	}
	s.ver.Position = n - 1
	s.drf.Position = n
	s.next = Next{Seed: vin.Slice(n-1, n), First: first}
	s.log.Debug("prefill complete", "prompt_tokens", n, "duration", time.Since(start))
	return nil
}

// iterate runs one window and reports whether the session is done.
func (s *session) iterate(iter int) (bool, error) {
	remaining := s.cfg.MaxTokens - len(s.seq.Generated())
	k := s.window.Step(remaining)

	t := time.Now()
	w, err := Propose(&s.drf, s.verifier.Device(), k, s.next.Seed, s.next.First)
	if err != nil {
		return false, err
	}
	s.stats.DraftForwards += k - 1
	s.stats.DraftDuration += time.Since(t)

	t = time.Now()
	pending, err := LaunchVerify(&s.ver, w)
	if err != nil {
		return false, err
	}
	s.stats.VerifierForwards++
	if err := s.barrier(PhaseVerify); err != nil {
		return false, err
	}
	res, err := pending.Collect()
	if err != nil {
		return false, &ForwardError{Model: s.verifier.Name(), Phase: PhaseVerify, Pos: s.ver.Position, Err: err}
	}
	s.stats.VerifyDuration += time.Since(t)

	out := Compare(res.Draft, res.Predictions, res.Bonus)
	committed := out.Committed(res.Draft)
	done := false
	if len(committed) >= remaining {
		// A full accept on the last window carries one token past the budget.
		committed = committed[:remaining]
		done = true
	}
	if i := slices.IndexFunc(committed, s.isStop); i >= 0 {
		committed = committed[:i+1]
		done = true
	}
	s.seq.Append(committed...)
	s.record(out, k)

	report := IterationReport{Iteration: iter, K: k, Outcome: out, Committed: committed, Final: done}
	if !done {
		t = time.Now()
		next, err := Resync(&s.ver, &s.drf, res, out)
		if err != nil {
			return false, err
		}
		s.stats.DraftForwards++
		if err := s.barrier(PhaseResync); err != nil {
			return false, err
		}
		s.next = next
		s.stats.ResyncDuration += time.Since(t)
	}
	report.VerifierPos, report.DraftPos = s.ver.Position, s.drf.Position
	report.WindowK = s.window.K()
	if s.cfg.OnIteration != nil {
		s.cfg.OnIteration(report)
	}
	s.emit(done)
	return done, nil
}

// record updates the counters and the window controller.
func (s *session) record(out Outcome, k int) {
	s.stats.Iterations++
	s.stats.Drafted += k
	s.stats.Accepted += out.Accepted
	if out.Kind == FullAccept {
		s.stats.BonusTokens++
	} else {
		s.stats.Rejections++
	}
	adj, changed := s.window.Observe(out.Accepted, k)
	if !changed {
		return
	}
	if adj.To > adj.From {
		s.stats.WindowIncreases++
	} else {
		s.stats.WindowDecreases++
	}
	s.log.Debug("window adjusted", "from", adj.From, "to", adj.To, "average", adj.Average)
}

func (s *session) isStop(id device.Token) bool {
	return slices.Contains(s.cfg.StopTokens, id)
}

func (s *session) barrier(phase Phase) error {
	s.stats.Barriers++
	if err := device.Barrier(s.verifier.Device(), s.draft.Device()); err != nil {
		return &ForwardError{Model: s.verifier.Name(), Phase: phase, Pos: s.ver.Position, Err: err}
	}
	return nil
}

func (s *session) emit(final bool) {
	if s.stream == nil {
		return
	}
	text, err := s.seq.Flush(s.tok, final)
	if err != nil {
		s.log.Warn("decode for stream failed", "error", err)
		return
	}
	if text != "" {
		s.stream(text)
	}
}

func (s *session) result(elapsed time.Duration) *Result {
	s.stats.TokensGenerated = len(s.seq.Generated())
	s.stats.FinalK = s.window.K()
	s.stats.finish(elapsed)

	res := &Result{
		Tokens:    slices.Clone(s.seq.Tokens()),
		Generated: slices.Clone(s.seq.Generated()),
		Stats:     s.stats,
	}
	if len(res.Generated) > 0 {
		text, err := s.tok.Decode(res.Generated, true)
		if err != nil {
			s.log.Warn("decode result failed", "error", err)
		}
		res.Text = text
	}
	s.log.Debug("generation finished",
		"tokens", s.stats.TokensGenerated,
		"iterations", s.stats.Iterations,
		"acceptance", s.stats.AcceptanceRate,
		"final_k", s.stats.FinalK,
		"duration", elapsed,
	)
	return res
}

func safeEncode(tok tokenizer.Tokenizer, text string) (ids []device.Token, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tokenizer panic: %v", rec)
		}
	}()
	return tok.Encode(text)
}
