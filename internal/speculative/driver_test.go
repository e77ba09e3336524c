package speculative

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/samcharles93/speculate/internal/device"
	"github.com/samcharles93/speculate/internal/logger"
	"github.com/samcharles93/speculate/internal/model"
	"github.com/samcharles93/speculate/internal/tokenizer"
	"github.com/samcharles93/speculate/internal/toy"
)

const testVocab = 128

func quietContext() context.Context {
	return logger.WithContext(context.Background(), logger.Discard())
}

func newPair(t *testing.T, perturb float64, seed int64, shared bool) (*toy.HashLM, *toy.HashLM) {
	t.Helper()
	vdev := device.NewHost("verifier")
	ddev := device.NewHost("draft")
	if shared {
		ddev = vdev
	}
	verifier, err := toy.NewHashLM(toy.HashConfig{Name: "verifier", Vocab: testVocab, Order: 3, Seed: seed}, vdev)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	draft, err := toy.NewHashLM(toy.HashConfig{Name: "draft", Vocab: testVocab, Order: 3, Seed: seed, Perturb: perturb}, ddev)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	return verifier, draft
}

// greedy decodes n tokens from m alone, one token at a time.
func greedy(m *toy.HashLM, prompt []device.Token, n int) []device.Token {
	hist := slices.Clone(prompt)
	for range n {
		hist = append(hist, m.Next(hist))
	}
	return hist[len(prompt):]
}

func newDriver(t *testing.T, verifier, draft model.Model, cfg Config) *Driver {
	t.Helper()
	d, err := New(verifier, draft, newBytes(t), cfg)
	if err != nil {
		t.Fatalf("new driver: %v", err)
	}
	return d
}

var testPrompt = []device.Token{12, 7, 99, 3}

func TestGenerateMatchesVerifierGreedy(t *testing.T) {
	t.Parallel()
	for _, perturb := range []float64{0, 0.1, 0.4, 0.9} {
		for _, k := range []int{1, 3, 8} {
			for _, budget := range []int{1, 2, 7, 40} {
				name := fmt.Sprintf("perturb=%g/k=%d/budget=%d", perturb, k, budget)
				t.Run(name, func(t *testing.T) {
					t.Parallel()
					verifier, draft := newPair(t, perturb, 7, false)
					cfg := DefaultConfig()
					cfg.MaxTokens = budget
					cfg.InitialK = k
					cfg.AdjustEvery = 3
					res, err := newDriver(t, verifier, draft, cfg).GenerateTokens(quietContext(), testPrompt, nil)
					if err != nil {
						t.Fatalf("generate: %v", err)
					}
					want := greedy(verifier, testPrompt, budget)
					if !reflect.DeepEqual(res.Generated, want) {
						t.Fatalf("got %v\nwant %v", res.Generated, want)
					}
					if res.Stats.TokensGenerated != budget {
						t.Fatalf("generated %d, want %d", res.Stats.TokensGenerated, budget)
					}
				})
			}
		}
	}
}

func TestIterationInvariants(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0.3, 11, false)
	cfg := DefaultConfig()
	cfg.MaxTokens = 60
	cfg.InitialK = 4
	cfg.AdjustEvery = 2

	var reports []IterationReport
	cfg.OnIteration = func(r IterationReport) { reports = append(reports, r) }
	res, err := newDriver(t, verifier, draft, cfg).GenerateTokens(quietContext(), testPrompt, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	seqLen := len(testPrompt)
	prevVerifier := len(testPrompt) - 1
	total := 0
	for i, r := range reports {
		if r.K < cfg.MinK || r.K > cfg.MaxK || r.WindowK < cfg.MinK || r.WindowK > cfg.MaxK {
			t.Fatalf("iteration %d: window out of bounds: k=%d next=%d", i, r.K, r.WindowK)
		}
		if r.Outcome.Advanced() != r.Outcome.Accepted+1 {
			t.Fatalf("iteration %d: advanced %d for accepted %d", i, r.Outcome.Advanced(), r.Outcome.Accepted)
		}
		remaining := cfg.MaxTokens - total
		if r.K > remaining {
			t.Fatalf("iteration %d: step %d exceeds remaining %d", i, r.K, remaining)
		}
		seqLen += len(r.Committed)
		total += len(r.Committed)
		if r.Final {
			if i != len(reports)-1 {
				t.Fatalf("iteration %d marked final before the end", i)
			}
			continue
		}
		if len(r.Committed) != r.Outcome.Advanced() {
			t.Fatalf("iteration %d: committed %d, advanced %d", i, len(r.Committed), r.Outcome.Advanced())
		}
		if r.VerifierPos != prevVerifier+r.Outcome.Advanced() {
			t.Fatalf("iteration %d: verifier at %d, want %d", i, r.VerifierPos, prevVerifier+r.Outcome.Advanced())
		}
		if r.VerifierPos != seqLen-1 {
			t.Fatalf("iteration %d: verifier at %d, sequence %d", i, r.VerifierPos, seqLen)
		}
		if r.DraftPos != seqLen {
			t.Fatalf("iteration %d: draft at %d, sequence %d", i, r.DraftPos, seqLen)
		}
		prevVerifier = r.VerifierPos
	}
	if total != cfg.MaxTokens || len(res.Generated) != cfg.MaxTokens {
		t.Fatalf("committed %d, want %d", total, cfg.MaxTokens)
	}
}

func TestFinalStepClipsToRemainingBudget(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0, 3, false)
	cfg := DefaultConfig()
	cfg.MaxTokens = 5
	cfg.InitialK = 3

	var steps []int
	cfg.OnIteration = func(r IterationReport) { steps = append(steps, r.K) }
	res, err := newDriver(t, verifier, draft, cfg).GenerateTokens(quietContext(), testPrompt, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// The first window commits 3 drafts plus the bonus; one token remains.
	if !reflect.DeepEqual(steps, []int{3, 1}) {
		t.Fatalf("steps %v, want [3 1]", steps)
	}
	if len(res.Generated) != 5 {
		t.Fatalf("generated %d tokens", len(res.Generated))
	}
}

func TestIdenticalModelsAlwaysFullAccept(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0, 5, false)
	cfg := DefaultConfig()
	cfg.MaxTokens = 50
	cfg.AdjustEvery = 2
	res, err := newDriver(t, verifier, draft, cfg).GenerateTokens(quietContext(), testPrompt, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	st := res.Stats
	if st.Rejections != 0 || st.Accepted != st.Drafted || st.AcceptanceRate != 1 {
		t.Fatalf("unexpected rejections: %+v", st)
	}
	if st.BonusTokens != st.Iterations {
		t.Fatalf("bonus %d, iterations %d", st.BonusTokens, st.Iterations)
	}
	if st.WindowIncreases == 0 || st.WindowDecreases != 0 {
		t.Fatalf("window should only grow: %+v", st)
	}
}

func TestBarriersPerIteration(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0.3, 9, false)
	cfg := DefaultConfig()
	cfg.MaxTokens = 30
	res, err := newDriver(t, verifier, draft, cfg).GenerateTokens(quietContext(), testPrompt, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	st := res.Stats
	// One after prefill, two per iteration, none after the terminal resync.
	want := 1 + 2*st.Iterations - 1
	if st.Barriers != want {
		t.Fatalf("barriers %d, want %d", st.Barriers, want)
	}
	for _, dev := range []device.Device{verifier.Device(), draft.Device()} {
		if got := dev.(*device.Host).Syncs(); got != want {
			t.Fatalf("%s synced %d times, want %d", dev.Name(), got, want)
		}
	}
	if st.VerifierForwards != st.Iterations+1 {
		t.Fatalf("verifier forwards %d, iterations %d", st.VerifierForwards, st.Iterations)
	}
}

func TestNoSynchronisationInsideDraftLoop(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0.2, 13, true)
	dev := verifier.Device().(*device.Host)
	dev.Trace(true)

	cfg := DefaultConfig()
	cfg.MaxTokens = 40
	cfg.InitialK = 5
	var reports []IterationReport
	cfg.OnIteration = func(r IterationReport) { reports = append(reports, r) }
	if _, err := newDriver(t, verifier, draft, cfg).GenerateTokens(quietContext(), testPrompt, nil); err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Split launches into the segments between barriers.
	var segments [][]string
	var cur []string
	for _, e := range dev.Events() {
		switch e.Kind {
		case device.EventLaunch:
			cur = append(cur, e.Label)
		case device.EventSync:
			segments = append(segments, cur)
			cur = nil
		}
	}
	if len(cur) != 0 {
		t.Fatalf("work launched after the last barrier: %v", cur)
	}
	if !reflect.DeepEqual(segments[0], []string{"verifier.forward", "draft.forward"}) {
		t.Fatalf("prefill segment %v", segments[0])
	}
	segments = segments[1:]
	for _, r := range reports {
		want := slices.Repeat([]string{"draft.forward"}, r.K-1)
		want = append(want, "verifier.forward")
		if !slices.Equal(segments[0], want) {
			t.Fatalf("iteration %d window segment %v, want %v", r.Iteration, segments[0], want)
		}
		segments = segments[1:]
		if r.Final {
			break
		}
		if !slices.Equal(segments[0], []string{"draft.forward"}) {
			t.Fatalf("iteration %d resync segment %v", r.Iteration, segments[0])
		}
		segments = segments[1:]
	}
	if len(segments) != 0 {
		t.Fatalf("%d unexpected segments", len(segments))
	}
}

func TestStopTokenEndsSession(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0.25, 21, false)
	ref := greedy(verifier, testPrompt, 40)
	stop := ref[9]
	idx := slices.Index(ref, stop)

	cfg := DefaultConfig()
	cfg.MaxTokens = 40
	cfg.StopTokens = []device.Token{stop}
	res, err := newDriver(t, verifier, draft, cfg).GenerateTokens(quietContext(), testPrompt, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !reflect.DeepEqual(res.Generated, ref[:idx+1]) {
		t.Fatalf("got %v, want %v", res.Generated, ref[:idx+1])
	}
}

func TestGenerateStreamsText(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0.2, 17, false)
	cfg := DefaultConfig()
	cfg.MaxTokens = 32
	tcfg := tokenizer.DefaultConfig()
	tcfg.AddBOS = false
	tok, err := tokenizer.NewBytes(tcfg)
	if err != nil {
		t.Fatalf("tokenizer: %v", err)
	}
	d, err := New(verifier, draft, tok, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	var sb strings.Builder
	res, err := d.Generate(quietContext(), "hello", func(s string) { sb.WriteString(s) })
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if sb.String() != res.Text {
		t.Fatalf("streamed %q, result %q", sb.String(), res.Text)
	}
	if len(res.Tokens) != len(res.Generated)+len("hello") {
		t.Fatalf("tokens %d, generated %d", len(res.Tokens), len(res.Generated))
	}
}

func TestCancellationReturnsCommittedPrefix(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0.3, 4, false)
	ctx, cancel := context.WithCancel(quietContext())
	defer cancel()

	cfg := DefaultConfig()
	cfg.MaxTokens = 100
	committed := 0
	cfg.OnIteration = func(r IterationReport) {
		committed += len(r.Committed)
		if r.Iteration == 2 {
			cancel()
		}
	}
	res, err := newDriver(t, verifier, draft, cfg).GenerateTokens(ctx, testPrompt, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res == nil || len(res.Generated) != committed || res.Stats.Iterations != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	want := greedy(verifier, testPrompt, committed)
	if !reflect.DeepEqual(res.Generated, want) {
		t.Fatalf("prefix %v, want %v", res.Generated, want)
	}
}

// faulty wraps a model and fails or panics on a chosen forward call.
type faulty struct {
	model.Model
	failAt int
	panics bool
	calls  int
}

func (f *faulty) Forward(input device.Tokens, pos int) (device.Logits, error) {
	f.calls++
	if f.calls == f.failAt {
		if f.panics {
			panic("kernel fault")
		}
		return nil, errors.New("out of device memory")
	}
	return f.Model.Forward(input, pos)
}

func TestForwardFailureIsFatal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		panics bool
		msg    string
	}{
		{name: "error", msg: "out of device memory"},
		{name: "panic", panics: true, msg: "panic in Forward"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			verifier, draft := newPair(t, 0.3, 8, false)
			bad := &faulty{Model: verifier, failAt: 4, panics: tt.panics}
			cfg := DefaultConfig()
			cfg.MaxTokens = 50
			committed := 0
			cfg.OnIteration = func(r IterationReport) { committed += len(r.Committed) }

			res, err := newDriver(t, bad, draft, cfg).GenerateTokens(quietContext(), testPrompt, nil)
			if !errors.Is(err, ErrModelForward) {
				t.Fatalf("expected ErrModelForward, got %v", err)
			}
			var ferr *ForwardError
			if !errors.As(err, &ferr) || ferr.Phase != PhaseVerify || ferr.Model != "verifier" {
				t.Fatalf("unexpected error %v", err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Fatalf("error %q does not mention %q", err, tt.msg)
			}
			// Prefill plus two verifications succeeded.
			if res.Stats.Iterations != 2 || len(res.Generated) != committed {
				t.Fatalf("unexpected partial result: iterations=%d generated=%d committed=%d",
					res.Stats.Iterations, len(res.Generated), committed)
			}
		})
	}
}

func TestDraftFailureReportsPhase(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0.3, 8, false)
	// Prefill is call 1; with k=3 the first window drafts on calls 2 and 3.
	bad := &faulty{Model: draft, failAt: 3}
	cfg := DefaultConfig()
	cfg.MaxTokens = 20
	_, err := newDriver(t, verifier, bad, cfg).GenerateTokens(quietContext(), testPrompt, nil)
	var ferr *ForwardError
	if !errors.As(err, &ferr) || ferr.Phase != PhaseDraft {
		t.Fatalf("expected draft ForwardError, got %v", err)
	}
}

type brokenTokenizer struct{ tokenizer.Tokenizer }

func (brokenTokenizer) Encode(string) ([]device.Token, error) { panic("bad table") }

func TestTokenizationErrors(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0, 1, false)
	d, err := New(verifier, draft, brokenTokenizer{}, DefaultConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := d.Generate(quietContext(), "x", nil); !errors.Is(err, ErrTokenization) {
		t.Fatalf("expected ErrTokenization, got %v", err)
	}
	if _, err := d.GenerateTokens(quietContext(), nil, nil); !errors.Is(err, ErrTokenization) {
		t.Fatalf("expected ErrTokenization for empty prompt, got %v", err)
	}
}

func TestNewRejectsBadSetup(t *testing.T) {
	t.Parallel()
	verifier, draft := newPair(t, 0, 1, false)
	other, err := toy.NewHashLM(toy.HashConfig{Name: "wide", Vocab: testVocab * 2}, nil)
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	bad := DefaultConfig()
	bad.InitialK = 0
	tok := newBytes(t)

	tests := []struct {
		name  string
		build func() (*Driver, error)
		field string
	}{
		{name: "nil verifier", build: func() (*Driver, error) { return New(nil, draft, tok, DefaultConfig()) }, field: "verifier"},
		{name: "nil draft", build: func() (*Driver, error) { return New(verifier, nil, tok, DefaultConfig()) }, field: "draft"},
		{name: "nil tokenizer", build: func() (*Driver, error) { return New(verifier, draft, nil, DefaultConfig()) }, field: "tokenizer"},
		{name: "vocab mismatch", build: func() (*Driver, error) { return New(verifier, other, tok, DefaultConfig()) }, field: "draft"},
		{name: "bad window", build: func() (*Driver, error) { return New(verifier, draft, tok, bad) }, field: "initial_k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := tt.build()
			var cerr *ConfigError
			if !errors.As(err, &cerr) || cerr.Field != tt.field {
				t.Fatalf("expected config error on %q, got %v", tt.field, err)
			}
		})
	}
}
