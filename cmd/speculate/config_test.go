package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/speculate/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing file is empty", func(t *testing.T) {
		cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg.Engine.MaxTokens != nil || cfg.Verifier.Arch != "" {
			t.Fatalf("expected zero config, got %+v", cfg)
		}
	})

	t.Run("parses engine and models", func(t *testing.T) {
		path := writeConfig(t, `
engine:
  max_tokens: 64
  initial_k: 5
  high_threshold: 0.7
verifier:
  arch: linear
  hidden: 32
draft:
  perturb: 0.4
server_address: 0.0.0.0:9000
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig returned error: %v", err)
		}
		if cfg.Engine.MaxTokens == nil || *cfg.Engine.MaxTokens != 64 {
			t.Fatalf("unexpected max_tokens %v", cfg.Engine.MaxTokens)
		}
		if cfg.Engine.MinK != nil {
			t.Fatalf("unset min_k decoded as %d", *cfg.Engine.MinK)
		}
		if cfg.Verifier.Arch != "linear" || cfg.Verifier.Hidden != 32 || cfg.Draft.Perturb != 0.4 {
			t.Fatalf("unexpected model specs %+v %+v", cfg.Verifier, cfg.Draft)
		}
		if cfg.ServerAddress != "0.0.0.0:9000" {
			t.Fatalf("unexpected address %q", cfg.ServerAddress)
		}
	})

	t.Run("invalid yaml is an error", func(t *testing.T) {
		path := writeConfig(t, "engine: [unterminated")
		if _, err := LoadConfig(path); err == nil {
			t.Fatal("expected parse error")
		}
	})
}

// runOverlay parses args against the engine and model flags and applies cfg
// the way the subcommands do.
func runOverlay(t *testing.T, cfg Config, args ...string) (*engineSettings, *modelSettings) {
	t.Helper()
	engine := defaultEngineSettings()
	models := defaultModelSettings()
	cmd := &cli.Command{
		Name:   "test",
		Flags:  append(engineFlags(engine), modelFlags(models)...),
		Writer: &bytes.Buffer{},
		Action: func(ctx context.Context, c *cli.Command) error {
			applyEngineConfig(c, cfg.Engine, engine)
			applyModelConfig(c, cfg, models)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), append([]string{"test"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
	return engine, models
}

func TestConfigOverlay(t *testing.T) {
	maxTokens, initialK, every := 64, 5, 4
	cfg := Config{
		Engine: EngineConfig{MaxTokens: &maxTokens, InitialK: &initialK, AdjustEvery: &every},
		Draft:  modelSpec("linear", 0.5),
	}

	t.Run("config fills unset flags", func(t *testing.T) {
		engine, models := runOverlay(t, cfg)
		if engine.MaxTokens != 64 || engine.InitialK != 5 || engine.AdjustEvery != 4 {
			t.Fatalf("unexpected engine settings %+v", engine)
		}
		if engine.MaxK != 8 {
			t.Fatalf("default max_k lost: %d", engine.MaxK)
		}
		if models.Draft.Arch != "linear" || models.Draft.Perturb != 0.5 || models.Draft.Name != "draft" {
			t.Fatalf("unexpected draft %+v", models.Draft)
		}
	})

	t.Run("explicit flags win", func(t *testing.T) {
		engine, models := runOverlay(t, cfg, "--max-tokens", "10", "--draft-arch", "hash", "--seed", "9")
		if engine.MaxTokens != 10 || engine.InitialK != 5 {
			t.Fatalf("unexpected engine settings %+v", engine)
		}
		if models.Draft.Arch != "hash" {
			t.Fatalf("draft arch %q, want hash", models.Draft.Arch)
		}
		if models.Verifier.Seed != 9 || models.Draft.Seed != 9 {
			t.Fatalf("seed not shared: %d/%d", models.Verifier.Seed, models.Draft.Seed)
		}
	})

	t.Run("model flags beat config specs", func(t *testing.T) {
		withVerifier := cfg
		withVerifier.Verifier = modelSpec("hash", 0)
		_, models := runOverlay(t, withVerifier, "--draft-arch", "hash", "--draft-perturb", "0.1", "--verifier-arch", "linear")
		if models.Draft.Arch != "hash" || models.Draft.Perturb != 0.1 {
			t.Fatalf("draft arch=%q perturb=%g, want hash/0.1", models.Draft.Arch, models.Draft.Perturb)
		}
		if models.Verifier.Arch != "linear" {
			t.Fatalf("verifier arch %q, want linear", models.Verifier.Arch)
		}
	})

	t.Run("built settings validate", func(t *testing.T) {
		engine, models := runOverlay(t, cfg)
		if err := engine.config().Validate(); err != nil {
			t.Fatalf("validate: %v", err)
		}
		p, err := buildPair(models)
		if err != nil {
			t.Fatalf("build pair: %v", err)
		}
		if p.verifier.VocabSize() != p.tok.VocabSize() || p.draft.VocabSize() != p.tok.VocabSize() {
			t.Fatalf("vocab mismatch: %d/%d/%d", p.verifier.VocabSize(), p.draft.VocabSize(), p.tok.VocabSize())
		}
	})
}

func TestParseStreamMode(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]StreamMode{"": StreamInstant, "Quiet": StreamQuiet, "typewriter": StreamTypewriter} {
		got, err := parseStreamMode(in)
		if err != nil || got != want {
			t.Fatalf("parseStreamMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := parseStreamMode("smooth"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestStreamWriterQuietHoldsOutput(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	w := NewStreamWriter(StreamQuiet, &buf)
	w.Write("hel")
	w.Write("lo")
	if buf.Len() != 0 {
		t.Fatalf("quiet mode wrote early: %q", buf.String())
	}
	if got := w.Flush(); got != "hello" || buf.String() != "hello" {
		t.Fatalf("flush %q, buffer %q", got, buf.String())
	}
}

func modelSpec(arch string, perturb float64) model.Spec {
	return model.Spec{Arch: arch, Perturb: perturb}
}
