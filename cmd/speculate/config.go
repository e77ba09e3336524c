package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/speculate/internal/model"
	"github.com/samcharles93/speculate/internal/speculative"
)

// Config represents the speculate configuration file
// (~/.config/speculate/config.yaml). Engine fields are pointers so we can
// distinguish "not set" from zero values.
type Config struct {
	Engine EngineConfig `yaml:"engine"`

	Verifier model.Spec `yaml:"verifier"`
	Draft    model.Spec `yaml:"draft"`

	TokenizerConfig string `yaml:"tokenizer_config"`

	// Output
	StreamMode string `yaml:"stream_mode"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

type EngineConfig struct {
	MaxTokens     *int     `yaml:"max_tokens"`
	InitialK      *int     `yaml:"initial_k"`
	MinK          *int     `yaml:"min_k"`
	MaxK          *int     `yaml:"max_k"`
	LowThreshold  *float64 `yaml:"low_threshold"`
	HighThreshold *float64 `yaml:"high_threshold"`
	AdjustEvery   *int     `yaml:"adjust_every"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "speculate", "config.yaml")
}

// LoadConfig reads the config file. A missing file yields a zero Config; a
// file that does not parse is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// engineSettings are the flag-bound window settings.
type engineSettings struct {
	MaxTokens     int
	InitialK      int
	MinK          int
	MaxK          int
	LowThreshold  float64
	HighThreshold float64
	AdjustEvery   int
}

func defaultEngineSettings() *engineSettings {
	d := speculative.DefaultConfig()
	return &engineSettings{
		MaxTokens:     d.MaxTokens,
		InitialK:      d.InitialK,
		MinK:          d.MinK,
		MaxK:          d.MaxK,
		LowThreshold:  d.LowThreshold,
		HighThreshold: d.HighThreshold,
		AdjustEvery:   d.AdjustEvery,
	}
}

// applyEngineConfig applies config file defaults to engine settings when the
// corresponding CLI flag was not explicitly set.
func applyEngineConfig(c *cli.Command, cfg EngineConfig, s *engineSettings) {
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		s.MaxTokens = *cfg.MaxTokens
	}
	if cfg.InitialK != nil && !c.IsSet("initial-k") {
		s.InitialK = *cfg.InitialK
	}
	if cfg.MinK != nil && !c.IsSet("min-k") {
		s.MinK = *cfg.MinK
	}
	if cfg.MaxK != nil && !c.IsSet("max-k") {
		s.MaxK = *cfg.MaxK
	}
	if cfg.LowThreshold != nil && !c.IsSet("low-threshold") {
		s.LowThreshold = *cfg.LowThreshold
	}
	if cfg.HighThreshold != nil && !c.IsSet("high-threshold") {
		s.HighThreshold = *cfg.HighThreshold
	}
	if cfg.AdjustEvery != nil && !c.IsSet("adjust-every") {
		s.AdjustEvery = *cfg.AdjustEvery
	}
}

func (s *engineSettings) config() speculative.Config {
	cfg := speculative.DefaultConfig()
	cfg.MaxTokens = s.MaxTokens
	cfg.InitialK = s.InitialK
	cfg.MinK = s.MinK
	cfg.MaxK = s.MaxK
	cfg.LowThreshold = s.LowThreshold
	cfg.HighThreshold = s.HighThreshold
	cfg.AdjustEvery = s.AdjustEvery
	return cfg
}

// modelSettings describe the verifier/draft pair and the tokenizer.
type modelSettings struct {
	Verifier        model.Spec
	Draft           model.Spec
	Seed            int64
	TokenizerConfig string
}

func defaultModelSettings() *modelSettings {
	return &modelSettings{
		Verifier: model.Spec{Name: "verifier", Arch: "hash", Order: 3},
		Draft:    model.Spec{Name: "draft", Arch: "hash", Order: 3, Perturb: 0.2},
	}
}

// applyModelConfig overlays the config file's model specs. Flags that were
// set explicitly win.
func applyModelConfig(c *cli.Command, cfg Config, m *modelSettings) {
	// The flags write into the specs through Destination, so their values
	// must be taken before the merge replaces them.
	verifierArch, draftArch, perturb := m.Verifier.Arch, m.Draft.Arch, m.Draft.Perturb

	m.Verifier = mergeSpec(m.Verifier, cfg.Verifier)
	m.Draft = mergeSpec(m.Draft, cfg.Draft)
	if c.IsSet("seed") {
		m.Verifier.Seed, m.Draft.Seed = m.Seed, m.Seed
	}
	if c.IsSet("verifier-arch") {
		m.Verifier.Arch = verifierArch
	}
	if c.IsSet("draft-arch") {
		m.Draft.Arch = draftArch
	}
	if c.IsSet("draft-perturb") {
		m.Draft.Perturb = perturb
	}
	if cfg.TokenizerConfig != "" && !c.IsSet("tokenizer-config") {
		m.TokenizerConfig = cfg.TokenizerConfig
	}
}

// mergeSpec fills base with every non-zero field of override.
func mergeSpec(base, override model.Spec) model.Spec {
	if override.Name != "" {
		base.Name = override.Name
	}
	if override.Arch != "" {
		base.Arch = override.Arch
	}
	if override.Vocab != 0 {
		base.Vocab = override.Vocab
	}
	if override.Hidden != 0 {
		base.Hidden = override.Hidden
	}
	if override.Order != 0 {
		base.Order = override.Order
	}
	if override.Seed != 0 {
		base.Seed = override.Seed
	}
	if override.Perturb != 0 {
		base.Perturb = override.Perturb
	}
	if override.MaxContext != 0 {
		base.MaxContext = override.MaxContext
	}
	if override.Device != "" {
		base.Device = override.Device
	}
	return base
}
