package tokenizer

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// SpecialToken is an added token outside the byte range.
type SpecialToken struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
	// Stop marks tokens that end generation.
	Stop bool `json:"stop,omitempty"`
}

// Config describes a byte-level tokenizer. It mirrors the subset of
// tokenizer_config.json that the byte tokenizer needs.
type Config struct {
	AddBOS      bool           `json:"add_bos_token"`
	BOSTokenID  int            `json:"bos_token_id"`
	EOSTokenID  int            `json:"eos_token_id"`
	AddedTokens []SpecialToken `json:"added_tokens"`
}

// DefaultConfig returns <s>=256 and </s>=257 with BOS prepended.
func DefaultConfig() Config {
	return Config{
		AddBOS:     true,
		BOSTokenID: 256,
		EOSTokenID: 257,
		AddedTokens: []SpecialToken{
			{ID: 256, Content: "<s>"},
			{ID: 257, Content: "</s>", Stop: true},
		},
	}
}

// LoadConfig reads a tokenizer config JSON file.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(raw)
}

// ParseConfig decodes and validates a tokenizer config.
func ParseConfig(raw []byte) (Config, error) {
	cfg := Config{BOSTokenID: -1, EOSTokenID: -1}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse tokenizer config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	seen := make(map[int]struct{}, len(c.AddedTokens))
	for _, t := range c.AddedTokens {
		if t.ID < byteVocab {
			return fmt.Errorf("added token %q: id %d collides with byte range", t.Content, t.ID)
		}
		if strings.TrimSpace(t.Content) == "" {
			return fmt.Errorf("added token %d: empty content", t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("added token id %d declared twice", t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	if c.AddBOS {
		if _, ok := seen[c.BOSTokenID]; !ok {
			return fmt.Errorf("bos_token_id %d is not an added token", c.BOSTokenID)
		}
	}
	if c.EOSTokenID >= 0 {
		if _, ok := seen[c.EOSTokenID]; !ok {
			return fmt.Errorf("eos_token_id %d is not an added token", c.EOSTokenID)
		}
	}
	return nil
}
