package tokenizer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/samcharles93/speculate/internal/device"
)

const byteVocab = 256

// Bytes is a byte-level tokenizer: ids below 256 are raw bytes, added
// tokens sit above them and are matched literally in the input text.
type Bytes struct {
	cfg     Config
	byID    map[device.Token]SpecialToken
	ordered []SpecialToken // longest content first
	vocab   int
}

// NewBytes builds a byte tokenizer from cfg.
func NewBytes(cfg Config) (*Bytes, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	b := &Bytes{
		cfg:   cfg,
		byID:  make(map[device.Token]SpecialToken, len(cfg.AddedTokens)),
		vocab: byteVocab,
	}
	for _, t := range cfg.AddedTokens {
		b.byID[device.Token(t.ID)] = t
		b.ordered = append(b.ordered, t)
		b.vocab = max(b.vocab, t.ID+1)
	}
	slices.SortStableFunc(b.ordered, func(x, y SpecialToken) int {
		return len(y.Content) - len(x.Content)
	})
	return b, nil
}

// VocabSize is one past the largest id the tokenizer can emit.
func (b *Bytes) VocabSize() int { return b.vocab }

func (b *Bytes) Encode(text string) ([]device.Token, error) {
	ids := make([]device.Token, 0, len(text)+1)
	if b.cfg.AddBOS {
		ids = append(ids, device.Token(b.cfg.BOSTokenID))
	}
	for i := 0; i < len(text); {
		if t, ok := b.matchSpecial(text[i:]); ok {
			ids = append(ids, device.Token(t.ID))
			i += len(t.Content)
			continue
		}
		ids = append(ids, device.Token(text[i]))
		i++
	}
	return ids, nil
}

func (b *Bytes) matchSpecial(s string) (SpecialToken, bool) {
	for _, t := range b.ordered {
		if strings.HasPrefix(s, t.Content) {
			return t, true
		}
	}
	return SpecialToken{}, false
}

// Decode renders ids as text. Invalid UTF-8, such as a multi-byte rune cut
// in half, decodes to U+FFFD.
func (b *Bytes) Decode(ids []device.Token, skipSpecial bool) (string, error) {
	buf := make([]byte, 0, len(ids))
	for _, id := range ids {
		if id < byteVocab {
			buf = append(buf, byte(id))
			continue
		}
		t, ok := b.byID[id]
		if !ok {
			return "", fmt.Errorf("decode: unknown token id %d", id)
		}
		if !skipSpecial {
			buf = append(buf, t.Content...)
		}
	}
	return strings.ToValidUTF8(string(buf), "\uFFFD"), nil
}

// StopTokens returns the EOS id followed by every added token marked stop.
func (b *Bytes) StopTokens() []device.Token {
	var out []device.Token
	if b.cfg.EOSTokenID >= 0 {
		out = append(out, device.Token(b.cfg.EOSTokenID))
	}
	for _, t := range b.cfg.AddedTokens {
		id := device.Token(t.ID)
		if t.Stop && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
