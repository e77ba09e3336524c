package speculative

import (
	"strings"

	"github.com/samcharles93/speculate/internal/device"
)

// maxHeldTokens bounds how long an undecodable tail is held back before it
// is printed anyway.
const maxHeldTokens = 8

// Decoder is the part of a tokenizer the print watermark needs.
type Decoder interface {
	Decode(ids []device.Token, skipSpecial bool) (string, error)
}

// Sequence is the append-only token history of a session: the prompt
// followed by every committed token. It also tracks how far the history
// has been printed.
type Sequence struct {
	tokens    []device.Token
	promptLen int
	printed   int
}

// NewSequence starts a history from the encoded prompt. The prompt counts
// as already printed.
func NewSequence(prompt []device.Token) *Sequence {
	tokens := append([]device.Token(nil), prompt...)
	return &Sequence{tokens: tokens, promptLen: len(tokens), printed: len(tokens)}
}

// Append commits tokens. There is no way to retract them.
func (s *Sequence) Append(tokens ...device.Token) {
	s.tokens = append(s.tokens, tokens...)
}

// Tokens returns the whole history. Callers must not modify it.
func (s *Sequence) Tokens() []device.Token { return s.tokens }

func (s *Sequence) Len() int       { return len(s.tokens) }
func (s *Sequence) PromptLen() int { return s.promptLen }

// Generated returns the committed tokens after the prompt.
func (s *Sequence) Generated() []device.Token { return s.tokens[s.promptLen:] }

// Last returns the most recent token. The sequence is never empty once a
// session has started.
func (s *Sequence) Last() device.Token { return s.tokens[len(s.tokens)-1] }

// Flush decodes everything after the printed watermark and advances it when
// the text is complete. A tail that decodes to U+FFFD is a grapheme split
// across tokens and is held back until more tokens arrive, unless final is
// set or the tail has grown past maxHeldTokens.
func (s *Sequence) Flush(dec Decoder, final bool) (string, error) {
	pending := s.tokens[s.printed:]
	if len(pending) == 0 {
		return "", nil
	}
	text, err := dec.Decode(pending, true)
	if err != nil {
		return "", err
	}
	if text == "" && !final {
		return "", nil
	}
	if strings.HasSuffix(text, "\uFFFD") && !final && len(pending) < maxHeldTokens {
		return "", nil
	}
	s.printed = len(s.tokens)
	return text, nil
}
