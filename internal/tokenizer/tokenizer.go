package tokenizer

import "github.com/samcharles93/speculate/internal/device"

// Tokenizer is the text boundary of the engine. It is used at session start
// and for incremental printing, never for acceptance decisions.
type Tokenizer interface {
	Encode(text string) ([]device.Token, error)
	Decode(ids []device.Token, skipSpecial bool) (string, error)
}
