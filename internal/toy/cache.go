package toy

import (
	"fmt"

	"github.com/samcharles93/speculate/internal/device"
)

// cache is the positional token history behind both toy architectures. It
// stands in for a KV cache: a forward at pos supersedes everything at or
// beyond pos, and a forward past the absorbed length is a cursor bug.
type cache struct {
	tokens     []device.Token
	maxContext int
}

func (c *cache) absorb(pos int, input []device.Token, vocab int) error {
	if pos < 0 || pos > len(c.tokens) {
		return fmt.Errorf("forward at position %d but cache holds %d positions", pos, len(c.tokens))
	}
	if c.maxContext > 0 && pos+len(input) > c.maxContext {
		return fmt.Errorf("context length exceeded: %d > %d", pos+len(input), c.maxContext)
	}
	for _, id := range input {
		if int(id) >= vocab {
			return fmt.Errorf("token id out of range: %d (vocab %d)", id, vocab)
		}
	}
	c.tokens = append(c.tokens[:pos], input...)
	return nil
}

func (c *cache) reset() {
	c.tokens = c.tokens[:0]
}

// core carries what the architectures share: identity, device, cache and the
// batched forward loop. predict fills one logits row from the history that
// ends with the token being predicted from.
type core struct {
	name    string
	dev     *device.Host
	vocab   int
	cache   cache
	predict func(history []device.Token, row []float32)
}

func (c *core) Name() string          { return c.name }
func (c *core) Device() device.Device { return c.dev }
func (c *core) VocabSize() int        { return c.vocab }

func (c *core) Forward(input device.Tokens, pos int) (device.Logits, error) {
	if input == nil || input.Len() == 0 {
		return nil, fmt.Errorf("%s: empty forward input", c.name)
	}
	ids, err := device.Values(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	if err := c.cache.absorb(pos, ids, c.vocab); err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	c.dev.Launch(c.name + ".forward")

	rows := len(ids)
	out := make([]float32, rows*c.vocab)
	for i := range rows {
		c.predict(c.cache.tokens[:pos+i+1], out[i*c.vocab:(i+1)*c.vocab])
	}
	return c.dev.NewLogits(rows, c.vocab, out)
}

func (c *core) ClearCache() error {
	c.cache.reset()
	return nil
}

// History returns a copy of every absorbed position.
func (c *core) History() []device.Token {
	return append([]device.Token(nil), c.cache.tokens...)
}
