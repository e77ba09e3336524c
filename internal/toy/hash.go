package toy

import (
	"fmt"

	"github.com/samcharles93/speculate/internal/device"
)

// HashConfig configures a HashLM.
type HashConfig struct {
	Name       string
	Vocab      int
	Order      int
	Seed       int64
	MaxContext int
	// Perturb is the fraction of contexts whose greedy prediction is
	// replaced by a different token. Two models with the same seed and order
	// agree exactly on the remaining contexts.
	Perturb float64
}

// HashLM is an order-n hashed n-gram language model. Its next token is a
// pure function of the last Order absorbed tokens, which makes agreement
// between a draft and a verifier controllable through Perturb.
type HashLM struct {
	core
	cfg HashConfig
}

// NewHashLM builds a HashLM queuing work on dev.
func NewHashLM(cfg HashConfig, dev *device.Host) (*HashLM, error) {
	if cfg.Vocab < 2 {
		return nil, fmt.Errorf("hash: vocab must be at least 2, got %d", cfg.Vocab)
	}
	if cfg.Order <= 0 {
		cfg.Order = 2
	}
	if cfg.Perturb < 0 || cfg.Perturb >= 1 {
		return nil, fmt.Errorf("hash: perturb must be in [0,1), got %g", cfg.Perturb)
	}
	if cfg.Name == "" {
		cfg.Name = "hash"
	}
	if dev == nil {
		dev = device.NewHost(cfg.Name)
	}
	m := &HashLM{cfg: cfg}
	m.core = core{
		name:  cfg.Name,
		dev:   dev,
		vocab: cfg.Vocab,
		cache: cache{maxContext: cfg.MaxContext},
	}
	m.predict = m.fill
	return m, nil
}

// Next returns the greedy prediction for a history without touching the cache.
func (m *HashLM) Next(history []device.Token) device.Token {
	next, _ := m.choose(history)
	return next
}

func (m *HashLM) choose(history []device.Token) (device.Token, uint64) {
	start := max(len(history)-m.cfg.Order, 0)
	h := uint64(m.cfg.Seed) ^ 0x9e3779b97f4a7c15
	for _, id := range history[start:] {
		h = mix(h ^ uint64(id))
	}
	vocab := uint64(m.cfg.Vocab)
	next := h % vocab
	if m.cfg.Perturb > 0 {
		u := float64(mix(h^0xa0761d6478bd642f)>>11) / float64(1<<53)
		if u < m.cfg.Perturb {
			shift := 1 + mix(h^0xe7037ed1a0b428db)%(vocab-1)
			next = (next + shift) % vocab
		}
	}
	return device.Token(next), h
}

// fill writes a peaked distribution: the chosen token scores 1 and every
// other token gets a deterministic score below 0.5.
func (m *HashLM) fill(history []device.Token, row []float32) {
	next, h := m.choose(history)
	for i := range row {
		row[i] = float32(mix(h+uint64(i))>>40) / float32(1<<24) * 0.5
	}
	row[next] = 1
}

// mix is the splitmix64 finaliser.
func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
