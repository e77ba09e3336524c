package toy

import (
	"fmt"
	"math/rand"

	"github.com/samcharles93/speculate/internal/device"
)

// LinearConfig configures a LinearLM.
type LinearConfig struct {
	Name       string
	Vocab      int
	Hidden     int
	Order      int
	Seed       int64
	MaxContext int
}

// positionPeriod is the number of distinct learned position vectors. Positions
// wrap around it.
const positionPeriod = 16

// LinearLM is a minimal embedding + projection language model. The hidden
// state is the decayed sum of the embeddings of the last Order tokens plus a
// position vector, projected back to vocab logits by W plus a bias.
type LinearLM struct {
	core
	cfg  LinearConfig
	emb  []float32 // [Vocab x Hidden]
	w    []float32 // [Hidden x Vocab]
	pos  []float32 // [positionPeriod x Hidden]
	bias []float32 // [Vocab]
	h    []float32 // scratch [Hidden]
}

// NewLinearLM constructs a model whose weights are derived from cfg.Seed.
func NewLinearLM(cfg LinearConfig, dev *device.Host) (*LinearLM, error) {
	if cfg.Vocab < 2 {
		return nil, fmt.Errorf("linear: vocab must be at least 2, got %d", cfg.Vocab)
	}
	if cfg.Hidden <= 0 {
		cfg.Hidden = 16
	}
	if cfg.Order <= 0 {
		cfg.Order = 1
	}
	if cfg.Name == "" {
		cfg.Name = "linear"
	}
	if dev == nil {
		dev = device.NewHost(cfg.Name)
	}
	m := &LinearLM{
		cfg:  cfg,
		emb:  make([]float32, cfg.Vocab*cfg.Hidden),
		w:    make([]float32, cfg.Hidden*cfg.Vocab),
		pos:  make([]float32, positionPeriod*cfg.Hidden),
		bias: make([]float32, cfg.Vocab),
		h:    make([]float32, cfg.Hidden),
	}
	fillRand(m.emb, cfg.Seed+11)
	fillRand(m.w, cfg.Seed+23)
	fillRand(m.pos, cfg.Seed+37)
	fillRand(m.bias, cfg.Seed+41)
	m.core = core{
		name:  cfg.Name,
		dev:   dev,
		vocab: cfg.Vocab,
		cache: cache{maxContext: cfg.MaxContext},
	}
	m.predict = m.fill
	return m, nil
}

func (m *LinearLM) fill(history []device.Token, row []float32) {
	hidden := m.cfg.Hidden
	clear(m.h)
	scale := float32(1)
	for i := len(history) - 1; i >= 0 && i >= len(history)-m.cfg.Order; i-- {
		e := m.emb[int(history[i])*hidden : (int(history[i])+1)*hidden]
		for j := range hidden {
			m.h[j] += scale * e[j]
		}
		scale *= 0.5
	}
	if len(history) > 0 {
		p := (len(history) - 1) % positionPeriod
		for j, v := range m.pos[p*hidden : (p+1)*hidden] {
			m.h[j] += v
		}
	}
	for j := range m.cfg.Vocab {
		var sum float32
		for i := range hidden {
			sum += m.h[i] * m.w[i*m.cfg.Vocab+j]
		}
		row[j] = sum + m.bias[j]
	}
}

func fillRand(dst []float32, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	for i := range dst {
		dst[i] = (rng.Float32() - 0.5) * 0.02
	}
}
