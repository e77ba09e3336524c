package main

import (
	"fmt"

	"github.com/samcharles93/speculate/internal/model"
	"github.com/samcharles93/speculate/internal/tokenizer"
	_ "github.com/samcharles93/speculate/internal/toy"
)

// pair is a ready verifier/draft pair with its tokenizer.
type pair struct {
	verifier model.Model
	draft    model.Model
	tok      *tokenizer.Bytes
}

func buildPair(m *modelSettings) (*pair, error) {
	tcfg := tokenizer.DefaultConfig()
	if m.TokenizerConfig != "" {
		tc, err := tokenizer.LoadConfig(m.TokenizerConfig)
		if err != nil {
			return nil, err
		}
		tcfg = tc
	}
	tok, err := tokenizer.NewBytes(tcfg)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}

	vspec, dspec := m.Verifier, m.Draft
	if vspec.Vocab == 0 {
		vspec.Vocab = tok.VocabSize()
	}
	if dspec.Vocab == 0 {
		dspec.Vocab = vspec.Vocab
	}
	if vspec.Vocab < tok.VocabSize() {
		return nil, fmt.Errorf("verifier vocab %d is smaller than the tokenizer vocab %d", vspec.Vocab, tok.VocabSize())
	}

	verifier, err := model.New(vspec)
	if err != nil {
		return nil, fmt.Errorf("verifier: %w", err)
	}
	draft, err := model.New(dspec)
	if err != nil {
		return nil, fmt.Errorf("draft: %w", err)
	}
	return &pair{verifier: verifier, draft: draft, tok: tok}, nil
}
