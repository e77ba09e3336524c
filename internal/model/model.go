package model

import "github.com/samcharles93/speculate/internal/device"

// Model is the capability the decoding engine needs from a language model:
// a batched forward over device-resident tokens and a cache reset. Engine
// code depends only on this interface, never on the architecture behind it.
type Model interface {
	// Name identifies the model instance in logs and errors.
	Name() string
	// Device is where Forward queues its work.
	Device() device.Device
	// VocabSize is the width of every logits row.
	VocabSize() int
	// Forward absorbs input at positions [pos, pos+input.Len()) into the
	// cache and returns logits [input.Len(), vocab]. Row i predicts the token
	// that follows input[:i+1]. Cache entries at or beyond pos are superseded.
	Forward(input device.Tokens, pos int) (device.Logits, error)
	// ClearCache drops every absorbed position.
	ClearCache() error
}

// Cursor tracks how many positions a model's cache has absorbed. It only
// moves when the driver issues a forward over the tokens it represents.
type Cursor struct {
	Model    Model
	Position int
}
