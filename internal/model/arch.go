package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownArch is returned when a Spec names an unregistered architecture.
var ErrUnknownArch = errors.New("unknown architecture")

// Spec describes a model instance. It is decoded from the CLI config file.
type Spec struct {
	Name       string  `yaml:"name"`
	Arch       string  `yaml:"arch"`
	Vocab      int     `yaml:"vocab"`
	Hidden     int     `yaml:"hidden"`
	Order      int     `yaml:"order"`
	Seed       int64   `yaml:"seed"`
	Perturb    float64 `yaml:"perturb"`
	MaxContext int     `yaml:"max_context"`
	Device     string  `yaml:"device"`
}

// Constructor builds a Model for one architecture.
type Constructor func(spec Spec) (Model, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes an architecture available to New. Registering the same
// name twice panics.
func Register(arch string, ctor Constructor) {
	key := normalizeArch(arch)
	if key == "" || ctor == nil {
		panic("model: Register requires a name and constructor")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[key]; dup {
		panic(fmt.Sprintf("model: architecture %q registered twice", key))
	}
	registry[key] = ctor
}

// New resolves spec.Arch and builds the model.
func New(spec Spec) (Model, error) {
	key := normalizeArch(spec.Arch)
	registryMu.RLock()
	ctor, ok := registry[key]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownArch, spec.Arch, strings.Join(Architectures(), ", "))
	}
	m, err := ctor(spec)
	if err != nil {
		return nil, fmt.Errorf("build %s model: %w", key, err)
	}
	return m, nil
}

// Architectures lists registered architecture names in sorted order.
func Architectures() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func normalizeArch(arch string) string {
	return strings.ToLower(strings.TrimSpace(arch))
}
