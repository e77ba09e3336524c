package toy

import (
	"github.com/samcharles93/speculate/internal/device"
	"github.com/samcharles93/speculate/internal/model"
)

func init() {
	model.Register("hash", func(spec model.Spec) (model.Model, error) {
		return NewHashLM(HashConfig{
			Name:       spec.Name,
			Vocab:      spec.Vocab,
			Order:      spec.Order,
			Seed:       spec.Seed,
			Perturb:    spec.Perturb,
			MaxContext: spec.MaxContext,
		}, hostFor(spec))
	})
	model.Register("linear", func(spec model.Spec) (model.Model, error) {
		return NewLinearLM(LinearConfig{
			Name:       spec.Name,
			Vocab:      spec.Vocab,
			Hidden:     spec.Hidden,
			Order:      spec.Order,
			Seed:       spec.Seed,
			MaxContext: spec.MaxContext,
		}, hostFor(spec))
	})
}

func hostFor(spec model.Spec) *device.Host {
	name := spec.Device
	if name == "" {
		name = spec.Name
	}
	return device.NewHost(name)
}
