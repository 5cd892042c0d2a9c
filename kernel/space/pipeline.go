package space

import "github.com/veilspace/kernel/kernel/retm"

// roles holds the role registries a Space exposes as an element.Pipeline.
// Kept separate from Space's frame-processing fields so the two
// concerns (role bookkeeping vs. frame algorithm) stay legible.
type roles struct {
	receptorsByTopic map[string][]retm.Receptor
	transforms       []retm.Transform
	effectors        []retm.Effector
	maintainers      []retm.Maintainer
	modulator        retm.Modulator
}

func newRoles() *roles {
	return &roles{receptorsByTopic: make(map[string][]retm.Receptor)}
}

// RegisterReceptor indexes a receptor under every topic it declares.
func (r *roles) RegisterReceptor(rec retm.Receptor) {
	for _, topic := range rec.Topics() {
		r.receptorsByTopic[topic] = append(r.receptorsByTopic[topic], rec)
	}
}

// RegisterTransform appends t to the Phase 2 list, in registration order.
func (r *roles) RegisterTransform(t retm.Transform) {
	r.transforms = append(r.transforms, t)
}

// RegisterEffector appends e to the Phase 3 list, in registration order.
func (r *roles) RegisterEffector(e retm.Effector) {
	r.effectors = append(r.effectors, e)
}

// RegisterMaintainer appends m to the Phase 4 list, in registration order.
func (r *roles) RegisterMaintainer(m retm.Maintainer) {
	r.maintainers = append(r.maintainers, m)
}

// RegisterModulator installs the (single) admission gate. A later
// registration replaces an earlier one; the spec reserves at most one
// in the auto-discovery path.
func (r *roles) RegisterModulator(m retm.Modulator) {
	r.modulator = m
}

func (r *roles) receptorsFor(topic string) []retm.Receptor {
	return r.receptorsByTopic[topic]
}
