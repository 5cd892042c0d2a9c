package space

import (
	"context"

	"github.com/veilspace/kernel/kernel/veil"
)

// ephemeralMarkKey is the internal facet attribute used to record the
// outer frame sequence an ephemeral facet was first seen by the
// cleanup transform, so it survives exactly one Phase 3 visibility
// window before removal.
const ephemeralMarkKey = "_ephemeralMarkedFrame"

// EphemeralCleanupTransform is the built-in C10 processor: it runs
// last in Phase 2 and removes every ephemeral facet that has already
// survived one full frame (marked during an earlier frame, not this
// one). Marking (rather than removing on first sight) guarantees the
// facet reaches this frame's own Phase 3 before it is ever a removal
// candidate.
type EphemeralCleanupTransform struct {
	currentFrameSeq uint64
}

func NewEphemeralCleanupTransform() *EphemeralCleanupTransform {
	return &EphemeralCleanupTransform{}
}

// SetFrameSeq is called once per outer frame, before Phase 2 runs, so
// the transform can distinguish "marked this frame" from "marked in an
// earlier frame" without depending on wall-clock time.
func (t *EphemeralCleanupTransform) SetFrameSeq(seq uint64) {
	t.currentFrameSeq = seq
}

func (t *EphemeralCleanupTransform) Process(ctx context.Context, state *veil.ReadonlyState) ([]veil.Delta, error) {
	var deltas []veil.Delta
	for _, f := range state.AllFacets() {
		if !f.Ephemeral {
			continue
		}
		markedFrame, hasMark := ephemeralMarkedFrame(f)
		switch {
		case !hasMark:
			deltas = append(deltas, veil.RewriteFacet(f.ID, map[string]any{
				"attributes": map[string]any{ephemeralMarkKey: t.currentFrameSeq},
			}))
		case markedFrame < t.currentFrameSeq:
			deltas = append(deltas, veil.RemoveFacet(f.ID))
		}
	}
	return deltas, nil
}

func ephemeralMarkedFrame(f *veil.Facet) (uint64, bool) {
	if f.Attributes == nil {
		return 0, false
	}
	raw, ok := f.Attributes[ephemeralMarkKey]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case uint64:
		return v, true
	case int:
		return uint64(v), true
	case float64:
		return uint64(v), true
	default:
		return 0, false
	}
}
