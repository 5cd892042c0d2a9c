package veil

// DeltaOp names the four operations a VEILDelta may carry.
type DeltaOp string

const (
	OpAddFacet     DeltaOp = "addFacet"
	OpChangeState  DeltaOp = "changeState"
	OpRewriteFacet DeltaOp = "rewriteFacet"
	OpRemoveFacet  DeltaOp = "removeFacet"
)

// Delta is a single VEIL mutation operation, as produced by a Receptor or
// Transform and applied by the store.
type Delta struct {
	Op DeltaOp `json:"type"`

	// Facet carries the full facet for addFacet.
	Facet *Facet `json:"facet,omitempty"`

	// ID names the target facet for changeState/rewriteFacet/removeFacet.
	ID string `json:"id,omitempty"`

	// Partial carries the fields to merge in for changeState (merged
	// into State only) and rewriteFacet (merged into the whole facet).
	Partial map[string]any `json:"partial,omitempty"`
}

// AddFacet builds an addFacet delta.
func AddFacet(f *Facet) Delta {
	return Delta{Op: OpAddFacet, Facet: f}
}

// ChangeState builds a changeState delta that merges partial into the
// facet's State map.
func ChangeState(id string, partial map[string]any) Delta {
	return Delta{Op: OpChangeState, ID: id, Partial: partial}
}

// RewriteFacet builds a rewriteFacet delta that merges partial into the
// facet itself. The keys content, type, streamId, ephemeral, attributes
// and state update those fields; any other key (including the other
// aspect fields) is merged into State.
func RewriteFacet(id string, partial map[string]any) Delta {
	return Delta{Op: OpRewriteFacet, ID: id, Partial: partial}
}

// RemoveFacet builds a removeFacet delta.
func RemoveFacet(id string) Delta {
	return Delta{Op: OpRemoveFacet, ID: id}
}
