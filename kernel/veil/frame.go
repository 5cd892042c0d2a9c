package veil

import "github.com/veilspace/kernel/kernel/event"

// Stream is a named conversational/context channel that facets and
// frames may be scoped to.
type Stream struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Agent is a named processor of rendered context.
type Agent struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// ElementOp records a single element-tree or component-level change for
// the transition log of a frame.
type ElementOp struct {
	Kind      string `json:"kind"` // "mount" | "unmount" | "component-add" | "component-remove"
	ElementID string `json:"elementId"`
	ParentID  string `json:"parentId,omitempty"`
	Component string `json:"component,omitempty"`
}

// Transition is the optional structured record of element-tree and
// component-level changes that happened in the same sequence as a frame.
type Transition struct {
	Ops []ElementOp `json:"ops,omitempty"`
}

// Frame is the canonical unit of change (§3).
type Frame struct {
	Sequence uint64 `json:"sequence"`
	// Timestamp is an ISO-8601 string, assigned at frame setup.
	Timestamp string `json:"timestamp"`
	// UUID is a deterministic hash of Sequence, used for external identity.
	UUID string `json:"uuid,omitempty"`

	Events []*event.Event `json:"events"`
	Deltas []Delta        `json:"deltas"`

	Transition   *Transition `json:"transition,omitempty"`
	ActiveStream *Stream     `json:"activeStream,omitempty"`
}
