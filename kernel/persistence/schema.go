// Package persistence implements the file-backed persistence adapter
// and Phase-4 maintainer (component C7): delta-per-frame logging,
// periodic snapshots, and deterministic restoration.
package persistence

import "github.com/veilspace/kernel/kernel/veil"

// SchemaVersion is bumped whenever the on-disk snapshot/delta shape changes.
const SchemaVersion = 1

// VEILStateSnapshot is the serialized form of the VEIL store (§4.7,
// §6): facets, streams, agents, frame history and the current sequence.
type VEILStateSnapshot struct {
	Facets          []*veil.Facet  `json:"facets"`
	Streams         []*veil.Stream `json:"streams"`
	Agents          []*veil.Agent  `json:"agents"`
	FrameHistory    []*veil.Frame  `json:"frameHistory"`
	CurrentSequence uint64         `json:"currentSequence"`
	Removals        []string       `json:"removals,omitempty"`
}

// ComponentSnapshot is the persisted record of one mounted component:
// its class name (used to look it up in the component registry on
// restore) and the persistent properties it declared.
type ComponentSnapshot struct {
	ClassName  string         `json:"className"`
	Config     map[string]any `json:"config,omitempty"`
	Persistent map[string]any `json:"persistent,omitempty"`
}

// ElementNodeSnapshot is one node of the persisted element tree.
type ElementNodeSnapshot struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	ParentID      string              `json:"parentId,omitempty"`
	Active        bool                `json:"active"`
	Subscriptions []string            `json:"subscriptions,omitempty"`
	Components    []ComponentSnapshot `json:"components,omitempty"`
}

// ElementTreeSnapshot is the full serialized element tree.
type ElementTreeSnapshot struct {
	Nodes []ElementNodeSnapshot `json:"nodes"`
}

// Snapshot is the on-disk snapshot file shape (§6).
type Snapshot struct {
	Version     int                 `json:"version"`
	Timestamp   string              `json:"timestamp"`
	Sequence    uint64              `json:"sequence"`
	LifecycleID string              `json:"lifecycleId"`
	SpaceID     string              `json:"spaceId"`
	VEILState   VEILStateSnapshot   `json:"veilState"`
	ElementTree ElementTreeSnapshot `json:"elementTree"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
}

// FrameDelta is the on-disk per-frame delta-log entry (§6).
type FrameDelta struct {
	Sequence         uint64           `json:"sequence"`
	Timestamp        string           `json:"timestamp"`
	LifecycleID      string           `json:"lifecycleId"`
	Frame            *veil.Frame      `json:"frame"`
	ElementOperations []veil.ElementOp `json:"elementOperations,omitempty"`
	RenderedContext  string           `json:"renderedContext,omitempty"`
}

// DeletionRecord is the audit entry left behind by "delete recent
// frames" recovery (§7 Recovery, §12 supplemented feature).
type DeletionRecord struct {
	From            uint64 `json:"from"`
	To              uint64 `json:"to"`
	PreSnapshotSeq  uint64 `json:"preSnapshotSeq"`
	PostSnapshotSeq uint64 `json:"postSnapshotSeq"`
	Timestamp       string `json:"timestamp"`
}
