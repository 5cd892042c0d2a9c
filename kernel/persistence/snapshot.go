package persistence

import (
	"context"

	"github.com/veilspace/kernel/kernel/element"
	"github.com/veilspace/kernel/kernel/veil"
)

// BuildVEILSnapshot serializes the store's full state for a snapshot.
func BuildVEILSnapshot(store *veil.Store) VEILStateSnapshot {
	state := store.GetState()
	return VEILStateSnapshot{
		Facets:          state.AllFacets(),
		Streams:         allStreams(state),
		Agents:          allAgents(state),
		FrameHistory:    store.FrameHistory(),
		CurrentSequence: state.Sequence(),
	}
}

func allStreams(state *veil.ReadonlyState) []*veil.Stream {
	// ReadonlyState only exposes point lookups; the snapshot schema
	// needs every stream, so this walks the facets for distinct stream
	// ids referenced and resolves each via Stream(id). Streams with no
	// referencing facet (registered but never used) are not captured,
	// matching the store's own "streams are host metadata" treatment.
	seen := make(map[string]bool)
	var out []*veil.Stream
	for _, f := range state.AllFacets() {
		if f.StreamID == "" || seen[f.StreamID] {
			continue
		}
		seen[f.StreamID] = true
		if st, ok := state.Stream(f.StreamID); ok {
			out = append(out, st)
		}
	}
	return out
}

func allAgents(state *veil.ReadonlyState) []*veil.Agent {
	seen := make(map[string]bool)
	var out []*veil.Agent
	for _, f := range state.AllFacets() {
		if f.AgentID == "" || seen[f.AgentID] {
			continue
		}
		seen[f.AgentID] = true
		if a, ok := state.Agent(f.AgentID); ok {
			out = append(out, a)
		}
	}
	return out
}

// BuildElementTreeSnapshot walks tree from its root and serializes
// every node, including each mounted Persistable component's declared
// properties.
func BuildElementTreeSnapshot(tree *element.Tree) ElementTreeSnapshot {
	var nodes []ElementNodeSnapshot
	walkForSnapshot(tree.Root(), &nodes)
	return ElementTreeSnapshot{Nodes: nodes}
}

func walkForSnapshot(el *element.Element, out *[]ElementNodeSnapshot) {
	var parentID string
	if p := el.Parent(); p != nil {
		parentID = p.ID
	}

	var components []ComponentSnapshot
	for _, c := range el.Components() {
		if p, ok := c.(Persistable); ok {
			components = append(components, ComponentSnapshot{
				ClassName:  p.ClassName(),
				Persistent: p.PersistentProperties(),
			})
		}
	}

	*out = append(*out, ElementNodeSnapshot{
		ID:            el.ID,
		Name:          el.Name,
		ParentID:      parentID,
		Active:        el.Active(),
		Subscriptions: el.Subscriptions(),
		Components:    components,
	})

	for _, child := range el.Children() {
		walkForSnapshot(child, out)
	}
}

// MaterializeElementTree reconstructs an element tree from a snapshot
// under the given root, attaching components via registry. Components
// are mounted with restoring=true (OnRestore, not OnMount).
func MaterializeElementTree(ctx context.Context, root *element.Element, snap ElementTreeSnapshot, registry *ComponentRegistry) error {
	byID := map[string]*element.Element{root.ID: root}

	// Parents may precede or follow children in the node list depending
	// on how the snapshot was produced; process until every node that
	// isn't the root has been attached, looping only as many times as
	// there are nodes to bound pathological input.
	remaining := make([]ElementNodeSnapshot, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		if n.ID != root.ID {
			remaining = append(remaining, n)
		}
	}

	for pass := 0; len(remaining) > 0 && pass < len(snap.Nodes)+1; pass++ {
		var stillRemaining []ElementNodeSnapshot
		for _, n := range remaining {
			parent, ok := byID[n.ParentID]
			if !ok {
				stillRemaining = append(stillRemaining, n)
				continue
			}
			el := element.New(n.ID, n.Name)
			el.SetActive(n.Active)
			for _, pattern := range n.Subscriptions {
				el.Subscribe(pattern)
			}
			if err := parent.AddChild(ctx, el); err != nil {
				return err
			}
			for _, cs := range n.Components {
				c, err := registry.Construct(cs.ClassName, cs.Config, cs.Persistent)
				if err != nil {
					return err
				}
				if err := el.AddComponent(ctx, c, true); err != nil {
					return err
				}
			}
			byID[n.ID] = el
		}
		remaining = stillRemaining
	}

	return nil
}
