package persistence

import (
	"context"
	"sort"

	"github.com/veilspace/kernel/kernel/element"
	"github.com/veilspace/kernel/kernel/klog"
	"github.com/veilspace/kernel/kernel/veil"
)

// RestoreResult reports what the restoration sequence found.
type RestoreResult struct {
	Restored        bool
	LifecycleID     string
	RestoredThrough uint64
}

var restoreLog = klog.For("persistence")

// Restore implements the full restoration sequence of §4.7: find the
// newest snapshot, restore VEIL state, materialize the saved element
// tree, replay deltas newer than the snapshot directly against the
// store (no RETM pipeline, no event dispatch), then materialize any
// additional elements implied by element-tree facets that weren't
// captured in the snapshot.
//
// If persistence.enabled and no snapshot exists, Restore returns a
// zero RestoreResult and no error: this is a fresh lifecycle, not a
// load failure.
func Restore(ctx context.Context, adapter *FileAdapter, store *veil.Store, tree *element.Tree, registry *ComponentRegistry) (RestoreResult, error) {
	snap, err := adapter.LatestSnapshot()
	if err != nil {
		return RestoreResult{}, err
	}
	if snap == nil {
		return RestoreResult{}, nil
	}

	installVEILState(store, *snap)

	if err := materializeRoot(ctx, tree.Root(), snap.ElementTree, registry); err != nil {
		return RestoreResult{}, err
	}

	deltas, err := adapter.DeltasSince(snap.Sequence)
	if err != nil {
		return RestoreResult{}, err
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i].Sequence < deltas[j].Sequence })

	restoredThrough := snap.Sequence
	for _, d := range deltas {
		if d.LifecycleID != snap.LifecycleID {
			continue
		}
		if _, err := store.ApplyFrame(d.Frame); err != nil {
			restoreLog.Warn("skipping unreplayable delta", klog.Err(err), klog.Uint64("sequence", d.Sequence))
			continue
		}
		restoredThrough = d.Frame.Sequence
	}
	// installVEILState seeded the counter from the snapshot's own
	// sequence; replay above applied frames past it without advancing
	// the counter (ApplyFrame doesn't allocate sequences, it only
	// validates and applies the one it's handed). Bring it forward so
	// the first frame processed after restoration doesn't reuse a
	// sequence a replayed delta already used.
	store.SetSequence(restoredThrough)

	if err := materializeFromElementTreeFacets(ctx, tree, registry, store.GetState()); err != nil {
		return RestoreResult{}, err
	}

	return RestoreResult{
		Restored:        true,
		LifecycleID:     snap.LifecycleID,
		RestoredThrough: restoredThrough,
	}, nil
}

func installVEILState(store *veil.Store, snap Snapshot) {
	facets := make(map[string]*veil.Facet, len(snap.VEILState.Facets))
	for _, f := range snap.VEILState.Facets {
		facets[f.ID] = f
	}
	streams := make(map[string]*veil.Stream, len(snap.VEILState.Streams))
	for _, s := range snap.VEILState.Streams {
		streams[s.ID] = s
	}
	agents := make(map[string]*veil.Agent, len(snap.VEILState.Agents))
	for _, a := range snap.VEILState.Agents {
		agents[a.ID] = a
	}

	store.SetState(veil.RestoredState{
		LifecycleID:  snap.LifecycleID,
		Sequence:     snap.VEILState.CurrentSequence,
		Facets:       facets,
		Streams:      streams,
		Agents:       agents,
		FrameHistory: snap.VEILState.FrameHistory,
	})
}

// materializeRoot applies the root node's own persisted subscriptions
// and components (if present in the snapshot) before materializing its
// descendants under it.
func materializeRoot(ctx context.Context, root *element.Element, snap ElementTreeSnapshot, registry *ComponentRegistry) error {
	for _, n := range snap.Nodes {
		if n.ID != root.ID {
			continue
		}
		for _, pattern := range n.Subscriptions {
			root.Subscribe(pattern)
		}
		for _, cs := range n.Components {
			c, err := registry.Construct(cs.ClassName, cs.Config, cs.Persistent)
			if err != nil {
				return err
			}
			if err := root.AddComponent(ctx, c, true); err != nil {
				return err
			}
		}
		break
	}
	return MaterializeElementTree(ctx, root, snap, registry)
}

// materializeFromElementTreeFacets covers elements that a persisted
// element-tree facet describes but that weren't yet part of the
// snapshot's element tree (created by frames replayed after the
// snapshot was taken).
func materializeFromElementTreeFacets(ctx context.Context, tree *element.Tree, registry *ComponentRegistry, state *veil.ReadonlyState) error {
	for _, f := range state.FacetsByType("element-tree") {
		if active, ok := f.State["active"].(bool); ok && !active {
			continue
		}
		if _, exists := tree.Find(f.EntityID); exists {
			continue
		}
		parentID, _ := f.State["parentId"].(string)
		name, _ := f.State["name"].(string)
		parent, ok := tree.Find(parentID)
		if !ok {
			continue
		}

		el := element.New(f.EntityID, name)
		if err := parent.AddChild(ctx, el); err != nil {
			return err
		}

		comps, _ := f.State["components"].([]any)
		for _, raw := range comps {
			spec, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			className, _ := spec["type"].(string)
			config, _ := spec["config"].(map[string]any)
			persistent, _ := spec["persistent"].(map[string]any)
			c, err := registry.Construct(className, config, persistent)
			if err != nil {
				return err
			}
			if err := el.AddComponent(ctx, c, true); err != nil {
				return err
			}
		}
	}
	return nil
}
