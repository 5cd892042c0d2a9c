package space

import (
	"context"

	"github.com/veilspace/kernel/kernel/element"
	"github.com/veilspace/kernel/kernel/event"
	"github.com/veilspace/kernel/kernel/idgen"
	"github.com/veilspace/kernel/kernel/klog"
	"github.com/veilspace/kernel/kernel/persistence"
	"github.com/veilspace/kernel/kernel/retm"
	"github.com/veilspace/kernel/kernel/veil"
)

// ElementTreeMaintainer is the built-in C9 processor: the one place
// live element-tree mutations happen in response to RETM traffic.
// Its receptor side turns element:create/element:destroy/component:add
// events into transient request facets; its maintainer side realizes
// those requests against the live tree and returns the durable
// element-tree facet deltas persistence reads back on restore
// (kernel/persistence/restore.go's materializeFromElementTreeFacets).
// The facet deltas are returned, not applied directly: the frame
// engine applies them and folds them into the tick's own frame.Deltas
// so persistence's delta log actually captures every tree mutation.
type ElementTreeMaintainer struct {
	tree     *element.Tree
	store    *veil.Store
	registry *persistence.ComponentRegistry
	log      *klog.Logger
}

func NewElementTreeMaintainer(tree *element.Tree, store *veil.Store, registry *persistence.ComponentRegistry) *ElementTreeMaintainer {
	return &ElementTreeMaintainer{tree: tree, store: store, registry: registry, log: klog.For("space")}
}

func (m *ElementTreeMaintainer) Topics() []string {
	return []string{"element:create", "element:destroy", "component:add"}
}

// Transform (the Receptor half) never mutates the tree directly: it
// only records the request as a transient, ephemeral facet so the
// maintainer half sees it in the next Phase 3/4 change log, in the
// same sequence as every other facet change that frame.
func (m *ElementTreeMaintainer) Transform(ctx context.Context, e *event.Event, state *veil.ReadonlyState) ([]veil.Delta, error) {
	payload, _ := e.Payload.(map[string]any)

	switch e.Topic {
	case "element:create":
		id, _ := payload["id"].(string)
		if id == "" {
			id = idgen.New()
		}
		facet := &veil.Facet{
			ID:        "element-request:" + id,
			Type:      "element-request",
			EntityID:  id,
			Ephemeral: true,
			State: map[string]any{
				"parentId":   payload["parentId"],
				"name":       payload["name"],
				"components": payload["components"],
			},
		}
		return []veil.Delta{veil.AddFacet(facet)}, nil

	case "element:destroy":
		id, _ := payload["id"].(string)
		facet := &veil.Facet{
			ID:        "element-destroy-request:" + id,
			Type:      "element-destroy-request",
			EntityID:  id,
			Ephemeral: true,
		}
		return []veil.Delta{veil.AddFacet(facet)}, nil

	case "component:add":
		id, _ := payload["elementId"].(string)
		facet := &veil.Facet{
			ID:        "component-add-request:" + idgen.New(),
			Type:      "component-add-request",
			EntityID:  id,
			Ephemeral: true,
			State: map[string]any{
				"type":   payload["type"],
				"config": payload["config"],
			},
		}
		return []veil.Delta{veil.AddFacet(facet)}, nil
	}
	return nil, nil
}

// elementTreeState tracks one element's durable element-tree facet
// state across the requests handled within a single Process call, so
// two requests touching the same element in one tick see each other's
// effect without round-tripping through the store.
type elementTreeState struct {
	exists     bool
	parentID   string
	name       string
	components []any
	active     bool
}

func (m *ElementTreeMaintainer) Process(ctx context.Context, frame *veil.Frame, changes []veil.FacetChange, state *veil.ReadonlyState) (retm.MaintainerResult, error) {
	pending := map[string]*elementTreeState{}
	var deltas []veil.Delta

	for _, c := range changes {
		if c.Kind != veil.ChangeAdded || c.After == nil {
			continue
		}
		switch c.After.Type {
		case "element-request":
			d, err := m.realizeElement(ctx, pending, c.After)
			if err != nil {
				m.log.Warn("element-request realization failed", klog.Err(err), klog.String("element_id", c.After.EntityID))
				continue
			}
			deltas = append(deltas, d...)
		case "element-destroy-request":
			deltas = append(deltas, m.destroyElement(ctx, pending, c.After)...)
		case "component-add-request":
			d, err := m.realizeComponent(ctx, pending, c.After)
			if err != nil {
				m.log.Warn("component-add realization failed", klog.Err(err), klog.String("element_id", c.After.EntityID))
				continue
			}
			deltas = append(deltas, d...)
		}
	}

	return retm.MaintainerResult{Deltas: deltas}, nil
}

// resolve returns the running element-tree state for id, seeding it
// from the store's current facet the first time this Process call
// touches that id.
func (m *ElementTreeMaintainer) resolve(pending map[string]*elementTreeState, id string) *elementTreeState {
	if st, ok := pending[id]; ok {
		return st
	}
	st := &elementTreeState{}
	if f, ok := m.store.GetState().Facet("element-tree:" + id); ok {
		st.exists = true
		st.parentID, _ = f.State["parentId"].(string)
		st.name, _ = f.State["name"].(string)
		if cs, ok := f.State["components"].([]any); ok {
			st.components = cs
		}
		st.active, _ = f.State["active"].(bool)
	}
	pending[id] = st
	return st
}

func (m *ElementTreeMaintainer) realizeElement(ctx context.Context, pending map[string]*elementTreeState, req *veil.Facet) ([]veil.Delta, error) {
	parentID, _ := req.State["parentId"].(string)
	name, _ := req.State["name"].(string)

	parent, ok := m.tree.Find(parentID)
	if !ok {
		parent = m.tree.Root()
	}

	el := element.New(req.EntityID, name)
	if err := parent.AddChild(ctx, el); err != nil {
		return nil, err
	}

	rawComponents, _ := req.State["components"].([]any)
	for _, raw := range rawComponents {
		spec, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		className, _ := spec["type"].(string)
		config, _ := spec["config"].(map[string]any)
		c, err := m.registry.Construct(className, config, nil)
		if err != nil {
			return nil, err
		}
		if err := el.AddComponent(ctx, c, false); err != nil {
			return nil, err
		}
	}

	st := &elementTreeState{
		parentID:   parent.ID,
		name:       name,
		components: normalizeComponents(rawComponents),
		active:     true,
	}
	pending[req.EntityID] = st

	return m.commitDeltas(req.EntityID, st, req.ID), nil
}

func (m *ElementTreeMaintainer) destroyElement(ctx context.Context, pending map[string]*elementTreeState, req *veil.Facet) []veil.Delta {
	var deltas []veil.Delta
	if el, ok := m.tree.Find(req.EntityID); ok {
		deltas = append(deltas, m.cascadeRemove(ctx, pending, el)...)
	}
	return append(deltas, veil.RemoveFacet(req.ID))
}

// cascadeRemove detaches a subtree bottom-up so no child is ever left
// pointing at an already-removed parent, then marks its durable
// element-tree facet inactive rather than deleting it (§4.9).
func (m *ElementTreeMaintainer) cascadeRemove(ctx context.Context, pending map[string]*elementTreeState, el *element.Element) []veil.Delta {
	var deltas []veil.Delta
	for _, c := range el.Children() {
		deltas = append(deltas, m.cascadeRemove(ctx, pending, c)...)
	}
	if parent := el.Parent(); parent != nil {
		parent.RemoveChild(ctx, el)
	}

	st := m.resolve(pending, el.ID)
	st.active = false
	deltas = append(deltas, veil.RewriteFacet("element-tree:"+el.ID, map[string]any{
		"state": map[string]any{"active": false},
	}))
	st.exists = true
	return deltas
}

func (m *ElementTreeMaintainer) realizeComponent(ctx context.Context, pending map[string]*elementTreeState, req *veil.Facet) ([]veil.Delta, error) {
	el, ok := m.tree.Find(req.EntityID)
	if !ok {
		return nil, nil
	}
	className, _ := req.State["type"].(string)
	config, _ := req.State["config"].(map[string]any)
	c, err := m.registry.Construct(className, config, nil)
	if err != nil {
		return nil, err
	}
	if err := el.AddComponent(ctx, c, false); err != nil {
		return nil, err
	}

	st := m.resolve(pending, el.ID)
	var parentID string
	if p := el.Parent(); p != nil {
		parentID = p.ID
	}
	st.parentID = parentID
	st.name = el.Name
	st.active = true
	st.components = appendComponent(st.components, className, config)

	return m.commitDeltas(el.ID, st, req.ID), nil
}

// commitDeltas renders the running state for id into an upsert of its
// durable element-tree facet plus removal of the transient request
// that produced this update, in the scenario's persisted shape
// (§4.9): state.components is always [{ type, index, config }, ...].
func (m *ElementTreeMaintainer) commitDeltas(id string, st *elementTreeState, transientID string) []veil.Delta {
	facetID := "element-tree:" + id
	facetState := map[string]any{
		"parentId":   st.parentID,
		"name":       st.name,
		"components": st.components,
		"active":     st.active,
	}

	var deltas []veil.Delta
	if st.exists {
		deltas = append(deltas, veil.RewriteFacet(facetID, map[string]any{"state": facetState}))
	} else {
		deltas = append(deltas, veil.AddFacet(&veil.Facet{
			ID:       facetID,
			Type:     "element-tree",
			EntityID: id,
			State:    facetState,
		}))
	}
	st.exists = true
	return append(deltas, veil.RemoveFacet(transientID))
}

// normalizeComponents renders a request's raw component specs into the
// persisted shape: { type, index, config }, index being position in
// the element's component list.
func normalizeComponents(raw []any) []any {
	out := make([]any, 0, len(raw))
	for i, r := range raw {
		spec, _ := r.(map[string]any)
		out = append(out, map[string]any{
			"type":   spec["type"],
			"index":  i,
			"config": spec["config"],
		})
	}
	return out
}

// appendComponent adds one more component to an already-normalized
// list, recomputing every index so they stay contiguous.
func appendComponent(existing []any, className string, config map[string]any) []any {
	raw := make([]any, 0, len(existing)+1)
	for _, e := range existing {
		spec, _ := e.(map[string]any)
		raw = append(raw, map[string]any{"type": spec["type"], "config": spec["config"]})
	}
	raw = append(raw, map[string]any{"type": className, "config": config})
	return normalizeComponents(raw)
}
