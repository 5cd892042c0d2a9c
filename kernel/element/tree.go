package element

import (
	"context"

	"github.com/veilspace/kernel/kernel/event"
	"github.com/veilspace/kernel/kernel/klog"
	"github.com/veilspace/kernel/kernel/retm"
)

// Pipeline is the sink a Tree pushes newly-attached components' RETM
// roles into. The Space (kernel/space) implements this over its own
// role registries; tests may supply a recording fake.
type Pipeline interface {
	RegisterReceptor(retm.Receptor)
	RegisterTransform(retm.Transform)
	RegisterEffector(retm.Effector)
	RegisterMaintainer(retm.Maintainer)
	RegisterModulator(retm.Modulator)
}

// Tree owns the id index and the pipeline handle for one element
// hierarchy rooted at a Space. Per the design notes, lookups by id go
// through this index rather than walking the tree, since children hold
// owned handles and parents hold only a weak back-reference.
type Tree struct {
	root     *Element
	index    map[string]*Element
	pipeline Pipeline
	log      *klog.Logger
}

// NewTree creates a tree with the given element installed as its root
// (the Space).
func NewTree(root *Element) *Tree {
	t := &Tree{
		root:  root,
		index: make(map[string]*Element),
		log:   klog.For("element"),
	}
	root.tree = t
	t.index[root.ID] = root
	return t
}

func (t *Tree) Root() *Element { return t.root }

// SetPipeline installs the role sink; components attached afterward are
// auto-registered for every RETM role they implement.
func (t *Tree) SetPipeline(p Pipeline) { t.pipeline = p }

// Find looks up any element in the tree by id, O(1) via the index.
func (t *Tree) Find(id string) (*Element, bool) {
	e, ok := t.index[id]
	return e, ok
}

func (t *Tree) registerIndex(el *Element) {
	t.index[el.ID] = el
	for _, c := range el.children {
		t.registerIndex(c)
	}
}

func (t *Tree) unregisterIndex(el *Element) {
	delete(t.index, el.ID)
	for _, c := range el.children {
		t.unregisterIndex(c)
	}
}

// Broadcast recursively visits every active, subscribed element and
// hands it the event (§4.4 default dispatch mode). An inactive element
// is skipped, but its children are still visited.
func (t *Tree) Broadcast(ctx context.Context, e *event.Event) {
	t.broadcastWalk(ctx, t.root, e)
}

func (t *Tree) broadcastWalk(ctx context.Context, el *Element, e *event.Event) {
	if el.active && el.IsSubscribedTo(e.Topic) {
		el.HandleEvent(ctx, e)
		if e.ImmediatePropagationStopped() {
			return
		}
	}
	for _, c := range el.children {
		t.broadcastWalk(ctx, c, e)
	}
}

// DispatchPropagation resolves the event's target from
// event.source.elementId and walks it DOM-style: capture root→target,
// at target, then bubble target→root unless event.Bubbles is false
// (§4.4). A target that cannot be resolved is a no-op.
func (t *Tree) DispatchPropagation(ctx context.Context, e *event.Event) {
	target, ok := t.Find(e.Source.ElementID)
	if !ok {
		t.log.Debug("propagation target not found", klog.String("element_id", e.Source.ElementID), klog.String("topic", e.Topic))
		return
	}

	path := pathToRoot(target) // path[0] == target, path[len-1] == root

	e.EventPhase = event.PhaseCapture
	for i := len(path) - 1; i > 0; i-- {
		if e.ImmediatePropagationStopped() {
			return
		}
		path[i].HandleEvent(ctx, e)
		if e.PropagationStopped() {
			return
		}
	}

	e.EventPhase = event.PhaseTarget
	target.HandleEvent(ctx, e)
	if e.PropagationStopped() {
		return
	}

	if !e.Bubbles {
		return
	}
	e.EventPhase = event.PhaseBubble
	for i := 1; i < len(path); i++ {
		if e.ImmediatePropagationStopped() {
			return
		}
		path[i].HandleEvent(ctx, e)
		if e.PropagationStopped() {
			return
		}
	}
}

func pathToRoot(el *Element) []*Element {
	var path []*Element
	for n := el; n != nil; n = n.parent {
		path = append(path, n)
	}
	return path
}
