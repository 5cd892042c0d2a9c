// Package element implements the live object tree and the behaviors
// mounted on it (component C3): Elements own their children and their
// Components exclusively, and every reachable Element has exactly one
// path to the root Space.
package element

import (
	"context"
	"fmt"

	"github.com/veilspace/kernel/kernel/errs"
	"github.com/veilspace/kernel/kernel/event"
	"github.com/veilspace/kernel/kernel/retm"
)

// Component is a mounted behavior attached to an Element. The lifecycle
// hooks (OnInit, OnRestore, ...) and the RETM roles are detected by
// interface assertion rather than declared here, so a component need
// only implement the hooks and roles it actually uses.
type Component interface {
	Name() string
}

// Lifecycle hook interfaces, probed by AddComponent in declared order.
type (
	Initializer interface {
		OnInit(ctx context.Context) error
	}
	Restorer interface {
		OnRestore(ctx context.Context) error
	}
	Mounter interface {
		OnMount(ctx context.Context) error
	}
	Unmounter interface {
		OnUnmount(ctx context.Context) error
	}
	Enabler interface {
		OnEnable(ctx context.Context) error
	}
	Disabler interface {
		OnDisable(ctx context.Context) error
	}
	FirstFramer interface {
		OnFirstFrame(ctx context.Context) error
	}
)

// EventHandler is implemented by components that want a shot at events
// reaching their host element, after the element's own declared action map.
type EventHandler interface {
	HandleEvent(ctx context.Context, e *event.Event)
}

// ActionHandler is an element's own declared reaction to one topic,
// dispatched before any component sees the event.
type ActionHandler func(ctx context.Context, e *event.Event)

// Element is one node of the live tree.
type Element struct {
	ID   string
	Name string

	parent   *Element
	children []*Element

	components       []Component
	componentEnabled map[Component]bool

	active        bool
	subscriptions []string
	actions       map[string]ActionHandler

	currentTarget *Element

	tree *Tree
}

// New creates a detached element; it becomes part of a tree once
// attached via AddChild (or installed as a tree's root).
func New(id, name string) *Element {
	return &Element{
		ID:     id,
		Name:   name,
		active: true,
	}
}

func (el *Element) Parent() *Element    { return el.parent }
func (el *Element) Children() []*Element {
	out := make([]*Element, len(el.children))
	copy(out, el.children)
	return out
}
func (el *Element) Active() bool     { return el.active }
func (el *Element) SetActive(v bool) { el.active = v }

// Subscriptions returns the element's own declared topic patterns.
func (el *Element) Subscriptions() []string {
	out := make([]string, len(el.subscriptions))
	copy(out, el.subscriptions)
	return out
}

// Components returns the components mounted on this element, in
// attachment order.
func (el *Element) Components() []Component {
	out := make([]Component, len(el.components))
	copy(out, el.components)
	return out
}

// Ref builds the addressable reference used in event envelopes.
func (el *Element) Ref() event.ElementRef {
	return event.ElementRef{
		ElementID:   el.ID,
		ElementPath: el.pathIDs(),
		ElementType: el.Name,
	}
}

func (el *Element) pathIDs() []string {
	var path []string
	for n := el; n != nil; n = n.parent {
		path = append([]string{n.ID}, path...)
	}
	return path
}

// AddChild attaches child under el; idempotent if child is already a
// child of el. Emits element:mount upward through the tree, if attached
// to one. Returns an error if child already has a different parent,
// which would violate the one-path-to-root invariant.
func (el *Element) AddChild(ctx context.Context, child *Element) error {
	if child.parent == el {
		return nil // idempotent
	}
	if child.parent != nil {
		return errs.New(errs.CodeComponentConflict, fmt.Sprintf("element %q already has a parent", child.ID))
	}

	child.parent = el
	child.tree = el.tree
	el.children = append(el.children, child)
	if el.tree != nil {
		el.tree.registerIndex(child)
	}
	el.emitUp(ctx, "element:mount", child)
	return nil
}

// RemoveChild detaches child from el; idempotent if child is not
// (or no longer) a child of el. Emits element:unmount upward.
func (el *Element) RemoveChild(ctx context.Context, child *Element) {
	idx := -1
	for i, c := range el.children {
		if c.ID == child.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	el.children = append(el.children[:idx], el.children[idx+1:]...)
	// Emit while child is still indexed and parented, since propagation
	// dispatch resolves its target by id and walks up via parent links.
	el.emitUp(ctx, "element:unmount", child)
	if el.tree != nil {
		el.tree.unregisterIndex(child)
	}
	child.parent = nil
}

func (el *Element) emitUp(ctx context.Context, topic string, child *Element) {
	if el.tree == nil {
		return
	}
	e := &event.Event{
		Topic:     topic,
		Source:    child.Ref(),
		Timestamp: 0,
		Bubbles:   true,
	}
	el.tree.DispatchPropagation(ctx, e)
}

// AddComponent attaches c to el: OnInit, then OnRestore (if restoring)
// or OnMount, then — if el is already part of a tree with a pipeline —
// auto-registers c with the engine for every RETM role it implements.
func (el *Element) AddComponent(ctx context.Context, c Component, restoring bool) error {
	el.components = append(el.components, c)
	if el.componentEnabled == nil {
		el.componentEnabled = make(map[Component]bool)
	}
	el.componentEnabled[c] = true

	if init, ok := c.(Initializer); ok {
		if err := init.OnInit(ctx); err != nil {
			return errs.ProcessorFault("maintainer", c.Name(), err)
		}
	}
	if restoring {
		if r, ok := c.(Restorer); ok {
			if err := r.OnRestore(ctx); err != nil {
				return errs.ProcessorFault("maintainer", c.Name(), err)
			}
		}
	} else if m, ok := c.(Mounter); ok {
		if err := m.OnMount(ctx); err != nil {
			return errs.ProcessorFault("maintainer", c.Name(), err)
		}
	}

	if el.tree != nil && el.tree.pipeline != nil {
		registerRoles(el.tree.pipeline, c)
	}
	return nil
}

// RemoveComponent detaches c from el, calling OnUnmount if present.
func (el *Element) RemoveComponent(ctx context.Context, c Component) error {
	idx := -1
	for i, existing := range el.components {
		if existing == c {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}
	el.components = append(el.components[:idx], el.components[idx+1:]...)
	delete(el.componentEnabled, c)
	if u, ok := c.(Unmounter); ok {
		if err := u.OnUnmount(ctx); err != nil {
			return errs.ProcessorFault("maintainer", c.Name(), err)
		}
	}
	return nil
}

func registerRoles(p Pipeline, c Component) {
	if r, ok := c.(retm.Receptor); ok {
		p.RegisterReceptor(r)
	}
	if t, ok := c.(retm.Transform); ok {
		p.RegisterTransform(t)
	}
	if e, ok := c.(retm.Effector); ok {
		p.RegisterEffector(e)
	}
	if m, ok := c.(retm.Maintainer); ok {
		p.RegisterMaintainer(m)
	}
	if mod, ok := c.(retm.Modulator); ok {
		p.RegisterModulator(mod)
	}
}

// Subscribe registers a topic pattern the element wants broadcast
// events for (§6 grammar: exact, prefix*, or bare *).
func (el *Element) Subscribe(pattern string) {
	el.subscriptions = append(el.subscriptions, pattern)
}

func (el *Element) IsSubscribedTo(topic string) bool {
	for _, p := range el.subscriptions {
		if event.TopicMatches(p, topic) {
			return true
		}
	}
	return false
}

// OnAction declares el's own reaction to one topic, checked before any
// component sees a dispatched event.
func (el *Element) OnAction(topic string, h ActionHandler) {
	if el.actions == nil {
		el.actions = make(map[string]ActionHandler)
	}
	el.actions[topic] = h
}

// FindChild returns a direct child by id.
func (el *Element) FindChild(id string) (*Element, bool) {
	for _, c := range el.children {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// FindInChildren searches the whole subtree (depth-first) for id.
func (el *Element) FindInChildren(id string) (*Element, bool) {
	if el.ID == id {
		return el, true
	}
	for _, c := range el.children {
		if found, ok := c.FindInChildren(id); ok {
			return found, true
		}
	}
	return nil, false
}

// FindSpace walks parents to the root element.
func (el *Element) FindSpace() *Element {
	n := el
	for n.parent != nil {
		n = n.parent
	}
	return n
}

// HandleEvent is an element's local event handling: sets currentTarget,
// dispatches to the declared action map, then to every enabled
// component implementing EventHandler, honoring
// ImmediatePropagationStopped at each step (§4.3).
func (el *Element) HandleEvent(ctx context.Context, e *event.Event) {
	el.currentTarget = el

	if h, ok := el.actions[e.Topic]; ok {
		h(ctx, e)
		if e.ImmediatePropagationStopped() {
			return
		}
	}

	for _, c := range el.components {
		if !el.componentEnabled[c] {
			continue
		}
		if h, ok := c.(EventHandler); ok {
			h.HandleEvent(ctx, e)
			if e.ImmediatePropagationStopped() {
				return
			}
		}
	}
}

// CurrentTarget returns the element most recently handled an event,
// mirroring the host-language "currentTarget" semantics during dispatch.
func (el *Element) CurrentTarget() *Element { return el.currentTarget }
