// Package retm defines the Receptor/Transform/Effector/Maintainer
// contracts (component C5): the typed interfaces through which
// components participate in a frame. Every interface here takes a
// read-only view of the VEIL store and returns deltas or events — none
// may mutate the store directly.
package retm

import (
	"context"

	"github.com/veilspace/kernel/kernel/event"
	"github.com/veilspace/kernel/kernel/veil"
)

// Modulator is an optional throttling/admission gate placed before
// Phase 1. Reserved by the frame engine's auto-discovery but not
// exercised by the two built-in processors (C9, C10); applications may
// register one to shed load.
type Modulator interface {
	// Admit reports whether the event should proceed to Phase 1. A
	// rejected event is dropped (not requeued) and never reaches any
	// receptor.
	Admit(ctx context.Context, e *event.Event) bool
}

// Receptor turns one kind of inbound event into VEIL deltas. Receptors
// are expected to be synchronous (or short-running) so that Phase 1
// stays snapshot-consistent.
type Receptor interface {
	Topics() []string
	Transform(ctx context.Context, e *event.Event, state *veil.ReadonlyState) ([]veil.Delta, error)
}

// Transform maps VEIL state to VEIL deltas. Must be idempotent over a
// fixed state: the Phase 2 fixed-point loop may call Process again with
// a state the transform has already reacted to.
type Transform interface {
	Process(ctx context.Context, state *veil.ReadonlyState) ([]veil.Delta, error)
}

// FacetFilter narrows the facet changes an Effector is shown. A filter
// matches a change when every non-empty clause matches; an Effector
// with no filters matches everything.
type FacetFilter struct {
	Types      []string
	Aspect     map[string]string
	Attributes map[string]any
}

// Matches reports whether the filter accepts a given facet change.
func (f FacetFilter) Matches(c veil.FacetChange) bool {
	subject := c.After
	if subject == nil {
		subject = c.Before
	}
	if subject == nil {
		return len(f.Types) == 0 && len(f.Aspect) == 0 && len(f.Attributes) == 0
	}

	if len(f.Types) > 0 && !containsString(f.Types, subject.Type) {
		return false
	}
	for k, v := range f.Aspect {
		if aspectValue(subject, k) != v {
			return false
		}
	}
	for k, v := range f.Attributes {
		if subject.Attributes == nil {
			return false
		}
		if subject.Attributes[k] != v {
			return false
		}
	}
	return true
}

func aspectValue(f *veil.Facet, key string) string {
	switch key {
	case "streamId":
		return f.StreamID
	case "streamType":
		return f.StreamType
	case "agentId":
		return f.AgentID
	case "agentName":
		return f.AgentName
	case "entityType":
		return f.EntityType
	case "entityId":
		return f.EntityID
	default:
		return ""
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// MatchesAny reports whether a change satisfies at least one of the
// effector's filters; an empty filter slice matches everything (§4.5).
func MatchesAny(filters []FacetFilter, c veil.FacetChange) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(c) {
			return true
		}
	}
	return false
}

// EffectorResult is what an Effector returns: new events for the next
// frame, and any out-of-band side channel actions (e.g. "print to
// console") the caller wants surfaced for observability.
type EffectorResult struct {
	Events          []*event.Event
	ExternalActions []ExternalAction
}

// ExternalAction records an out-of-process side effect an Effector
// performed, for debug/observability purposes only.
type ExternalAction struct {
	Kind    string
	Payload any
}

// Effector observes a frame's facet deltas and may perform outbound I/O
// (printing, sending a reply, calling an LLM). It must not mutate VEIL
// directly — any resulting world change is routed back as an event.
type Effector interface {
	FacetFilters() []FacetFilter
	Process(ctx context.Context, changes []veil.FacetChange, state *veil.ReadonlyState) (EffectorResult, error)
}

// MaintainerResult is what a Maintainer returns. Deltas are structural
// VEIL changes the maintainer computed (e.g. the durable facet backing
// a live tree mutation); the frame engine is the one that actually
// calls ApplyFrame and folds them into the tick's own frame.Deltas, so
// a Maintainer never mutates the store directly and persistence (which
// runs as a Maintainer itself, after the others) sees them.
type MaintainerResult struct {
	Events []*event.Event
	Deltas []veil.Delta
}

// Maintainer observes the whole frame plus its changes and may perform
// durable I/O and live side effects (e.g. mutating the element tree).
// This is where persistence and element-tree materialization live.
type Maintainer interface {
	Process(ctx context.Context, frame *veil.Frame, changes []veil.FacetChange, state *veil.ReadonlyState) (MaintainerResult, error)
}
