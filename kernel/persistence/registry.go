package persistence

import (
	"github.com/veilspace/kernel/kernel/element"
	"github.com/veilspace/kernel/kernel/errs"
)

// ComponentFactory constructs a component from its declared config plus
// any persisted properties recovered from a snapshot (nil on first
// mount). Registered per class name (§4.7).
type ComponentFactory func(config map[string]any, persisted map[string]any) (element.Component, error)

// ComponentRegistry is the class-name-keyed registry restoration uses
// to reconstruct components, replacing the reflection-based registry
// of the original implementation (§9).
type ComponentRegistry struct {
	factories map[string]ComponentFactory
}

func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{factories: make(map[string]ComponentFactory)}
}

func (r *ComponentRegistry) Register(className string, factory ComponentFactory) {
	r.factories[className] = factory
}

func (r *ComponentRegistry) Construct(className string, config, persisted map[string]any) (element.Component, error) {
	factory, ok := r.factories[className]
	if !ok {
		return nil, errs.New(errs.CodeMissingReference, "no component factory registered for class: "+className)
	}
	return factory(config, persisted)
}

// Persistable is implemented by components that declare state persistence
// should carry across a restart. ClassName must match the key the
// component was registered under in the ComponentRegistry.
type Persistable interface {
	ClassName() string
	PersistentProperties() map[string]any
}
