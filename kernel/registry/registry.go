// Package registry implements the reference registry (component C6): a
// flat, write-once-at-boot map of references, secrets and providers,
// plus the three-pass dependency resolution pipeline that wires them
// into components.
package registry

import (
	"sync"

	"github.com/veilspace/kernel/kernel/errs"
)

// Registry is the flat DI map. References are arbitrary named handles
// (e.g. "space", "veilState", application bindings). Providers are
// external-resource handles registered under one logical name; more
// than one provider under the same name is resolved round-robin.
// Secrets are opaque named values.
type Registry struct {
	mu sync.Mutex

	references map[string]any
	secrets    map[string]any
	providers  map[string][]any
	nextIndex  map[string]int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		references: make(map[string]any),
		secrets:    make(map[string]any),
		providers:  make(map[string][]any),
		nextIndex:  make(map[string]int),
	}
}

// RegisterReference binds a named reference, write-once at boot (plus
// any one-off registrations the host performs before resolution runs).
func (r *Registry) RegisterReference(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.references[key] = value
}

// RegisterSecret binds a named secret value.
func (r *Registry) RegisterSecret(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets[name] = value
}

// RegisterProvider appends a provider handle under a logical name. When
// a component requests `provider:<name>` and more than one handle is
// registered under it, resolution hands them out round-robin.
func (r *Registry) RegisterProvider(name string, handle any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = append(r.providers[name], handle)
}

// Reference looks up a plain reference by key.
func (r *Registry) Reference(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.references[key]
	return v, ok
}

// Secret looks up a secret by name.
func (r *Registry) Secret(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.secrets[name]
	return v, ok
}

// NextProvider returns the next handle registered under name,
// round-robin, or false if none are registered.
func (r *Registry) NextProvider(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := r.providers[name]
	if len(handles) == 0 {
		return nil, false
	}
	i := r.nextIndex[name] % len(handles)
	r.nextIndex[name] = i + 1
	return handles[i], true
}

// ResolveExternal dereferences a typed external-resource path of the
// form "secret:<name>" or "provider:<name>" (§4.6, §6).
func (r *Registry) ResolveExternal(path string) (any, error) {
	kind, name, err := splitExternalPath(path)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "secret":
		if v, ok := r.Secret(name); ok {
			return v, nil
		}
	case "provider":
		if v, ok := r.NextProvider(name); ok {
			return v, nil
		}
	}
	return nil, errs.MissingExternal(path)
}

func splitExternalPath(path string) (kind, name string, err error) {
	for i := 0; i < len(path); i++ {
		if path[i] == ':' {
			return path[:i], path[i+1:], nil
		}
	}
	return "", "", errs.New(errs.CodeMissingExternal, "malformed external resource path: "+path)
}
