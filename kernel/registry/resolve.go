package registry

import (
	"context"

	"github.com/veilspace/kernel/kernel/errs"
	"github.com/veilspace/kernel/kernel/klog"
)

// Dependencies is what a component declares it needs: plain reference
// keys, and typed external-resource paths ("secret:<name>",
// "provider:<name>").
type Dependencies struct {
	References []string
	Externals  []string
}

// Declarer is implemented by any component that wants dependencies
// injected by Resolve.
type Declarer interface {
	Dependencies() Dependencies
}

// ReferenceInjectable receives one resolved plain reference at a time.
type ReferenceInjectable interface {
	InjectReference(key string, value any) error
}

// ExternalInjectable receives one resolved external resource at a time.
type ExternalInjectable interface {
	InjectExternal(path string, value any) error
}

// ReferencesResolvedHook is called once all of a component's
// dependencies (of both kinds) have been injected.
type ReferencesResolvedHook interface {
	OnReferencesResolved(ctx context.Context) error
}

var log = klog.For("registry")

// Resolve runs the three-pass resolution of §4.6 over a set of
// components: inject references, then inject externals, then notify
// onReferencesResolved. A missing required dependency is fatal (§7
// kind 3) and aborts resolution at the first failure.
func Resolve(ctx context.Context, r *Registry, components []any) error {
	for _, c := range components {
		decl, ok := c.(Declarer)
		if !ok {
			continue
		}
		deps := decl.Dependencies()

		injectable, hasRefs := c.(ReferenceInjectable)
		for _, key := range deps.References {
			v, found := r.Reference(key)
			if !found {
				return errs.MissingReference(key)
			}
			if hasRefs {
				if err := injectable.InjectReference(key, v); err != nil {
					return err
				}
			}
		}
	}

	for _, c := range components {
		decl, ok := c.(Declarer)
		if !ok {
			continue
		}
		deps := decl.Dependencies()

		extInjectable, hasExt := c.(ExternalInjectable)
		for _, path := range deps.Externals {
			v, err := r.ResolveExternal(path)
			if err != nil {
				return err
			}
			if hasExt {
				if err := extInjectable.InjectExternal(path, v); err != nil {
					return err
				}
			}
		}
	}

	for _, c := range components {
		hook, ok := c.(ReferencesResolvedHook)
		if !ok {
			continue
		}
		if err := hook.OnReferencesResolved(ctx); err != nil {
			log.Warn("onReferencesResolved failed", klog.Err(err))
			return err
		}
	}

	return nil
}
