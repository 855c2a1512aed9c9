package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dbsmedya/protomod/internal/registry"
	"github.com/dbsmedya/protomod/internal/resolver"
)

// Builder constructs module dependency graphs from registry entries.
type Builder struct {
	reg *registry.Registry
	res *resolver.Resolver
}

// NewBuilder creates a graph builder over a registry and resolver.
func NewBuilder(reg *registry.Registry, res *resolver.Resolver) *Builder {
	return &Builder{reg: reg, res: res}
}

// Build constructs the graph of everything identity transitively imports.
// Well-known dependencies are leaves. A dependency that is neither registered nor
// well-known fails with *resolver.UnresolvedDependencyError; a cycle fails with
// *CycleError.
func (b *Builder) Build(identity string) (*Graph, error) {
	if b.reg == nil || b.res == nil {
		return nil, fmt.Errorf("graph builder is not initialized")
	}
	if !b.reg.Has(identity) {
		return nil, &registry.NotFoundError{Identity: identity}
	}

	g := NewGraph(identity)
	missing := make(map[string]bool)

	queue := []string{identity}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if entry, err := b.reg.Lookup(current); err == nil {
			var ude *resolver.UnresolvedDependencyError
			if errors.As(b.res.Check(current, entry.Dependencies(), b.reg.Has), &ude) {
				for _, id := range ude.Missing {
					missing[id] = true
				}
			}
		}

		for _, dep := range b.dependencies(current) {
			switch {
			case dep.WellKnown:
				if !g.HasNode(dep.Identity) {
					g.AddNode(dep.Identity, wellKnownNode(dep))
				}
			case b.reg.Has(dep.Identity):
				if !g.HasNode(dep.Identity) {
					g.AddNode(dep.Identity, nil)
					queue = append(queue, dep.Identity)
				}
			default:
				continue
			}
			g.AddEdge(dep.Identity, current)
		}
	}

	if len(missing) > 0 {
		return nil, &resolver.UnresolvedDependencyError{Module: identity, Missing: sortedKeys(missing)}
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}

	return g, nil
}

// BuildAll constructs one graph spanning every registered module, in registration
// order. Unresolved dependencies are kept as nodes marked Missing so the graph can
// still be displayed; cycles are left for the caller to detect.
func (b *Builder) BuildAll() (*Graph, error) {
	if b.reg == nil || b.res == nil {
		return nil, fmt.Errorf("graph builder is not initialized")
	}

	g := NewGraph("")
	for _, id := range b.reg.Identities() {
		if !g.HasNode(id) {
			g.AddNode(id, nil)
		}
	}

	for _, id := range b.reg.Identities() {
		for _, dep := range b.dependencies(id) {
			if !g.HasNode(dep.Identity) {
				switch {
				case dep.WellKnown:
					g.AddNode(dep.Identity, wellKnownNode(dep))
				default:
					g.AddNode(dep.Identity, &Node{Missing: true})
				}
			}
			g.AddEdge(dep.Identity, id)
		}
	}

	return g, nil
}

// dependencies resolves the declared names of a registered module, skipping
// references to the module itself.
func (b *Builder) dependencies(identity string) []resolver.Dependency {
	entry, err := b.reg.Lookup(identity)
	if err != nil {
		return nil
	}

	var deps []resolver.Dependency
	for _, dep := range b.res.ResolveAll(entry.Dependencies()) {
		if dep.Identity == identity {
			continue
		}
		deps = append(deps, dep)
	}
	return deps
}

func wellKnownNode(dep resolver.Dependency) *Node {
	return &Node{WellKnown: true, ModulePath: dep.ModulePath, File: dep.File}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
