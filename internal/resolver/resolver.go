// Package resolver maps the dependency names declared by compiled units to the
// modules that must be imported before them.
package resolver

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/protomod/internal/naming"
)

// ErrUnresolvedDependency is returned when a declared dependency has neither a
// registry entry nor a well-known mapping.
var ErrUnresolvedDependency = errors.New("unresolved dependency")

// UnresolvedDependencyError lists the identities a module declared but that were
// never registered.
type UnresolvedDependencyError struct {
	Module  string   // Identity of the module being synthesized
	Missing []string // Sorted, deduplicated identities
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("module %q has unresolved dependencies: %s", e.Module, strings.Join(e.Missing, ", "))
}

// Is reports whether target is ErrUnresolvedDependency.
func (e *UnresolvedDependencyError) Is(target error) bool {
	return target == ErrUnresolvedDependency
}

// WellKnown is a schema shipped with the protobuf runtime.
type WellKnown struct {
	ModulePath string // Go import path of the generated package
	File       string // Schema file path inside the runtime's descriptor registry
}

// defaultWellKnown lists the foundational schemas every runtime ships with.
var defaultWellKnown = []struct {
	name       string
	modulePath string
}{
	{"google.protobuf.any", "google.golang.org/protobuf/types/known/anypb"},
	{"google.protobuf.api", "google.golang.org/protobuf/types/known/apipb"},
	{"google.protobuf.compiler.plugin", "google.golang.org/protobuf/types/pluginpb"},
	{"google.protobuf.descriptor", "google.golang.org/protobuf/types/descriptorpb"},
	{"google.protobuf.duration", "google.golang.org/protobuf/types/known/durationpb"},
	{"google.protobuf.empty", "google.golang.org/protobuf/types/known/emptypb"},
	{"google.protobuf.field_mask", "google.golang.org/protobuf/types/known/fieldmaskpb"},
	{"google.protobuf.source_context", "google.golang.org/protobuf/types/known/sourcecontextpb"},
	{"google.protobuf.struct", "google.golang.org/protobuf/types/known/structpb"},
	{"google.protobuf.timestamp", "google.golang.org/protobuf/types/known/timestamppb"},
	{"google.protobuf.type", "google.golang.org/protobuf/types/known/typepb"},
	{"google.protobuf.wrappers", "google.golang.org/protobuf/types/known/wrapperspb"},
}

// FileIndex maps a schema file name to the identity its unit was registered
// under.
type FileIndex func(file string) (identity string, ok bool)

// Option configures a Resolver.
type Option func(*Resolver)

// WithFileIndex resolves import-path dependencies through idx. Without one,
// every import-path dependency stays unresolved.
func WithFileIndex(idx FileIndex) Option {
	return func(r *Resolver) {
		r.files = idx
	}
}

// IsFileReference reports whether a dependency name is an import path rather
// than a package. Compilers record one when an imported file was not part of
// the same descriptor set, so its package is unknown until that file is
// registered.
func IsFileReference(name string) bool {
	return strings.HasSuffix(name, naming.ProtoExt)
}

// Dependency is the resolved target of a declared dependency name.
type Dependency struct {
	Name       string // Name as declared by the unit
	Identity   string // Registry identity, or the module path for well-known schemas
	WellKnown  bool
	ModulePath string // Set for well-known schemas
	File       string // Set for well-known schemas and import-path dependencies
}

// Resolver resolves dependency names against a root namespace and a table of
// well-known schemas. Resolution never materializes anything.
type Resolver struct {
	root      string
	wellKnown *orderedmap.OrderedMap[string, WellKnown]
	files     FileIndex
}

// New creates a resolver for root. Extra entries extend or override the default
// well-known table; their schema file is derived from the dotted name.
func New(root string, extra map[string]string, opts ...Option) *Resolver {
	table := orderedmap.NewOrderedMap[string, WellKnown]()
	for _, wk := range defaultWellKnown {
		table.Set(wk.name, WellKnown{ModulePath: wk.modulePath, File: naming.DottedToFile(wk.name)})
	}

	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		table.Set(name, WellKnown{ModulePath: extra[name], File: naming.DottedToFile(name)})
	}

	r := &Resolver{root: root, wellKnown: table}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the namespace root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps a declared dependency name to its target. An import path
// resolves to the identity of the registered file, or to itself while that
// file is unknown.
func (r *Resolver) Resolve(name string) Dependency {
	if IsFileReference(name) {
		if r.files != nil {
			if identity, ok := r.files(name); ok {
				return Dependency{Name: name, Identity: identity, File: name}
			}
		}
		return Dependency{Name: name, Identity: name, File: name}
	}
	if wk, ok := r.wellKnown.Get(name); ok {
		return Dependency{
			Name:       name,
			Identity:   wk.ModulePath,
			WellKnown:  true,
			ModulePath: wk.ModulePath,
			File:       wk.File,
		}
	}
	return Dependency{Name: name, Identity: naming.Join(r.root, name)}
}

// ResolveAll resolves names in order.
func (r *Resolver) ResolveAll(names []string) []Dependency {
	deps := make([]Dependency, len(names))
	for i, name := range names {
		deps[i] = r.Resolve(name)
	}
	return deps
}

// LookupWellKnown finds a well-known schema by dotted name or by module path.
func (r *Resolver) LookupWellKnown(key string) (WellKnown, bool) {
	if wk, ok := r.wellKnown.Get(key); ok {
		return wk, true
	}
	for el := r.wellKnown.Front(); el != nil; el = el.Next() {
		if el.Value.ModulePath == key {
			return el.Value, true
		}
	}
	return WellKnown{}, false
}

// IsWellKnown returns true if name is in the well-known table.
func (r *Resolver) IsWellKnown(name string) bool {
	_, ok := r.wellKnown.Get(name)
	return ok
}

// WellKnownNames returns the table's names in declaration order.
func (r *Resolver) WellKnownNames() []string {
	return r.wellKnown.Keys()
}

// Check verifies that every non-well-known name resolves to an identity for which
// has returns true.
func (r *Resolver) Check(module string, names []string, has func(identity string) bool) error {
	missing := make(map[string]bool)
	for _, dep := range r.ResolveAll(names) {
		if dep.WellKnown || has(dep.Identity) {
			continue
		}
		missing[dep.Identity] = true
	}
	if len(missing) == 0 {
		return nil
	}

	list := make([]string, 0, len(missing))
	for id := range missing {
		list = append(list, id)
	}
	sort.Strings(list)
	return &UnresolvedDependencyError{Module: module, Missing: list}
}
