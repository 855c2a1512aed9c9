// Package synth turns registry entries into lazily materialized modules and
// exposes them through an explicit namespace.
package synth

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/protomod/internal/graph"
	"github.com/dbsmedya/protomod/internal/logger"
	"github.com/dbsmedya/protomod/internal/naming"
	"github.com/dbsmedya/protomod/internal/registry"
	"github.com/dbsmedya/protomod/internal/resolver"
	"github.com/dbsmedya/protomod/internal/runtime"
)

// stubHeader opens every stub document.
const stubHeader = "// Code generated by protomod. DO NOT EDIT.\n"

// Namespace maps identities to modules that are materialized on first Import and
// cached afterwards. It is not safe for concurrent use; callers serialize access
// together with registration.
type Namespace struct {
	reg      *registry.Registry
	res      *resolver.Resolver
	store    *runtime.Store
	log      *logger.Logger
	stubOnly bool
	modules  map[string]*Module
	failed   map[string]error // Identities left partly registered in the store
}

// Option configures a Namespace.
type Option func(*Namespace)

// WithLogger sets the namespace logger.
func WithLogger(l *logger.Logger) Option {
	return func(n *Namespace) {
		if l != nil {
			n.log = l
		}
	}
}

// WithStubOnly makes Import return stub-only modules without touching the runtime.
func WithStubOnly(stubOnly bool) Option {
	return func(n *Namespace) {
		n.stubOnly = stubOnly
	}
}

// New creates a namespace over a registry, resolver and descriptor store.
func New(reg *registry.Registry, res *resolver.Resolver, store *runtime.Store, opts ...Option) *Namespace {
	n := &Namespace{
		reg:     reg,
		res:     res,
		store:   store,
		log:     logger.NewNop(),
		modules: make(map[string]*Module),
		failed:  make(map[string]error),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// canonical maps a well-known name or module path to the module path.
func (n *Namespace) canonical(name string) (string, bool) {
	if wk, ok := n.res.LookupWellKnown(name); ok {
		return wk.ModulePath, true
	}
	return name, false
}

// Has reports whether name is a registered identity or a well-known schema.
func (n *Namespace) Has(name string) bool {
	identity, wellKnown := n.canonical(name)
	return wellKnown || n.reg.Has(identity)
}

// Loaded reports whether name has already been materialized.
func (n *Namespace) Loaded(name string) bool {
	identity, _ := n.canonical(name)
	_, ok := n.modules[identity]
	return ok
}

// Identities returns the registered identities in registration order.
func (n *Namespace) Identities() []string {
	return n.reg.Identities()
}

// Plan returns the materialization plan for a registered identity.
func (n *Namespace) Plan(identity string) (*Plan, error) {
	entry, err := n.reg.Lookup(identity)
	if err != nil {
		return nil, err
	}

	var imports []resolver.Dependency
	for _, dep := range n.res.ResolveAll(entry.Dependencies()) {
		if dep.Identity == identity {
			continue
		}
		imports = append(imports, dep)
	}

	return &Plan{
		Identity:    identity,
		Imports:     imports,
		Descriptors: append([]string(nil), entry.Units...),
		StubOnly:    n.stubOnly,
	}, nil
}

// Stub returns the static-typing document for a registered identity: a package
// clause, the imports, then every unit's stub text in registration order.
func (n *Namespace) Stub(identity string) (string, error) {
	entry, err := n.reg.Lookup(identity)
	if err != nil {
		return "", err
	}
	plan, err := n.Plan(identity)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(stubHeader)
	fmt.Fprintf(&sb, "// module %s\n\npackage %s\n", identity, naming.LastSegment(identity))

	if len(plan.Imports) > 0 {
		sb.WriteString("\nimport (\n")
		for _, dep := range plan.Imports {
			fmt.Fprintf(&sb, "\t%q\n", importPath(dep))
		}
		sb.WriteString(")\n")
	}

	if text := entry.Stub(); text != "" {
		sb.WriteString("\n")
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func importPath(dep resolver.Dependency) string {
	if dep.WellKnown {
		return dep.ModulePath
	}
	if dep.Identity == dep.File {
		return dep.File
	}
	return strings.ReplaceAll(dep.Identity, ".", "/")
}

// Import returns the module for name, materializing it and everything it imports
// on first use. Later calls return the same *Module without touching the runtime.
func (n *Namespace) Import(name string) (*Module, error) {
	identity, wellKnown := n.canonical(name)
	if m, ok := n.modules[identity]; ok {
		return m, nil
	}

	if wellKnown {
		return n.importWellKnown(identity)
	}
	if !n.reg.Has(identity) {
		return nil, &registry.NotFoundError{Identity: identity}
	}
	if n.stubOnly {
		return n.importStub(identity)
	}

	plan, err := n.Plan(identity)
	if err != nil {
		return nil, err
	}

	g, err := graph.NewBuilder(n.reg, n.res).Build(identity)
	if err != nil {
		return nil, &SynthesisError{Identity: identity, Plan: plan.String(), Err: err}
	}
	order, err := g.MaterializeOrder()
	if err != nil {
		return nil, &SynthesisError{Identity: identity, Plan: plan.String(), Err: err}
	}

	for _, id := range order {
		if _, done := n.modules[id]; done {
			continue
		}

		if g.GetNode(id).WellKnown {
			_, err = n.importWellKnown(id)
		} else {
			_, err = n.materialize(id)
		}
		if err == nil {
			continue
		}
		if id == identity {
			return nil, err
		}
		return nil, &SynthesisError{Identity: identity, Plan: plan.String(), Err: err}
	}

	return n.modules[identity], nil
}

// materialize registers and binds every descriptor of one entry. Its
// dependencies must already be loaded. A failure after the store took some of
// the entry's files is final: later calls return the same error.
func (n *Namespace) materialize(identity string) (*Module, error) {
	if err, ok := n.failed[identity]; ok {
		return nil, err
	}
	entry, err := n.reg.Lookup(identity)
	if err != nil {
		return nil, err
	}
	plan, err := n.Plan(identity)
	if err != nil {
		return nil, err
	}
	log := n.log.WithModule(identity)

	m := newModule(identity, naming.LastSegment(identity))
	for i, desc := range entry.Descriptors {
		fd, err := n.store.RegisterDescriptor(desc)
		if err != nil {
			return nil, n.fail(identity, plan, i > 0, err)
		}
		b, err := n.store.Materialize(fd)
		if err != nil {
			return nil, n.fail(identity, plan, true, err)
		}
		m.bind(b)
		log.Debugw("Bound descriptor", "file", entry.Units[i], "messages", len(b.Messages), "enums", len(b.Enums))
	}

	for _, dep := range plan.Imports {
		if d, ok := n.modules[dep.Identity]; ok {
			m.Deps = append(m.Deps, d)
		}
	}

	n.modules[identity] = m
	entry.SetGenerated(plan.String())
	log.Infow("Materialized module", "files", len(entry.Descriptors), "imports", len(plan.Imports))
	return m, nil
}

func (n *Namespace) fail(identity string, plan *Plan, partial bool, err error) error {
	se := &SynthesisError{Identity: identity, Plan: plan.String(), Err: err}
	if partial {
		n.failed[identity] = se
		n.log.WithModule(identity).Warnw("Module left partly registered", "error", err)
	}
	return se
}

func (n *Namespace) importWellKnown(modulePath string) (*Module, error) {
	wk, ok := n.res.LookupWellKnown(modulePath)
	if !ok {
		return nil, &registry.NotFoundError{Identity: modulePath}
	}

	fd, err := n.store.FindFileByPath(wk.File)
	if err != nil {
		return nil, fmt.Errorf("well-known schema %q is not linked into this binary: %w", wk.File, err)
	}
	b, err := n.store.BindRegistered(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to bind well-known schema %q: %w", wk.File, err)
	}

	m := newModule(modulePath, naming.LastSegment(strings.ReplaceAll(modulePath, "/", ".")))
	m.WellKnown = true
	m.bind(b)

	n.modules[modulePath] = m
	n.log.WithModule(modulePath).Debug("Bound well-known module")
	return m, nil
}

func (n *Namespace) importStub(identity string) (*Module, error) {
	entry, err := n.reg.Lookup(identity)
	if err != nil {
		return nil, err
	}
	plan, err := n.Plan(identity)
	if err != nil {
		return nil, err
	}
	text, err := n.Stub(identity)
	if err != nil {
		return nil, err
	}

	m := newModule(identity, naming.LastSegment(identity))
	m.StubOnly = true
	m.Stub = text

	n.modules[identity] = m
	entry.SetGenerated(plan.String())
	return m, nil
}

// FindModule makes a Namespace usable as a Finder. Names it does not know fall
// through.
func (n *Namespace) FindModule(name string) (*Module, bool, error) {
	if !n.Has(name) {
		return nil, false, nil
	}
	m, err := n.Import(name)
	return m, true, err
}
