package protomod

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/dbsmedya/protomod/internal/cache"
	"github.com/dbsmedya/protomod/internal/compiler"
	"github.com/dbsmedya/protomod/internal/config"
	"github.com/dbsmedya/protomod/internal/graph"
	"github.com/dbsmedya/protomod/internal/lock"
	"github.com/dbsmedya/protomod/internal/logger"
	"github.com/dbsmedya/protomod/internal/naming"
	"github.com/dbsmedya/protomod/internal/registry"
	"github.com/dbsmedya/protomod/internal/resolver"
	"github.com/dbsmedya/protomod/internal/runtime"
	"github.com/dbsmedya/protomod/internal/synth"
)

// wellKnownDir holds the schemas every runtime links in.
const wellKnownDir = "google/protobuf/"

// Session is the single owner of a registry and the descriptor store behind
// it. Registration and materialization are serialized by the namespace lock;
// compilation runs outside it.
type Session struct {
	cfg       *config.Config
	log       *logger.Logger
	registry  *registry.Registry
	resolver  *resolver.Resolver
	store     *runtime.Store
	namespace *synth.Namespace
	chain     *synth.Chain
	lock      *lock.NamedLock
	cache     *cache.DiskCache
	preflight *compiler.Preflight
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger; the default discards everything.
func WithLogger(l *logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithCache uses dc for compile results regardless of the cache config.
func WithCache(dc *cache.DiskCache) Option {
	return func(s *Session) {
		s.cache = dc
	}
}

// New creates a session. A nil cfg means config.DefaultConfig().
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reg := registry.New()
	s := &Session{
		cfg:      cfg,
		log:      logger.NewNop(),
		registry: reg,
		resolver: resolver.New(cfg.Namespace.Root, cfg.Namespace.WellKnown, resolver.WithFileIndex(reg.IdentityOfFile)),
		store:    runtime.NewStore(),
		lock:     lock.NewNamespaceLock(cfg.Namespace.Root),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cache == nil && cfg.Cache.Enabled {
		dc, err := cache.Open(cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to open compile cache: %w", err)
		}
		s.cache = dc
	}

	s.preflight = compiler.NewPreflight(s.log)
	s.namespace = synth.New(s.registry, s.resolver, s.store,
		synth.WithLogger(s.log),
		synth.WithStubOnly(cfg.Modules.StubOnly),
	)
	s.chain = synth.NewChain(s.namespace)

	s.log.Debugw("Session created", "root", cfg.Namespace.Root, "stub_only", cfg.Modules.StubOnly, "cache", s.cache != nil)
	return s, nil
}

// Config returns the session configuration.
func (s *Session) Config() *config.Config { return s.cfg }

// Registry returns the session registry.
func (s *Session) Registry() *registry.Registry { return s.registry }

// Store returns the session descriptor store.
func (s *Session) Store() *runtime.Store { return s.store }

// Namespace returns the session namespace.
func (s *Session) Namespace() *synth.Namespace { return s.namespace }

func (s *Session) newCompiler(opts compiler.Options) *compiler.Compiler {
	options := []compiler.Option{compiler.WithLogger(s.log)}
	if s.cache != nil {
		options = append(options, compiler.WithCache(s.cache))
	}
	return compiler.New(opts, options...)
}

// withLock runs fn under the namespace lock.
func (s *Session) withLock(ctx context.Context, fn func() error) error {
	return s.lock.WithLock(ctx, s.cfg.Lock.TimeoutSeconds, fn)
}

// CompileBin compiles files into a serialized FileDescriptorSet with the
// configured compiler options.
func (s *Session) CompileBin(ctx context.Context, files []string) ([]byte, error) {
	return s.newCompiler(compiler.OptionsFromConfig(&s.cfg.Compiler)).Compile(ctx, files)
}

// Compile is CompileBin decoded. Custom options whose extensions were
// materialized in this session decode as extension fields.
func (s *Session) Compile(ctx context.Context, files []string) (*descriptorpb.FileDescriptorSet, error) {
	bin, err := s.CompileBin(ctx, files)
	if err != nil {
		return nil, err
	}
	set := &descriptorpb.FileDescriptorSet{}
	if err := (proto.UnmarshalOptions{Resolver: s.store}).Unmarshal(bin, set); err != nil {
		return nil, fmt.Errorf("failed to decode descriptor set: %w", err)
	}
	return set, nil
}

// CompileAsModules compiles each file on its own, registers the results and
// returns one module per file, keyed by the file stem plus the configured
// suffix. Every file is checked before anything is compiled. Without
// configured include paths each file is compiled relative to its own
// directory.
func (s *Session) CompileAsModules(ctx context.Context, files []string) (map[string]*Module, error) {
	includes := s.cfg.Compiler.IncludePaths
	if err := s.preflight.RunAllChecks(files, includes); err != nil {
		return nil, err
	}

	opts := compiler.OptionsFromConfig(&s.cfg.Compiler)
	opts.IncludeImports = false
	opts.IncludeSourceInfo = false
	c := s.newCompiler(opts)

	perFile := make([][]registry.CompiledUnit, len(files))
	for i, f := range files {
		units, err := c.CompileUnits(ctx, []string{f})
		if err != nil {
			return nil, err
		}
		perFile[i] = units
	}

	var all []registry.CompiledUnit
	for _, units := range perFile {
		all = append(all, units...)
	}

	modules := make(map[string]*Module, len(files))
	err := s.withLock(ctx, func() error {
		if _, err := s.register(all); err != nil {
			return err
		}
		for i, f := range files {
			identity, err := s.identity(perFile[i][0])
			if err != nil {
				return err
			}
			m, err := s.namespace.Import(identity)
			if err != nil {
				return err
			}
			modules[naming.ModuleName(f, s.cfg.Modules.Suffix)] = m
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return modules, nil
}

// LoadDescriptorSet splits a serialized FileDescriptorSet and registers each
// file. Well-known schemas already linked into the runtime are skipped. It
// returns the identities touched, in first-registered order.
func (s *Session) LoadDescriptorSet(ctx context.Context, bin []byte) ([]string, error) {
	units, err := compiler.UnitsFromDescriptorSet(bin)
	if err != nil {
		return nil, err
	}

	var keep []registry.CompiledUnit
	for _, u := range units {
		if strings.HasPrefix(u.Name, wellKnownDir) && s.store.HasFile(u.Name) {
			continue
		}
		keep = append(keep, u)
	}
	return s.Register(ctx, keep)
}

// Register adds units to the registry under the identity derived from their
// package, namespaced under the configured root.
func (s *Session) Register(ctx context.Context, units []registry.CompiledUnit) ([]string, error) {
	var identities []string
	err := s.withLock(ctx, func() error {
		var err error
		identities, err = s.register(units)
		return err
	})
	return identities, err
}

// register refuses a unit whose file already backs its identity, or whose
// identity was already materialized: the descriptor store cannot take it again.
// The whole batch is checked before any unit is registered.
func (s *Session) register(units []registry.CompiledUnit) ([]string, error) {
	ids := make([]string, len(units))
	pending := make(map[string]bool, len(units))
	for i, u := range units {
		identity, err := s.identity(u)
		if err != nil {
			return nil, err
		}
		dup := pending[u.Name] || s.namespace.Loaded(identity)
		if entry, err := s.registry.Lookup(identity); err == nil && slices.Contains(entry.Units, u.Name) {
			dup = true
		}
		if dup {
			return nil, &runtime.DuplicateRegistrationError{File: u.Name, Name: identity}
		}
		pending[u.Name] = true
		ids[i] = identity
	}

	var identities []string
	for i, u := range units {
		s.registry.Register(ids[i], u)
		if !slices.Contains(identities, ids[i]) {
			identities = append(identities, ids[i])
		}
		s.log.WithModule(ids[i]).Debugw("Registered unit", "file", u.Name, "dependencies", len(u.Dependencies))
	}
	return identities, nil
}

func (s *Session) identity(u registry.CompiledUnit) (string, error) {
	identity, err := naming.JoinSafe(s.cfg.Namespace.Root, naming.PackageOrStem(u.Package, u.Name))
	if err != nil {
		return "", &compiler.ConfigurationError{Check: "identity", Message: err.Error(), Files: []string{u.Name}}
	}
	return identity, nil
}

// Import materializes the module for name and its dependencies on first use
// and returns the cached module afterwards. name is an identity, a well-known
// schema name or a well-known module path.
func (s *Session) Import(ctx context.Context, name string) (*Module, error) {
	var m *Module
	err := s.withLock(ctx, func() error {
		var err error
		m, err = s.namespace.Import(name)
		return err
	})
	return m, err
}

// Resolve asks the resolution chain for name. The session namespace answers
// first unless a finder was installed after it.
func (s *Session) Resolve(ctx context.Context, name string) (*Module, error) {
	var m *Module
	err := s.withLock(ctx, func() error {
		var err error
		m, err = s.chain.Resolve(name)
		return err
	})
	return m, err
}

// Install puts f in front of the resolution chain. There is no uninstall.
func (s *Session) Install(f Finder) {
	s.chain.Install(f)
}

// Plan returns the materialization plan for identity as text.
func (s *Session) Plan(identity string) (string, error) {
	p, err := s.namespace.Plan(identity)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

// Graph returns the dependency graph of every registered module. Unresolved
// dependencies appear as nodes marked Missing.
func (s *Session) Graph() (*graph.Graph, error) {
	return graph.NewBuilder(s.registry, s.resolver).BuildAll()
}

// Stub returns the static-typing declarations for identity.
func (s *Session) Stub(identity string) (string, error) {
	return s.namespace.Stub(identity)
}

// Identities returns every registered identity in registration order.
func (s *Session) Identities() []string {
	return s.namespace.Identities()
}

// ResolveOptions returns the options of d with custom options decoded against
// the extensions materialized in this session.
func (s *Session) ResolveOptions(d protoreflect.Descriptor) (proto.Message, error) {
	return s.store.ResolveOptions(d.Options())
}
