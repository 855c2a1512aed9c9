package protomod

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/dbsmedya/protomod/internal/config"
	"github.com/dbsmedya/protomod/internal/diagnostic"
	"github.com/dbsmedya/protomod/internal/lock"
)

const validSource = `
    syntax = "proto3";
    package test;
    message Test {
        string name = 1;
    }
`

const semanticSource = `
    syntax = "proto3";
    package test;
    message Test {
        strings name = 1;
    }
`

const twoErrorsSource = `
    syntax = "proto3";
    package test;
    message Test {
        strings name = 1;
        fold name2 = 2;
    }
`

const syntaxErrorSource = `
    syntax = "proto3";
    package test;
    message Test2 {
        strings name = 1;
        fold name2 == 2;
    }
`

const extensionSource = `
    syntax = "proto3";
    import "google/protobuf/descriptor.proto";
    package test;
    extend google.protobuf.MessageOptions {
        int32 test_option = 1001;
    }
    message Test {
        option (test.test_option) = 123;
        string name = 1;
    }
`

const baseSource = `syntax = "proto3";
package acme.base;

message Money {
  int64 units = 1;
}
`

const appSource = `syntax = "proto3";
package acme.app;

import "base.proto";
import "google/protobuf/timestamp.proto";

message Order {
  acme.base.Money total = 1;
  google.protobuf.Timestamp at = 2;
}
`

func writeProto(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

// testConfig gives every test its own namespace root so their locks never meet.
func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Namespace.Root = "pm_" + strings.NewReplacer("/", "_", "-", "_").Replace(t.Name())
	cfg.Lock.TimeoutSeconds = lock.TimeoutShort
	return cfg
}

func newSession(t *testing.T, cfg *config.Config) *Session {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func compilationError(t *testing.T, err error) *CompilationError {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCompilation)
	var ce *CompilationError
	require.True(t, errors.As(err, &ce))
	return ce
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Lock.TimeoutSeconds = -5
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, "protomod", s.Config().Namespace.Root)
	assert.Empty(t, s.Identities())
}

func TestCompile_SingleFile(t *testing.T) {
	path := writeProto(t, t.TempDir(), "test.proto", validSource)

	set, err := newSession(t, testConfig(t)).Compile(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, set.File, 1)
	assert.Equal(t, "test.proto", set.File[0].GetName())
	assert.Equal(t, "Test", set.File[0].MessageType[0].GetName())
}

func TestCompile_SemanticError(t *testing.T) {
	path := writeProto(t, t.TempDir(), "test.proto", semanticSource)

	_, err := newSession(t, testConfig(t)).Compile(context.Background(), []string{path})
	ce := compilationError(t, err)

	flat := ce.Diagnostics()
	require.Len(t, flat, 1)
	assert.Contains(t, err.Error(), "strings")
	assert.Contains(t, ce.Detailed(), "test.proto:5:9")
}

func TestCompile_NotInIncludePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Compiler.IncludePaths = []string{t.TempDir()}
	path := writeProto(t, t.TempDir(), "test.proto", validSource)

	_, err := newSession(t, cfg).CompileBin(context.Background(), []string{path})
	ce := compilationError(t, err)
	assert.Equal(t, "'"+path+"' is not in any include path", ce.Error())
}

func TestCompile_SameFileMultiplicity(t *testing.T) {
	path := writeProto(t, t.TempDir(), "test.proto", twoErrorsSource)

	_, err := newSession(t, testConfig(t)).Compile(context.Background(), []string{path})
	ce := compilationError(t, err)

	flat := ce.Diagnostics()
	require.GreaterOrEqual(t, len(flat), 2)
	assert.Equal(t, flat[0].Message, err.Error())
	assert.Contains(t, err.Error(), "strings")
	assert.Equal(t, []string{"test.proto"}, diagnostic.Files(flat))
}

func TestCompile_CrossFileMultiplicity(t *testing.T) {
	dir := t.TempDir()
	first := writeProto(t, dir, "test.proto", twoErrorsSource)
	second := writeProto(t, dir, "test2.proto", syntaxErrorSource)

	_, err := newSession(t, testConfig(t)).Compile(context.Background(), []string{first, second})
	ce := compilationError(t, err)

	assert.Equal(t, "errors in multiple files", err.Error())
	flat := ce.Diagnostics()
	assert.Equal(t, []string{"test.proto", "test2.proto"}, diagnostic.Files(flat))
	for _, d := range flat {
		assert.NotEqual(t, diagnostic.MultipleFilesMessage, d.Message)
	}
}

func TestCompileAsModules_ExtensionRoundTrip(t *testing.T) {
	path := writeProto(t, t.TempDir(), "test.proto", extensionSource)
	cfg := testConfig(t)
	s := newSession(t, cfg)

	mods, err := s.CompileAsModules(context.Background(), []string{path})
	require.NoError(t, err)
	require.Contains(t, mods, "test")

	mod := mods["test"]
	assert.Equal(t, cfg.Namespace.Root+".test", mod.Identity)
	xt, ok := mod.Extension("test_option")
	require.True(t, ok)
	mt, ok := mod.Message("Test")
	require.True(t, ok)

	opts, err := s.ResolveOptions(mt.Descriptor())
	require.NoError(t, err)
	assert.Equal(t, int32(123), proto.GetExtension(opts, xt))

	cfg.Compiler.IncludeImports = false
	set, err := s.Compile(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, set.File, 1)
	assert.Equal(t, int32(123), proto.GetExtension(set.File[0].MessageType[0].Options, xt))
}

func TestImport_Idempotent(t *testing.T) {
	path := writeProto(t, t.TempDir(), "test.proto", validSource)
	cfg := testConfig(t)
	s := newSession(t, cfg)

	mods, err := s.CompileAsModules(context.Background(), []string{path})
	require.NoError(t, err)
	files := s.Store().Files.NumFiles()

	again, err := s.Import(context.Background(), cfg.Namespace.Root+".test")
	require.NoError(t, err)
	assert.Same(t, mods["test"], again)
	assert.Equal(t, files, s.Store().Files.NumFiles())

	resolved, err := s.Resolve(context.Background(), cfg.Namespace.Root+".test")
	require.NoError(t, err)
	assert.Same(t, again, resolved)
}

func TestCompileAsModules_DependentFiles(t *testing.T) {
	dir := t.TempDir()
	base := writeProto(t, dir, "base.proto", baseSource)
	app := writeProto(t, dir, "app.proto", appSource)

	cfg := testConfig(t)
	cfg.Modules.Suffix = "_pb"
	mods, err := newSession(t, cfg).CompileAsModules(context.Background(), []string{app, base})
	require.NoError(t, err)
	require.Contains(t, mods, "app_pb")
	require.Contains(t, mods, "base_pb")

	order, ok := mods["app_pb"].Message("Order")
	require.True(t, ok)
	total := order.Descriptor().Fields().ByName("total")
	require.NotNil(t, total)
	assert.Equal(t, protoreflect.FullName("acme.base.Money"), total.Message().FullName())

	require.Len(t, mods["app_pb"].Deps, 2)
	assert.Same(t, mods["base_pb"], mods["app_pb"].Deps[0])
	assert.True(t, mods["app_pb"].Deps[1].WellKnown)
}

func TestCompileAsModules_DuplicatePackageAcrossCalls(t *testing.T) {
	first := writeProto(t, t.TempDir(), "one.proto", validSource)
	second := writeProto(t, t.TempDir(), "two.proto", strings.Replace(validSource, "message Test", "message Other", 1))
	s := newSession(t, testConfig(t))

	_, err := s.CompileAsModules(context.Background(), []string{first})
	require.NoError(t, err)

	_, err = s.CompileAsModules(context.Background(), []string{second})
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
}

func TestCompileAsModules_Preflight(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))

	tests := []struct {
		name  string
		files []string
		want  string
	}{
		{name: "missing", files: []string{filepath.Join(dir, "missing.proto")}, want: "does not exist"},
		{name: "extension", files: []string{txt}, want: "is not a .proto file"},
		{name: "none", files: nil, want: "no"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, testConfig(t))
			_, err := s.CompileAsModules(context.Background(), tt.files)
			require.ErrorIs(t, err, ErrConfiguration)
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, s.Identities())
		})
	}
}

func TestCompileAsModules_StubOnly(t *testing.T) {
	path := writeProto(t, t.TempDir(), "test.proto", validSource)
	cfg := testConfig(t)
	cfg.Modules.StubOnly = true
	s := newSession(t, cfg)

	mods, err := s.CompileAsModules(context.Background(), []string{path})
	require.NoError(t, err)

	mod := mods["test"]
	assert.True(t, mod.StubOnly)
	assert.Contains(t, mod.Stub, "Test")
	assert.Empty(t, mod.MessageNames())
	assert.Zero(t, s.Store().Files.NumFiles())
}

func TestLoadDescriptorSet(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "base.proto", baseSource)
	app := writeProto(t, dir, "app.proto", appSource)
	cfg := testConfig(t)
	s := newSession(t, cfg)

	bin, err := s.CompileBin(context.Background(), []string{app})
	require.NoError(t, err)

	identities, err := s.LoadDescriptorSet(context.Background(), bin)
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.Namespace.Root + ".acme.base", cfg.Namespace.Root + ".acme.app"}, identities)

	plan, err := s.Plan(cfg.Namespace.Root + ".acme.app")
	require.NoError(t, err)
	assert.Contains(t, plan, "import "+cfg.Namespace.Root+".acme.base")

	stub, err := s.Stub(cfg.Namespace.Root + ".acme.app")
	require.NoError(t, err)
	assert.Contains(t, stub, "Order")

	mod, err := s.Import(context.Background(), cfg.Namespace.Root+".acme.app")
	require.NoError(t, err)
	_, ok := mod.Message("Order")
	assert.True(t, ok)

	_, err = s.LoadDescriptorSet(context.Background(), bin)
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
}

func TestRegister_RejectsWholeBatch(t *testing.T) {
	cfg := testConfig(t)
	s := newSession(t, cfg)
	ctx := context.Background()

	_, err := s.Register(ctx, []CompiledUnit{{Name: "base.proto", Package: "acme.base"}})
	require.NoError(t, err)

	tests := []struct {
		name  string
		units []CompiledUnit
	}{
		{
			name:  "already registered",
			units: []CompiledUnit{{Name: "x.proto", Package: "acme.x"}, {Name: "base.proto", Package: "acme.base"}},
		},
		{
			name:  "repeated in batch",
			units: []CompiledUnit{{Name: "x.proto", Package: "acme.x"}, {Name: "x.proto", Package: "acme.x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.units)
			assert.ErrorIs(t, err, ErrDuplicateRegistration)
			assert.Equal(t, []string{cfg.Namespace.Root + ".acme.base"}, s.Identities())
		})
	}
}

func TestCompileBin_NoFilesWithCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = t.TempDir()

	_, err := newSession(t, cfg).CompileBin(context.Background(), nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadDescriptorSet_Malformed(t *testing.T) {
	_, err := newSession(t, testConfig(t)).LoadDescriptorSet(context.Background(), []byte{0x12, 0x01, 0x00})
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestImport_UnresolvedDependency(t *testing.T) {
	dir := t.TempDir()
	writeProto(t, dir, "base.proto", baseSource)
	app := writeProto(t, dir, "app.proto", appSource)
	cfg := testConfig(t)
	cfg.Compiler.IncludeImports = false
	s := newSession(t, cfg)

	bin, err := s.CompileBin(context.Background(), []string{app})
	require.NoError(t, err)
	_, err = s.LoadDescriptorSet(context.Background(), bin)
	require.NoError(t, err)

	_, err = s.Import(context.Background(), cfg.Namespace.Root+".acme.app")
	require.ErrorIs(t, err, ErrSynthesis)
	assert.ErrorIs(t, err, ErrUnresolvedDependency)

	var se *SynthesisError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Plan, "import base.proto")
	assert.Contains(t, err.Error(), "base.proto")
	assert.False(t, s.Namespace().Loaded(cfg.Namespace.Root+".acme.app"))
}

func TestLoadDescriptorSet_SeparateSetsAnyOrder(t *testing.T) {
	tests := []struct {
		name  string
		order []string
	}{
		{name: "dependent first", order: []string{"app", "base"}},
		{name: "dependency first", order: []string{"base", "app"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files := map[string]string{
				"base": writeProto(t, dir, "base.proto", baseSource),
				"app":  writeProto(t, dir, "app.proto", appSource),
			}
			cfg := testConfig(t)
			cfg.Compiler.IncludeImports = false
			s := newSession(t, cfg)
			ctx := context.Background()

			for _, name := range tt.order {
				bin, err := s.CompileBin(ctx, []string{files[name]})
				require.NoError(t, err)
				_, err = s.LoadDescriptorSet(ctx, bin)
				require.NoError(t, err)
			}

			plan, err := s.Plan(cfg.Namespace.Root + ".acme.app")
			require.NoError(t, err)
			assert.Contains(t, plan, "import "+cfg.Namespace.Root+".acme.base\n")

			app, err := s.Import(ctx, cfg.Namespace.Root+".acme.app")
			require.NoError(t, err)
			require.Len(t, app.Deps, 2)
			assert.Equal(t, cfg.Namespace.Root+".acme.base", app.Deps[0].Identity)

			order, ok := app.Message("Order")
			require.True(t, ok)
			assert.Equal(t, protoreflect.FullName("acme.base.Money"), order.Descriptor().Fields().ByName("total").Message().FullName())
		})
	}
}

func TestResolve_Chain(t *testing.T) {
	path := writeProto(t, t.TempDir(), "test.proto", validSource)
	cfg := testConfig(t)
	s := newSession(t, cfg)
	_, err := s.CompileAsModules(context.Background(), []string{path})
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), "vendor.thing")
	assert.ErrorIs(t, err, ErrModuleNotFound)

	vendor := &Module{Identity: "vendor.thing"}
	s.Install(FinderFunc(func(name string) (*Module, bool, error) {
		if name == "vendor.thing" {
			return vendor, true, nil
		}
		return nil, false, nil
	}))

	got, err := s.Resolve(context.Background(), "vendor.thing")
	require.NoError(t, err)
	assert.Same(t, vendor, got)

	own, err := s.Resolve(context.Background(), cfg.Namespace.Root+".test")
	require.NoError(t, err)
	assert.Equal(t, cfg.Namespace.Root+".test", own.Identity)
}

func TestImport_LockBusy(t *testing.T) {
	path := writeProto(t, t.TempDir(), "test.proto", validSource)
	cfg := testConfig(t)
	cfg.Lock.TimeoutSeconds = 0
	s := newSession(t, cfg)

	other := lock.NewNamespaceLock(cfg.Namespace.Root)
	acquired, err := other.AcquireLock(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, acquired)
	defer func() { _, _ = other.ReleaseLock(context.Background()) }()

	_, err = s.CompileAsModules(context.Background(), []string{path})
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestSession_LockExcludesConcurrentCallers(t *testing.T) {
	s := newSession(t, testConfig(t))

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	errs := make([]error, 2)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.withLock(context.Background(), func() error {
				mu.Lock()
				inside++
				maxSeen = max(maxSeen, inside)
				mu.Unlock()

				time.Sleep(50 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, 1, maxSeen)
}
