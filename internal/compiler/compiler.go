// Package compiler adapts the schema compiler to protomod: it turns source
// files into a binary descriptor set or into compiled units, and failures into
// diagnostic trees.
package compiler

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/bufbuild/protocompile"
	"github.com/bufbuild/protocompile/linker"
	"github.com/bufbuild/protocompile/protoutil"
	"github.com/bufbuild/protocompile/reporter"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/dbsmedya/protomod/internal/cache"
	"github.com/dbsmedya/protomod/internal/comments"
	"github.com/dbsmedya/protomod/internal/config"
	"github.com/dbsmedya/protomod/internal/diagnostic"
	"github.com/dbsmedya/protomod/internal/frame"
	"github.com/dbsmedya/protomod/internal/logger"
	"github.com/dbsmedya/protomod/internal/naming"
	"github.com/dbsmedya/protomod/internal/registry"
	"github.com/dbsmedya/protomod/internal/stub"
)

// wellKnownPrefix marks imports that resolve to schemas shipped with the runtime.
const wellKnownPrefix = "google/protobuf/"

// Options controls one compiler.
type Options struct {
	IncludePaths      []string         // Searched in order; defaults to the first file's directory
	IncludeImports    bool             // Emit imported files in binary mode
	IncludeSourceInfo bool             // Keep source code info in emitted descriptors
	CommentOptions    map[string]int32 // Element kind -> option field number
	Parallelism       int              // Files compiled at once; 0 means GOMAXPROCS
}

// OptionsFromConfig builds Options from the compiler config section.
func OptionsFromConfig(cfg *config.CompilerConfig) Options {
	return Options{
		IncludePaths:      cfg.IncludePaths,
		IncludeImports:    cfg.IncludeImports,
		IncludeSourceInfo: cfg.IncludeSourceInfo,
		CommentOptions:    cfg.CommentOptions,
		Parallelism:       cfg.Parallelism,
	}
}

func (o Options) fingerprint(includes []string) string {
	kinds := make([]string, 0, len(o.CommentOptions))
	for k, v := range o.CommentOptions {
		kinds = append(kinds, fmt.Sprintf("%s=%d", k, v))
	}
	sort.Strings(kinds)
	return fmt.Sprintf("imports=%t;source=%t;includes=%s;comments=%s",
		o.IncludeImports, o.IncludeSourceInfo, strings.Join(absAll(includes), string(filepath.ListSeparator)), strings.Join(kinds, ","))
}

// Compiler compiles schema source files.
type Compiler struct {
	opts   Options
	logger *logger.Logger
	cache  *cache.DiskCache
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *logger.Logger) Option {
	return func(c *Compiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCache stores results in dc and serves unchanged requests from it.
func WithCache(dc *cache.DiskCache) Option {
	return func(c *Compiler) {
		c.cache = dc
	}
}

// New creates a compiler.
func New(opts Options, options ...Option) *Compiler {
	c := &Compiler{opts: opts, logger: logger.NewNop()}
	for _, o := range options {
		o(c)
	}
	return c
}

// Options returns the compiler's options.
func (c *Compiler) Options() Options {
	return c.opts
}

// fileResult is the outcome of compiling one requested file.
type fileResult struct {
	input   string
	file    linker.File
	diags   []*diagnostic.Node
	tracker *sourceTracker
}

// run compiles every file on its own, in parallel, and returns the results in
// input order. Failures of all files are collected into one CompilationError,
// each diagnostic once.
func (c *Compiler) run(ctx context.Context, files []string) ([]*fileResult, []string, error) {
	if len(files) == 0 {
		return nil, nil, errNoFiles()
	}
	includes := c.includes(files)

	results := make([]*fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	limit := c.opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(limit)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			res, err := c.compileOne(gctx, f, includes)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var trees []*diagnostic.Node
	sources := make(map[string][]byte)
	seen := make(map[diagKey]bool)
	for _, res := range results {
		var diags []*diagnostic.Node
		for _, d := range res.diags {
			if k := keyOf(d); !seen[k] {
				seen[k] = true
				diags = append(diags, d)
			}
		}
		if len(diags) == 0 {
			continue
		}
		trees = append(trees, diagnostic.Group(diags))
		var names []string
		for _, d := range diags {
			if d.Filename != "" {
				names = append(names, d.Filename)
			}
		}
		for name, data := range res.tracker.sources(names, includes) {
			sources[name] = data
		}
	}
	if root := diagnostic.Aggregate(trees...); root != nil {
		err := &CompilationError{Root: root, Sources: sources}
		c.logger.Debugw("Compilation failed", "files", len(files), "diagnostics", len(err.Diagnostics()))
		return nil, nil, err
	}
	return results, includes, nil
}

func errNoFiles() error {
	return &ConfigurationError{Check: "input", Message: "no schema files given"}
}

// includes returns the configured include paths, or the first file's directory.
func (c *Compiler) includes(files []string) []string {
	if len(c.opts.IncludePaths) > 0 {
		return c.opts.IncludePaths
	}
	return []string{filepath.Dir(files[0])}
}

func (c *Compiler) compileOne(ctx context.Context, file string, includes []string) (*fileResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &fileResult{input: file, tracker: newSourceTracker()}

	name, ok := locate(file, includes)
	if !ok {
		res.diags = []*diagnostic.Node{notInIncludePath(file)}
		return res, nil
	}
	log := c.logger.WithFile(name)

	var mu sync.Mutex
	rep := reporter.NewReporter(
		func(err reporter.ErrorWithPos) error {
			mu.Lock()
			res.diags = append(res.diags, positioned(err))
			mu.Unlock()
			return nil
		},
		func(err reporter.ErrorWithPos) {
			log.Warnw("Compiler warning", "position", err.GetPosition().String(), "warning", err.Unwrap().Error())
		},
	)
	pc := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			ImportPaths: includes,
			Accessor:    res.tracker.open,
		}),
		Reporter:       rep,
		SourceInfoMode: protocompile.SourceInfoStandard,
	}

	linked, err := pc.Compile(ctx, name)
	if err == nil {
		res.file = linked[0]
		log.Debug("Compiled file")
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	mu.Lock()
	defer mu.Unlock()
	if failures := res.tracker.failureList(); len(failures) > 0 {
		for _, f := range failures {
			res.diags = append(res.diags, openFailure(f.path, f.err))
		}
	} else if len(res.diags) == 0 {
		res.diags = append(res.diags, plainFailure(err))
	}
	return res, nil
}

// diagKey identifies a diagnostic reported by more than one compilation, as
// happens when a broken file is imported by several requested files.
type diagKey struct {
	file    string
	offset  int
	length  int
	message string
}

func keyOf(d *diagnostic.Node) diagKey {
	k := diagKey{file: d.Filename, offset: -1, message: d.Message}
	if len(d.Labels) > 0 {
		k.offset, k.length = d.Labels[0].Span.Offset, d.Labels[0].Span.Length
	}
	return k
}

// positioned converts a compiler error with a source position into a
// diagnostic labelled with its span.
func positioned(err reporter.ErrorWithPos) *diagnostic.Node {
	start, end := err.Start(), err.End()
	length := end.Offset - start.Offset
	if length < 0 {
		length = 0
	}
	msg := err.Error()
	if inner := err.Unwrap(); inner != nil {
		msg = inner.Error()
	}
	return &diagnostic.Node{
		Message:  msg,
		Severity: diagnostic.SeverityError,
		Filename: start.Filename,
		Causes:   []string{},
		Labels:   []diagnostic.Label{{Label: "found here", Span: diagnostic.Span{Offset: start.Offset, Length: length}}},
	}
}

// Compile compiles files into a serialized FileDescriptorSet. Files come out
// dependencies first; imported files are included only with IncludeImports.
func (c *Compiler) Compile(ctx context.Context, files []string) ([]byte, error) {
	if len(files) == 0 {
		return nil, errNoFiles()
	}
	key := c.cacheKey("set", files)
	if p, ok := c.cached(key); ok {
		return p.Set, nil
	}

	results, _, err := c.run(ctx, files)
	if err != nil {
		return nil, err
	}

	set := &descriptorpb.FileDescriptorSet{}
	for _, fd := range c.ordered(results, c.opts.IncludeImports) {
		set.File = append(set.File, c.fileProto(fd))
	}
	bin, err := proto.MarshalOptions{Deterministic: true}.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to encode descriptor set: %w", err)
	}

	c.store(key, files, results, &cache.Payload{Set: bin})
	c.logger.Debugw("Compiled descriptor set", "inputs", len(files), "files", len(set.File), "bytes", len(bin))
	return bin, nil
}

// CompileUnits compiles files into one unit per requested file, dependencies
// first. Each unit's descriptor is the record the binary set would carry.
func (c *Compiler) CompileUnits(ctx context.Context, files []string) ([]registry.CompiledUnit, error) {
	if len(files) == 0 {
		return nil, errNoFiles()
	}
	key := c.cacheKey("units", files)
	if p, ok := c.cached(key); ok {
		return p.Units, nil
	}

	results, _, err := c.run(ctx, files)
	if err != nil {
		return nil, err
	}

	fds := c.ordered(results, false)
	set := &descriptorpb.FileDescriptorSet{}
	for _, fd := range fds {
		set.File = append(set.File, c.fileProto(fd))
	}
	bin, err := proto.MarshalOptions{Deterministic: true}.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("failed to encode descriptor set: %w", err)
	}
	records, err := c.records(bin, len(fds))
	if err != nil {
		return nil, err
	}
	if len(records) != len(fds) {
		return nil, fmt.Errorf("descriptor set holds %d records for %d files", len(records), len(fds))
	}

	units := make([]registry.CompiledUnit, len(fds))
	for i, fd := range fds {
		units[i] = registry.CompiledUnit{
			Name:         fd.Path(),
			Package:      string(fd.Package()),
			Descriptor:   records[i],
			Dependencies: Dependencies(fd),
			Stub:         stub.Generate(fd),
		}
	}

	c.store(key, files, results, &cache.Payload{Units: units})
	return units, nil
}

// records splits an encoded set of n files. A single file must fill the set
// exactly.
func (c *Compiler) records(bin []byte, n int) ([][]byte, error) {
	if n == 1 {
		rec, err := frame.ExtractSingle(bin)
		if err != nil {
			return nil, err
		}
		return [][]byte{rec}, nil
	}
	return frame.Split(bin)
}

// ordered walks the import graph of every result and returns files with
// dependencies first, each once. Only requested files are kept unless all is
// set.
func (c *Compiler) ordered(results []*fileResult, all bool) []protoreflect.FileDescriptor {
	requested := make(map[string]bool, len(results))
	for _, res := range results {
		requested[res.file.Path()] = true
	}

	seen := make(map[string]bool)
	var out []protoreflect.FileDescriptor
	var visit func(fd protoreflect.FileDescriptor)
	visit = func(fd protoreflect.FileDescriptor) {
		if seen[fd.Path()] {
			return
		}
		seen[fd.Path()] = true
		imports := fd.Imports()
		for i := 0; i < imports.Len(); i++ {
			visit(imports.Get(i).FileDescriptor)
		}
		if all || requested[fd.Path()] {
			out = append(out, fd)
		}
	}
	for _, res := range results {
		visit(res.file)
	}
	return out
}

// fileProto converts fd into a descriptor proto with comment options applied
// and, unless requested, source info removed.
func (c *Compiler) fileProto(fd protoreflect.FileDescriptor) *descriptorpb.FileDescriptorProto {
	fdp := proto.Clone(protoutil.ProtoFromFileDescriptor(fd)).(*descriptorpb.FileDescriptorProto)
	if len(c.opts.CommentOptions) > 0 {
		comments.Apply(fdp, c.opts.CommentOptions)
	}
	if !c.opts.IncludeSourceInfo {
		fdp.SourceCodeInfo = nil
	}
	return fdp
}

// Dependencies lists the dependency names of fd: well-known imports by their
// dotted file name, imports whose descriptor was unavailable by import path,
// everything else by package. Imports of fd's own package are skipped.
func Dependencies(fd protoreflect.FileDescriptor) []string {
	own := naming.PackageOrStem(string(fd.Package()), fd.Path())

	var deps []string
	imports := fd.Imports()
	for i := 0; i < imports.Len(); i++ {
		imp := imports.Get(i)
		if strings.HasPrefix(imp.Path(), wellKnownPrefix) {
			deps = append(deps, naming.DottedFileName(imp.Path()))
			continue
		}
		if imp.IsPlaceholder() {
			deps = append(deps, imp.Path())
			continue
		}
		name := naming.PackageOrStem(string(imp.Package()), imp.Path())
		if name == own {
			continue
		}
		deps = append(deps, name)
	}
	return deps
}

func (c *Compiler) cacheKey(mode string, files []string) cache.Digest {
	if c.cache == nil {
		return cache.Digest{}
	}
	parts := append([]string{mode, c.opts.fingerprint(c.includes(files))}, absAll(files)...)
	return cache.Key(parts...)
}

func (c *Compiler) cached(key cache.Digest) (*cache.Payload, bool) {
	if c.cache == nil {
		return nil, false
	}
	var p cache.Payload
	found, err := c.cache.Get(key, &p)
	if err != nil {
		c.logger.Warnw("Ignoring unreadable cache entry", "key", key.String(), "error", err)
		if err := c.cache.Delete(key); err != nil {
			c.logger.Warnw("Failed to evict cache entry", "key", key.String(), "error", err)
		}
		return nil, false
	}
	if !found || !p.Fresh() {
		return nil, false
	}
	c.logger.Debugw("Cache hit", "key", key.String(), "name", p.Name)
	return &p, true
}

func (c *Compiler) store(key cache.Digest, files []string, results []*fileResult, p *cache.Payload) {
	if c.cache == nil {
		return
	}
	var paths []string
	for _, res := range results {
		paths = append(paths, res.tracker.paths()...)
	}
	slices.Sort(paths)
	paths = slices.Compact(paths)

	p.Name = strings.Join(files, " ")
	p.Inputs = files
	if err := p.Record(paths); err != nil {
		c.logger.Warnw("Not caching result", "error", err)
		return
	}
	if err := c.cache.Put(key, p); err != nil {
		c.logger.Warnw("Failed to write cache entry", "key", key.String(), "error", err)
	}
}

func absAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out[i] = p
	}
	return out
}
