// Package protomod turns compiled protobuf schemas into lazily materialized
// runtime modules and compiler failures into readable diagnostics.
//
// A Session owns one registry, one descriptor store and one namespace. Compile
// and CompileBin run the schema compiler; CompileAsModules and
// LoadDescriptorSet feed the registry; Import materializes a module and
// everything it depends on, once.
package protomod

import (
	"github.com/dbsmedya/protomod/internal/compiler"
	"github.com/dbsmedya/protomod/internal/frame"
	"github.com/dbsmedya/protomod/internal/graph"
	"github.com/dbsmedya/protomod/internal/lock"
	"github.com/dbsmedya/protomod/internal/registry"
	"github.com/dbsmedya/protomod/internal/resolver"
	"github.com/dbsmedya/protomod/internal/runtime"
	"github.com/dbsmedya/protomod/internal/synth"
)

// Errors callers can match with errors.Is.
var (
	ErrMalformedFrame        = frame.ErrMalformedFrame
	ErrCompilation           = compiler.ErrCompilation
	ErrConfiguration         = compiler.ErrConfiguration
	ErrUnresolvedDependency  = resolver.ErrUnresolvedDependency
	ErrDuplicateRegistration = runtime.ErrDuplicateRegistration
	ErrSynthesis             = synth.ErrSynthesis
	ErrModuleNotFound        = synth.ErrModuleNotFound
	ErrCycleDetected         = graph.ErrCycleDetected
	ErrNotFound              = registry.ErrNotFound
	ErrLockTimeout           = lock.ErrLockTimeout
)

// Error types callers can extract with errors.As.
type (
	CompilationError           = compiler.CompilationError
	ConfigurationError         = compiler.ConfigurationError
	SynthesisError             = synth.SynthesisError
	UnresolvedDependencyError  = resolver.UnresolvedDependencyError
	DuplicateRegistrationError = runtime.DuplicateRegistrationError
	MalformedFrameError        = frame.MalformedFrameError
)

// Module is a materialized namespace of schema types.
type Module = synth.Module

// Finder answers module lookups for a resolution chain.
type Finder = synth.Finder

// FinderFunc adapts a function to Finder.
type FinderFunc = synth.FinderFunc

// CompiledUnit is one schema file's compiled output.
type CompiledUnit = registry.CompiledUnit
