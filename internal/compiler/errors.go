package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dbsmedya/protomod/internal/diagnostic"
)

// ErrCompilation is returned when the schema compiler rejects its input.
var ErrCompilation = errors.New("compilation failed")

// ErrConfiguration is returned when a compile request is unusable before any
// schema is read.
var ErrConfiguration = errors.New("invalid compile configuration")

// CompilationError carries the full diagnostic tree of a failed compile.
// Error returns the one-line summary; Detailed renders every diagnostic.
type CompilationError struct {
	Root    *diagnostic.Node
	Sources map[string][]byte // Source text by diagnostic filename, when it could be read
}

func (e *CompilationError) Error() string {
	return diagnostic.Summarize(e.Diagnostics())
}

// Is reports whether target is ErrCompilation.
func (e *CompilationError) Is(target error) bool {
	return target == ErrCompilation
}

// Diagnostics returns the flattened diagnostics in report order.
func (e *CompilationError) Diagnostics() []*diagnostic.Node {
	return diagnostic.Flatten(e.Root)
}

// Detailed renders the full report without colour.
func (e *CompilationError) Detailed() string {
	return diagnostic.RenderString(e.Diagnostics(), e.Sources, diagnostic.RenderOptions{})
}

// JSON encodes the diagnostic tree.
func (e *CompilationError) JSON() ([]byte, error) {
	return diagnostic.EncodeJSON(e.Root)
}

// ConfigurationError represents a failed preflight check.
type ConfigurationError struct {
	Check   string
	Message string
	Files   []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Files) > 0 {
		return fmt.Sprintf("%s: %s (files: %s)", e.Check, e.Message, strings.Join(e.Files, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Check, e.Message)
}

// Is reports whether target is ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func notInIncludePath(file string) *diagnostic.Node {
	return &diagnostic.Node{
		Message:  fmt.Sprintf("'%s' is not in any include path", file),
		Severity: diagnostic.SeverityError,
		Causes:   []string{},
	}
}

func openFailure(path string, err error) *diagnostic.Node {
	return &diagnostic.Node{
		Message:  fmt.Sprintf("error opening file '%s'", path),
		Severity: diagnostic.SeverityError,
		Causes:   []string{causeText(err)},
	}
}

func plainFailure(err error) *diagnostic.Node {
	return &diagnostic.Node{
		Message:  err.Error(),
		Severity: diagnostic.SeverityError,
		Causes:   []string{},
	}
}

// causeText strips the operation and path an *os.PathError repeats.
func causeText(err error) string {
	var pe interface{ Unwrap() error }
	if errors.As(err, &pe) && pe.Unwrap() != nil {
		return pe.Unwrap().Error()
	}
	return err.Error()
}
