// Package registry accumulates compiled schema units under the identity of the
// module they will be synthesized into.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/elliotchance/orderedmap/v2"
)

// ErrNotFound is returned when no entry exists for an identity.
var ErrNotFound = errors.New("registry entry not found")

// NotFoundError names the identity that was looked up.
type NotFoundError struct {
	Identity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no compiled units registered for %q", e.Identity)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CompiledUnit is one schema file as emitted by the compiler.
type CompiledUnit struct {
	Name         string   `msgpack:"name"`         // Source-relative file name
	Package      string   `msgpack:"package"`      // Declared schema package
	Descriptor   []byte   `msgpack:"descriptor"`   // Serialized single-file descriptor
	Dependencies []string `msgpack:"dependencies"` // Referenced packages, well-known names or unlinked import paths; duplicates allowed
	Stub         string   `msgpack:"stub"`         // Static-typing declarations, may be empty
}

// Entry backs one synthesized module. It only ever grows.
type Entry struct {
	Identity    string
	Descriptors [][]byte // In registration order
	Units       []string // Unit names, parallel to Descriptors

	deps      *orderedmap.OrderedMap[string, struct{}]
	stubs     []string
	generated string
}

func newEntry(identity string) *Entry {
	return &Entry{
		Identity: identity,
		deps:     orderedmap.NewOrderedMap[string, struct{}](),
	}
}

// Dependencies returns the union of the units' dependency names in the order
// each was first declared.
func (e *Entry) Dependencies() []string {
	return e.deps.Keys()
}

// Stub returns the concatenated stub text of every unit.
func (e *Entry) Stub() string {
	return strings.Join(e.stubs, "")
}

// Generated returns the materialization plan recorded for this entry, or "" if the
// entry has not been materialized yet.
func (e *Entry) Generated() string {
	return e.generated
}

// SetGenerated records the materialization plan for this entry.
func (e *Entry) SetGenerated(plan string) {
	e.generated = plan
}

// Registry maps module identities to their entries. It is not safe for concurrent
// mutation; a process should own one registry per descriptor store.
type Registry struct {
	entries *orderedmap.OrderedMap[string, *Entry]
	files   map[string]string // Unit name -> identity
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: orderedmap.NewOrderedMap[string, *Entry](),
		files:   make(map[string]string),
	}
}

// Register appends unit to the entry for identity, creating the entry on first use.
// Registering the same unit twice is not detected here: the descriptor store
// rejects duplicate files at materialization time.
func (r *Registry) Register(identity string, unit CompiledUnit) *Entry {
	entry, ok := r.entries.Get(identity)
	if !ok {
		entry = newEntry(identity)
		r.entries.Set(identity, entry)
	}

	entry.Descriptors = append(entry.Descriptors, unit.Descriptor)
	entry.Units = append(entry.Units, unit.Name)
	if _, ok := r.files[unit.Name]; !ok {
		r.files[unit.Name] = identity
	}
	for _, dep := range unit.Dependencies {
		if _, seen := entry.deps.Get(dep); !seen {
			entry.deps.Set(dep, struct{}{})
		}
	}
	entry.stubs = append(entry.stubs, unit.Stub)

	return entry
}

// Lookup returns the entry for identity.
func (r *Registry) Lookup(identity string) (*Entry, error) {
	entry, ok := r.entries.Get(identity)
	if !ok {
		return nil, &NotFoundError{Identity: identity}
	}
	return entry, nil
}

// Has returns true if identity has at least one registered unit.
func (r *Registry) Has(identity string) bool {
	_, ok := r.entries.Get(identity)
	return ok
}

// IdentityOfFile returns the identity the unit named file was first
// registered under.
func (r *Registry) IdentityOfFile(file string) (string, bool) {
	identity, ok := r.files[file]
	return identity, ok
}

// Identities returns all identities in first-registration order.
func (r *Registry) Identities() []string {
	return r.entries.Keys()
}

// Len returns the number of entries.
func (r *Registry) Len() int {
	return r.entries.Len()
}
