package synth

import (
	"strings"

	"github.com/elliotchance/orderedmap/v2"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/dbsmedya/protomod/internal/runtime"
)

// Module is a materialized namespace. Types are keyed by their name relative to
// the schema package ("Thing", "Thing.Part"), in declaration order.
type Module struct {
	Identity  string
	Name      string // Last identity segment
	WellKnown bool
	StubOnly  bool
	Stub      string    // Static-typing declarations, set for stub-only modules
	Deps      []*Module // Imported modules in first-declared order
	Files     []protoreflect.FileDescriptor

	messages   *orderedmap.OrderedMap[string, protoreflect.MessageType]
	enums      *orderedmap.OrderedMap[string, protoreflect.EnumType]
	extensions *orderedmap.OrderedMap[string, protoreflect.ExtensionType]
	services   *orderedmap.OrderedMap[string, protoreflect.ServiceDescriptor]
}

func newModule(identity, name string) *Module {
	return &Module{
		Identity:   identity,
		Name:       name,
		messages:   orderedmap.NewOrderedMap[string, protoreflect.MessageType](),
		enums:      orderedmap.NewOrderedMap[string, protoreflect.EnumType](),
		extensions: orderedmap.NewOrderedMap[string, protoreflect.ExtensionType](),
		services:   orderedmap.NewOrderedMap[string, protoreflect.ServiceDescriptor](),
	}
}

func (m *Module) bind(b *runtime.Bindings) {
	m.Files = append(m.Files, b.File)
	pkg := b.File.Package()

	for _, mt := range b.Messages {
		m.messages.Set(relative(pkg, mt.Descriptor().FullName()), mt)
	}
	for _, et := range b.Enums {
		m.enums.Set(relative(pkg, et.Descriptor().FullName()), et)
	}
	for _, xt := range b.Extensions {
		m.extensions.Set(relative(pkg, xt.TypeDescriptor().FullName()), xt)
	}
	for _, sd := range b.Services {
		m.services.Set(relative(pkg, sd.FullName()), sd)
	}
}

func relative(pkg, name protoreflect.FullName) string {
	if pkg == "" {
		return string(name)
	}
	return strings.TrimPrefix(string(name), string(pkg)+".")
}

// Message returns a message type by relative name.
func (m *Module) Message(name string) (protoreflect.MessageType, bool) {
	return m.messages.Get(name)
}

// Enum returns an enum type by relative name.
func (m *Module) Enum(name string) (protoreflect.EnumType, bool) {
	return m.enums.Get(name)
}

// Extension returns an extension type by relative name.
func (m *Module) Extension(name string) (protoreflect.ExtensionType, bool) {
	return m.extensions.Get(name)
}

// Service returns a service descriptor by relative name.
func (m *Module) Service(name string) (protoreflect.ServiceDescriptor, bool) {
	return m.services.Get(name)
}

// MessageNames returns bound message names in declaration order.
func (m *Module) MessageNames() []string { return m.messages.Keys() }

// EnumNames returns bound enum names in declaration order.
func (m *Module) EnumNames() []string { return m.enums.Keys() }

// ExtensionNames returns bound extension names in declaration order.
func (m *Module) ExtensionNames() []string { return m.extensions.Keys() }

// ServiceNames returns bound service names in declaration order.
func (m *Module) ServiceNames() []string { return m.services.Keys() }
