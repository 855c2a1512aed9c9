// Package runtime binds serialized file descriptors into a protobuf descriptor
// store and materializes dynamic types for them.
package runtime

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	// Well-known schemas resolve through the global registry.
	_ "google.golang.org/protobuf/types/known/anypb"
	_ "google.golang.org/protobuf/types/known/apipb"
	_ "google.golang.org/protobuf/types/known/durationpb"
	_ "google.golang.org/protobuf/types/known/emptypb"
	_ "google.golang.org/protobuf/types/known/fieldmaskpb"
	_ "google.golang.org/protobuf/types/known/sourcecontextpb"
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/timestamppb"
	_ "google.golang.org/protobuf/types/known/typepb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"
	_ "google.golang.org/protobuf/types/pluginpb"
)

// ErrDuplicateRegistration is returned when a file or a fully-qualified name is
// registered into a store twice.
var ErrDuplicateRegistration = errors.New("duplicate registration")

// DuplicateRegistrationError names what collided.
type DuplicateRegistrationError struct {
	File string // Descriptor file being registered
	Name string // Colliding name, file path or fully-qualified type name
	Err  error  // Underlying registry error, if any
}

func (e *DuplicateRegistrationError) Error() string {
	if e.Name == "" || e.Name == e.File {
		return fmt.Sprintf("duplicate registration of file %q", e.File)
	}
	return fmt.Sprintf("duplicate registration of %q from file %q", e.Name, e.File)
}

// Is reports whether target is ErrDuplicateRegistration.
func (e *DuplicateRegistrationError) Is(target error) bool {
	return target == ErrDuplicateRegistration
}

func (e *DuplicateRegistrationError) Unwrap() error {
	return e.Err
}

// Bindings are the runtime types materialized from one file.
type Bindings struct {
	File       protoreflect.FileDescriptor
	Messages   []protoreflect.MessageType // Depth-first, nested after their parent
	Enums      []protoreflect.EnumType
	Extensions []protoreflect.ExtensionType
	Services   []protoreflect.ServiceDescriptor
}

// Store owns a descriptor registry and a type registry. Lookups fall back to the
// global registry, which carries the well-known schemas.
type Store struct {
	Files *protoregistry.Files
	Types *protoregistry.Types
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		Files: new(protoregistry.Files),
		Types: new(protoregistry.Types),
	}
}

// RegisterDescriptor decodes a serialized FileDescriptorProto, links it against
// files already in the store and registers it.
func (s *Store) RegisterDescriptor(data []byte) (protoreflect.FileDescriptor, error) {
	fdp := &descriptorpb.FileDescriptorProto{}
	if err := proto.Unmarshal(data, fdp); err != nil {
		return nil, fmt.Errorf("failed to decode file descriptor: %w", err)
	}
	return s.RegisterFileProto(fdp)
}

// RegisterFileProto links and registers an already decoded descriptor.
func (s *Store) RegisterFileProto(fdp *descriptorpb.FileDescriptorProto) (protoreflect.FileDescriptor, error) {
	path := fdp.GetName()
	if s.HasFile(path) {
		return nil, &DuplicateRegistrationError{File: path, Name: path}
	}

	fd, err := protodesc.NewFile(fdp, s)
	if err != nil {
		return nil, fmt.Errorf("failed to link file descriptor %q: %w", path, err)
	}

	if err := s.Files.RegisterFile(fd); err != nil {
		return nil, &DuplicateRegistrationError{File: path, Name: conflictName(err), Err: err}
	}
	return fd, nil
}

// HasFile reports whether path is registered in the store or globally.
func (s *Store) HasFile(path string) bool {
	_, err := s.FindFileByPath(path)
	return err == nil
}

// FindFileByPath looks up a file in the store, then in the global registry.
func (s *Store) FindFileByPath(path string) (protoreflect.FileDescriptor, error) {
	if fd, err := s.Files.FindFileByPath(path); err == nil {
		return fd, nil
	}
	return protoregistry.GlobalFiles.FindFileByPath(path)
}

// FindDescriptorByName looks up a descriptor in the store, then in the global
// registry.
func (s *Store) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	if d, err := s.Files.FindDescriptorByName(name); err == nil {
		return d, nil
	}
	return protoregistry.GlobalFiles.FindDescriptorByName(name)
}

// FindMessageType finds a materialized message type, then a global one.
func (s *Store) FindMessageType(name protoreflect.FullName) (protoreflect.MessageType, error) {
	if mt, err := s.Types.FindMessageByName(name); err == nil {
		return mt, nil
	}
	return protoregistry.GlobalTypes.FindMessageByName(name)
}

// FindExtensionByName finds a materialized extension, then a global one.
func (s *Store) FindExtensionByName(name protoreflect.FullName) (protoreflect.ExtensionType, error) {
	if xt, err := s.Types.FindExtensionByName(name); err == nil {
		return xt, nil
	}
	return protoregistry.GlobalTypes.FindExtensionByName(name)
}

// FindExtensionByNumber finds a materialized extension of message, then a
// global one.
func (s *Store) FindExtensionByNumber(message protoreflect.FullName, field protoreflect.FieldNumber) (protoreflect.ExtensionType, error) {
	if xt, err := s.Types.FindExtensionByNumber(message, field); err == nil {
		return xt, nil
	}
	return protoregistry.GlobalTypes.FindExtensionByNumber(message, field)
}

// ResolveOptions returns a copy of opts re-parsed against the store, so that
// custom options defined by materialized extensions read as set fields instead
// of unknown bytes.
func (s *Store) ResolveOptions(opts proto.Message) (proto.Message, error) {
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}
	out := opts.ProtoReflect().New().Interface()
	if err := (proto.UnmarshalOptions{Resolver: s}).Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("failed to resolve options: %w", err)
	}
	return out, nil
}

// Materialize creates dynamic types for every message, enum and extension in fd
// and registers them in the store's type registry.
func (s *Store) Materialize(fd protoreflect.FileDescriptor) (*Bindings, error) {
	b := &Bindings{File: fd}

	if err := s.materializeEnums(fd, fd.Enums(), b); err != nil {
		return nil, err
	}
	if err := s.materializeMessages(fd, fd.Messages(), b); err != nil {
		return nil, err
	}
	if err := s.materializeExtensions(fd, fd.Extensions(), b); err != nil {
		return nil, err
	}

	services := fd.Services()
	for i := 0; i < services.Len(); i++ {
		b.Services = append(b.Services, services.Get(i))
	}

	return b, nil
}

func (s *Store) materializeMessages(fd protoreflect.FileDescriptor, msgs protoreflect.MessageDescriptors, b *Bindings) error {
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		if md.IsMapEntry() {
			continue
		}

		mt := dynamicpb.NewMessageType(md)
		if err := s.Types.RegisterMessage(mt); err != nil {
			return &DuplicateRegistrationError{File: fd.Path(), Name: string(md.FullName()), Err: err}
		}
		b.Messages = append(b.Messages, mt)

		if err := s.materializeEnums(fd, md.Enums(), b); err != nil {
			return err
		}
		if err := s.materializeMessages(fd, md.Messages(), b); err != nil {
			return err
		}
		if err := s.materializeExtensions(fd, md.Extensions(), b); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) materializeEnums(fd protoreflect.FileDescriptor, enums protoreflect.EnumDescriptors, b *Bindings) error {
	for i := 0; i < enums.Len(); i++ {
		ed := enums.Get(i)
		et := dynamicpb.NewEnumType(ed)
		if err := s.Types.RegisterEnum(et); err != nil {
			return &DuplicateRegistrationError{File: fd.Path(), Name: string(ed.FullName()), Err: err}
		}
		b.Enums = append(b.Enums, et)
	}
	return nil
}

func (s *Store) materializeExtensions(fd protoreflect.FileDescriptor, exts protoreflect.ExtensionDescriptors, b *Bindings) error {
	for i := 0; i < exts.Len(); i++ {
		xd := exts.Get(i)
		xt := dynamicpb.NewExtensionType(xd)
		if err := s.Types.RegisterExtension(xt); err != nil {
			return &DuplicateRegistrationError{File: fd.Path(), Name: string(xd.FullName()), Err: err}
		}
		b.Extensions = append(b.Extensions, xt)
	}
	return nil
}

// conflictName extracts the colliding descriptor name from a registry conflict
// message of the form `file "x.proto" has a name conflict over pkg.Name`.
func conflictName(err error) string {
	msg := err.Error()
	idx := strings.Index(msg, " over ")
	if idx < 0 {
		return ""
	}
	name := msg[idx+len(" over "):]
	if end := strings.IndexAny(name, " \n\t"); end >= 0 {
		name = name[:end]
	}
	return name
}

// BindRegistered collects the types of a file whose generated code is linked
// into the binary, such as the well-known schemas. Nothing is registered.
func (s *Store) BindRegistered(fd protoreflect.FileDescriptor) (*Bindings, error) {
	b := &Bindings{File: fd}
	if err := bindRegisteredEnums(fd.Enums(), b); err != nil {
		return nil, err
	}
	if err := bindRegisteredMessages(fd.Messages(), b); err != nil {
		return nil, err
	}
	if err := bindRegisteredExtensions(fd.Extensions(), b); err != nil {
		return nil, err
	}

	services := fd.Services()
	for i := 0; i < services.Len(); i++ {
		b.Services = append(b.Services, services.Get(i))
	}
	return b, nil
}

func bindRegisteredMessages(msgs protoreflect.MessageDescriptors, b *Bindings) error {
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		if md.IsMapEntry() {
			continue
		}
		mt, err := protoregistry.GlobalTypes.FindMessageByName(md.FullName())
		if err != nil {
			return fmt.Errorf("message %s has no linked type: %w", md.FullName(), err)
		}
		b.Messages = append(b.Messages, mt)

		if err := bindRegisteredEnums(md.Enums(), b); err != nil {
			return err
		}
		if err := bindRegisteredMessages(md.Messages(), b); err != nil {
			return err
		}
		if err := bindRegisteredExtensions(md.Extensions(), b); err != nil {
			return err
		}
	}
	return nil
}

func bindRegisteredEnums(enums protoreflect.EnumDescriptors, b *Bindings) error {
	for i := 0; i < enums.Len(); i++ {
		ed := enums.Get(i)
		et, err := protoregistry.GlobalTypes.FindEnumByName(ed.FullName())
		if err != nil {
			return fmt.Errorf("enum %s has no linked type: %w", ed.FullName(), err)
		}
		b.Enums = append(b.Enums, et)
	}
	return nil
}

func bindRegisteredExtensions(exts protoreflect.ExtensionDescriptors, b *Bindings) error {
	for i := 0; i < exts.Len(); i++ {
		xd := exts.Get(i)
		xt, err := protoregistry.GlobalTypes.FindExtensionByName(xd.FullName())
		if err != nil {
			return fmt.Errorf("extension %s has no linked type: %w", xd.FullName(), err)
		}
		b.Extensions = append(b.Extensions, xt)
	}
	return nil
}
