// Package comments copies source comments into descriptor options so they
// survive in compiled descriptors without source info.
package comments

import (
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Element kinds accepted in the field number table.
const (
	KindMessage   = "message"
	KindField     = "field"
	KindOneof     = "oneof"
	KindEnum      = "enum"
	KindEnumValue = "enum_value"
	KindService   = "service"
	KindMethod    = "method"
	KindExtension = "extension"
)

// Source code info path tags, from descriptor.proto.
const (
	fileMessageType = 4
	fileEnumType    = 5
	fileService     = 6
	fileExtension   = 7

	messageField      = 2
	messageNestedType = 3
	messageEnumType   = 4
	messageOneofDecl  = 8

	enumValue = 2

	serviceMethod = 2
)

// Apply writes the comment attached to each element of fdp into that element's
// options as a length-delimited unknown field, numbered by kind in ids. The
// leading comment wins over the trailing one; both are trimmed. Kinds missing
// from ids are left untouched, and files under "google" are skipped. Apply
// returns the number of options written.
func Apply(fdp *descriptorpb.FileDescriptorProto, ids map[string]int32) int {
	if len(ids) == 0 || strings.HasPrefix(fdp.GetName(), "google") {
		return 0
	}

	written := 0
	for _, loc := range fdp.GetSourceCodeInfo().GetLocation() {
		text := loc.GetLeadingComments()
		if loc.LeadingComments == nil {
			if loc.TrailingComments == nil {
				continue
			}
			text = loc.GetTrailingComments()
		}

		kind, options := resolve(fdp, loc.GetPath())
		if kind == "" {
			continue
		}
		num, ok := ids[kind]
		if !ok {
			continue
		}
		appendComment(options(), num, strings.TrimSpace(text))
		written++
	}
	return written
}

// ApplySet runs Apply on every file of set.
func ApplySet(set *descriptorpb.FileDescriptorSet, ids map[string]int32) int {
	written := 0
	for _, fdp := range set.GetFile() {
		written += Apply(fdp, ids)
	}
	return written
}

// Read returns the comment values stored under num in opts' unknown fields.
func Read(opts proto.Message, num int32) []string {
	if opts == nil || !opts.ProtoReflect().IsValid() {
		return nil
	}

	var out []string
	b := opts.ProtoReflect().GetUnknown()
	for len(b) > 0 {
		n, typ, tagLen := protowire.ConsumeTag(b)
		if tagLen < 0 {
			return out
		}
		valLen := protowire.ConsumeFieldValue(n, typ, b[tagLen:])
		if valLen < 0 {
			return out
		}
		if n == protowire.Number(num) && typ == protowire.BytesType {
			v, _ := protowire.ConsumeBytes(b[tagLen:])
			out = append(out, string(v))
		}
		b = b[tagLen+valLen:]
	}
	return out
}

func appendComment(opts proto.Message, num int32, text string) {
	r := opts.ProtoReflect()
	b := append(protoreflect.RawFields(nil), r.GetUnknown()...)
	b = protowire.AppendTag(b, protowire.Number(num), protowire.BytesType)
	b = protowire.AppendString(b, text)
	r.SetUnknown(b)
}

// optionsFunc returns the element's options, creating them on first use.
type optionsFunc func() proto.Message

// resolve maps a source code info path to the element it addresses. Paths that
// address anything other than a supported element resolve to "".
func resolve(fdp *descriptorpb.FileDescriptorProto, path []int32) (string, optionsFunc) {
	if len(path) < 2 {
		return "", nil
	}
	typ, idx, rest := path[0], int(path[1]), path[2:]

	switch typ {
	case fileMessageType:
		if idx < len(fdp.MessageType) {
			return resolveMessage(fdp.MessageType[idx], rest)
		}
	case fileEnumType:
		if idx < len(fdp.EnumType) {
			return resolveEnum(fdp.EnumType[idx], rest)
		}
	case fileService:
		if idx < len(fdp.Service) {
			return resolveService(fdp.Service[idx], rest)
		}
	case fileExtension:
		if idx < len(fdp.Extension) && len(rest) == 0 {
			return KindExtension, fieldOptions(fdp.Extension[idx])
		}
	}
	return "", nil
}

func resolveMessage(m *descriptorpb.DescriptorProto, path []int32) (string, optionsFunc) {
	if len(path) == 0 {
		return KindMessage, func() proto.Message {
			if m.Options == nil {
				m.Options = &descriptorpb.MessageOptions{}
			}
			return m.Options
		}
	}
	if len(path) < 2 {
		return "", nil
	}
	typ, idx, rest := path[0], int(path[1]), path[2:]

	switch typ {
	case messageField:
		if idx < len(m.Field) && len(rest) == 0 {
			return KindField, fieldOptions(m.Field[idx])
		}
	case messageNestedType:
		if idx < len(m.NestedType) {
			return resolveMessage(m.NestedType[idx], rest)
		}
	case messageEnumType:
		if idx < len(m.EnumType) {
			return resolveEnum(m.EnumType[idx], rest)
		}
	case messageOneofDecl:
		if idx < len(m.OneofDecl) && len(rest) == 0 {
			o := m.OneofDecl[idx]
			return KindOneof, func() proto.Message {
				if o.Options == nil {
					o.Options = &descriptorpb.OneofOptions{}
				}
				return o.Options
			}
		}
	}
	return "", nil
}

func resolveEnum(e *descriptorpb.EnumDescriptorProto, path []int32) (string, optionsFunc) {
	if len(path) == 0 {
		return KindEnum, func() proto.Message {
			if e.Options == nil {
				e.Options = &descriptorpb.EnumOptions{}
			}
			return e.Options
		}
	}
	if len(path) == 2 && path[0] == enumValue && int(path[1]) < len(e.Value) {
		v := e.Value[path[1]]
		return KindEnumValue, func() proto.Message {
			if v.Options == nil {
				v.Options = &descriptorpb.EnumValueOptions{}
			}
			return v.Options
		}
	}
	return "", nil
}

func resolveService(s *descriptorpb.ServiceDescriptorProto, path []int32) (string, optionsFunc) {
	if len(path) == 0 {
		return KindService, func() proto.Message {
			if s.Options == nil {
				s.Options = &descriptorpb.ServiceOptions{}
			}
			return s.Options
		}
	}
	if len(path) == 2 && path[0] == serviceMethod && int(path[1]) < len(s.Method) {
		m := s.Method[path[1]]
		return KindMethod, func() proto.Message {
			if m.Options == nil {
				m.Options = &descriptorpb.MethodOptions{}
			}
			return m.Options
		}
	}
	return "", nil
}

func fieldOptions(f *descriptorpb.FieldDescriptorProto) optionsFunc {
	return func() proto.Message {
		if f.Options == nil {
			f.Options = &descriptorpb.FieldOptions{}
		}
		return f.Options
	}
}
