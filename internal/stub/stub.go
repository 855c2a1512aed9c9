// Package stub renders Go-flavored static-typing declarations for a schema file.
// The output is documentation for tooling; it is never compiled or executed.
package stub

import (
	"fmt"
	"path"
	"strings"

	"github.com/iancoleman/strcase"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Generate renders declarations for every message, enum and service in fd.
func Generate(fd protoreflect.FileDescriptor) string {
	g := &generator{file: fd}
	fmt.Fprintf(&g.sb, "// %s\n", fd.Path())

	g.enums(fd.Enums())
	g.messages(fd.Messages())

	services := fd.Services()
	for i := 0; i < services.Len(); i++ {
		g.service(services.Get(i))
	}
	return g.sb.String()
}

type generator struct {
	file protoreflect.FileDescriptor
	sb   strings.Builder
}

func (g *generator) messages(msgs protoreflect.MessageDescriptors) {
	for i := 0; i < msgs.Len(); i++ {
		md := msgs.Get(i)
		if md.IsMapEntry() {
			continue
		}
		g.message(md)
		g.enums(md.Enums())
		g.messages(md.Messages())
	}
}

func (g *generator) message(md protoreflect.MessageDescriptor) {
	g.sb.WriteString("\n")
	g.comment(md, "")
	fmt.Fprintf(&g.sb, "type %s struct {\n", GoName(md))

	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		g.comment(fd, "\t")
		fmt.Fprintf(&g.sb, "\t%s %s", FieldName(fd), g.fieldType(fd))
		if oneof := fd.ContainingOneof(); oneof != nil && !oneof.IsSynthetic() {
			fmt.Fprintf(&g.sb, " // oneof %s", oneof.Name())
		}
		g.sb.WriteString("\n")
	}
	g.sb.WriteString("}\n")
}

func (g *generator) enums(enums protoreflect.EnumDescriptors) {
	for i := 0; i < enums.Len(); i++ {
		ed := enums.Get(i)
		name := GoName(ed)

		g.sb.WriteString("\n")
		g.comment(ed, "")
		fmt.Fprintf(&g.sb, "type %s int32\n\nconst (\n", name)

		prefix := name
		if parent, ok := ed.Parent().(protoreflect.MessageDescriptor); ok {
			prefix = GoName(parent)
		}
		values := ed.Values()
		for j := 0; j < values.Len(); j++ {
			vd := values.Get(j)
			g.comment(vd, "\t")
			fmt.Fprintf(&g.sb, "\t%s_%s %s = %d\n", prefix, vd.Name(), name, vd.Number())
		}
		g.sb.WriteString(")\n")
	}
}

func (g *generator) service(sd protoreflect.ServiceDescriptor) {
	g.sb.WriteString("\n")
	g.comment(sd, "")
	fmt.Fprintf(&g.sb, "type %sClient interface {\n", sd.Name())

	methods := sd.Methods()
	for i := 0; i < methods.Len(); i++ {
		m := methods.Get(i)
		g.comment(m, "\t")
		fmt.Fprintf(&g.sb, "\t%s(in *%s) (*%s, error)", m.Name(), g.qualified(m.Input()), g.qualified(m.Output()))
		switch {
		case m.IsStreamingClient() && m.IsStreamingServer():
			g.sb.WriteString(" // bidi-streaming")
		case m.IsStreamingClient():
			g.sb.WriteString(" // client-streaming")
		case m.IsStreamingServer():
			g.sb.WriteString(" // server-streaming")
		}
		g.sb.WriteString("\n")
	}
	g.sb.WriteString("}\n")
}

func (g *generator) fieldType(fd protoreflect.FieldDescriptor) string {
	if fd.IsMap() {
		return fmt.Sprintf("map[%s]%s", g.singularType(fd.MapKey()), g.singularType(fd.MapValue()))
	}
	t := g.singularType(fd)
	if fd.IsList() {
		return "[]" + t
	}
	if oneof := fd.ContainingOneof(); fd.HasPresence() && fd.Message() == nil && (oneof == nil || oneof.IsSynthetic()) {
		return "*" + t
	}
	return t
}

func (g *generator) singularType(fd protoreflect.FieldDescriptor) string {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return "bool"
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return "int32"
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return "int64"
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return "uint32"
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return "uint64"
	case protoreflect.FloatKind:
		return "float32"
	case protoreflect.DoubleKind:
		return "float64"
	case protoreflect.StringKind:
		return "string"
	case protoreflect.BytesKind:
		return "[]byte"
	case protoreflect.EnumKind:
		return g.qualified(fd.Enum())
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return "*" + g.qualified(fd.Message())
	default:
		return "any"
	}
}

// qualified returns the Go name of d, prefixed with its package alias when d
// lives in another schema package.
func (g *generator) qualified(d protoreflect.Descriptor) string {
	file := d.ParentFile()
	if file == nil || file.Package() == g.file.Package() {
		return GoName(d)
	}
	return PackageAlias(file) + "." + GoName(d)
}

func (g *generator) comment(d protoreflect.Descriptor, indent string) {
	loc := g.file.SourceLocations().ByDescriptor(d)
	text := strings.TrimSpace(loc.LeadingComments)
	if text == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			fmt.Fprintf(&g.sb, "%s//\n", indent)
			continue
		}
		fmt.Fprintf(&g.sb, "%s// %s\n", indent, strings.TrimPrefix(line, " "))
	}
}

// GoName joins the names of d and its enclosing messages with underscores.
// Example: message Outer { message Inner {} } -> "Outer_Inner"
func GoName(d protoreflect.Descriptor) string {
	name := string(d.Name())
	for p := d.Parent(); p != nil; p = p.Parent() {
		md, ok := p.(protoreflect.MessageDescriptor)
		if !ok {
			break
		}
		name = string(md.Name()) + "_" + name
	}
	return name
}

// FieldName converts a schema field name to an exported Go identifier.
// Example: "created_at" -> "CreatedAt"
func FieldName(fd protoreflect.FieldDescriptor) string {
	return strcase.ToCamel(string(fd.Name()))
}

// PackageAlias is the identifier other stubs use to reference file's package:
// the Go package of a well-known schema, otherwise the last package segment.
func PackageAlias(file protoreflect.FileDescriptor) string {
	if strings.HasPrefix(file.Path(), "google/protobuf/") {
		if opts, ok := file.Options().(*descriptorpb.FileOptions); ok && opts.GetGoPackage() != "" {
			goPkg := opts.GetGoPackage()
			if i := strings.LastIndexByte(goPkg, ';'); i >= 0 {
				return goPkg[i+1:]
			}
			return path.Base(goPkg)
		}
	}

	pkg := string(file.Package())
	if pkg == "" {
		return strings.TrimSuffix(path.Base(file.Path()), ".proto")
	}
	if i := strings.LastIndexByte(pkg, '.'); i >= 0 {
		return pkg[i+1:]
	}
	return pkg
}
