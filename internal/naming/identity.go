// Package naming derives synthesized module identities from schema packages and
// file names.
package naming

import (
	"path"
	"regexp"
	"strings"
)

// ProtoExt is the extension every schema source file must carry.
const ProtoExt = ".proto"

// Join namespaces a schema package under root.
// Example: ("protomod", "acme.billing") -> "protomod.acme.billing"
// Example: ("", "acme") -> "acme"
func Join(root, pkg string) string {
	switch {
	case root == "":
		return pkg
	case pkg == "":
		return root
	}
	return root + "." + pkg
}

// validIdentityRegex matches dotted identifiers: one or more segments of letters,
// digits and underscores, none starting with a digit.
var validIdentityRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// IsValidIdentity checks if s is a well-formed dotted identity.
func IsValidIdentity(s string) bool {
	return validIdentityRegex.MatchString(s)
}

// JoinSafe is Join after validating both parts. An empty root is allowed.
// Use this when the root comes from configuration or flags.
func JoinSafe(root, pkg string) (string, error) {
	if root != "" && !IsValidIdentity(root) {
		return "", &InvalidIdentityError{Name: root}
	}
	if !IsValidIdentity(pkg) {
		return "", &InvalidIdentityError{Name: pkg}
	}
	return Join(root, pkg), nil
}

// InvalidIdentityError is returned when a name is not a dotted identifier.
type InvalidIdentityError struct {
	Name string
}

func (e *InvalidIdentityError) Error() string {
	return "invalid identity: " + e.Name + " (must be dot-separated identifiers of letters, digits and underscores)"
}

// FileStem returns the base name of a schema file without its extension.
// Example: "acme/billing/invoice.proto" -> "invoice"
func FileStem(file string) string {
	return strings.TrimSuffix(path.Base(filepathToSlash(file)), ProtoExt)
}

// PackageOrStem returns pkg, or the file stem when the file declares no package.
func PackageOrStem(pkg, file string) string {
	if pkg != "" {
		return pkg
	}
	return FileStem(file)
}

// ModuleName is the short name a compiled file is exposed under, the file stem
// followed by an optional suffix such as "_pb".
func ModuleName(file, suffix string) string {
	return FileStem(file) + suffix
}

// LastSegment returns the final dotted segment of an identity.
func LastSegment(identity string) string {
	if i := strings.LastIndexByte(identity, '.'); i >= 0 {
		return identity[i+1:]
	}
	return identity
}

// DottedFileName converts an import path into its dotted dependency name.
// Example: "google/protobuf/any.proto" -> "google.protobuf.any"
func DottedFileName(file string) string {
	return strings.ReplaceAll(strings.TrimSuffix(filepathToSlash(file), ProtoExt), "/", ".")
}

// DottedToFile is the inverse of DottedFileName.
func DottedToFile(name string) string {
	return strings.ReplaceAll(name, ".", "/") + ProtoExt
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
