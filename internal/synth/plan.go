package synth

import (
	"fmt"
	"strings"

	"github.com/dbsmedya/protomod/internal/resolver"
)

// Plan is the fixed, data-driven sequence of runtime calls that materializes one
// module. It is rendered as text only for error reports and the plan command.
type Plan struct {
	Identity    string
	Imports     []resolver.Dependency // In first-declared order
	Descriptors []string              // Unit names in registration order
	StubOnly    bool
}

// String renders the plan one step per line.
//
//	module protomod.acme
//	import google.golang.org/protobuf/types/known/timestamppb (google.protobuf.timestamp)
//	import protomod.acme.base
//	register acme/a.proto
//	bind acme/a.proto -> protomod.acme
func (p *Plan) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "module %s\n", p.Identity)
	for _, dep := range p.Imports {
		if dep.WellKnown {
			fmt.Fprintf(&sb, "import %s (%s)\n", dep.Identity, dep.Name)
			continue
		}
		fmt.Fprintf(&sb, "import %s\n", dep.Identity)
	}

	if p.StubOnly {
		fmt.Fprintf(&sb, "stub %s\n", p.Identity)
		return sb.String()
	}

	for _, name := range p.Descriptors {
		fmt.Fprintf(&sb, "register %s\n", name)
		fmt.Fprintf(&sb, "bind %s -> %s\n", name, p.Identity)
	}
	return sb.String()
}

// ImportPaths returns the import targets in order.
func (p *Plan) ImportPaths() []string {
	out := make([]string, len(p.Imports))
	for i, dep := range p.Imports {
		out[i] = dep.Identity
	}
	return out
}
