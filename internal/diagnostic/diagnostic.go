// Package diagnostic flattens and summarizes the nested diagnostic trees reported
// by the schema compiler.
package diagnostic

// MultipleFilesMessage is the message of a sentinel aggregator node. Such a node
// only groups failures from different files and carries nothing of its own.
const MultipleFilesMessage = "errors in multiple files"

// Severity levels as reported by the compiler.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityAdvice  = "advice"
)

// Span is a byte range inside the originating source text.
type Span struct {
	Offset int `json:"offset" yaml:"offset"`
	Length int `json:"length" yaml:"length"`
}

// Label attaches a short text to a span of source.
type Label struct {
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	Span  Span   `json:"span" yaml:"span"`
}

// Node is one compiler-reported problem. Related holds sub-problems attributed to
// the same failure, typically one node per additional failing file.
type Node struct {
	Message  string   `json:"message" yaml:"message"`
	Severity string   `json:"severity" yaml:"severity"`
	Filename string   `json:"filename,omitempty" yaml:"filename,omitempty"`
	Causes   []string `json:"causes" yaml:"causes"`
	Labels   []Label  `json:"labels,omitempty" yaml:"labels,omitempty"`
	Related  []*Node  `json:"related,omitempty" yaml:"related,omitempty"`
}

// IsAggregator reports whether n is a sentinel aggregator node.
func (n *Node) IsAggregator() bool {
	return n.Message == MultipleFilesMessage
}

// Flatten walks root depth-first in pre-order. Every node except sentinel
// aggregators is emitted before its related nodes; aggregators are dropped while
// their children are still emitted in place. The returned nodes are copies with
// Related cleared; causes and labels keep their input order.
func Flatten(root *Node) []*Node {
	var out []*Node
	flattenInto(root, &out)
	return out
}

func flattenInto(n *Node, out *[]*Node) {
	if n == nil {
		return
	}
	if !n.IsAggregator() {
		flat := *n
		flat.Related = nil
		*out = append(*out, &flat)
	}
	for _, r := range n.Related {
		flattenInto(r, out)
	}
}

// Summarize derives the one-line message for a flattened report:
//   - one diagnostic: its message
//   - several diagnostics in a single file: the first message
//   - diagnostics from more than one file: MultipleFilesMessage
func Summarize(flat []*Node) string {
	switch len(flat) {
	case 0:
		return ""
	case 1:
		return flat[0].Message
	}
	first := flat[0].Filename
	for _, n := range flat[1:] {
		if n.Filename != first {
			return MultipleFilesMessage
		}
	}
	return flat[0].Message
}

// Files returns the distinct filenames of a flattened report in first-seen order.
// Diagnostics without a filename are skipped.
func Files(flat []*Node) []string {
	seen := make(map[string]bool)
	var files []string
	for _, n := range flat {
		if n.Filename == "" || seen[n.Filename] {
			continue
		}
		seen[n.Filename] = true
		files = append(files, n.Filename)
	}
	return files
}

// Group builds the tree for the failures of a single file: the first diagnostic
// becomes the node and the rest hang off it as related nodes.
func Group(diags []*Node) *Node {
	if len(diags) == 0 {
		return nil
	}
	head := *diags[0]
	head.Related = append(append([]*Node(nil), diags[0].Related...), diags[1:]...)
	return &head
}

// Aggregate combines per-file trees. A single tree is returned unchanged; several
// are wrapped in a sentinel aggregator node.
func Aggregate(trees ...*Node) *Node {
	var nonNil []*Node
	for _, t := range trees {
		if t != nil {
			nonNil = append(nonNil, t)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	}
	return &Node{
		Message:  MultipleFilesMessage,
		Severity: SeverityError,
		Causes:   []string{},
		Related:  nonNil,
	}
}
