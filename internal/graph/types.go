// Package graph provides the module dependency graph used to order synthesis.
package graph

import (
	"github.com/elliotchance/orderedmap/v2"
)

// Node represents a module in the dependency graph.
type Node struct {
	Identity   string // Registry identity, or module path for well-known schemas
	WellKnown  bool   // True if the module is supplied by the protobuf runtime
	ModulePath string // Go import path for well-known modules
	File       string // Schema file for well-known modules
	IsRoot     bool   // True for the module the graph was built for
	Missing    bool   // True if the module was declared but never registered
}

// Edge represents a dependency relationship between modules.
type Edge struct {
	From string // Dependency
	To   string // Dependent
}

// Graph is a DAG of modules. Edges point from a dependency to the modules that
// import it, so a topological order lists dependencies first.
type Graph struct {
	Children map[string][]string // identity -> dependents (outgoing edges)
	Parents  map[string][]string // identity -> dependencies (incoming edges)
	Root     string

	nodes *orderedmap.OrderedMap[string, *Node]
}

// NewGraph creates a graph holding only its root node.
func NewGraph(root string) *Graph {
	g := &Graph{
		Children: make(map[string][]string),
		Parents:  make(map[string][]string),
		Root:     root,
		nodes:    orderedmap.NewOrderedMap[string, *Node](),
	}
	if root != "" {
		g.nodes.Set(root, &Node{Identity: root, IsRoot: true})
	}
	return g
}

// AddNode adds a module node. If node is nil a plain registry node is created.
// Adding an existing identity replaces its node but keeps its position.
func (g *Graph) AddNode(identity string, node *Node) {
	if node == nil {
		node = &Node{}
	}
	node.Identity = identity
	g.nodes.Set(identity, node)
}

// AddEdge records that dependent imports dependency. Duplicate edges are ignored.
func (g *Graph) AddEdge(dependency, dependent string) {
	for _, c := range g.Children[dependency] {
		if c == dependent {
			return
		}
	}
	g.Children[dependency] = append(g.Children[dependency], dependent)
	g.Parents[dependent] = append(g.Parents[dependent], dependency)
}

// GetNode returns the node for identity, or nil if not found.
func (g *Graph) GetNode(identity string) *Node {
	n, _ := g.nodes.Get(identity)
	return n
}

// HasNode returns true if the graph contains identity.
func (g *Graph) HasNode(identity string) bool {
	_, ok := g.nodes.Get(identity)
	return ok
}

// Dependencies returns the direct dependencies of identity in declaration order.
func (g *Graph) Dependencies(identity string) []string {
	return g.Parents[identity]
}

// Dependents returns the modules that directly import identity.
func (g *Graph) Dependents(identity string) []string {
	return g.Children[identity]
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return g.nodes.Len()
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.Children {
		count += len(children)
	}
	return count
}

// AllNodes returns every identity in insertion order.
func (g *Graph) AllNodes() []string {
	return g.nodes.Keys()
}

// MissingNodes returns the identities of nodes marked Missing, in insertion order.
func (g *Graph) MissingNodes() []string {
	var out []string
	for el := g.nodes.Front(); el != nil; el = el.Next() {
		if el.Value.Missing {
			out = append(out, el.Key)
		}
	}
	return out
}

// AllEdges returns every edge, grouped by dependency in insertion order.
func (g *Graph) AllEdges() []Edge {
	var edges []Edge
	for _, from := range g.nodes.Keys() {
		for _, to := range g.Children[from] {
			edges = append(edges, Edge{From: from, To: to})
		}
	}
	return edges
}
