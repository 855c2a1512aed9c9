package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycleDetected is returned when modules import each other in a loop, so no
// materialization order exists.
var ErrCycleDetected = errors.New("cycle detected in dependency graph")

// CycleInfo describes the modules Kahn's algorithm could not order.
type CycleInfo struct {
	TotalNodes        int      // Total number of nodes in the graph
	ProcessedNodes    int      // Number of nodes successfully ordered
	UnprocessedNodes  []string // Nodes that couldn't be ordered, in insertion order
	CycleParticipants []string // Unordered nodes that import one another (subset of UnprocessedNodes)
	CyclePath         []string // One import loop, first node repeated at the end: [A, B, C, A]
}

// Blocked returns the unordered nodes that are not themselves on a cycle but
// import something that is.
func (ci *CycleInfo) Blocked() []string {
	onCycle := make(map[string]bool, len(ci.CycleParticipants))
	for _, p := range ci.CycleParticipants {
		onCycle[p] = true
	}
	var blocked []string
	for _, u := range ci.UnprocessedNodes {
		if !onCycle[u] {
			blocked = append(blocked, u)
		}
	}
	return blocked
}

// CycleError reports an import loop between modules.
type CycleError struct {
	Info *CycleInfo
}

func (e *CycleError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cycle detected in dependency graph: %d of %d modules could not be ordered",
		len(e.Info.UnprocessedNodes), e.Info.TotalNodes)

	if len(e.Info.CyclePath) > 0 {
		fmt.Fprintf(&sb, "\nCycle path: %s", strings.Join(e.Info.CyclePath, " -> "))
	}
	if len(e.Info.CycleParticipants) > 0 {
		fmt.Fprintf(&sb, "\nModules in cycle: %s", strings.Join(e.Info.CycleParticipants, ", "))
	}
	if blocked := e.Info.Blocked(); len(blocked) > 0 {
		fmt.Fprintf(&sb, "\nModules blocked by cycle: %s", strings.Join(blocked, ", "))
	}
	return sb.String()
}

// Is reports whether target is ErrCycleDetected.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

// CalculateInDegrees returns, for every node, how many of its dependencies are
// in the graph.
func (g *Graph) CalculateInDegrees() map[string]int {
	inDegree := make(map[string]int, g.nodes.Len())
	for _, id := range g.nodes.Keys() {
		inDegree[id] = 0
	}
	for _, children := range g.Children {
		for _, child := range children {
			inDegree[child]++
		}
	}
	return inDegree
}

// kahn orders the graph dependencies first. Nodes whose in-degree never drops to
// zero are left out of order. Ready nodes are taken in insertion order.
func (g *Graph) kahn() (order []string) {
	inDegree := g.CalculateInDegrees()

	var ready []string
	for _, id := range g.nodes.Keys() {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order = make([]string, 0, g.nodes.Len())
	for len(ready) > 0 {
		node := ready[0]
		ready = ready[1:]
		order = append(order, node)

		for _, child := range g.Children[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}
	return order
}

// DetectIncompleteProcessing returns what Kahn's algorithm left unordered, or nil
// when every node was ordered.
func (g *Graph) DetectIncompleteProcessing() *CycleInfo {
	order := g.kahn()
	if len(order) == g.nodes.Len() {
		return nil
	}

	ordered := make(map[string]bool, len(order))
	for _, id := range order {
		ordered[id] = true
	}
	info := &CycleInfo{TotalNodes: g.nodes.Len(), ProcessedNodes: len(order)}
	for _, id := range g.nodes.Keys() {
		if !ordered[id] {
			info.UnprocessedNodes = append(info.UnprocessedNodes, id)
		}
	}

	info.CycleParticipants = g.peelDependents(info.UnprocessedNodes)
	if len(info.CycleParticipants) > 0 {
		info.CyclePath = g.walkCycle(info.CycleParticipants)
	}
	return info
}

// peelDependents repeatedly drops nodes that nothing left in the set imports.
// What survives lies on a cycle. Input order is kept.
func (g *Graph) peelDependents(nodes []string) []string {
	left := make(map[string]bool, len(nodes))
	for _, id := range nodes {
		left[id] = true
	}

	for changed := true; changed; {
		changed = false
		for _, id := range nodes {
			if !left[id] {
				continue
			}
			leaf := true
			for _, child := range g.Children[id] {
				if left[child] {
					leaf = false
					break
				}
			}
			if leaf {
				delete(left, id)
				changed = true
			}
		}
	}

	var out []string
	for _, id := range nodes {
		if left[id] {
			out = append(out, id)
		}
	}
	return out
}

// walkCycle follows edges inside participants from the first one until a node
// repeats. Every participant has such an edge, so the walk always closes.
func (g *Graph) walkCycle(participants []string) []string {
	inSet := make(map[string]bool, len(participants))
	for _, id := range participants {
		inSet[id] = true
	}

	seenAt := make(map[string]int)
	var path []string
	for current := participants[0]; ; {
		if i, seen := seenAt[current]; seen {
			return append(path[i:], current)
		}
		seenAt[current] = len(path)
		path = append(path, current)

		next := ""
		for _, child := range g.Children[current] {
			if inSet[child] {
				next = child
				break
			}
		}
		if next == "" {
			return nil
		}
		current = next
	}
}

// HasCycle returns true if the dependency graph contains a cycle.
func (g *Graph) HasCycle() bool {
	return g.DetectIncompleteProcessing() != nil
}

// TopologicalSort returns modules in topological order using Kahn's algorithm:
// every module appears after all of its dependencies. Ties are broken by node
// insertion order, so the result is deterministic.
// Returns a *CycleError if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	order := g.kahn()
	if len(order) != g.nodes.Len() {
		return nil, &CycleError{Info: g.DetectIncompleteProcessing()}
	}
	return order, nil
}

// MaterializeOrder returns the order in which modules must be materialized.
// Dependencies come before the modules that import them.
func (g *Graph) MaterializeOrder() ([]string, error) {
	return g.TopologicalSort()
}

// Validate returns a *CycleError if the graph contains a cycle.
func (g *Graph) Validate() error {
	if info := g.DetectIncompleteProcessing(); info != nil {
		return &CycleError{Info: info}
	}
	return nil
}
