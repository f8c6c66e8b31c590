package crawler

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownNode is returned when a NodeRef does not belong to the graph.
var ErrUnknownNode = errors.New("unknown node")

// NodeRef is a stable handle to a node owned by a Graph. Refs are assigned in
// creation order starting at zero.
type NodeRef int

// Node is a snapshot of a graph node.
type Node struct {
	Ref   NodeRef
	URL   Identity
	State CrawlState
	Depth int
}

// Edge is a directed link between two nodes.
type Edge struct {
	From NodeRef
	To   NodeRef
}

// Graph is a directed crawl graph keyed by URL identity. The graph owns every
// node; callers only hold NodeRefs, so a state change through SetState is
// visible to all holders. Graph is safe for concurrent use.
type Graph struct {
	mu      sync.RWMutex
	nodes   []Node
	index   map[Identity]NodeRef
	edges   []Edge
	edgeSet map[Edge]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		index:   make(map[Identity]NodeRef),
		edgeSet: make(map[Edge]struct{}),
	}
}

// AddNode inserts id with the given state and depth unless it already exists.
// It returns the node's ref and whether the node was created by this call.
// An existing node's state and depth are never altered.
func (g *Graph) AddNode(id Identity, state CrawlState, depth int) (NodeRef, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if ref, ok := g.index[id]; ok {
		return ref, false
	}
	ref := NodeRef(len(g.nodes))
	g.nodes = append(g.nodes, Node{Ref: ref, URL: id, State: state, Depth: depth})
	g.index[id] = ref
	return ref, true
}

// Contains reports whether a node with identity id exists.
func (g *Graph) Contains(id Identity) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[id]
	return ok
}

// Lookup returns the ref for id.
func (g *Graph) Lookup(id Identity) (NodeRef, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ref, ok := g.index[id]
	return ref, ok
}

// AddEdge records from -> to. It reports whether the edge is new; repeated
// calls for the same ordered pair are no-ops.
func (g *Graph) AddEdge(from, to NodeRef) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid(from) {
		return false, fmt.Errorf("edge source %d: %w", from, ErrUnknownNode)
	}
	if !g.valid(to) {
		return false, fmt.Errorf("edge target %d: %w", to, ErrUnknownNode)
	}
	e := Edge{From: from, To: to}
	if _, ok := g.edgeSet[e]; ok {
		return false, nil
	}
	g.edgeSet[e] = struct{}{}
	g.edges = append(g.edges, e)
	return true, nil
}

// HasEdge reports whether from -> to exists.
func (g *Graph) HasEdge(from, to NodeRef) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.edgeSet[Edge{From: from, To: to}]
	return ok
}

// SetState moves the node to next, enforcing the crawl state machine.
func (g *Graph) SetState(ref NodeRef, next CrawlState) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.valid(ref) {
		return fmt.Errorf("set state on %d: %w", ref, ErrUnknownNode)
	}
	n := &g.nodes[ref]
	if err := validateTransition(n.State, next); err != nil {
		return fmt.Errorf("node %q: %w", n.URL, err)
	}
	n.State = next
	return nil
}

// Node returns a snapshot of the node behind ref.
func (g *Graph) Node(ref NodeRef) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.valid(ref) {
		return Node{}, false
	}
	return g.nodes[ref], true
}

// State returns the current state of ref.
func (g *Graph) State(ref NodeRef) (CrawlState, bool) {
	n, ok := g.Node(ref)
	return n.State, ok
}

// Nodes returns a snapshot of all nodes in creation order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Node(nil), g.nodes...)
}

// Edges returns a snapshot of all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.edges...)
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// CountByState tallies nodes per state.
func (g *Graph) CountByState() map[CrawlState]int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[CrawlState]int, 4)
	for _, n := range g.nodes {
		out[n.State]++
	}
	return out
}

func (g *Graph) valid(ref NodeRef) bool {
	return ref >= 0 && int(ref) < len(g.nodes)
}
