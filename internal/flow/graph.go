package flow

import (
	"fmt"
	"sort"
)

// Filter selects edges when enumerating parents or children. Both EdgeKind
// (exact match) and EdgeFilter satisfy it.
type Filter interface {
	match(k EdgeKind) bool
}

// EdgeFilter holds the wildcard filters.
type EdgeFilter int

const (
	// AnyEdge matches every edge kind, advisory ones included.
	AnyEdge EdgeFilter = -1
	// DataEdges matches every kind except EdgeNone.
	DataEdges EdgeFilter = -2
)

func (f EdgeFilter) match(k EdgeKind) bool {
	switch f {
	case AnyEdge:
		return true
	case DataEdges:
		return k.IsData()
	}
	return EdgeKind(f) == k
}

// Graph is an index-stable arena of nodes and edges.
//
// Removed nodes and edges leave tombstones so live indices never shift. The
// graph is acyclic across all edges; AddEdge refuses any edge that would
// close a cycle and leaves the graph unchanged when it does.
//
// Graph is not safe for concurrent use. It is owned by exactly one Job.
type Graph struct {
	nodes []*Node
	edges []*Edge
	out   [][]EdgeIndex
	in    [][]EdgeIndex

	live int

	// topology counts insertions and removals; walkers compare it to detect
	// that their order is stale.
	topology uint64
	// changes counts every observable mutation, stage advances included.
	changes uint64
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{}
}

// Len returns the number of live nodes.
func (g *Graph) Len() int { return g.live }

// AddNode inserts a node for op at stage New and returns its index.
func (g *Graph) AddNode(op Operation) NodeIndex {
	ix := NodeIndex(len(g.nodes))
	g.nodes = append(g.nodes, &Node{Index: ix, Stage: StageNew, Op: op})
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.live++
	g.topology++
	g.changes++
	return ix
}

// AddEdge inserts a directed edge. Both endpoints must be live, self edges are
// rejected, and so is any edge that would make the graph cyclic.
func (g *Graph) AddEdge(from, to NodeIndex, kind EdgeKind) (EdgeIndex, error) {
	if !g.Has(from) || !g.Has(to) {
		return -1, &GraphInvalidError{Reason: "edge references unknown node", Nodes: []NodeIndex{from, to}}
	}
	if from == to {
		return -1, &GraphInvalidError{Reason: "self-referential edge", Nodes: []NodeIndex{from}}
	}
	if g.reachable(to, from) {
		return -1, &GraphInvalidError{Reason: "edge would create a cycle", Nodes: []NodeIndex{from, to}}
	}
	ex := EdgeIndex(len(g.edges))
	g.edges = append(g.edges, &Edge{Index: ex, From: from, To: to, Kind: kind})
	g.out[from] = append(g.out[from], ex)
	g.in[to] = append(g.in[to], ex)
	g.topology++
	g.changes++
	return ex, nil
}

// RemoveEdge deletes a live edge.
func (g *Graph) RemoveEdge(ex EdgeIndex) error {
	if ex < 0 || int(ex) >= len(g.edges) || g.edges[ex] == nil {
		return fmt.Errorf("edge %d: %w", ex, ErrNodeNotFound)
	}
	e := g.edges[ex]
	g.out[e.From] = without(g.out[e.From], ex)
	g.in[e.To] = without(g.in[e.To], ex)
	g.edges[ex] = nil
	g.topology++
	g.changes++
	return nil
}

// RemoveNode deletes a live node together with every incident edge.
func (g *Graph) RemoveNode(ix NodeIndex) error {
	if !g.Has(ix) {
		return fmt.Errorf("node #%d: %w", ix, ErrNodeNotFound)
	}
	incident := append(append([]EdgeIndex(nil), g.in[ix]...), g.out[ix]...)
	for _, ex := range incident {
		if err := g.RemoveEdge(ex); err != nil {
			return err
		}
	}
	g.nodes[ix] = nil
	g.live--
	g.topology++
	g.changes++
	return nil
}

// Has reports whether ix names a live node.
func (g *Graph) Has(ix NodeIndex) bool {
	return ix >= 0 && int(ix) < len(g.nodes) && g.nodes[ix] != nil
}

// Node returns the live node at ix.
func (g *Graph) Node(ix NodeIndex) (*Node, error) {
	if !g.Has(ix) {
		return nil, fmt.Errorf("node #%d: %w", ix, ErrNodeNotFound)
	}
	return g.nodes[ix], nil
}

// Edge returns the live edge at ex.
func (g *Graph) Edge(ex EdgeIndex) (Edge, bool) {
	if ex < 0 || int(ex) >= len(g.edges) || g.edges[ex] == nil {
		return Edge{}, false
	}
	return *g.edges[ex], true
}

// NodeIndices returns every live node index in ascending order.
func (g *Graph) NodeIndices() []NodeIndex {
	ixs := make([]NodeIndex, 0, g.live)
	for i, n := range g.nodes {
		if n != nil {
			ixs = append(ixs, NodeIndex(i))
		}
	}
	return ixs
}

// Edges returns copies of every live edge in index order.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		if e != nil {
			edges = append(edges, *e)
		}
	}
	return edges
}

// Parents returns the sources of edges into ix that match filter, in edge
// insertion order.
func (g *Graph) Parents(ix NodeIndex, filter Filter) []NodeIndex {
	if !g.Has(ix) {
		return nil
	}
	var ps []NodeIndex
	for _, ex := range g.in[ix] {
		if e := g.edges[ex]; filter.match(e.Kind) {
			ps = append(ps, e.From)
		}
	}
	return ps
}

// Children returns the targets of edges out of ix that match filter.
func (g *Graph) Children(ix NodeIndex, filter Filter) []NodeIndex {
	if !g.Has(ix) {
		return nil
	}
	var cs []NodeIndex
	for _, ex := range g.out[ix] {
		if e := g.edges[ex]; filter.match(e.Kind) {
			cs = append(cs, e.To)
		}
	}
	return cs
}

// match lets a bare EdgeKind act as an exact filter.
func (k EdgeKind) match(other EdgeKind) bool { return k == other }

// ReplaceWithChain splices a linear chain of new nodes in place of ix. The
// chain is connected with EdgeInput edges; inbound edges of ix are moved to
// the first new node and outbound edges to the last, kinds preserved. The
// replaced node is removed. It returns the new indices in chain order.
func (g *Graph) ReplaceWithChain(ix NodeIndex, ops ...Operation) ([]NodeIndex, error) {
	if !g.Has(ix) {
		return nil, fmt.Errorf("node #%d: %w", ix, ErrNodeNotFound)
	}
	if len(ops) == 0 {
		return nil, &GraphInvalidError{Reason: "flatten produced an empty chain", Nodes: []NodeIndex{ix}}
	}
	inbound := g.edgeCopies(g.in[ix])
	outbound := g.edgeCopies(g.out[ix])
	if err := g.RemoveNode(ix); err != nil {
		return nil, err
	}

	chain := make([]NodeIndex, len(ops))
	for i, op := range ops {
		chain[i] = g.AddNode(op)
		if i > 0 {
			if _, err := g.AddEdge(chain[i-1], chain[i], EdgeInput); err != nil {
				return nil, err
			}
		}
	}
	first, last := chain[0], chain[len(chain)-1]
	for _, e := range inbound {
		if _, err := g.AddEdge(e.From, first, e.Kind); err != nil {
			return nil, err
		}
	}
	for _, e := range outbound {
		if _, err := g.AddEdge(last, e.To, e.Kind); err != nil {
			return nil, err
		}
	}
	return chain, nil
}

// Elide removes ix and connects its single input parent directly to each of
// its children with the original outbound edge kinds. Advisory inbound edges
// are dropped.
func (g *Graph) Elide(ix NodeIndex) error {
	if !g.Has(ix) {
		return fmt.Errorf("node #%d: %w", ix, ErrNodeNotFound)
	}
	data := g.Parents(ix, DataEdges)
	if len(data) != 1 || len(g.Parents(ix, EdgeInput)) != 1 {
		return &GraphInvalidError{Reason: "only nodes with exactly one input can be elided", Nodes: []NodeIndex{ix}}
	}
	parent := data[0]
	outbound := g.edgeCopies(g.out[ix])
	if err := g.RemoveNode(ix); err != nil {
		return err
	}
	for _, e := range outbound {
		if _, err := g.AddEdge(parent, e.To, e.Kind); err != nil {
			return err
		}
	}
	return nil
}

// Validate re-checks that every edge joins live nodes and that the graph is
// acyclic. Flatten passes call it after every rewrite.
func (g *Graph) Validate() error {
	indegree := make(map[NodeIndex]int, g.live)
	for _, ix := range g.NodeIndices() {
		indegree[ix] = 0
	}
	for _, e := range g.edges {
		if e == nil {
			continue
		}
		if !g.Has(e.From) || !g.Has(e.To) {
			return &GraphInvalidError{Reason: fmt.Sprintf("edge %d is dangling", e.Index), Nodes: []NodeIndex{e.From, e.To}}
		}
		indegree[e.To]++
	}

	var queue []NodeIndex
	for _, ix := range g.NodeIndices() {
		if indegree[ix] == 0 {
			queue = append(queue, ix)
		}
	}
	visited := 0
	for len(queue) > 0 {
		ix := queue[0]
		queue = queue[1:]
		visited++
		for _, c := range g.Children(ix, AnyEdge) {
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	if visited != g.live {
		var cyclic []NodeIndex
		for ix, d := range indegree {
			if d > 0 {
				cyclic = append(cyclic, ix)
			}
		}
		sort.Slice(cyclic, func(i, j int) bool { return cyclic[i] < cyclic[j] })
		return &GraphInvalidError{Reason: "cycle detected", Nodes: cyclic}
	}
	return nil
}

// reachable reports whether to can be reached from from along any edges.
func (g *Graph) reachable(from, to NodeIndex) bool {
	seen := make(map[NodeIndex]bool)
	stack := []NodeIndex{from}
	for len(stack) > 0 {
		ix := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if ix == to {
			return true
		}
		if seen[ix] {
			continue
		}
		seen[ix] = true
		stack = append(stack, g.Children(ix, AnyEdge)...)
	}
	return false
}

// inputsHaveFrames reports whether every data parent of ix has a frame.
func (g *Graph) inputsHaveFrames(ix NodeIndex) bool {
	for _, p := range g.Parents(ix, DataEdges) {
		if g.nodes[p].Frame == nil {
			return false
		}
	}
	return true
}

// inputsExecuted reports whether every data parent of ix has executed.
func (g *Graph) inputsExecuted(ix NodeIndex) bool {
	for _, p := range g.Parents(ix, DataEdges) {
		if g.nodes[p].Stage != StageExecuted {
			return false
		}
	}
	return true
}

func (g *Graph) setFrame(n *Node, f *FrameEstimate) {
	n.Frame = f
	g.changes++
}

func (g *Graph) edgeCopies(exs []EdgeIndex) []Edge {
	out := make([]Edge, len(exs))
	for i, ex := range exs {
		out[i] = *g.edges[ex]
	}
	return out
}

func without(exs []EdgeIndex, ex EdgeIndex) []EdgeIndex {
	out := exs[:0]
	for _, e := range exs {
		if e != ex {
			out = append(out, e)
		}
	}
	return out
}
