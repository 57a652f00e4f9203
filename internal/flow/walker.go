package flow

import "container/heap"

// Signal is what a visitor reports back to the walk for the node it was
// handed.
type Signal struct {
	// Quit stops the whole walk immediately. Visitors set it after rewriting
	// the graph, since the remaining order is no longer valid.
	Quit bool
	// SkipOutbound suppresses every data-edge descendant of the node for the
	// rest of this walk.
	SkipOutbound bool
}

// VisitFunc is called once per yielded node.
type VisitFunc func(n *Node) (Signal, error)

// Walker yields live nodes in dependency order: a node comes after every
// parent it is joined to by a data edge. Nodes with no ordering constraint
// between them come out in ascending index order, so a walk over the same
// graph is always the same sequence.
//
// A Walker is bound to the topology it was built from. Once the graph gains
// or loses a node or edge, Next stops and Err returns ErrStaleWalk; build a
// fresh walker instead.
type Walker struct {
	g        *Graph
	topology uint64
	order    []NodeIndex
	pos      int
	skipped  map[NodeIndex]bool
	err      error
}

// NewWalker computes the traversal order for g. A cycle over data edges is
// reported as a GraphInvalidError.
func NewWalker(g *Graph) (*Walker, error) {
	indegree := make(map[NodeIndex]int, g.live)
	ready := &indexHeap{}
	for _, ix := range g.NodeIndices() {
		d := len(g.Parents(ix, DataEdges))
		indegree[ix] = d
		if d == 0 {
			heap.Push(ready, ix)
		}
	}

	order := make([]NodeIndex, 0, g.live)
	for ready.Len() > 0 {
		ix := heap.Pop(ready).(NodeIndex)
		order = append(order, ix)
		for _, c := range g.Children(ix, DataEdges) {
			indegree[c]--
			if indegree[c] == 0 {
				heap.Push(ready, c)
			}
		}
	}
	if len(order) != g.live {
		var stuck []NodeIndex
		for _, ix := range g.NodeIndices() {
			if indegree[ix] > 0 {
				stuck = append(stuck, ix)
			}
		}
		return nil, &GraphInvalidError{Reason: "cycle detected over data edges", Nodes: stuck}
	}

	return &Walker{
		g:        g,
		topology: g.topology,
		order:    order,
		skipped:  make(map[NodeIndex]bool),
	}, nil
}

// Next returns the next node that has not been suppressed. It returns false
// at the end of the order or when the walk went stale.
func (w *Walker) Next() (NodeIndex, bool) {
	if w.err != nil {
		return -1, false
	}
	if w.g.topology != w.topology {
		w.err = ErrStaleWalk
		return -1, false
	}
	for w.pos < len(w.order) {
		ix := w.order[w.pos]
		w.pos++
		if !w.skipped[ix] {
			return ix, true
		}
	}
	return -1, false
}

// SkipOutbound suppresses every data-edge descendant of ix for the rest of
// this walk. ix itself is unaffected.
func (w *Walker) SkipOutbound(ix NodeIndex) {
	stack := w.g.Children(ix, DataEdges)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if w.skipped[c] {
			continue
		}
		w.skipped[c] = true
		stack = append(stack, w.g.Children(c, DataEdges)...)
	}
}

// Reset rewinds the walker to the start of its order and clears skips.
func (w *Walker) Reset() {
	w.pos = 0
	w.err = nil
	w.skipped = make(map[NodeIndex]bool)
}

// Order returns a copy of the full traversal order.
func (w *Walker) Order() []NodeIndex {
	return append([]NodeIndex(nil), w.order...)
}

// Err returns ErrStaleWalk if the graph changed under the walker.
func (w *Walker) Err() error { return w.err }

// Walk visits g in dependency order until the order is exhausted, a visitor
// returns an error, or a visitor signals Quit.
func Walk(g *Graph, visit VisitFunc) error {
	w, err := NewWalker(g)
	if err != nil {
		return err
	}
	for ix, ok := w.Next(); ok; ix, ok = w.Next() {
		sig, err := visit(g.nodes[ix])
		if err != nil {
			return err
		}
		if sig.Quit {
			return nil
		}
		if sig.SkipOutbound {
			w.SkipOutbound(ix)
		}
	}
	return w.Err()
}

// indexHeap is a min-heap of node indices.
type indexHeap []NodeIndex

func (h indexHeap) Len() int { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x interface{}) { *h = append(*h, x.(NodeIndex)) }
func (h *indexHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
