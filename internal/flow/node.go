package flow

import (
	"context"
	"fmt"
	"image"
)

// NodeIndex identifies a node within one graph. Indices are never reused.
type NodeIndex int

// EdgeIndex identifies an edge within one graph. Indices are never reused.
type EdgeIndex int

// EdgeKind describes what flows along an edge.
type EdgeKind int

const (
	// EdgeNone is an advisory edge; it orders nothing and carries no data.
	EdgeNone EdgeKind = iota
	// EdgeInput carries the primary input bitmap.
	EdgeInput
	// EdgeCanvas carries a reference bitmap that an operation draws onto.
	EdgeCanvas
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeNone:
		return "none"
	case EdgeInput:
		return "input"
	case EdgeCanvas:
		return "canvas"
	}
	return fmt.Sprintf("edge_kind(%d)", int(k))
}

// IsData reports whether the edge is a data dependency.
func (k EdgeKind) IsData() bool { return k != EdgeNone }

// ParseEdgeKind maps a request string onto an EdgeKind.
func ParseEdgeKind(s string) (EdgeKind, error) {
	switch s {
	case "none":
		return EdgeNone, nil
	case "", "input":
		return EdgeInput, nil
	case "canvas":
		return EdgeCanvas, nil
	}
	return EdgeNone, fmt.Errorf("unknown edge kind %q", s)
}

// PixelFormat is the in-memory layout a node's output is expected to have.
type PixelFormat string

const (
	PixelBGRA32 PixelFormat = "bgra32"
	PixelBGR24  PixelFormat = "bgr24"
	PixelGray8  PixelFormat = "gray8"
)

// FrameEstimate is the known or estimated output size of a node.
type FrameEstimate struct {
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Format PixelFormat `json:"format"`
}

// Cost accumulates wall time spent on a node, in nanoseconds.
type Cost struct {
	WallTicks uint64 `json:"wall_ticks"`
}

// Edge is a directed relationship between two live nodes.
type Edge struct {
	Index EdgeIndex `json:"index"`
	From  NodeIndex `json:"from"`
	To    NodeIndex `json:"to"`
	Kind  EdgeKind  `json:"kind"`
}

// Node is a single operation in the pipeline.
type Node struct {
	Index NodeIndex
	Stage NodeStage
	Frame *FrameEstimate
	Cost  Cost
	Op    Operation

	// Result holds the bitmap produced by Execute; children read it through
	// their ExecContext.
	Result image.Image
}

// Operation is the behaviour every node carries. Optional capabilities
// (flattening, optimization, codec binding) are expressed by also
// implementing PreOptimizeFlattener, Optimizer, PostOptimizeFlattener or
// CodecNode.
type Operation interface {
	// Name is the operation kind, e.g. "decode" or "scale".
	Name() string

	// EstimateFrame computes the node's output frame from its inputs. It is
	// only called once every data parent has a frame. Returning (nil, nil)
	// means the node needs state it does not have yet; the walk skips its
	// descendants and retries on a later pass.
	EstimateFrame(in Inputs) (*FrameEstimate, error)

	// Execute produces the node's output bitmap. It is only called once
	// every data parent has executed.
	Execute(ec *ExecContext) (image.Image, error)
}

// Rewrite is the outcome of a flatten hook.
//
// Chain replaces the node with a linear run of primitive operations: inbound
// edges attach to the first, outbound edges leave from the last. Elide removes
// the node and reconnects its single input parent straight to its children;
// it is only valid for operations that leave the bitmap unchanged.
type Rewrite struct {
	Chain []Operation
	Elide bool
}

// PreOptimizeFlattener is implemented by high-level operations that expand
// into primitives once their dimensions are known. Returning nil keeps the
// node as is.
type PreOptimizeFlattener interface {
	PreOptimizeFlatten(in Inputs) (*Rewrite, error)
}

// Optimizer is implemented by operations with in-place rules. Optimize may
// only change the operation's own payload, never graph topology.
type Optimizer interface {
	Optimize(in Inputs) error
}

// PostOptimizeFlattener is implemented by operations whose final
// materialization is decided after optimization. Returning nil keeps the
// node as is.
type PostOptimizeFlattener interface {
	PostOptimizeFlatten(in Inputs) (*Rewrite, error)
}

// Codec is an opaque decoder or encoder instance supplied by a registry.
type Codec interface {
	Name() string
}

// CodecNode is implemented by decode/encode operations. The codec slot starts
// empty and is filled once by Job.LinkCodecs.
type CodecNode interface {
	PlaceholderID() int
	Codec() Codec
	BindCodec(c Codec) error
}

// CodecRegistry resolves placeholder ids to codec instances.
type CodecRegistry interface {
	Lookup(placeholderID int) (Codec, bool)
}

// IOPort is an I/O endpoint owned by the code that created the job. The
// engine only indexes ports by id; reading and writing happens in codecs.
type IOPort interface {
	IOID() int
}

// Inputs is a read-only view of a node and its data parents, handed to
// estimate/flatten/optimize hooks.
type Inputs struct {
	ctx context.Context
	g   *Graph
	ix  NodeIndex
}

// Context returns the context of the Execute call driving the pass.
func (in Inputs) Context() context.Context {
	if in.ctx == nil {
		return context.Background()
	}
	return in.ctx
}

// Node returns the node being visited.
func (in Inputs) Node() *Node { return in.g.nodes[in.ix] }

// Frame returns the frame of the first parent connected by an edge of the
// given kind, or nil when there is no such parent or it has no frame yet.
func (in Inputs) Frame(kind EdgeKind) *FrameEstimate {
	for _, p := range in.g.Parents(in.ix, kind) {
		return in.g.nodes[p].Frame
	}
	return nil
}

// Count returns how many parents are connected with the given kind.
func (in Inputs) Count(kind EdgeKind) int {
	return len(in.g.Parents(in.ix, kind))
}

// ExecContext is handed to Operation.Execute.
type ExecContext struct {
	ctx context.Context
	job *Job
	ix  NodeIndex
}

// Context returns the context of the Execute call that is driving the job.
func (ec *ExecContext) Context() context.Context { return ec.ctx }

// Node returns the node being executed.
func (ec *ExecContext) Node() *Node { return ec.job.graph.nodes[ec.ix] }

// Input returns the bitmap of the first executed parent attached with the
// given edge kind.
func (ec *ExecContext) Input(kind EdgeKind) (image.Image, error) {
	for _, p := range ec.job.graph.Parents(ec.ix, kind) {
		parent := ec.job.graph.nodes[p]
		if parent.Result == nil {
			return nil, fmt.Errorf("%s input node #%d has no bitmap", kind, p)
		}
		return parent.Result, nil
	}
	return nil, fmt.Errorf("node #%d has no %s input", ec.ix, kind)
}

// IO returns the job's I/O port with the given id.
func (ec *ExecContext) IO(id int) (IOPort, bool) { return ec.job.IO(id) }
