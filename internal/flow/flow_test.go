package flow

import (
	"errors"
	"image"
	"image/color"
)

// Test operations. They keep a log of what the engine asked of them so tests
// can check ordering.

type recorder struct {
	executed []string
}

func (r *recorder) record(name string) {
	if r != nil {
		r.executed = append(r.executed, name)
	}
}

// sourceOp has no inputs and a fixed frame.
type sourceOp struct {
	label string
	w, h  int
	rec   *recorder
}

func (o *sourceOp) Name() string { return "source" }

func (o *sourceOp) EstimateFrame(Inputs) (*FrameEstimate, error) {
	return &FrameEstimate{Width: o.w, Height: o.h, Format: PixelBGRA32}, nil
}

func (o *sourceOp) Execute(*ExecContext) (image.Image, error) {
	o.rec.record(o.label)
	img := image.NewNRGBA(image.Rect(0, 0, o.w, o.h))
	for y := 0; y < o.h; y++ {
		for x := 0; x < o.w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, A: 255})
		}
	}
	return img, nil
}

// passOp copies its input frame and bitmap.
type passOp struct {
	label string
	rec   *recorder
}

func (o *passOp) Name() string { return "pass" }

func (o *passOp) EstimateFrame(in Inputs) (*FrameEstimate, error) {
	f := *in.Frame(EdgeInput)
	return &f, nil
}

func (o *passOp) Execute(ec *ExecContext) (image.Image, error) {
	o.rec.record(o.label)
	return ec.Input(EdgeInput)
}

// nestedOp post-optimize flattens into a copy of itself with depth-1 until
// depth reaches zero, so each level costs one extra pass.
type nestedOp struct {
	passOp
	depth int
}

func (o *nestedOp) Name() string { return "nested" }

func (o *nestedOp) PostOptimizeFlatten(Inputs) (*Rewrite, error) {
	if o.depth == 0 {
		return nil, nil
	}
	return &Rewrite{Chain: []Operation{&nestedOp{passOp: o.passOp, depth: o.depth - 1}}}, nil
}

// expandOp pre-optimize flattens into n pass nodes.
type expandOp struct {
	passOp
	n int
}

func (o *expandOp) Name() string { return "expand" }

func (o *expandOp) PreOptimizeFlatten(Inputs) (*Rewrite, error) {
	chain := make([]Operation, o.n)
	for i := range chain {
		chain[i] = &passOp{label: o.label, rec: o.rec}
	}
	return &Rewrite{Chain: chain}, nil
}

// identityOp elides itself after optimization.
type identityOp struct {
	passOp
	optimized bool
}

func (o *identityOp) Name() string { return "identity" }

func (o *identityOp) Optimize(Inputs) error {
	o.optimized = true
	return nil
}

func (o *identityOp) PostOptimizeFlatten(Inputs) (*Rewrite, error) {
	return &Rewrite{Elide: true}, nil
}

// lateOp cannot estimate its frame until ready is set.
type lateOp struct {
	passOp
	ready bool
}

func (o *lateOp) EstimateFrame(in Inputs) (*FrameEstimate, error) {
	if !o.ready {
		return nil, nil
	}
	return o.passOp.EstimateFrame(in)
}

var errBoom = errors.New("boom")

// failOp fails at execution.
type failOp struct{ passOp }

func (o *failOp) Execute(*ExecContext) (image.Image, error) { return nil, errBoom }

// fakeCodec and codecOp stand in for decode/encode nodes.
type fakeCodec struct{ name string }

func (c *fakeCodec) Name() string { return c.name }

type codecOp struct {
	sourceOp
	placeholder int
	codec       Codec
}

func (o *codecOp) Name() string { return "decode" }
func (o *codecOp) PlaceholderID() int { return o.placeholder }
func (o *codecOp) Codec() Codec { return o.codec }
func (o *codecOp) BindCodec(c Codec) error { o.codec = c; return nil }

func (o *codecOp) EstimateFrame(in Inputs) (*FrameEstimate, error) {
	if o.codec == nil {
		return nil, nil
	}
	return o.sourceOp.EstimateFrame(in)
}

type mapRegistry map[int]Codec

func (r mapRegistry) Lookup(id int) (Codec, bool) {
	c, ok := r[id]
	return c, ok
}

// stageLog is an observer that records every node's stage at every graph
// version, for the monotonicity property.
type stageLog struct {
	snapshots []Snapshot
	executed  []NodeIndex
	failWith  error
	finished  bool
}

func (l *stageLog) GraphChanged(s Snapshot) error {
	l.snapshots = append(l.snapshots, s)
	return l.failWith
}

func (l *stageLog) NodeExecuted(_ Snapshot, n *Node) error {
	l.executed = append(l.executed, n.Index)
	return nil
}

func (l *stageLog) Finish(Snapshot) error {
	l.finished = true
	return nil
}

func mustEdge(g *Graph, from, to NodeIndex, kind EdgeKind) {
	if _, err := g.AddEdge(from, to, kind); err != nil {
		panic(err)
	}
}
