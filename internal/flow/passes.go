package flow

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// passVisitor is one pass's per-node step. rewrote reports that the graph
// topology changed, which ends the current walk and requests another.
type passVisitor func(n *Node) (sig Signal, rewrote bool, err error)

// walkUntilStable repeats a dependency-wise walk until one completes without
// a rewrite. A rewrite rule that never settles keeps this looping; that is a
// rule bug, the engine does not detect it.
func (j *Job) walkUntilStable(visit passVisitor) error {
	for {
		w, err := j.currentWalker()
		if err != nil {
			return err
		}
		rewrote := false
		for ix, ok := w.Next(); ok; ix, ok = w.Next() {
			sig, rw, err := visit(j.graph.nodes[ix])
			if err != nil {
				return err
			}
			if rw {
				rewrote = true
				break
			}
			if sig.Quit {
				break
			}
			if sig.SkipOutbound {
				w.SkipOutbound(ix)
			}
		}
		if !rewrote {
			return w.Err()
		}
	}
}

// currentWalker reuses the cached walker while the topology is unchanged
// and derives a fresh one otherwise.
func (j *Job) currentWalker() (*Walker, error) {
	if j.walker != nil && j.walker.topology == j.graph.topology {
		j.walker.Reset()
		return j.walker, nil
	}
	w, err := NewWalker(j.graph)
	if err != nil {
		return nil, err
	}
	j.walker = w
	return w, nil
}

func (j *Job) inputs(ctx context.Context, n *Node) Inputs {
	return Inputs{ctx: ctx, g: j.graph, ix: n.Index}
}

// populateDimensions gives a frame to every node whose inputs all have one.
func (j *Job) populateDimensions(ctx context.Context) error {
	return j.walkUntilStable(func(n *Node) (Signal, bool, error) {
		if n.Frame != nil {
			return Signal{}, false, nil
		}
		if !j.graph.inputsHaveFrames(n.Index) {
			return Signal{SkipOutbound: true}, false, nil
		}

		start := time.Now()
		frame, err := n.Op.EstimateFrame(j.inputs(ctx, n))
		n.Cost.WallTicks += uint64(time.Since(start).Nanoseconds())
		if err != nil {
			return Signal{}, false, &NodeError{Node: n.Index, Op: n.Op.Name(), Phase: "estimate", Err: err}
		}
		if frame == nil {
			// inputs are known but this node needs more state first
			return Signal{SkipOutbound: true}, false, nil
		}

		j.graph.setFrame(n, frame)
		if n.Stage == StageNew {
			if err := j.graph.advance(n, StageOutboundDimensionsKnown); err != nil {
				return Signal{}, false, err
			}
		}
		return Signal{}, false, nil
	})
}

// preOptimizeFlatten expands high-level nodes whose dimensions are known.
func (j *Job) preOptimizeFlatten(ctx context.Context) error {
	return j.walkUntilStable(func(n *Node) (Signal, bool, error) {
		if n.Stage == StageNew {
			// can't flatten past missing dimensions
			return Signal{SkipOutbound: true}, false, nil
		}
		if n.Stage != StageOutboundDimensionsKnown {
			return Signal{}, false, nil
		}
		f, ok := n.Op.(PreOptimizeFlattener)
		if !ok {
			return Signal{}, false, nil
		}
		rw, err := f.PreOptimizeFlatten(j.inputs(ctx, n))
		if err != nil {
			return Signal{}, false, &NodeError{Node: n.Index, Op: n.Op.Name(), Phase: "pre_optimize_flatten", Err: err}
		}
		if rw == nil {
			return Signal{}, false, nil
		}
		return Signal{Quit: true}, true, j.applyRewrite(ctx, n, rw, "pre_optimize_flatten")
	})
}

// optimize applies in-place rules and marks nodes Optimized.
func (j *Job) optimize(ctx context.Context) error {
	return j.walkUntilStable(func(n *Node) (Signal, bool, error) {
		switch n.Stage {
		case StageNew:
			return Signal{SkipOutbound: true}, false, nil
		case StageOutboundDimensionsKnown:
			if err := j.graph.advance(n, StageReadyForOptimize); err != nil {
				return Signal{}, false, err
			}
		}
		if n.Stage != StageReadyForOptimize {
			return Signal{}, false, nil
		}
		if o, ok := n.Op.(Optimizer); ok {
			if err := o.Optimize(j.inputs(ctx, n)); err != nil {
				return Signal{}, false, &NodeError{Node: n.Index, Op: n.Op.Name(), Phase: "optimize", Err: err}
			}
		}
		return Signal{}, false, j.graph.advance(n, StageOptimized)
	})
}

// postOptimizeFlatten makes the final materialization decisions and marks
// nodes ReadyForExecution.
func (j *Job) postOptimizeFlatten(ctx context.Context) error {
	return j.walkUntilStable(func(n *Node) (Signal, bool, error) {
		if n.Stage < StageOptimized {
			return Signal{SkipOutbound: true}, false, nil
		}
		if n.Stage == StageOptimized {
			if err := j.graph.advance(n, StageReadyForPostOptimizeFlatten); err != nil {
				return Signal{}, false, err
			}
		}
		if n.Stage != StageReadyForPostOptimizeFlatten {
			return Signal{}, false, nil
		}
		if f, ok := n.Op.(PostOptimizeFlattener); ok {
			rw, err := f.PostOptimizeFlatten(j.inputs(ctx, n))
			if err != nil {
				return Signal{}, false, &NodeError{Node: n.Index, Op: n.Op.Name(), Phase: "post_optimize_flatten", Err: err}
			}
			if rw != nil {
				return Signal{Quit: true}, true, j.applyRewrite(ctx, n, rw, "post_optimize_flatten")
			}
		}
		return Signal{}, false, j.graph.advance(n, StageReadyForExecution)
	})
}

// executeWhereCertain runs every node whose inputs have all executed.
func (j *Job) executeWhereCertain(ctx context.Context) error {
	m := loadInstruments(j.logger)
	return j.walkUntilStable(func(n *Node) (Signal, bool, error) {
		if n.Stage == StageExecuted {
			return Signal{}, false, nil
		}
		if n.Stage != StageReadyForExecution || !j.graph.inputsExecuted(n.Index) || !codecBound(n) {
			// if we couldn't complete this node yet, end this branch
			return Signal{SkipOutbound: true}, false, nil
		}

		start := time.Now()
		img, err := n.Op.Execute(&ExecContext{ctx: ctx, job: j, ix: n.Index})
		elapsed := time.Since(start)
		n.Cost.WallTicks += uint64(elapsed.Nanoseconds())
		if m.nodeExecute != nil {
			m.nodeExecute.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("op", n.Op.Name())))
		}
		if err != nil {
			return Signal{}, false, &NodeError{Node: n.Index, Op: n.Op.Name(), Phase: "execute", Err: err}
		}

		n.Result = img
		if err := j.graph.advance(n, StageExecuted); err != nil {
			return Signal{}, false, err
		}
		j.logger.Debug("node executed", "node", int(n.Index), "op", n.Op.Name(), "elapsed", elapsed)
		return Signal{}, false, j.notifyNodeExecuted(n)
	})
}

// applyRewrite splices a flatten result into the graph and re-validates it.
func (j *Job) applyRewrite(ctx context.Context, n *Node, rw *Rewrite, phase string) error {
	ix, name := n.Index, n.Op.Name()
	if rw.Elide {
		if err := j.graph.Elide(ix); err != nil {
			return err
		}
		j.logger.Debug("node elided", "node", int(ix), "op", name, "phase", phase)
	} else {
		chain, err := j.graph.ReplaceWithChain(ix, rw.Chain...)
		if err != nil {
			return err
		}
		j.logger.Debug("node flattened", "node", int(ix), "op", name, "phase", phase, "replacements", chain)
	}
	if err := j.graph.Validate(); err != nil {
		return err
	}

	m := loadInstruments(j.logger)
	if m.rewrites != nil {
		m.rewrites.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase), attribute.String("op", name)))
	}
	return nil
}

func codecBound(n *Node) bool {
	cn, ok := n.Op.(CodecNode)
	return !ok || cn.Codec() != nil
}
