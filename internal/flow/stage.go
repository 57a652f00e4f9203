package flow

import "fmt"

// NodeStage is the position of a node in its forward-only lifecycle.
//
// Stages are totally ordered; a node only ever moves to the stage directly
// after its current one:
//
//	New -> OutboundDimensionsKnown -> ReadyForOptimize -> Optimized ->
//	ReadyForPostOptimizeFlatten -> ReadyForExecution -> Executed
//
// A node that is rewritten by a flatten pass is removed from the graph rather
// than moved backwards; its replacements start at New.
type NodeStage int

const (
	StageNew NodeStage = iota
	StageOutboundDimensionsKnown
	StageReadyForOptimize
	StageOptimized
	StageReadyForPostOptimizeFlatten
	StageReadyForExecution
	StageExecuted
)

var stageNames = [...]string{
	StageNew:                         "new",
	StageOutboundDimensionsKnown:     "outbound_dimensions_known",
	StageReadyForOptimize:            "ready_for_optimize",
	StageOptimized:                   "optimized",
	StageReadyForPostOptimizeFlatten: "ready_for_post_optimize_flatten",
	StageReadyForExecution:           "ready_for_execution",
	StageExecuted:                    "executed",
}

func (s NodeStage) String() string {
	if s < StageNew || s > StageExecuted {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// MarshalText renders the stage by name so JSON responses stay readable.
func (s NodeStage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a stage name produced by MarshalText.
func (s *NodeStage) UnmarshalText(b []byte) error {
	for i, name := range stageNames {
		if name == string(b) {
			*s = NodeStage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown node stage %q", string(b))
}

// HasDimensions reports whether a node at this stage has a frame estimate.
func (s NodeStage) HasDimensions() bool { return s >= StageOutboundDimensionsKnown }

// next returns the stage that legally follows s.
func (s NodeStage) next() NodeStage {
	if s >= StageExecuted {
		return StageExecuted
	}
	return s + 1
}

// advance moves n to stage to, which must directly follow its current stage.
// Every successful move bumps the graph's change counter so observers see it.
func (g *Graph) advance(n *Node, to NodeStage) error {
	if to != n.Stage.next() || n.Stage == StageExecuted {
		return &TransitionError{Node: n.Index, From: n.Stage, To: to}
	}
	n.Stage = to
	g.changes++
	return nil
}
