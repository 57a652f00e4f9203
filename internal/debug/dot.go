package debug

import (
	"bytes"
	"fmt"

	"github.com/ironsheep/image-flow/internal/flow"
)

var stageColors = map[flow.NodeStage]string{
	flow.StageNew:                         "white",
	flow.StageOutboundDimensionsKnown:     "lightyellow",
	flow.StageReadyForOptimize:            "khaki",
	flow.StageOptimized:                   "lightblue",
	flow.StageReadyForPostOptimizeFlatten: "lightskyblue",
	flow.StageReadyForExecution:           "palegreen",
	flow.StageExecuted:                    "lightgray",
}

// WriteDOT renders a snapshot as a Graphviz digraph. Edges are labelled
// with their kind and the source frame when known.
func WriteDOT(s flow.Snapshot) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "digraph job {\n")
	fmt.Fprintf(&b, "  graph [label=%q, labelloc=t];\n", fmt.Sprintf("job %s, version %d, pass %d", s.JobID, s.Version, s.Pass))
	fmt.Fprintf(&b, "  node [shape=box, style=filled, fontname=Helvetica];\n")

	frames := make(map[flow.NodeIndex]*flow.FrameEstimate, len(s.Nodes))
	for _, n := range s.Nodes {
		frames[n.Index] = n.Frame
		label := fmt.Sprintf("#%d %s\n%s", n.Index, n.Op, n.Stage)
		if n.Cost.WallTicks > 0 {
			label += fmt.Sprintf("\n%.3fms", float64(n.Cost.WallTicks)/1e6)
		}
		fmt.Fprintf(&b, "  n%d [label=%q, fillcolor=%s];\n", n.Index, label, stageColors[n.Stage])
	}

	for _, e := range s.Edges {
		label := e.Kind.String()
		if f := frames[e.From]; f != nil {
			label += fmt.Sprintf("\n%dx%d %s", f.Width, f.Height, f.Format)
		}
		style := ""
		if !e.Kind.IsData() {
			style = ", style=dashed"
		}
		fmt.Fprintf(&b, "  n%d -> n%d [label=%q%s];\n", e.From, e.To, label, style)
	}
	b.WriteString("}\n")
	return b.Bytes()
}
