package flow

// NodeSnapshot is a detached copy of one node's observable state.
type NodeSnapshot struct {
	Index NodeIndex      `json:"index"`
	Op    string         `json:"op"`
	Stage NodeStage      `json:"stage"`
	Frame *FrameEstimate `json:"frame,omitempty"`
	Cost  Cost           `json:"cost"`
}

// Snapshot is a detached copy of a job's graph at one graph version.
// Observers may keep it; nothing in it aliases engine state except the
// executed bitmaps handed to NodeExecuted.
type Snapshot struct {
	JobID   string         `json:"job_id"`
	Version int            `json:"version"`
	Pass    int            `json:"pass"`
	Nodes   []NodeSnapshot `json:"nodes"`
	Edges   []Edge         `json:"edges"`
}

// Observer is notified whenever the graph changes and whenever a node
// finishes executing. Implementations must not block for long: the job
// waits for every call.
type Observer interface {
	GraphChanged(s Snapshot) error
	NodeExecuted(s Snapshot, n *Node) error
}

// Finisher is an optional Observer extension called once after a job
// completes successfully, with the final graph.
type Finisher interface {
	Finish(s Snapshot) error
}

// Snapshot returns a detached copy of the job's current graph.
func (j *Job) Snapshot() Snapshot { return j.snapshot() }

func (j *Job) snapshot() Snapshot {
	s := Snapshot{
		JobID:   j.id,
		Version: j.graphVersion,
		Pass:    j.passes,
		Edges:   j.graph.Edges(),
	}
	for _, ix := range j.graph.NodeIndices() {
		n := j.graph.nodes[ix]
		ns := NodeSnapshot{Index: n.Index, Op: n.Op.Name(), Stage: n.Stage, Cost: n.Cost}
		if n.Frame != nil {
			f := *n.Frame
			ns.Frame = &f
		}
		s.Nodes = append(s.Nodes, ns)
	}
	return s
}

// notifyGraphChanged hands a snapshot to the observer if the graph changed
// since the last notification. The graph version only moves when it does.
func (j *Job) notifyGraphChanged() error {
	if j.graph.changes == j.notifiedChanges {
		return nil
	}
	j.notifiedChanges = j.graph.changes
	j.graphVersion++
	if j.observer == nil {
		return nil
	}
	return j.observerResult("graph changed", j.observer.GraphChanged(j.snapshot()))
}

func (j *Job) notifyNodeExecuted(n *Node) error {
	if j.observer == nil {
		return nil
	}
	return j.observerResult("node executed", j.observer.NodeExecuted(j.snapshot(), n))
}

// observerResult decides whether an observer failure fails the job.
func (j *Job) observerResult(event string, err error) error {
	if err == nil {
		return nil
	}
	if j.observerMandatory {
		return err
	}
	j.logger.Warn("observer failed", "event", event, "error", err)
	return nil
}
