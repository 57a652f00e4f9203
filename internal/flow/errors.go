package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for programmatic checking via errors.Is().
var (
	// ErrGraphInvalid indicates a cycle, a dangling edge or any other
	// structural violation, at construction time or after a rewrite.
	ErrGraphInvalid = errors.New("graph invalid")

	// ErrCodecNotFound indicates a decode/encode node whose placeholder id
	// could not be resolved to a codec instance.
	ErrCodecNotFound = errors.New("codec not found")

	// ErrMaximumGraphPassesExceeded indicates the convergence loop hit its
	// pass ceiling before every node was executed.
	ErrMaximumGraphPassesExceeded = errors.New("maximum graph passes exceeded")

	// ErrIllegalTransition indicates an attempt to move a node to a stage
	// that is not the next one in order.
	ErrIllegalTransition = errors.New("illegal stage transition")

	// ErrStaleWalk indicates a walker was advanced after the graph topology
	// changed underneath it.
	ErrStaleWalk = errors.New("stale walk: graph topology changed")

	// ErrJobFinished is returned when a job is mutated or executed after
	// Execute has already returned.
	ErrJobFinished = errors.New("job already executed")

	// ErrNodeNotFound is returned for lookups of removed or unknown nodes.
	ErrNodeNotFound = errors.New("node not found")
)

// GraphInvalidError describes a structural violation.
// Wraps ErrGraphInvalid for errors.Is() compatibility.
type GraphInvalidError struct {
	Reason string      // Deterministic description of the violation
	Nodes  []NodeIndex // Nodes involved, if any
}

func (e *GraphInvalidError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Nodes) == 0 {
		return fmt.Sprintf("%s: %s", ErrGraphInvalid.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s (nodes %s)", ErrGraphInvalid.Error(), e.Reason, formatIndices(e.Nodes))
}

func (e *GraphInvalidError) Unwrap() error { return ErrGraphInvalid }

// CodecNotFoundError names the placeholder id and node that could not be
// linked. Wraps ErrCodecNotFound.
type CodecNotFoundError struct {
	PlaceholderID int
	Node          NodeIndex
}

func (e *CodecNotFoundError) Error() string {
	return fmt.Sprintf("%s: no matching codec or io found for placeholder id %d (node #%d)",
		ErrCodecNotFound.Error(), e.PlaceholderID, e.Node)
}

func (e *CodecNotFoundError) Unwrap() error { return ErrCodecNotFound }

// MaximumGraphPassesExceededError reports how many passes ran and which
// nodes never reached the Executed stage.
type MaximumGraphPassesExceededError struct {
	Passes  int
	Pending []NodeIndex
}

func (e *MaximumGraphPassesExceededError) Error() string {
	return fmt.Sprintf("%s: %d passes, %d nodes not executed: %s",
		ErrMaximumGraphPassesExceeded.Error(), e.Passes, len(e.Pending), formatIndices(e.Pending))
}

func (e *MaximumGraphPassesExceededError) Unwrap() error { return ErrMaximumGraphPassesExceeded }

// TransitionError is returned when a node is asked to move to a stage that
// does not directly follow its current one.
type TransitionError struct {
	Node     NodeIndex
	From, To NodeStage
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: node #%d %s -> %s", ErrIllegalTransition.Error(), e.Node, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// NodeError wraps a failure raised by an operation hook. The operation's
// own error stays reachable through errors.Is / errors.As.
type NodeError struct {
	Node  NodeIndex
	Op    string
	Phase string // "estimate", "pre_optimize_flatten", "optimize", "post_optimize_flatten", "execute"
	Err   error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node #%d (%s) failed during %s: %v", e.Node, e.Op, e.Phase, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

func formatIndices(ixs []NodeIndex) string {
	parts := make([]string, len(ixs))
	for i, ix := range ixs {
		parts[i] = fmt.Sprintf("%d", ix)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
