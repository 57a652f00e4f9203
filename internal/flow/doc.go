// Package flow is the graph execution engine behind image-flow.
//
// A requested transformation (decode, constrain, flatten, color-correct,
// encode...) is a directed acyclic graph of operations. The engine drives
// that graph to completion through repeated passes instead of a single
// topological run, because operations only learn what they need to become
// once their inputs' dimensions are known.
//
// # Data Model
//
// A Graph is an index-stable arena: nodes and edges are addressed by integer
// indices that are never reused, and removal leaves a tombstone. Edges carry
// an EdgeKind; EdgeNone edges are advisory, every other kind is a data
// dependency.
//
// Each Node moves forward through a fixed sequence of stages:
//
//	New
//	OutboundDimensionsKnown      frame estimate computed
//	ReadyForOptimize
//	Optimized                    in-place rules applied
//	ReadyForPostOptimizeFlatten
//	ReadyForExecution            final shape decided
//	Executed                     bitmap produced
//
// # Passes
//
// Job.Execute links codecs, then loops:
//
//	populate dimensions, pre-optimize flatten, populate, optimize,
//	populate, post-optimize flatten, populate, execute where certain
//
// until every node is Executed or the pass ceiling is reached. Every pass
// walks the graph in dependency order (see Walker) and repeats its walk until
// no rewrite happens. A node whose inputs are not ready is not an error: the
// pass skips its descendants and a later pass picks it up.
//
// # Operations
//
// Operation is the hook set every node carries. Flattening, optimization and
// codec binding are optional capabilities discovered by type assertion.
// The concrete operations live in package nodes.
//
// # Errors
//
// GraphInvalidError, CodecNotFoundError and MaximumGraphPassesExceededError
// unwrap to ErrGraphInvalid, ErrCodecNotFound and
// ErrMaximumGraphPassesExceeded. Operation failures are wrapped in NodeError
// and stay reachable through errors.Is / errors.As.
//
// # Concurrency
//
// A Job runs on the calling goroutine with no internal parallelism and no
// locking. Callers serialize access to a Job themselves.
package flow
