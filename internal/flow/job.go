package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxPasses is the pass ceiling used when no option overrides it.
const DefaultMaxPasses = 6

// Job is the execution scope for one graph.
//
// A Job is created empty, its graph is built through Graph(), Execute is
// called once, and afterwards the job is only inspected. A Job is not safe
// for concurrent use; callers serialize access themselves.
type Job struct {
	id     string
	graph  *Graph
	logger *slog.Logger

	maxPasses int
	passes    int

	graphVersion    int
	notifiedChanges uint64

	io     map[int]IOPort
	codecs CodecRegistry

	observer          Observer
	observerMandatory bool

	walker   *Walker
	finished bool
}

// Option configures a Job.
type Option func(*Job)

// WithMaxPasses sets the convergence ceiling. Values below 1 are ignored.
func WithMaxPasses(n int) Option {
	return func(j *Job) {
		if n >= 1 {
			j.maxPasses = n
		}
	}
}

// WithCodecRegistry sets the registry used by LinkCodecs.
func WithCodecRegistry(r CodecRegistry) Option {
	return func(j *Job) { j.codecs = r }
}

// WithObserver attaches a best-effort observer; its failures are logged.
func WithObserver(o Observer) Option {
	return func(j *Job) {
		j.observer = o
		j.observerMandatory = false
	}
}

// WithMandatoryObserver attaches an observer whose failures fail the job.
func WithMandatoryObserver(o Observer) Option {
	return func(j *Job) {
		j.observer = o
		j.observerMandatory = true
	}
}

// WithLogger sets the job logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(j *Job) {
		if l != nil {
			j.logger = l
		}
	}
}

// WithID overrides the generated job id.
func WithID(id string) Option {
	return func(j *Job) { j.id = id }
}

// NewJob returns an empty job.
func NewJob(opts ...Option) *Job {
	j := &Job{
		id:        uuid.NewString(),
		graph:     NewGraph(),
		logger:    slog.Default(),
		maxPasses: DefaultMaxPasses,
		io:        make(map[int]IOPort),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.With("job_id", j.id)
	return j
}

// ID returns the job id.
func (j *Job) ID() string { return j.id }

// Graph returns the job's graph for construction and inspection.
func (j *Job) Graph() *Graph { return j.graph }

// MaxPasses returns the configured pass ceiling.
func (j *Job) MaxPasses() int { return j.maxPasses }

// Passes returns how many full passes Execute has run.
func (j *Job) Passes() int { return j.passes }

// GraphVersion returns how many distinct graph states have been observed.
func (j *Job) GraphVersion() int { return j.graphVersion }

// Finished reports whether Execute has returned.
func (j *Job) Finished() bool { return j.finished }

// SetCodecRegistry replaces the registry; registries usually need the job's
// ports, so they are often attached after NewJob.
func (j *Job) SetCodecRegistry(r CodecRegistry) { j.codecs = r }

// AddIO registers an I/O port under its id.
func (j *Job) AddIO(p IOPort) error {
	if j.finished {
		return ErrJobFinished
	}
	if _, dup := j.io[p.IOID()]; dup {
		return fmt.Errorf("io id %d already registered", p.IOID())
	}
	j.io[p.IOID()] = p
	return nil
}

// IO returns the port registered under id.
func (j *Job) IO(id int) (IOPort, bool) {
	p, ok := j.io[id]
	return p, ok
}

// IOIDs returns every registered io id.
func (j *Job) IOIDs() []int {
	ids := make([]int, 0, len(j.io))
	for id := range j.io {
		ids = append(ids, id)
	}
	return ids
}

// NodeStage returns the current stage of a node.
func (j *Job) NodeStage(ix NodeIndex) (NodeStage, error) {
	n, err := j.graph.Node(ix)
	if err != nil {
		return StageNew, err
	}
	return n.Stage, nil
}

// LinkCodecs binds every decode/encode node that has no codec yet to the
// instance the registry returns for its placeholder id. A missing codec is
// fatal for the job.
func (j *Job) LinkCodecs() error {
	for _, ix := range j.graph.NodeIndices() {
		n := j.graph.nodes[ix]
		cn, ok := n.Op.(CodecNode)
		if !ok || cn.Codec() != nil {
			continue
		}
		var c Codec
		if j.codecs != nil {
			c, ok = j.codecs.Lookup(cn.PlaceholderID())
		}
		if c == nil || !ok {
			return &CodecNotFoundError{PlaceholderID: cn.PlaceholderID(), Node: ix}
		}
		if err := cn.BindCodec(c); err != nil {
			return &NodeError{Node: ix, Op: n.Op.Name(), Phase: "link_codecs", Err: err}
		}
		j.graph.changes++
		j.logger.Debug("codec linked", "node", int(ix), "placeholder_id", cn.PlaceholderID(), "codec", c.Name())
	}
	return nil
}

// Execute drives the graph to completion.
//
// It links codecs once, then repeats populate / pre-optimize flatten /
// optimize / post-optimize flatten / execute (re-populating dimensions after
// every step) until every node is Executed or the pass ceiling is reached.
// The context is only checked between passes.
func (j *Job) Execute(ctx context.Context) (err error) {
	if j.finished {
		return ErrJobFinished
	}
	defer func() { j.finished = true }()

	ctx, span := tracer.Start(ctx, "flow.Job.Execute",
		trace.WithAttributes(
			attribute.String("job.id", j.id),
			attribute.Int("job.max_passes", j.maxPasses),
			attribute.Int("graph.nodes", j.graph.Len()),
		),
	)
	defer span.End()

	m := loadInstruments(j.logger)
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		attrs := metric.WithAttributes(attribute.String("outcome", outcome))
		if m.jobs != nil {
			m.jobs.Add(ctx, 1, attrs)
		}
		if m.jobDuration != nil {
			m.jobDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		}
		span.SetAttributes(attribute.Int("job.passes", j.passes))
	}()

	if err := j.notifyGraphChanged(); err != nil {
		return err
	}
	if err := j.LinkCodecs(); err != nil {
		return err
	}
	if err := j.notifyGraphChanged(); err != nil {
		return err
	}

	for !j.fullyExecuted() {
		if j.passes >= j.maxPasses {
			return &MaximumGraphPassesExceededError{Passes: j.passes, Pending: j.pending()}
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("job cancelled after %d passes: %w", j.passes, err)
		}
		if err := j.runPass(ctx); err != nil {
			return err
		}
		j.passes++
		if m.passes != nil {
			m.passes.Add(ctx, 1)
		}
		if err := j.notifyGraphChanged(); err != nil {
			return err
		}
	}

	j.logger.Debug("job executed", "passes", j.passes, "graph_version", j.graphVersion)
	if f, ok := j.observer.(Finisher); ok {
		if err := j.observerResult("finish", f.Finish(j.snapshot())); err != nil {
			return err
		}
	}
	return nil
}

// runPass runs one full pass, notifying the observer after every step.
func (j *Job) runPass(ctx context.Context) error {
	steps := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"populate_dimensions", j.populateDimensions},
		{"pre_optimize_flatten", j.preOptimizeFlatten},
		{"populate_dimensions", j.populateDimensions},
		{"optimize", j.optimize},
		{"populate_dimensions", j.populateDimensions},
		{"post_optimize_flatten", j.postOptimizeFlatten},
		{"populate_dimensions", j.populateDimensions},
		{"execute", j.executeWhereCertain},
	}

	for i, step := range steps {
		stepCtx, span := tracer.Start(ctx, "flow.pass."+step.name,
			trace.WithAttributes(attribute.Int("pass", j.passes), attribute.Int("step", i)))
		err := step.run(stepCtx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			return err
		}
		// the last notification of a pass happens after the counter moves
		if i < len(steps)-1 {
			if err := j.notifyGraphChanged(); err != nil {
				return err
			}
		}
	}
	j.logger.Debug("pass complete", "pass", j.passes, "pending", len(j.pending()))
	return nil
}

func (j *Job) fullyExecuted() bool {
	for _, n := range j.graph.nodes {
		if n != nil && n.Stage != StageExecuted {
			return false
		}
	}
	return true
}

func (j *Job) pending() []NodeIndex {
	var ixs []NodeIndex
	for _, ix := range j.graph.NodeIndices() {
		if j.graph.nodes[ix].Stage != StageExecuted {
			ixs = append(ixs, ix)
		}
	}
	return ixs
}
