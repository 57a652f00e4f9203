// Package engine is the service boundary in front of flow jobs.
//
// A Context owns a table of jobs addressed by opaque handles. The table is
// guarded by one mutex and every job by its own, so jobs run independently
// while a single job is never driven from two goroutines at once.
//
// Passing a handle the Context does not know, or using a Context after
// Close, is a programming error and panics. Callers that take handles from
// untrusted input check them with HasJob first.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/ironsheep/image-flow/internal/codecs"
	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/ioport"
	"github.com/ironsheep/image-flow/internal/request"
)

// JobHandle identifies a job within one Context.
type JobHandle uint64

// ObserverFactory creates the observer for a new job.
type ObserverFactory func(jobID string) flow.Observer

// Options configures a Context.
type Options struct {
	// MaxPasses is the default pass ceiling; zero keeps flow.DefaultMaxPasses.
	MaxPasses int

	// Logger is the parent logger of every job. Nil means slog.Default().
	Logger *slog.Logger

	// Observer, if set, is attached to every job.
	Observer ObserverFactory

	// Store and Bucket back object ports.
	Store  ioport.ObjectStore
	Bucket string

	// BaseDir resolves relative file paths.
	BaseDir string
}

// Context holds jobs for one client.
type Context struct {
	mu     sync.Mutex
	jobs   map[JobHandle]*jobEntry
	next   JobHandle
	closed bool

	opts   Options
	logger *slog.Logger
}

type jobEntry struct {
	mu  sync.Mutex
	job *flow.Job
}

// New creates an empty Context.
func New(opts Options) *Context {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		jobs:   make(map[JobHandle]*jobEntry),
		next:   1,
		opts:   opts,
		logger: logger,
	}
}

func (c *Context) jobOptions(id string) []flow.Option {
	opts := []flow.Option{
		flow.WithID(id),
		flow.WithLogger(c.logger),
		flow.WithMaxPasses(c.opts.MaxPasses),
	}
	if c.opts.Observer != nil {
		opts = append(opts, flow.WithObserver(c.opts.Observer(id)))
	}
	return opts
}

func (c *Context) env() request.Env {
	return request.Env{BaseDir: c.opts.BaseDir, Store: c.opts.Store, Bucket: c.opts.Bucket}
}

func (c *Context) register(job *flow.Job) JobHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		panic("engine: use of closed context")
	}
	h := c.next
	c.next++
	c.jobs[h] = &jobEntry{job: job}
	c.logger.Debug("job created", "handle", uint64(h), "job_id", job.ID())
	return h
}

// CreateJob adds an empty job with a codec registry over its own ports.
func (c *Context) CreateJob() JobHandle {
	job := flow.NewJob(c.jobOptions(uuid.NewString())...)
	job.SetCodecRegistry(codecs.NewRegistry(job))
	return c.register(job)
}

// Run builds a whole request into a new job and executes it. The handle is
// returned even when execution fails so the caller can inspect the job.
func (c *Context) Run(ctx context.Context, r *request.Request) (JobHandle, error) {
	job, err := request.Build(r, c.env(), c.jobOptions(uuid.NewString())...)
	if err != nil {
		return 0, err
	}
	h := c.register(job)
	return h, c.Execute(ctx, h)
}

// HasJob reports whether h names a live job. It never panics.
func (c *Context) HasJob(h JobHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.jobs[h]
	return ok && !c.closed
}

// mustJob returns the entry for h, panicking on an unknown handle or a
// closed context.
func (c *Context) mustJob(h JobHandle) *jobEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		panic("engine: use of closed context")
	}
	e, ok := c.jobs[h]
	if !ok {
		panic(fmt.Sprintf("engine: unknown job handle %d", h))
	}
	return e
}

// with runs fn holding the job's lock.
func (c *Context) with(h JobHandle, fn func(job *flow.Job) error) error {
	e := c.mustJob(h)
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.job)
}

func (c *Context) addPort(h JobHandle, p ioport.Port) error {
	return c.with(h, func(job *flow.Job) error {
		if err := job.AddIO(p); err != nil {
			return fmt.Errorf("failed to add %s: %w", ioport.Describe(p), err)
		}
		return nil
	})
}

func (c *Context) resolve(path string) string {
	if filepath.IsAbs(path) || c.opts.BaseDir == "" {
		return path
	}
	return filepath.Join(c.opts.BaseDir, path)
}

// AddInputFile registers a file to decode from.
func (c *Context) AddInputFile(h JobHandle, ioID int, path string) error {
	return c.addPort(h, ioport.NewFileInput(ioID, c.resolve(path)))
}

// AddOutputFile registers a file to encode to.
func (c *Context) AddOutputFile(h JobHandle, ioID int, path string) error {
	return c.addPort(h, ioport.NewFileOutput(ioID, c.resolve(path)))
}

// AddInputBuffer registers encoded bytes to decode from. The slice is not
// copied.
func (c *Context) AddInputBuffer(h JobHandle, ioID int, data []byte) error {
	return c.addPort(h, ioport.NewBufferInput(ioID, data))
}

// AddOutputBuffer registers an in-memory output, read back with
// OutputBuffer.
func (c *Context) AddOutputBuffer(h JobHandle, ioID int) error {
	return c.addPort(h, ioport.NewOutputBuffer(ioID))
}

// ErrNoObjectStore is returned by the object port methods when the Context
// has no store.
var ErrNoObjectStore = errors.New("object storage is not configured")

func (c *Context) bucket(bucket string) string {
	if bucket == "" {
		return c.opts.Bucket
	}
	return bucket
}

// AddObjectInput registers an object to decode from. An empty bucket uses
// the configured default.
func (c *Context) AddObjectInput(h JobHandle, ioID int, bucket, key string) error {
	if c.opts.Store == nil {
		return ErrNoObjectStore
	}
	return c.addPort(h, ioport.NewObjectInput(ioID, c.opts.Store, c.bucket(bucket), key))
}

// AddObjectOutput registers an object to encode to.
func (c *Context) AddObjectOutput(h JobHandle, ioID int, bucket, key string) error {
	if c.opts.Store == nil {
		return ErrNoObjectStore
	}
	return c.addPort(h, ioport.NewObjectOutput(ioID, c.opts.Store, c.bucket(bucket), key))
}

// BuildGraph adds the nodes and edges of g to the job and returns the index
// each node id received. A job takes one graph: building into a job that
// already has nodes fails, and a rejected graph leaves the job unchanged.
// g is not retained and may be built into other jobs.
func (c *Context) BuildGraph(h JobHandle, g *request.GraphSpec) (map[string]flow.NodeIndex, error) {
	r := &request.Request{Graph: g}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	var ids map[string]flow.NodeIndex
	err := c.with(h, func(job *flow.Job) error {
		if job.Finished() {
			return flow.ErrJobFinished
		}
		var err error
		ids, err = r.AddTo(job.Graph())
		return err
	})
	return ids, err
}

// Execute drives the job to completion. It blocks while another call holds
// the same job.
func (c *Context) Execute(ctx context.Context, h JobHandle) error {
	return c.with(h, func(job *flow.Job) error {
		if err := job.Execute(ctx); err != nil {
			c.logger.Warn("job failed", "job_id", job.ID(), "error", err)
			return err
		}
		c.logger.Info("job executed", "job_id", job.ID(), "passes", job.Passes(), "graph_version", job.GraphVersion())
		return nil
	})
}

// NodeStage returns the stage of one node.
func (c *Context) NodeStage(h JobHandle, ix flow.NodeIndex) (flow.NodeStage, error) {
	var stage flow.NodeStage
	err := c.with(h, func(job *flow.Job) error {
		var err error
		stage, err = job.NodeStage(ix)
		return err
	})
	return stage, err
}

// Snapshot returns the job's current graph.
func (c *Context) Snapshot(h JobHandle) flow.Snapshot {
	var s flow.Snapshot
	_ = c.with(h, func(job *flow.Job) error {
		s = job.Snapshot()
		return nil
	})
	return s
}

// OutputBuffer returns the bytes written to an output buffer.
func (c *Context) OutputBuffer(h JobHandle, ioID int) ([]byte, error) {
	var data []byte
	err := c.with(h, func(job *flow.Job) error {
		p, ok := job.IO(ioID)
		if !ok {
			return fmt.Errorf("job has no io %d", ioID)
		}
		buf, ok := p.(*ioport.OutputBuffer)
		if !ok {
			return fmt.Errorf("io %d is not an output buffer", ioID)
		}
		data, ok = buf.Bytes()
		if !ok {
			return fmt.Errorf("io %d has not been written", ioID)
		}
		return nil
	})
	return data, err
}

// DestroyJob drops the job. A call still executing it runs to completion.
func (c *Context) DestroyJob(h JobHandle) {
	c.mustJob(h)
	c.mu.Lock()
	delete(c.jobs, h)
	c.mu.Unlock()
	c.logger.Debug("job destroyed", "handle", uint64(h))
}

// Len returns the number of live jobs.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// Close drops every job. Any later use of the Context panics.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = nil
	c.closed = true
}
