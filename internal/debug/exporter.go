// Package debug records how a job's graph evolves.
//
// GraphExporter is a flow.Observer that writes one Graphviz file per graph
// version and, optionally, a PNG of every executed node's bitmap:
//
//	<dir>/job_<id>_graph_version_<n>.dot
//	<dir>/node_frames/job_<id>_node_<ix>.png
//
// A version whose rendering is identical to the previous one is not kept;
// its number is reused by the next change. At most MaxVersions versions are
// written. Files left in Dir by an earlier job with the same id are removed
// when version 0 is written.
package debug

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-flow/internal/flow"
	imgutil "github.com/ironsheep/image-flow/internal/imaging"
)

// DefaultMaxVersions caps the versions recorded per job when
// Options.MaxVersions is zero.
const DefaultMaxVersions = 100

// Options selects what the exporter records.
type Options struct {
	// Dir receives the files. It is created on first write.
	Dir string

	// Frames enables node_frames output.
	Frames bool

	// Render converts the last graph to PNG with Graphviz when the job
	// finishes.
	Render bool

	// RenderVersions converts every superseded version to PNG as soon as
	// a newer one is written.
	RenderVersions bool

	// MaxVersions is the number of graph versions recorded per job; later
	// changes are dropped. Zero means DefaultMaxVersions.
	MaxVersions int

	// DotPath is the Graphviz binary; empty means "dot" from PATH.
	DotPath string

	Logger *slog.Logger
}

// GraphExporter writes debug artifacts for one job. It is not safe for
// concurrent use, matching the job that drives it.
type GraphExporter struct {
	opts   Options
	jobID  string
	logger *slog.Logger

	next     int
	lastDOT  []byte
	lastPath string
}

// NewGraphExporter creates an exporter for the job with the given id.
func NewGraphExporter(jobID string, opts Options) *GraphExporter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphExporter{opts: opts, jobID: jobID, logger: logger.With("job_id", jobID)}
}

// Factory returns a constructor suitable for engine.Options.Observer.
func Factory(opts Options) func(jobID string) flow.Observer {
	return func(jobID string) flow.Observer {
		return NewGraphExporter(jobID, opts)
	}
}

// GraphChanged writes the next graph version unless nothing visible
// changed or the version cap has been reached.
func (e *GraphExporter) GraphChanged(s flow.Snapshot) error {
	if e.next >= e.maxVersions() {
		return nil
	}
	data := WriteDOT(withoutVersion(s))
	if bytes.Equal(data, e.lastDOT) {
		return nil
	}
	if err := os.MkdirAll(e.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create debug dir: %w", err)
	}
	if e.next == 0 {
		if err := e.removeStale(); err != nil {
			return err
		}
	}

	path := filepath.Join(e.opts.Dir, fmt.Sprintf("job_%s_graph_version_%d.dot", e.jobID, e.next))
	if err := os.WriteFile(path, WriteDOT(s), 0o644); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	prev := e.lastPath
	e.next++
	e.lastDOT = data
	e.lastPath = path
	e.logger.Debug("graph exported", "path", path, "version", s.Version)

	if e.opts.RenderVersions && prev != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := e.render(ctx, prev); err != nil {
			return err
		}
	}
	return nil
}

func (e *GraphExporter) maxVersions() int {
	if e.opts.MaxVersions > 0 {
		return e.opts.MaxVersions
	}
	return DefaultMaxVersions
}

// removeStale deletes the graphs, renderings and node frames an earlier job
// with the same id left behind.
func (e *GraphExporter) removeStale() error {
	patterns := []string{
		filepath.Join(e.opts.Dir, fmt.Sprintf("job_%s_graph_version_*", e.jobID)),
		filepath.Join(e.opts.Dir, "node_frames", fmt.Sprintf("job_%s_node_*.png", e.jobID)),
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("failed to list stale debug files: %w", err)
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove stale debug file: %w", err)
			}
		}
		if len(matches) > 0 {
			e.logger.Debug("stale debug files removed", "pattern", filepath.Base(pattern), "count", len(matches))
		}
	}
	return nil
}

// withoutVersion blanks the counters so two renderings compare equal when
// only the counters differ.
func withoutVersion(s flow.Snapshot) flow.Snapshot {
	s.Version, s.Pass = 0, 0
	nodes := make([]flow.NodeSnapshot, len(s.Nodes))
	for i, n := range s.Nodes {
		n.Cost = flow.Cost{}
		nodes[i] = n
	}
	s.Nodes = nodes
	return s
}

// NodeExecuted saves the node's bitmap with its index drawn on it.
func (e *GraphExporter) NodeExecuted(_ flow.Snapshot, n *flow.Node) error {
	if !e.opts.Frames || n.Result == nil {
		return nil
	}
	dir := filepath.Join(e.opts.Dir, "node_frames")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create frame dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("job_%s_node_%d.png", e.jobID, n.Index))
	labelled := imgutil.LabelFrame(n.Result, strconv.Itoa(int(n.Index)))
	if err := imaging.Save(labelled, path); err != nil {
		return fmt.Errorf("failed to save node frame: %w", err)
	}
	return nil
}

// Finish renders the last graph when rendering is enabled.
func (e *GraphExporter) Finish(flow.Snapshot) error {
	if !e.opts.Render && !e.opts.RenderVersions {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err := e.RenderLastGraph(ctx)
	return err
}

// LastGraph returns the path of the most recent .dot file, if any.
func (e *GraphExporter) LastGraph() (string, bool) {
	return e.lastPath, e.lastPath != ""
}

// RenderLastGraph runs Graphviz on the most recent graph and returns the
// PNG path.
func (e *GraphExporter) RenderLastGraph(ctx context.Context) (string, error) {
	src, ok := e.LastGraph()
	if !ok {
		return "", fmt.Errorf("job %s has no exported graph", e.jobID)
	}
	return e.render(ctx, src)
}

func (e *GraphExporter) render(ctx context.Context, src string) (string, error) {
	dot := e.opts.DotPath
	if dot == "" {
		dot = "dot"
	}
	bin, err := exec.LookPath(dot)
	if err != nil {
		return "", fmt.Errorf("graphviz not available: %w", err)
	}

	out := src + ".png"
	cmd := exec.CommandContext(ctx, bin, "-Tpng", src, "-o", out)
	if output, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("failed to render %s: %w: %s", src, err, bytes.TrimSpace(output))
	}
	e.logger.Debug("graph rendered", "path", out)
	return out, nil
}
