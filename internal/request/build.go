package request

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/ironsheep/image-flow/internal/codecs"
	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/ioport"
	"github.com/ironsheep/image-flow/internal/nodes"
)

// Env supplies what a request needs from its surroundings to open ports.
type Env struct {
	// BaseDir resolves relative file paths. Empty means the working
	// directory.
	BaseDir string

	// Store serves bucket/key ports; nil refuses them.
	Store ioport.ObjectStore

	// Bucket is used when a port names a key but no bucket.
	Bucket string
}

// Ports opens the request's I/O ports in declaration order.
func (r *Request) Ports(env Env) ([]ioport.Port, error) {
	ports := make([]ioport.Port, 0, len(r.IO))
	for i, spec := range r.IO {
		p, err := spec.port(env)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("io[%d]", i), Err: err}
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func (s IOSpec) port(env Env) (ioport.Port, error) {
	dir, err := ioport.ParseDirection(s.Direction)
	if err != nil {
		return nil, err
	}
	switch {
	case s.Path != "":
		path := s.Path
		if !filepath.IsAbs(path) && env.BaseDir != "" {
			path = filepath.Join(env.BaseDir, path)
		}
		if dir == ioport.In {
			return ioport.NewFileInput(s.ID, path), nil
		}
		return ioport.NewFileOutput(s.ID, path), nil
	case s.Base64 != "":
		data, err := base64.StdEncoding.DecodeString(s.Base64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 input: %w", err)
		}
		return ioport.NewBufferInput(s.ID, data), nil
	case s.Buffer:
		return ioport.NewOutputBuffer(s.ID), nil
	case s.Key != "":
		if env.Store == nil {
			return nil, errors.New("object storage is not configured")
		}
		bucket := s.Bucket
		if bucket == "" {
			bucket = env.Bucket
		}
		if bucket == "" {
			return nil, errors.New("no bucket given and no default bucket configured")
		}
		if dir == ioport.In {
			return ioport.NewObjectInput(s.ID, env.Store, bucket, s.Key), nil
		}
		return ioport.NewObjectOutput(s.ID, env.Store, bucket, s.Key), nil
	}
	return nil, errors.New("port has no source")
}

// AddTo adds the request's nodes and edges to g and returns the index each
// node id received. Steps are keyed by their position.
//
// g must be empty. Every node gets its own copy of the request's operation,
// so one request can be added to any number of graphs. The whole request is
// resolved on a scratch graph first; when that fails g is left untouched.
func (r *Request) AddTo(g *flow.Graph) (map[string]flow.NodeIndex, error) {
	if n := g.Len(); n > 0 {
		return nil, structural("", "graph already has %d nodes", n)
	}
	if _, err := r.addTo(flow.NewGraph()); err != nil {
		return nil, err
	}
	return r.addTo(g)
}

func (r *Request) addTo(g *flow.Graph) (map[string]flow.NodeIndex, error) {
	ids := make(map[string]flow.NodeIndex)
	if r.Graph == nil {
		var prev flow.NodeIndex
		for i, n := range r.Steps {
			field := fmt.Sprintf("steps[%d]", i)
			op, err := nodes.Clone(n.Op)
			if err != nil {
				return nil, &ValidationError{Field: field, Err: err}
			}
			ix := g.AddNode(op)
			ids[strconv.Itoa(i)] = ix
			if i > 0 {
				if _, err := g.AddEdge(prev, ix, flow.EdgeInput); err != nil {
					return nil, &ValidationError{Field: field, Err: err}
				}
			}
			prev = ix
		}
		return ids, nil
	}

	for _, key := range sortedKeys(r.Graph.Nodes) {
		op, err := nodes.Clone(r.Graph.Nodes[key].Op)
		if err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("graph.nodes[%s]", key), Err: err}
		}
		ids[key] = g.AddNode(op)
	}
	for i, e := range r.Graph.Edges {
		field := fmt.Sprintf("graph.edges[%d]", i)
		from, ok := ids[e.From]
		if !ok {
			return nil, structural(field, "unknown node %q", e.From)
		}
		to, ok := ids[e.To]
		if !ok {
			return nil, structural(field, "unknown node %q", e.To)
		}
		kind, err := flow.ParseEdgeKind(e.Kind)
		if err != nil {
			return nil, &ValidationError{Field: field, Err: err}
		}
		if _, err := g.AddEdge(from, to, kind); err != nil {
			return nil, &ValidationError{Field: field, Err: err}
		}
	}
	return ids, nil
}

// Build creates a job with the request's ports, codec registry and graph.
// The request's max_passes, when set, takes precedence over opts.
func Build(r *Request, env Env, opts ...flow.Option) (*flow.Job, error) {
	if r.MaxPasses > 0 {
		opts = append(opts, flow.WithMaxPasses(r.MaxPasses))
	}
	job := flow.NewJob(opts...)

	ports, err := r.Ports(env)
	if err != nil {
		return nil, err
	}
	for _, p := range ports {
		if err := job.AddIO(p); err != nil {
			return nil, err
		}
	}
	job.SetCodecRegistry(codecs.NewRegistry(job))

	if _, err := r.AddTo(job.Graph()); err != nil {
		return nil, err
	}
	return job, nil
}

// sortedKeys orders node ids numerically when every id is an integer and
// lexically otherwise.
func sortedKeys(m map[string]NodeSpec) []string {
	keys := make([]string, 0, len(m))
	numeric := true
	for k := range m {
		keys = append(keys, k)
		if _, err := strconv.Atoi(k); err != nil {
			numeric = false
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if numeric {
			a, _ := strconv.Atoi(keys[i])
			b, _ := strconv.Atoi(keys[j])
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}
