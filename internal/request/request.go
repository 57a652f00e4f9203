// Package request decodes job requests written in YAML or JSON and builds
// them into flow jobs.
//
// A request names its I/O ports and either a graph (nodes keyed by id plus
// explicit edges) or a linear list of steps:
//
//	max_passes: 6
//	io:
//	  - {id: 0, direction: in, path: in.png}
//	  - {id: 1, direction: out, path: out.jpg}
//	steps:
//	  - decode: {io_id: 0}
//	  - constrain: {mode: within, w: 200, h: 200}
//	  - encode: {io_id: 1, format: jpeg, quality: 90}
package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/nodes"
)

// Request is a complete job description.
type Request struct {
	MaxPasses int        `json:"max_passes,omitempty" yaml:"max_passes" validate:"gte=0,lte=64"`
	IO        []IOSpec   `json:"io" yaml:"io" validate:"dive"`
	Graph     *GraphSpec `json:"graph,omitempty" yaml:"graph"`
	Steps     []NodeSpec `json:"steps,omitempty" yaml:"steps"`
}

// IOSpec declares one I/O port. Exactly one of Path, Base64, Buffer or Key
// selects where the bytes live.
type IOSpec struct {
	ID        int    `json:"id" yaml:"id" validate:"gte=0"`
	Direction string `json:"direction" yaml:"direction" validate:"required,oneof=in out input output"`

	// Path is a file path, relative to the request's base directory.
	Path string `json:"path,omitempty" yaml:"path"`

	// Base64 holds the encoded bytes of an input.
	Base64 string `json:"base64,omitempty" yaml:"base64" validate:"omitempty,base64"`

	// Buffer keeps an output in memory.
	Buffer bool `json:"buffer,omitempty" yaml:"buffer"`

	// Bucket and Key address an object in the configured object store.
	Bucket string `json:"bucket,omitempty" yaml:"bucket"`
	Key    string `json:"key,omitempty" yaml:"key"`
}

// GraphSpec is an explicit graph. Node ids are free-form strings; when they
// are all integers nodes are added in numeric order.
type GraphSpec struct {
	Nodes map[string]NodeSpec `json:"nodes" yaml:"nodes" validate:"required,min=1"`
	Edges []EdgeSpec          `json:"edges" yaml:"edges" validate:"dive"`
}

// EdgeSpec connects two nodes of a GraphSpec by id.
type EdgeSpec struct {
	From string `json:"from" yaml:"from" validate:"required"`
	To   string `json:"to" yaml:"to" validate:"required"`
	Kind string `json:"kind,omitempty" yaml:"kind" validate:"omitempty,oneof=input canvas none"`
}

// NodeSpec is one operation, written as a single-key mapping from the
// operation kind to its parameters, or as a bare kind when it takes none.
type NodeSpec struct {
	Kind string
	Op   flow.Operation
}

// UnmarshalYAML decodes {kind: {params}} into a fresh operation.
func (n *NodeSpec) UnmarshalYAML(value *yaml.Node) error {
	var params *yaml.Node
	switch {
	case value.Kind == yaml.ScalarNode:
		n.Kind = value.Value
	case value.Kind == yaml.MappingNode && len(value.Content) == 2:
		n.Kind = value.Content[0].Value
		params = value.Content[1]
	default:
		return fmt.Errorf("line %d: a node is written as {kind: {params}}", value.Line)
	}

	op, err := nodes.New(n.Kind)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	if params != nil && params.Tag != "!!null" {
		if err := decodeStrict(params, op); err != nil {
			return fmt.Errorf("line %d: %s parameters: %w", value.Line, n.Kind, err)
		}
	}
	n.Op = op
	return nil
}

// decodeStrict decodes node into out, rejecting unknown fields.
// yaml.Node.Decode does not honour KnownFields, so the node is re-encoded.
func decodeStrict(node *yaml.Node, out any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(out)
}

// Parse decodes and validates a request. JSON is accepted as the YAML
// subset it is.
func Parse(data []byte) (*Request, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var r Request
	if err := dec.Decode(&r); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ValidationError{Err: errors.New("empty request")}
		}
		return nil, &ValidationError{Err: err}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Load reads and parses a request file.
func Load(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request: %w", err)
	}
	return Parse(data)
}
