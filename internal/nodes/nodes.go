// Package nodes declares the operations a graph can be built from.
//
// The set is closed: New is the only way to obtain an operation by name,
// and the request decoder fills the returned value from its parameters.
// Every operation implements flow.Operation; the flatten, optimize and codec
// capabilities are implemented where the operation needs them.
package nodes

import (
	"fmt"
	"image"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/image-flow/internal/flow"
)

var constructors = map[string]func() flow.Operation{
	"decode":        func() flow.Operation { return &Decode{} },
	"encode":        func() flow.Operation { return &Encode{} },
	"canvas":        func() flow.Operation { return &Canvas{Color: "transparent"} },
	"constrain":     func() flow.Operation { return &Constrain{} },
	"crop":          func() flow.Operation { return &Crop{} },
	"scale":         func() flow.Operation { return &Scale{} },
	"flatten":       func() flow.Operation { return &Flatten{Color: "white"} },
	"color_correct": func() flow.Operation { return &ColorCorrect{} },
	"adjust":        func() flow.Operation { return &Adjust{} },
	"blur":          func() flow.Operation { return &Blur{} },
	"copy_rect":     func() flow.Operation { return &CopyRect{} },
	"copy":          func() flow.Operation { return &Copy{} },
}

// New returns an operation of the given kind with default parameters.
func New(kind string) (flow.Operation, error) {
	c, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", kind)
	}
	return c(), nil
}

// Clone returns a new operation of the same kind carrying op's parameters
// and none of the state op picked up while a job ran. Only the exported
// parameter fields are copied.
func Clone(op flow.Operation) (flow.Operation, error) {
	fresh, err := New(op.Name())
	if err != nil {
		return nil, err
	}
	raw, err := yaml.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("%s parameters: %w", op.Name(), err)
	}
	if err := yaml.Unmarshal(raw, fresh); err != nil {
		return nil, fmt.Errorf("%s parameters: %w", op.Name(), err)
	}
	return fresh, nil
}

// Kinds lists every operation name in sorted order.
func Kinds() []string {
	kinds := make([]string, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Validator is implemented by operations with checks that struct tags
// cannot express.
type Validator interface {
	Validate() error
}

// inputFrame returns the frame of the single parent attached with kind.
func inputFrame(in flow.Inputs, kind flow.EdgeKind) (*flow.FrameEstimate, error) {
	if n := in.Count(kind); n != 1 {
		return nil, fmt.Errorf("expected exactly one %s input, got %d", kind, n)
	}
	return in.Frame(kind), nil
}

// sameFrame is the estimate of operations that keep their input's frame.
func sameFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	f, err := inputFrame(in, flow.EdgeInput)
	if err != nil {
		return nil, err
	}
	out := *f
	return &out, nil
}

// input fetches the executed input bitmap.
func input(ec *flow.ExecContext) (image.Image, error) {
	return ec.Input(flow.EdgeInput)
}
