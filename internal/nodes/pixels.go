package nodes

import (
	"errors"
	"image"

	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/imaging"
)

// Canvas produces a solid-color bitmap.
type Canvas struct {
	Width  int    `json:"w" yaml:"w" validate:"gt=0"`
	Height int    `json:"h" yaml:"h" validate:"gt=0"`
	Color  string `json:"color,omitempty" yaml:"color" validate:"imgcolor"`
}

func (o *Canvas) Name() string { return "canvas" }

// EstimateFrame has no inputs; an opaque color gives a BGR24 frame.
func (o *Canvas) EstimateFrame(flow.Inputs) (*flow.FrameEstimate, error) {
	c, err := imaging.ParseColor(o.Color)
	if err != nil {
		return nil, err
	}
	format := flow.PixelBGR24
	if c.A != 255 {
		format = flow.PixelBGRA32
	}
	return &flow.FrameEstimate{Width: o.Width, Height: o.Height, Format: format}, nil
}

func (o *Canvas) Execute(*flow.ExecContext) (image.Image, error) {
	c, err := imaging.ParseColor(o.Color)
	if err != nil {
		return nil, err
	}
	return imaging.Fill(o.Width, o.Height, c), nil
}

// Flatten composites its input over an opaque background color.
type Flatten struct {
	Color string `json:"color,omitempty" yaml:"color" validate:"imgcolor"`
}

func (o *Flatten) Name() string { return "flatten" }

func (o *Flatten) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	f, err := sameFrame(in)
	if err != nil {
		return nil, err
	}
	f.Format = flow.PixelBGR24
	return f, nil
}

func (o *Flatten) Execute(ec *flow.ExecContext) (image.Image, error) {
	img, err := input(ec)
	if err != nil {
		return nil, err
	}
	c, err := imaging.ParseColor(o.Color)
	if err != nil {
		return nil, err
	}
	return imaging.FlattenOnto(img, c), nil
}

// ColorCorrect combines several tonal adjustments. Components left at their
// neutral value are dropped during optimization and the rest become a chain
// of Adjust nodes. Gamma zero means unset.
type ColorCorrect struct {
	Brightness float64 `json:"brightness,omitempty" yaml:"brightness" validate:"gte=-1,lte=1"`
	Contrast   float64 `json:"contrast,omitempty" yaml:"contrast" validate:"gte=-1,lte=1"`
	Saturation float64 `json:"saturation,omitempty" yaml:"saturation" validate:"gte=-1,lte=1"`
	Gamma      float64 `json:"gamma,omitempty" yaml:"gamma" validate:"gte=0"`
	Hue        float64 `json:"hue,omitempty" yaml:"hue"`

	steps     []*Adjust
	optimized bool
}

func (o *ColorCorrect) Name() string { return "color_correct" }

func (o *ColorCorrect) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	return sameFrame(in)
}

// Optimize keeps the components that are not neutral, gamma first.
func (o *ColorCorrect) Optimize(flow.Inputs) error {
	gamma := o.Gamma
	if gamma == 0 {
		gamma = 1
	}
	candidates := []*Adjust{
		{Kind: string(imaging.AdjustGamma), Amount: gamma},
		{Kind: string(imaging.AdjustBrightness), Amount: o.Brightness},
		{Kind: string(imaging.AdjustContrast), Amount: o.Contrast},
		{Kind: string(imaging.AdjustSaturation), Amount: o.Saturation},
		{Kind: string(imaging.AdjustHue), Amount: o.Hue},
	}
	o.steps = o.steps[:0]
	for _, a := range candidates {
		if !imaging.AdjustKind(a.Kind).IsNeutral(a.Amount) {
			o.steps = append(o.steps, a)
		}
	}
	o.optimized = true
	return nil
}

// PostOptimizeFlatten expands the kept components into Adjust nodes, or
// elides the node when none are left.
func (o *ColorCorrect) PostOptimizeFlatten(flow.Inputs) (*flow.Rewrite, error) {
	if !o.optimized {
		return nil, errors.New("color_correct flattened before optimization")
	}
	if len(o.steps) == 0 {
		return &flow.Rewrite{Elide: true}, nil
	}
	chain := make([]flow.Operation, len(o.steps))
	for i, a := range o.steps {
		chain[i] = a
	}
	return &flow.Rewrite{Chain: chain}, nil
}

// Execute always fails; color_correct is flattened before execution.
func (o *ColorCorrect) Execute(*flow.ExecContext) (image.Image, error) {
	return nil, errors.New("color_correct must be flattened before execution")
}

// Adjust applies a single tonal adjustment.
type Adjust struct {
	Kind   string  `json:"kind" yaml:"kind" validate:"required,oneof=brightness contrast saturation gamma hue"`
	Amount float64 `json:"amount" yaml:"amount"`
}

func (o *Adjust) Name() string { return "adjust" }

func (o *Adjust) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	return sameFrame(in)
}

func (o *Adjust) Execute(ec *flow.ExecContext) (image.Image, error) {
	img, err := input(ec)
	if err != nil {
		return nil, err
	}
	kind, err := imaging.ParseAdjustKind(o.Kind)
	if err != nil {
		return nil, err
	}
	return imaging.Adjust(img, kind, o.Amount)
}

// Blur applies a Gaussian blur. A sigma of zero is elided.
type Blur struct {
	Sigma float64 `json:"sigma" yaml:"sigma" validate:"gte=0"`

	identity bool
}

func (o *Blur) Name() string { return "blur" }

func (o *Blur) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	return sameFrame(in)
}

// Optimize marks a non-positive sigma as an identity.
func (o *Blur) Optimize(flow.Inputs) error {
	o.identity = o.Sigma <= 0
	return nil
}

// PostOptimizeFlatten elides an identity blur.
func (o *Blur) PostOptimizeFlatten(flow.Inputs) (*flow.Rewrite, error) {
	if !o.identity {
		return nil, nil
	}
	return &flow.Rewrite{Elide: true}, nil
}

func (o *Blur) Execute(ec *flow.ExecContext) (image.Image, error) {
	img, err := input(ec)
	if err != nil {
		return nil, err
	}
	return imaging.Blur(img, o.Sigma), nil
}

// Copy passes an unmodified copy of its input through.
type Copy struct{}

func (o *Copy) Name() string { return "copy" }

func (o *Copy) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	return sameFrame(in)
}

func (o *Copy) Execute(ec *flow.ExecContext) (image.Image, error) {
	img, err := input(ec)
	if err != nil {
		return nil, err
	}
	return imaging.Clone(img), nil
}
