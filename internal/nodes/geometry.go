package nodes

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/imaging"
)

// Constrain modes.
const (
	ModeFit    = "fit"
	ModeWithin = "within"
	ModeFill   = "fill"
	ModeExact  = "exact"
)

// Constrain fits its input into a target box. It never executes itself: once
// the input size is known it expands into an optional crop and a scale.
type Constrain struct {
	Mode   string `json:"mode" yaml:"mode" validate:"required,oneof=fit within fill exact"`
	Width  int    `json:"w,omitempty" yaml:"w" validate:"gte=0"`
	Height int    `json:"h,omitempty" yaml:"h" validate:"gte=0"`
	Filter string `json:"filter,omitempty" yaml:"filter" validate:"omitempty,resample"`
}

func (o *Constrain) Name() string { return "constrain" }

func (o *Constrain) Validate() error {
	if o.Width == 0 && o.Height == 0 {
		return errors.New("constrain needs w, h or both")
	}
	if (o.Mode == ModeFill || o.Mode == ModeExact) && (o.Width == 0 || o.Height == 0) {
		return fmt.Errorf("constrain mode %s needs both w and h", o.Mode)
	}
	return nil
}

// plan computes the optional source crop and the final size for a w x h
// source.
func (o *Constrain) plan(w, h int) (*imaging.Region, int, int) {
	tw, th := o.Width, o.Height
	switch {
	case tw == 0:
		tw = scaleDim(w, float64(th)/float64(h))
	case th == 0:
		th = scaleDim(h, float64(tw)/float64(w))
	}

	sx, sy := float64(tw)/float64(w), float64(th)/float64(h)
	switch o.Mode {
	case ModeExact:
		return nil, tw, th
	case ModeFill:
		f := math.Max(sx, sy)
		cw := clampDim(int(math.Round(float64(tw)/f)), w)
		ch := clampDim(int(math.Round(float64(th)/f)), h)
		if cw == w && ch == h {
			return nil, tw, th
		}
		x, y := (w-cw)/2, (h-ch)/2
		return &imaging.Region{X1: x, Y1: y, X2: x + cw, Y2: y + ch}, tw, th
	case ModeWithin:
		f := math.Min(sx, sy)
		if f >= 1 {
			return nil, w, h
		}
		return nil, scaleDim(w, f), scaleDim(h, f)
	default:
		f := math.Min(sx, sy)
		return nil, scaleDim(w, f), scaleDim(h, f)
	}
}

// EstimateFrame reports the size the crop and scale chain will produce.
func (o *Constrain) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	src, err := inputFrame(in, flow.EdgeInput)
	if err != nil {
		return nil, err
	}
	_, w, h := o.plan(src.Width, src.Height)
	return &flow.FrameEstimate{Width: w, Height: h, Format: src.Format}, nil
}

// PreOptimizeFlatten replaces the node with a crop, when the mode needs one,
// followed by a scale to the final size.
func (o *Constrain) PreOptimizeFlatten(in flow.Inputs) (*flow.Rewrite, error) {
	src, err := inputFrame(in, flow.EdgeInput)
	if err != nil {
		return nil, err
	}
	crop, w, h := o.plan(src.Width, src.Height)
	var chain []flow.Operation
	if crop != nil {
		chain = append(chain, &Crop{X1: crop.X1, Y1: crop.Y1, X2: crop.X2, Y2: crop.Y2})
	}
	chain = append(chain, &Scale{Width: w, Height: h, Filter: o.Filter})
	return &flow.Rewrite{Chain: chain}, nil
}

// Execute always fails; a constrain node never survives flattening.
func (o *Constrain) Execute(*flow.ExecContext) (image.Image, error) {
	return nil, errors.New("constrain must be flattened before execution")
}

// Crop cuts a region out of its input. The region is clamped to the input.
type Crop struct {
	X1 int `json:"x1" yaml:"x1" validate:"gte=0"`
	Y1 int `json:"y1" yaml:"y1" validate:"gte=0"`
	X2 int `json:"x2" yaml:"x2" validate:"gtfield=X1"`
	Y2 int `json:"y2" yaml:"y2" validate:"gtfield=Y1"`
}

func (o *Crop) Name() string { return "crop" }

func (o *Crop) region(w, h int) (imaging.Region, error) {
	r := imaging.Region{X1: o.X1, Y1: o.Y1, X2: o.X2, Y2: o.Y2}.Clamp(w, h)
	if r.Empty() {
		return r, fmt.Errorf("crop (%d,%d)-(%d,%d) is outside the %dx%d input", o.X1, o.Y1, o.X2, o.Y2, w, h)
	}
	return r, nil
}

func (o *Crop) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	src, err := inputFrame(in, flow.EdgeInput)
	if err != nil {
		return nil, err
	}
	r, err := o.region(src.Width, src.Height)
	if err != nil {
		return nil, err
	}
	return &flow.FrameEstimate{Width: r.Width(), Height: r.Height(), Format: src.Format}, nil
}

func (o *Crop) Execute(ec *flow.ExecContext) (image.Image, error) {
	img, err := input(ec)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	r, err := o.region(b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, r)
}

// Scale resizes its input. A zero width or height is derived from the input
// aspect ratio.
type Scale struct {
	Width  int    `json:"w,omitempty" yaml:"w" validate:"gte=0"`
	Height int    `json:"h,omitempty" yaml:"h" validate:"gte=0"`
	Filter string `json:"filter,omitempty" yaml:"filter" validate:"omitempty,resample"`

	passthrough bool
}

func (o *Scale) Name() string { return "scale" }

func (o *Scale) Validate() error {
	if o.Width == 0 && o.Height == 0 {
		return errors.New("scale needs w, h or both")
	}
	return nil
}

func (o *Scale) target(w, h int) (int, int) {
	tw, th := o.Width, o.Height
	switch {
	case tw == 0 && th == 0:
		return w, h
	case tw == 0:
		tw = scaleDim(w, float64(th)/float64(h))
	case th == 0:
		th = scaleDim(h, float64(tw)/float64(w))
	}
	return tw, th
}

func (o *Scale) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	src, err := inputFrame(in, flow.EdgeInput)
	if err != nil {
		return nil, err
	}
	w, h := o.target(src.Width, src.Height)
	return &flow.FrameEstimate{Width: w, Height: h, Format: src.Format}, nil
}

// Optimize marks a scale to the input's own size as a passthrough.
func (o *Scale) Optimize(in flow.Inputs) error {
	src, err := inputFrame(in, flow.EdgeInput)
	if err != nil {
		return err
	}
	w, h := o.target(src.Width, src.Height)
	o.passthrough = w == src.Width && h == src.Height
	return nil
}

// PostOptimizeFlatten turns a passthrough scale into a copy.
func (o *Scale) PostOptimizeFlatten(flow.Inputs) (*flow.Rewrite, error) {
	if !o.passthrough {
		return nil, nil
	}
	return &flow.Rewrite{Chain: []flow.Operation{&Copy{}}}, nil
}

func (o *Scale) Execute(ec *flow.ExecContext) (image.Image, error) {
	img, err := input(ec)
	if err != nil {
		return nil, err
	}
	filter, err := imaging.ParseFilter(o.Filter)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := o.target(b.Dx(), b.Dy())
	return imaging.Scale(img, w, h, filter)
}

// CopyRect copies a rectangle of its input onto a copy of its canvas.
type CopyRect struct {
	FromX  int `json:"from_x" yaml:"from_x" validate:"gte=0"`
	FromY  int `json:"from_y" yaml:"from_y" validate:"gte=0"`
	Width  int `json:"w" yaml:"w" validate:"gt=0"`
	Height int `json:"h" yaml:"h" validate:"gt=0"`
	X      int `json:"x" yaml:"x"`
	Y      int `json:"y" yaml:"y"`
}

func (o *CopyRect) Name() string { return "copy_rect" }

// EstimateFrame takes the canvas frame; the input only has to be known.
func (o *CopyRect) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	if _, err := inputFrame(in, flow.EdgeInput); err != nil {
		return nil, err
	}
	canvas, err := inputFrame(in, flow.EdgeCanvas)
	if err != nil {
		return nil, err
	}
	out := *canvas
	return &out, nil
}

// Execute pastes the source rectangle of the input onto the canvas at X, Y.
func (o *CopyRect) Execute(ec *flow.ExecContext) (image.Image, error) {
	src, err := input(ec)
	if err != nil {
		return nil, err
	}
	canvas, err := ec.Input(flow.EdgeCanvas)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	r := imaging.Region{X1: o.FromX, Y1: o.FromY, X2: o.FromX + o.Width, Y2: o.FromY + o.Height}.Clamp(b.Dx(), b.Dy())
	if r.Empty() {
		return nil, fmt.Errorf("copy_rect source (%d,%d) %dx%d is outside the %dx%d input",
			o.FromX, o.FromY, o.Width, o.Height, b.Dx(), b.Dy())
	}
	part, err := imaging.Crop(src, r)
	if err != nil {
		return nil, err
	}
	return imaging.Paste(canvas, part, o.X, o.Y), nil
}

func scaleDim(v int, f float64) int {
	return clampDim(int(math.Round(float64(v)*f)), math.MaxInt32)
}

// clampDim limits a dimension to [1, max].
func clampDim(v, max int) int {
	if v < 1 {
		return 1
	}
	if v > max {
		return max
	}
	return v
}
