package nodes

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-flow/internal/codecs"
	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/ioport"
)

func pngBytes(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newJob(t *testing.T, ports ...flow.IOPort) *flow.Job {
	t.Helper()
	job := flow.NewJob()
	for _, p := range ports {
		require.NoError(t, job.AddIO(p))
	}
	job.SetCodecRegistry(codecs.NewRegistry(job))
	return job
}

// chain adds ops to g connected by input edges.
func chain(t *testing.T, g *flow.Graph, ops ...flow.Operation) []flow.NodeIndex {
	t.Helper()
	ixs := make([]flow.NodeIndex, len(ops))
	for i, op := range ops {
		ixs[i] = g.AddNode(op)
		if i > 0 {
			_, err := g.AddEdge(ixs[i-1], ixs[i], flow.EdgeInput)
			require.NoError(t, err)
		}
	}
	return ixs
}

func opNames(t *testing.T, g *flow.Graph) []string {
	t.Helper()
	var names []string
	for _, ix := range g.NodeIndices() {
		n, err := g.Node(ix)
		require.NoError(t, err)
		names = append(names, n.Op.Name())
	}
	return names
}

func decoded(t *testing.T, out *ioport.OutputBuffer) image.Image {
	t.Helper()
	data, ok := out.Bytes()
	require.True(t, ok, "output buffer was never written")
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func TestNewAndKinds(t *testing.T) {
	kinds := Kinds()
	assert.Contains(t, kinds, "decode")
	assert.Contains(t, kinds, "copy_rect")
	assert.IsIncreasing(t, kinds)

	for _, k := range kinds {
		op, err := New(k)
		require.NoError(t, err)
		assert.Equal(t, k, op.Name())
	}

	_, err := New("sharpen")
	assert.ErrorContains(t, err, `unknown operation "sharpen"`)
}

func TestNewDefaults(t *testing.T) {
	op, err := New("flatten")
	require.NoError(t, err)
	assert.Equal(t, "white", op.(*Flatten).Color)

	op, err = New("canvas")
	require.NoError(t, err)
	assert.Equal(t, "transparent", op.(*Canvas).Color)
}

func TestConstrainPlan(t *testing.T) {
	tests := []struct {
		name  string
		op    Constrain
		w, h  int
		crop  bool
		wantW int
		wantH int
	}{
		{"fit box", Constrain{Mode: ModeFit, Width: 10, Height: 10}, 40, 20, false, 10, 5},
		{"fit width only", Constrain{Mode: ModeFit, Width: 20}, 40, 20, false, 20, 10},
		{"fit upscales", Constrain{Mode: ModeFit, Width: 80, Height: 80}, 40, 20, false, 80, 40},
		{"within keeps small", Constrain{Mode: ModeWithin, Width: 80, Height: 80}, 40, 20, false, 40, 20},
		{"within shrinks", Constrain{Mode: ModeWithin, Height: 10}, 40, 20, false, 20, 10},
		{"exact", Constrain{Mode: ModeExact, Width: 7, Height: 9}, 40, 20, false, 7, 9},
		{"fill crops", Constrain{Mode: ModeFill, Width: 10, Height: 10}, 40, 20, true, 10, 10},
		{"fill same aspect", Constrain{Mode: ModeFill, Width: 20, Height: 10}, 40, 20, false, 20, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crop, w, h := tt.op.plan(tt.w, tt.h)
			assert.Equal(t, tt.crop, crop != nil)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestConstrainValidate(t *testing.T) {
	assert.Error(t, (&Constrain{Mode: ModeFit}).Validate())
	assert.Error(t, (&Constrain{Mode: ModeFill, Width: 10}).Validate())
	assert.NoError(t, (&Constrain{Mode: ModeWithin, Height: 10, Filter: "catmull-rom"}).Validate())
}

func TestDecodeConstrainEncode(t *testing.T) {
	in := ioport.NewBufferInput(0, pngBytes(t, 40, 20, color.NRGBA{R: 255, A: 255}))
	out := ioport.NewOutputBuffer(1)
	job := newJob(t, in, out)
	chain(t, job.Graph(),
		&Decode{IOID: 0},
		&Constrain{Mode: ModeFit, Width: 10, Height: 10},
		&Encode{IOID: 1, Format: "png"},
	)

	require.NoError(t, job.Execute(context.Background()))

	assert.ElementsMatch(t, []string{"decode", "scale", "encode"}, opNames(t, job.Graph()))
	img := decoded(t, out)
	assert.Equal(t, image.Rect(0, 0, 10, 5), img.Bounds())
}

func TestConstrainFillCropsCenter(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 40; x++ {
			c := color.NRGBA{B: 255, A: 255}
			if x < 10 || x >= 30 {
				c = color.NRGBA{R: 255, A: 255}
			}
			src.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out := ioport.NewOutputBuffer(1)
	job := newJob(t, ioport.NewBufferInput(0, buf.Bytes()), out)
	chain(t, job.Graph(),
		&Decode{IOID: 0},
		&Constrain{Mode: ModeFill, Width: 10, Height: 10, Filter: "nearest"},
		&Encode{IOID: 1},
	)

	require.NoError(t, job.Execute(context.Background()))

	assert.ElementsMatch(t, []string{"decode", "crop", "scale", "encode"}, opNames(t, job.Graph()))
	img := decoded(t, out)
	require.Equal(t, image.Rect(0, 0, 10, 10), img.Bounds())
	for _, p := range []image.Point{{0, 0}, {9, 9}, {5, 5}} {
		assert.Equal(t, color.NRGBA{B: 255, A: 255}, nrgbaAt(img, p.X, p.Y), "pixel %v", p)
	}
}

func TestIdentityScaleBecomesCopy(t *testing.T) {
	out := ioport.NewOutputBuffer(1)
	job := newJob(t, ioport.NewBufferInput(0, pngBytes(t, 40, 20, color.NRGBA{G: 255, A: 255})), out)
	chain(t, job.Graph(),
		&Decode{IOID: 0},
		&Constrain{Mode: ModeWithin, Width: 100, Height: 100},
		&Encode{IOID: 1},
	)

	require.NoError(t, job.Execute(context.Background()))

	assert.ElementsMatch(t, []string{"decode", "copy", "encode"}, opNames(t, job.Graph()))
	assert.Equal(t, image.Rect(0, 0, 40, 20), decoded(t, out).Bounds())
}

func TestNeutralOperationsAreElided(t *testing.T) {
	out := ioport.NewOutputBuffer(1)
	job := newJob(t, ioport.NewBufferInput(0, pngBytes(t, 8, 8, color.NRGBA{R: 10, A: 255})), out)
	chain(t, job.Graph(),
		&Decode{IOID: 0},
		&ColorCorrect{Gamma: 1, Hue: 360},
		&Blur{},
		&Encode{IOID: 1},
	)

	require.NoError(t, job.Execute(context.Background()))

	assert.ElementsMatch(t, []string{"decode", "encode"}, opNames(t, job.Graph()))
	assert.Equal(t, color.NRGBA{R: 10, A: 255}, nrgbaAt(decoded(t, out), 3, 3))
}

func TestColorCorrectExpandsToAdjustChain(t *testing.T) {
	out := ioport.NewOutputBuffer(1)
	job := newJob(t, ioport.NewBufferInput(0, pngBytes(t, 8, 8, color.NRGBA{R: 100, G: 100, B: 100, A: 255})), out)
	chain(t, job.Graph(),
		&Decode{IOID: 0},
		&ColorCorrect{Brightness: 0.5, Contrast: 0.2},
		&Encode{IOID: 1},
	)

	require.NoError(t, job.Execute(context.Background()))

	assert.ElementsMatch(t, []string{"decode", "adjust", "adjust", "encode"}, opNames(t, job.Graph()))
	px := nrgbaAt(decoded(t, out), 0, 0)
	assert.Greater(t, px.R, uint8(100))
}

func TestCopyRectOntoCanvas(t *testing.T) {
	out := ioport.NewOutputBuffer(1)
	job := newJob(t, ioport.NewBufferInput(0, pngBytes(t, 10, 10, color.NRGBA{R: 255, A: 255})), out)
	g := job.Graph()
	dec := g.AddNode(&Decode{IOID: 0})
	canvas := g.AddNode(&Canvas{Width: 30, Height: 30, Color: "white"})
	cr := g.AddNode(&CopyRect{Width: 5, Height: 5, X: 2, Y: 2})
	enc := g.AddNode(&Encode{IOID: 1})
	for _, e := range []struct {
		from, to flow.NodeIndex
		kind     flow.EdgeKind
	}{{dec, cr, flow.EdgeInput}, {canvas, cr, flow.EdgeCanvas}, {cr, enc, flow.EdgeInput}} {
		_, err := g.AddEdge(e.from, e.to, e.kind)
		require.NoError(t, err)
	}

	require.NoError(t, job.Execute(context.Background()))

	img := decoded(t, out)
	require.Equal(t, image.Rect(0, 0, 30, 30), img.Bounds())
	white := color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	red := color.NRGBA{R: 255, A: 255}
	assert.Equal(t, white, nrgbaAt(img, 0, 0))
	assert.Equal(t, red, nrgbaAt(img, 2, 2))
	assert.Equal(t, red, nrgbaAt(img, 6, 6))
	assert.Equal(t, white, nrgbaAt(img, 7, 7))
}

func TestFlattenTransparentCanvas(t *testing.T) {
	out := ioport.NewOutputBuffer(0)
	job := newJob(t, out)
	chain(t, job.Graph(),
		&Canvas{Width: 4, Height: 4, Color: "transparent"},
		&Flatten{Color: "#00F"},
		&Encode{IOID: 0},
	)

	require.NoError(t, job.Execute(context.Background()))

	assert.Equal(t, color.NRGBA{B: 255, A: 255}, nrgbaAt(decoded(t, out), 1, 1))
}

func TestFrameEstimates(t *testing.T) {
	job := newJob(t, ioport.NewBufferInput(0, pngBytes(t, 40, 20, color.NRGBA{A: 128})), ioport.NewOutputBuffer(1))
	ixs := chain(t, job.Graph(),
		&Decode{IOID: 0},
		&Crop{X1: 5, Y1: 5, X2: 100, Y2: 15},
		&Flatten{Color: "white"},
		&Encode{IOID: 1},
	)

	require.NoError(t, job.Execute(context.Background()))

	dec, err := job.Graph().Node(ixs[0])
	require.NoError(t, err)
	assert.Equal(t, &flow.FrameEstimate{Width: 40, Height: 20, Format: flow.PixelBGRA32}, dec.Frame)
	crop, err := job.Graph().Node(ixs[1])
	require.NoError(t, err)
	assert.Equal(t, 35, crop.Frame.Width)
	assert.Equal(t, 10, crop.Frame.Height)
	flat, err := job.Graph().Node(ixs[2])
	require.NoError(t, err)
	assert.Equal(t, flow.PixelBGR24, flat.Frame.Format)
}

func TestCropOutsideInputFails(t *testing.T) {
	job := newJob(t, ioport.NewBufferInput(0, pngBytes(t, 10, 10, color.NRGBA{A: 255})), ioport.NewOutputBuffer(1))
	chain(t, job.Graph(),
		&Decode{IOID: 0},
		&Crop{X1: 20, Y1: 20, X2: 30, Y2: 30},
		&Encode{IOID: 1},
	)

	err := job.Execute(context.Background())
	require.Error(t, err)
	var nerr *flow.NodeError
	require.ErrorAs(t, err, &nerr)
	assert.ErrorContains(t, err, "outside the 10x10 input")
}

func TestDecodeRejectsOutputPort(t *testing.T) {
	job := newJob(t, ioport.NewOutputBuffer(0))
	job.Graph().AddNode(&Decode{IOID: 0})

	err := job.LinkCodecs()
	assert.ErrorContains(t, err, "io 0 is not an input")
}

func TestUnboundCodecNodes(t *testing.T) {
	d := &Decode{IOID: 3}
	assert.Nil(t, d.Codec())
	e := &Encode{IOID: 4}
	assert.Nil(t, e.Codec())
	assert.Equal(t, 3, d.PlaceholderID())
	assert.Equal(t, 4, e.PlaceholderID())
}

func TestScaleDerivesMissingDimension(t *testing.T) {
	s := &Scale{Height: 10}
	w, h := s.target(40, 20)
	assert.Equal(t, 20, w)
	assert.Equal(t, 10, h)

	assert.Error(t, (&Scale{}).Validate())
}

func TestCloneCopiesParametersOnly(t *testing.T) {
	s := &Scale{Width: 12, Height: 7, Filter: "lanczos", passthrough: true}
	op, err := Clone(s)
	require.NoError(t, err)
	got, ok := op.(*Scale)
	require.True(t, ok)
	assert.NotSame(t, s, got)
	assert.Equal(t, Scale{Width: 12, Height: 7, Filter: "lanczos"}, *got)

	cc := &ColorCorrect{Brightness: 0.2, Gamma: 1.4, steps: []*Adjust{{Kind: "brightness"}}, optimized: true}
	op, err = Clone(cc)
	require.NoError(t, err)
	assert.Equal(t, &ColorCorrect{Brightness: 0.2, Gamma: 1.4}, op)

	op, err = Clone(&Canvas{Width: 3, Height: 4, Color: "#102030"})
	require.NoError(t, err)
	assert.Equal(t, &Canvas{Width: 3, Height: 4, Color: "#102030"}, op)
}
