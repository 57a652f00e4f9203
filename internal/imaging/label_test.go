package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestDrawLabel(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	fg := color.RGBA{255, 255, 255, 255}
	bg := color.RGBA{0, 0, 0, 180}
	drawLabel(img, 10, 10, "#50", fg, bg)

	hasWhite := false
	hasBlack := false
	for y := 9; y < 20; y++ {
		for x := 9; x < 40; x++ {
			r, _, _, _ := img.At(x, y).RGBA()
			if r > 200<<8 {
				hasWhite = true
			}
			if r < 50<<8 {
				hasBlack = true
			}
		}
	}

	if !hasWhite {
		t.Error("label should have white pixels (text)")
	}
	if !hasBlack {
		t.Error("label should have dark pixels (background)")
	}
}

func TestDrawLabel_BoundsCheck(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))

	fg := color.RGBA{255, 255, 255, 255}
	bg := color.RGBA{0, 0, 0, 180}

	// none of these may panic
	drawLabel(img, 15, 15, "100,100", fg, bg)
	drawLabel(img, 0, 0, "0,0", fg, bg)
	drawLabel(img, -5, -5, "test", fg, bg)
	drawLabel(img, 10, 10, "", fg, bg)
}

func TestLabelFrame(t *testing.T) {
	src := createInMemoryImage(40, 30, color.RGBA{0, 0, 255, 255})

	out := LabelFrame(src, "#7")

	if out.Bounds() != image.Rect(0, 0, 40, 30) {
		t.Errorf("bounds: got %v, want 40x30 at origin", out.Bounds())
	}
	// away from the label the frame is untouched
	c, _ := SampleColor(out, 35, 25)
	if c.Hex != "#0000FF" {
		t.Errorf("frame pixel: got %s, want #0000FF", c.Hex)
	}
	// the source is not modified
	s, _ := SampleColor(src, 3, 3)
	if s.Hex != "#0000FF" {
		t.Errorf("source pixel changed: got %s", s.Hex)
	}
}
