package imaging

import (
	"image/color"
	"testing"
)

func TestAdjust(t *testing.T) {
	img := createInMemoryImage(10, 10, color.RGBA{100, 100, 100, 255})

	tests := []struct {
		kind   AdjustKind
		amount float64
		check  func(r uint8) bool
	}{
		{AdjustBrightness, 0.5, func(r uint8) bool { return r > 100 }},
		{AdjustBrightness, -0.5, func(r uint8) bool { return r < 100 }},
		{AdjustGamma, 2.0, func(r uint8) bool { return r > 100 }},
		{AdjustSaturation, 0.5, func(r uint8) bool { return r >= 99 && r <= 101 }},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			out, err := Adjust(img, tt.kind, tt.amount)
			if err != nil {
				t.Fatalf("Adjust failed: %v", err)
			}
			c, _ := SampleColor(out, 5, 5)
			if !tt.check(c.RGB.R) {
				t.Errorf("%s(%g): unexpected red %d", tt.kind, tt.amount, c.RGB.R)
			}
		})
	}
}

func TestAdjust_Invalid(t *testing.T) {
	img := createInMemoryImage(4, 4, color.White)

	if _, err := Adjust(img, AdjustGamma, 0); err == nil {
		t.Error("gamma 0 should fail")
	}
	if _, err := Adjust(img, AdjustKind("sharpen"), 1); err == nil {
		t.Error("unknown adjustment should fail")
	}
}

func TestAdjustKind_IsNeutral(t *testing.T) {
	tests := []struct {
		kind   AdjustKind
		amount float64
		want   bool
	}{
		{AdjustBrightness, 0, true},
		{AdjustBrightness, 0.1, false},
		{AdjustGamma, 1, true},
		{AdjustGamma, 0, false},
		{AdjustHue, 360, true},
		{AdjustHue, 30, false},
	}

	for _, tt := range tests {
		if got := tt.kind.IsNeutral(tt.amount); got != tt.want {
			t.Errorf("%s.IsNeutral(%g): got %v, want %v", tt.kind, tt.amount, got, tt.want)
		}
	}
}

func TestParseAdjustKind(t *testing.T) {
	if k, err := ParseAdjustKind("contrast"); err != nil || k != AdjustContrast {
		t.Errorf("ParseAdjustKind(contrast): got %q, %v", k, err)
	}
	if _, err := ParseAdjustKind("vibrance"); err == nil {
		t.Error("ParseAdjustKind(vibrance) should fail")
	}
}

func TestBlur(t *testing.T) {
	img := createPatternImage(40, 40)

	blurred := Blur(img, 3)
	if blurred.Bounds().Dx() != 40 {
		t.Fatalf("width: got %d, want 40", blurred.Bounds().Dx())
	}
	// the quadrant boundary is softened
	c, _ := SampleColor(blurred, 19, 10)
	if c.RGB.R == 255 && c.RGB.G == 0 {
		t.Errorf("boundary pixel not blurred: %s", c.Hex)
	}

	same := Blur(img, 0)
	s, _ := SampleColor(same, 19, 10)
	if s.Hex != "#FF0000" {
		t.Errorf("zero radius changed pixel: %s", s.Hex)
	}
}

func TestFlattenOnto(t *testing.T) {
	img := createInMemoryImage(8, 8, color.NRGBA{255, 0, 0, 0})

	out := FlattenOnto(img, color.NRGBA{0, 0, 255, 255})

	c, _ := SampleColor(out, 4, 4)
	if c.Hex != "#0000FF" || c.RGBA.A != 255 {
		t.Errorf("got %s alpha %d, want opaque #0000FF", c.Hex, c.RGBA.A)
	}
}

func TestPaste(t *testing.T) {
	canvas := Fill(20, 20, color.White)
	src := createInMemoryImage(5, 5, color.RGBA{255, 0, 0, 255})

	out := Paste(canvas, src, 10, 10)

	in, _ := SampleColor(out, 12, 12)
	outside, _ := SampleColor(out, 2, 2)
	if in.Hex != "#FF0000" {
		t.Errorf("pasted pixel: got %s, want #FF0000", in.Hex)
	}
	if outside.Hex != "#FFFFFF" {
		t.Errorf("canvas pixel: got %s, want #FFFFFF", outside.Hex)
	}
	// canvas itself is untouched
	orig, _ := SampleColor(canvas, 12, 12)
	if orig.Hex != "#FFFFFF" {
		t.Errorf("canvas modified: %s", orig.Hex)
	}
}
