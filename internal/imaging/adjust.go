package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"
)

// AdjustKind names a single tonal adjustment.
type AdjustKind string

// Supported adjustments. Amounts for brightness, contrast and saturation are
// relative changes in [-1, 1]; gamma is a factor where 1 is neutral; hue is
// a rotation in degrees.
const (
	AdjustBrightness AdjustKind = "brightness"
	AdjustContrast   AdjustKind = "contrast"
	AdjustSaturation AdjustKind = "saturation"
	AdjustGamma      AdjustKind = "gamma"
	AdjustHue        AdjustKind = "hue"
)

// ParseAdjustKind validates an adjustment name.
func ParseAdjustKind(s string) (AdjustKind, error) {
	switch k := AdjustKind(s); k {
	case AdjustBrightness, AdjustContrast, AdjustSaturation, AdjustGamma, AdjustHue:
		return k, nil
	}
	return "", fmt.Errorf("unknown adjustment: %s", s)
}

// IsNeutral reports whether applying kind with amount leaves the bitmap
// unchanged.
func (k AdjustKind) IsNeutral(amount float64) bool {
	const eps = 1e-9
	switch k {
	case AdjustGamma:
		return math.Abs(amount-1) < eps
	case AdjustHue:
		return math.Abs(math.Mod(amount, 360)) < eps
	default:
		return math.Abs(amount) < eps
	}
}

// Adjust applies one tonal adjustment.
func Adjust(img image.Image, kind AdjustKind, amount float64) (*image.RGBA, error) {
	switch kind {
	case AdjustBrightness:
		return adjust.Brightness(img, amount), nil
	case AdjustContrast:
		return adjust.Contrast(img, amount), nil
	case AdjustSaturation:
		return adjust.Saturation(img, amount), nil
	case AdjustGamma:
		if amount <= 0 {
			return nil, fmt.Errorf("gamma must be positive, got %g", amount)
		}
		return adjust.Gamma(img, amount), nil
	case AdjustHue:
		return adjust.Hue(img, int(math.Round(amount))), nil
	default:
		return nil, fmt.Errorf("unknown adjustment: %s", kind)
	}
}

// Blur applies a Gaussian blur of the given radius. A radius of zero or less
// returns an unmodified copy.
func Blur(img image.Image, radius float64) image.Image {
	if radius <= 0 {
		return imaging.Clone(img)
	}
	return blur.Gaussian(img, radius)
}
