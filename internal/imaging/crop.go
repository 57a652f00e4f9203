package imaging

import (
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// Region represents a rectangular region within an image.
//
// Coordinates follow the standard image convention:
//   - (X1, Y1) is the top-left corner (inclusive)
//   - (X2, Y2) is the bottom-right corner (exclusive)
//   - Width = X2 - X1, Height = Y2 - Y1
type Region struct {
	X1 int `json:"x1" yaml:"x1"` // Left edge X coordinate (inclusive)
	Y1 int `json:"y1" yaml:"y1"` // Top edge Y coordinate (inclusive)
	X2 int `json:"x2" yaml:"x2"` // Right edge X coordinate (exclusive)
	Y2 int `json:"y2" yaml:"y2"` // Bottom edge Y coordinate (exclusive)
}

// Rect returns the region as an image.Rectangle.
func (r Region) Rect() image.Rectangle { return image.Rect(r.X1, r.Y1, r.X2, r.Y2) }

// Width returns X2 - X1.
func (r Region) Width() int { return r.X2 - r.X1 }

// Height returns Y2 - Y1.
func (r Region) Height() int { return r.Y2 - r.Y1 }

// Clamp limits the region to a width x height frame. The result may be
// empty when the region lies entirely outside the frame.
func (r Region) Clamp(width, height int) Region {
	c := Region{
		X1: clampInt(r.X1, 0, width),
		Y1: clampInt(r.Y1, 0, height),
		X2: clampInt(r.X2, 0, width),
		Y2: clampInt(r.Y2, 0, height),
	}
	if c.X2 < c.X1 {
		c.X2 = c.X1
	}
	if c.Y2 < c.Y1 {
		c.Y2 = c.Y1
	}
	return c
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool { return r.X1 >= r.X2 || r.Y1 >= r.Y2 }

// Crop extracts a rectangular region from an image. The region is relative
// to the image origin and must lie entirely inside it.
func Crop(img image.Image, r Region) (*image.NRGBA, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if r.X1 < 0 || r.Y1 < 0 || r.X2 > w || r.Y2 > h {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (0,0)-(%d,%d)",
			r.X1, r.Y1, r.X2, r.Y2, w, h)
	}
	if r.Empty() {
		return nil, fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}

	return imaging.Crop(img, r.Rect().Add(bounds.Min)), nil
}

// Filter names a resampling filter.
type Filter string

// Supported resampling filters.
const (
	FilterLanczos    Filter = "lanczos"
	FilterCatmullRom Filter = "catmull_rom"
	FilterMitchell   Filter = "mitchell"
	FilterLinear     Filter = "linear"
	FilterBox        Filter = "box"
	FilterNearest    Filter = "nearest"
	FilterHermite    Filter = "hermite"
	FilterGaussian   Filter = "gaussian"
)

var resampleFilters = map[Filter]imaging.ResampleFilter{
	FilterLanczos:    imaging.Lanczos,
	FilterCatmullRom: imaging.CatmullRom,
	FilterMitchell:   imaging.MitchellNetravali,
	FilterLinear:     imaging.Linear,
	FilterBox:        imaging.Box,
	FilterNearest:    imaging.NearestNeighbor,
	FilterHermite:    imaging.Hermite,
	FilterGaussian:   imaging.Gaussian,
}

// ParseFilter resolves a filter name. An empty name selects Lanczos.
func ParseFilter(name string) (Filter, error) {
	if name == "" {
		return FilterLanczos, nil
	}
	f := Filter(strings.ToLower(strings.ReplaceAll(name, "-", "_")))
	if _, ok := resampleFilters[f]; !ok {
		return "", fmt.Errorf("unknown resample filter: %s", name)
	}
	return f, nil
}

// Scale resizes img to exactly width x height using filter.
func Scale(img image.Image, width, height int, filter Filter) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid scale target %dx%d", width, height)
	}
	rf, ok := resampleFilters[filter]
	if !ok {
		rf = imaging.Lanczos
	}
	return imaging.Resize(img, width, height, rf), nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
