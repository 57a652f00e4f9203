package imaging

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// Fill returns a width x height image of a single color.
func Fill(width, height int, c color.Color) *image.NRGBA {
	return imaging.New(width, height, c)
}

// Clone returns an NRGBA copy of img with its origin at (0,0).
func Clone(img image.Image) *image.NRGBA {
	return imaging.Clone(img)
}

// FlattenOnto composites img over a solid background, dropping
// transparency.
func FlattenOnto(img image.Image, background color.Color) *image.NRGBA {
	b := img.Bounds()
	bg := color.NRGBAModel.Convert(background).(color.NRGBA)
	bg.A = 255
	return imaging.Overlay(imaging.New(b.Dx(), b.Dy(), bg), img, image.Pt(0, 0), 1.0)
}

// Paste copies src onto a copy of canvas with its top-left corner at (x, y).
// Pixels of src that fall outside the canvas are dropped.
func Paste(canvas, src image.Image, x, y int) *image.NRGBA {
	return imaging.Paste(canvas, src, image.Pt(x, y))
}
