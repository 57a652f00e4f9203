package codecs

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/ironsheep/image-flow/internal/ioport"
)

// DefaultJPEGQuality is used when an encode does not set a quality.
const DefaultJPEGQuality = 90

// EncodeOptions tune an encode.
type EncodeOptions struct {
	// Format to write. Empty means infer from the port's path, else PNG.
	Format Format
	// Quality is the JPEG quality 1-100; zero selects DefaultJPEGQuality.
	Quality int
	// Compression trades speed for size for PNG and TIFF: "default",
	// "fast", "best" or "none".
	Compression string
}

// Encoder writes one image to an output port.
type Encoder struct {
	port    ioport.Sink
	written Format
}

// NewEncoder returns an encoder over port.
func NewEncoder(port ioport.Sink) *Encoder {
	return &Encoder{port: port}
}

// Name identifies the codec in logs and graph exports.
func (e *Encoder) Name() string {
	if e.written != "" {
		return "encoder:" + string(e.written)
	}
	return "encoder"
}

// IOID returns the id of the port being written.
func (e *Encoder) IOID() int { return e.port.IOID() }

// ResolveFormat applies the inference rules of EncodeOptions.Format.
func (e *Encoder) ResolveFormat(f Format) Format {
	if f != "" {
		return f
	}
	if inferred, ok := FormatFromPath(e.port.Hint()); ok && inferred.CanEncode() {
		return inferred
	}
	return FormatPNG
}

// Encode writes img to the port.
func (e *Encoder) Encode(ctx context.Context, img image.Image, opts EncodeOptions) error {
	f := e.ResolveFormat(opts.Format)
	if !f.CanEncode() {
		return fmt.Errorf("encoding %s is not supported", f)
	}

	w, err := e.port.Create(ctx)
	if err != nil {
		return err
	}
	if err := encode(w, img, f, opts); err != nil {
		w.Close()
		return fmt.Errorf("failed to encode %s to %s: %w", f, ioport.Describe(e.port), err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", ioport.Describe(e.port), err)
	}
	e.written = f
	return nil
}

func encode(w io.Writer, img image.Image, f Format, opts EncodeOptions) error {
	switch f {
	case FormatJPEG:
		q := opts.Quality
		if q <= 0 {
			q = DefaultJPEGQuality
		}
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(q))
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(pngCompression(opts.Compression)))
	case FormatGIF:
		return imaging.Encode(w, img, imaging.GIF)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		c := tiff.Deflate
		if opts.Compression == "none" {
			c = tiff.Uncompressed
		}
		return tiff.Encode(w, img, &tiff.Options{Compression: c, Predictor: c == tiff.Deflate})
	}
	return fmt.Errorf("unsupported format %s", f)
}

func pngCompression(s string) png.CompressionLevel {
	switch s {
	case "fast":
		return png.BestSpeed
	case "best":
		return png.BestCompression
	case "none":
		return png.NoCompression
	}
	return png.DefaultCompression
}
