package codecs

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"

	"github.com/ironsheep/image-flow/internal/imaging"
	"github.com/ironsheep/image-flow/internal/ioport"
)

// Decoder reads one image from an input port. The encoded bytes are read
// once and kept, so probing and decoding share a single read of the port.
type Decoder struct {
	port   ioport.Source
	data   []byte
	format Format
	info   *imaging.ImageInfo
}

// NewDecoder returns a decoder over port.
func NewDecoder(port ioport.Source) *Decoder {
	return &Decoder{port: port}
}

// Name identifies the codec in logs and graph exports.
func (d *Decoder) Name() string {
	if d.format != "" {
		return "decoder:" + string(d.format)
	}
	return "decoder"
}

// IOID returns the id of the port being read.
func (d *Decoder) IOID() int { return d.port.IOID() }

func (d *Decoder) load(ctx context.Context) error {
	if d.data != nil {
		return nil
	}
	r, err := d.port.Open(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", ioport.Describe(d.port), err)
	}
	f, ok := Sniff(data)
	if !ok {
		return fmt.Errorf("%s: unrecognized image format", ioport.Describe(d.port))
	}
	d.data, d.format = data, f
	return nil
}

// Probe reports the image's dimensions and format without decoding pixels.
func (d *Decoder) Probe(ctx context.Context) (*imaging.ImageInfo, error) {
	if d.info != nil {
		return d.info, nil
	}
	if err := d.load(ctx); err != nil {
		return nil, err
	}
	info, err := imaging.Probe(bytes.NewReader(d.data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ioport.Describe(d.port), err)
	}
	d.info = info
	return info, nil
}

// Decode decodes the full image.
func (d *Decoder) Decode(ctx context.Context) (image.Image, error) {
	if err := d.load(ctx); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(d.data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s image from %s: %w", d.format, ioport.Describe(d.port), err)
	}
	return img, nil
}
