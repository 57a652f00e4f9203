package nodes

import (
	"fmt"
	"image"

	"github.com/ironsheep/image-flow/internal/codecs"
	"github.com/ironsheep/image-flow/internal/flow"
)

// Decode reads the image of an input port.
type Decode struct {
	IOID int `json:"io_id" yaml:"io_id" validate:"gte=0"`

	decoder *codecs.Decoder
}

func (o *Decode) Name() string { return "decode" }

// PlaceholderID is the io id the codec registry binds this node to.
func (o *Decode) PlaceholderID() int { return o.IOID }

// Codec returns the bound decoder, or nil before binding.
func (o *Decode) Codec() flow.Codec {
	if o.decoder == nil {
		return nil
	}
	return o.decoder
}

// BindCodec attaches the decoder of the node's input port. Output ports
// are rejected.
func (o *Decode) BindCodec(c flow.Codec) error {
	d, ok := c.(*codecs.Decoder)
	if !ok {
		return fmt.Errorf("io %d is not an input (got %s)", o.IOID, c.Name())
	}
	o.decoder = d
	return nil
}

// EstimateFrame probes the encoded header once the decoder is bound.
func (o *Decode) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	if o.decoder == nil {
		return nil, nil
	}
	info, err := o.decoder.Probe(in.Context())
	if err != nil {
		return nil, err
	}
	format := flow.PixelBGR24
	if info.HasAlpha {
		format = flow.PixelBGRA32
	}
	return &flow.FrameEstimate{Width: info.Width, Height: info.Height, Format: format}, nil
}

// Execute decodes the whole input.
func (o *Decode) Execute(ec *flow.ExecContext) (image.Image, error) {
	return o.decoder.Decode(ec.Context())
}

// Encode writes its input to an output port. Its result is the input
// bitmap, unchanged.
type Encode struct {
	IOID        int    `json:"io_id" yaml:"io_id" validate:"gte=0"`
	Format      string `json:"format,omitempty" yaml:"format" validate:"omitempty,oneof=png jpeg jpg gif bmp tiff tif"`
	Quality     int    `json:"quality,omitempty" yaml:"quality" validate:"omitempty,min=1,max=100"`
	Compression string `json:"compression,omitempty" yaml:"compression" validate:"omitempty,oneof=default fast best none"`

	encoder *codecs.Encoder
}

func (o *Encode) Name() string { return "encode" }

func (o *Encode) PlaceholderID() int { return o.IOID }

// Codec returns the bound encoder, or nil before binding.
func (o *Encode) Codec() flow.Codec {
	if o.encoder == nil {
		return nil
	}
	return o.encoder
}

// BindCodec attaches the encoder of the node's output port. Input ports
// are rejected.
func (o *Encode) BindCodec(c flow.Codec) error {
	e, ok := c.(*codecs.Encoder)
	if !ok {
		return fmt.Errorf("io %d is not an output (got %s)", o.IOID, c.Name())
	}
	o.encoder = e
	return nil
}

func (o *Encode) EstimateFrame(in flow.Inputs) (*flow.FrameEstimate, error) {
	return sameFrame(in)
}

// Execute writes the input to the port in Format, or in the format the port
// implies when Format is empty, and passes the input on.
func (o *Encode) Execute(ec *flow.ExecContext) (image.Image, error) {
	img, err := input(ec)
	if err != nil {
		return nil, err
	}
	opts := codecs.EncodeOptions{Quality: o.Quality, Compression: o.Compression}
	if o.Format != "" {
		f, err := codecs.ParseFormat(o.Format)
		if err != nil {
			return nil, err
		}
		opts.Format = f
	}
	if err := o.encoder.Encode(ec.Context(), img, opts); err != nil {
		return nil, err
	}
	return img, nil
}
