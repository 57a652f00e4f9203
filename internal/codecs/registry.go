// Package codecs turns a job's I/O ports into the decoders and encoders its
// decode and encode operations are bound to.
//
// Formats are detected from content (PNG, JPEG, GIF, BMP, TIFF and WebP can
// be read); PNG, JPEG, GIF, BMP and TIFF can be written.
package codecs

import (
	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/ioport"
)

// PortLookup finds a registered port by io id. *flow.Job satisfies it.
type PortLookup interface {
	IO(id int) (flow.IOPort, bool)
}

// Registry resolves placeholder ids, which are io ids, to a Decoder for
// input ports and an Encoder for output ports. Each id resolves to the same
// codec instance every time.
type Registry struct {
	ports  PortLookup
	codecs map[int]flow.Codec
}

// NewRegistry returns a registry over ports.
func NewRegistry(ports PortLookup) *Registry {
	return &Registry{ports: ports, codecs: make(map[int]flow.Codec)}
}

// Lookup implements flow.CodecRegistry.
func (r *Registry) Lookup(placeholderID int) (flow.Codec, bool) {
	if c, ok := r.codecs[placeholderID]; ok {
		return c, true
	}
	p, ok := r.ports.IO(placeholderID)
	if !ok {
		return nil, false
	}

	port, ok := p.(ioport.Port)
	if !ok {
		return nil, false
	}
	var c flow.Codec
	switch port.Direction() {
	case ioport.In:
		src, ok := port.(ioport.Source)
		if !ok {
			return nil, false
		}
		c = NewDecoder(src)
	case ioport.Out:
		sink, ok := port.(ioport.Sink)
		if !ok {
			return nil, false
		}
		c = NewEncoder(sink)
	default:
		return nil, false
	}
	r.codecs[placeholderID] = c
	return c, true
}
