// Package ioport provides the I/O endpoints a job reads encoded images from
// and writes encoded images to.
//
// Every port is addressed by an integer io id that is unique within its
// job. Decode operations read from a Source, encode operations write to a
// Sink. Ports are owned by whoever registered them with the job; the engine
// only looks them up by id.
package ioport

import (
	"context"
	"fmt"
	"io"
)

// Direction says whether a port is read or written.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// ParseDirection accepts "in"/"input" and "out"/"output".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "in", "input":
		return In, nil
	case "out", "output":
		return Out, nil
	}
	return "", fmt.Errorf("unknown io direction %q", s)
}

// Port is the part every I/O endpoint shares.
type Port interface {
	// IOID is the id decode/encode operations refer to.
	IOID() int
	Direction() Direction
	// Hint is a file path or object key when there is one, used to infer
	// an output format from its extension. Empty for in-memory ports.
	Hint() string
}

// Source is an input port.
type Source interface {
	Port
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Sink is an output port. The bytes written become visible when the
// returned writer is closed.
type Sink interface {
	Port
	Create(ctx context.Context) (io.WriteCloser, error)
}

// Describe renders a port for logs and error messages.
func Describe(p Port) string {
	if h := p.Hint(); h != "" {
		return fmt.Sprintf("io %d (%s, %s)", p.IOID(), p.Direction(), h)
	}
	return fmt.Sprintf("io %d (%s)", p.IOID(), p.Direction())
}
