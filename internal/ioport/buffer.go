package ioport

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// BufferInput is a Source over bytes held in memory.
type BufferInput struct {
	id   int
	data []byte
}

// NewBufferInput returns a Source reading data. The slice is not copied.
func NewBufferInput(id int, data []byte) *BufferInput {
	return &BufferInput{id: id, data: data}
}

func (p *BufferInput) IOID() int { return p.id }
func (p *BufferInput) Direction() Direction { return In }
func (p *BufferInput) Hint() string { return "" }

// Open returns a reader over the buffered bytes.
func (p *BufferInput) Open(_ context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(p.data)), nil
}

// OutputBuffer is a Sink that keeps the encoded bytes in memory until the
// caller collects them with Bytes.
type OutputBuffer struct {
	id int

	mu   sync.Mutex
	data []byte
	done bool
}

// NewOutputBuffer returns an empty in-memory Sink.
func NewOutputBuffer(id int) *OutputBuffer {
	return &OutputBuffer{id: id}
}

func (p *OutputBuffer) IOID() int { return p.id }
func (p *OutputBuffer) Direction() Direction { return Out }
func (p *OutputBuffer) Hint() string { return "" }

// Create starts a new write. Bytes from an earlier write are replaced when
// the new writer is closed.
func (p *OutputBuffer) Create(_ context.Context) (io.WriteCloser, error) {
	return &bufferWriter{port: p}, nil
}

// Bytes returns the committed output and whether anything was written.
func (p *OutputBuffer) Bytes() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data, p.done
}

type bufferWriter struct {
	port *OutputBuffer
	buf  bytes.Buffer
}

func (w *bufferWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }

func (w *bufferWriter) Close() error {
	w.port.mu.Lock()
	w.port.data = w.buf.Bytes()
	w.port.done = true
	w.port.mu.Unlock()
	return nil
}
