package ioport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FilePort reads or writes a file on the local filesystem.
type FilePort struct {
	id   int
	path string
	dir  Direction
}

// NewFileInput returns a Source reading path.
func NewFileInput(id int, path string) *FilePort {
	return &FilePort{id: id, path: path, dir: In}
}

// NewFileOutput returns a Sink writing path, creating parent directories as
// needed.
func NewFileOutput(id int, path string) *FilePort {
	return &FilePort{id: id, path: path, dir: Out}
}

func (p *FilePort) IOID() int { return p.id }
func (p *FilePort) Direction() Direction { return p.dir }
func (p *FilePort) Hint() string { return p.path }

// Open opens the file for reading.
func (p *FilePort) Open(_ context.Context) (io.ReadCloser, error) {
	if p.dir != In {
		return nil, fmt.Errorf("%s is not readable", Describe(p))
	}
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	return f, nil
}

// Create truncates or creates the file for writing.
func (p *FilePort) Create(_ context.Context) (io.WriteCloser, error) {
	if p.dir != Out {
		return nil, fmt.Errorf("%s is not writable", Describe(p))
	}
	if dir := filepath.Dir(p.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
