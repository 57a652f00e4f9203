package imaging

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"io"
	"os"
	"sync"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ImageInfo describes an encoded image without decoding its pixels.
type ImageInfo struct {
	// Width is the image width in pixels.
	Width int `json:"width"`

	// Height is the image height in pixels.
	Height int `json:"height"`

	// Format is the registered format name detected from the content:
	// "png", "jpeg", "gif", "bmp", "tiff" or "webp".
	Format string `json:"format"`

	// HasAlpha indicates whether the color model can carry transparency.
	HasAlpha bool `json:"has_alpha"`

	// FileSizeBytes is the size of the file on disk, zero for streams.
	FileSizeBytes int64 `json:"file_size_bytes,omitempty"`
}

// Probe reads just enough of r to report dimensions and format.
func Probe(r io.Reader) (*ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image header: %w", err)
	}
	return &ImageInfo{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Format:   format,
		HasAlpha: hasAlpha(cfg.ColorModel),
	}, nil
}

func hasAlpha(m color.Model) bool {
	switch m {
	case color.GrayModel, color.Gray16Model, color.YCbCrModel, color.CMYKModel:
		return false
	}
	return true
}

// ProbeCache caches header probes of files by path.
//
// ProbeCache is safe for concurrent use by multiple goroutines. Entries stay
// until Evict or Clear; a file changed on disk after its first probe keeps
// reporting the cached values.
type ProbeCache struct {
	mu    sync.RWMutex
	infos map[string]*ImageInfo
}

// NewProbeCache creates an empty cache.
func NewProbeCache() *ProbeCache {
	return &ProbeCache{
		infos: make(map[string]*ImageInfo),
	}
}

// Probe returns the cached info for path or reads the file header.
func (c *ProbeCache) Probe(path string) (*ImageInfo, error) {
	c.mu.RLock()
	if info, ok := c.infos[path]; ok {
		c.mu.RUnlock()
		return info, nil
	}
	c.mu.RUnlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	info, err := Probe(f)
	if err != nil {
		return nil, err
	}
	if stat, err := f.Stat(); err == nil {
		info.FileSizeBytes = stat.Size()
	}

	c.mu.Lock()
	c.infos[path] = info
	c.mu.Unlock()

	return info, nil
}

// Evict removes one path from the cache.
func (c *ProbeCache) Evict(path string) {
	c.mu.Lock()
	delete(c.infos, path)
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *ProbeCache) Clear() {
	c.mu.Lock()
	c.infos = make(map[string]*ImageInfo)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *ProbeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.infos)
}
