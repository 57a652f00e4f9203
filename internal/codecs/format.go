package codecs

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Format is an encoded image format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWebP Format = "webp"
)

// CanEncode reports whether images can be written in f.
func (f Format) CanEncode() bool {
	switch f {
	case FormatPNG, FormatJPEG, FormatGIF, FormatBMP, FormatTIFF:
		return true
	}
	return false
}

// MimeType returns the IANA media type of f.
func (f Format) MimeType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case "":
		return "application/octet-stream"
	}
	return "image/" + string(f)
}

var fromImaging = map[imaging.Format]Format{
	imaging.PNG:  FormatPNG,
	imaging.JPEG: FormatJPEG,
	imaging.GIF:  FormatGIF,
	imaging.BMP:  FormatBMP,
	imaging.TIFF: FormatTIFF,
}

// ParseFormat resolves a format name; "jpg" and "tif" are accepted aliases.
func ParseFormat(s string) (Format, error) {
	if strings.EqualFold(strings.TrimPrefix(s, "."), string(FormatWebP)) {
		return FormatWebP, nil
	}
	f, err := imaging.FormatFromExtension(s)
	if err != nil {
		return "", fmt.Errorf("unknown image format %q", s)
	}
	return fromImaging[f], nil
}

// FormatFromPath infers a format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		return FormatWebP, true
	}
	f, err := imaging.FormatFromFilename(path)
	if err != nil {
		return "", false
	}
	return fromImaging[f], true
}

var magic = []struct {
	format Format
	prefix []byte
}{
	{FormatPNG, []byte("\x89PNG\r\n\x1a\n")},
	{FormatJPEG, []byte{0xFF, 0xD8, 0xFF}},
	{FormatGIF, []byte("GIF87a")},
	{FormatGIF, []byte("GIF89a")},
	{FormatBMP, []byte("BM")},
	{FormatTIFF, []byte("II*\x00")},
	{FormatTIFF, []byte("MM\x00*")},
}

// Sniff identifies the format of encoded data from its leading bytes.
func Sniff(data []byte) (Format, bool) {
	if len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return FormatWebP, true
	}
	for _, m := range magic {
		if bytes.HasPrefix(data, m.prefix) {
			return m.format, true
		}
	}
	return "", false
}
