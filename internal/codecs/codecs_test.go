package codecs

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/ioport"
)

type portMap map[int]flow.IOPort

func (m portMap) IO(id int) (flow.IOPort, bool) {
	p, ok := m[id]
	return p, ok
}

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: 100, B: 200, A: 255})
		}
	}
	return img
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatPNG, FormatJPEG, FormatGIF, FormatBMP, FormatTIFF} {
		t.Run(string(f), func(t *testing.T) {
			ctx := context.Background()
			out := ioport.NewOutputBuffer(1)
			enc := NewEncoder(out)

			require.NoError(t, enc.Encode(ctx, testImage(12, 8), EncodeOptions{Format: f, Quality: 80}))
			assert.Equal(t, "encoder:"+string(f), enc.Name())

			data, ok := out.Bytes()
			require.True(t, ok)
			sniffed, ok := Sniff(data)
			require.True(t, ok)
			assert.Equal(t, f, sniffed)

			dec := NewDecoder(ioport.NewBufferInput(0, data))
			info, err := dec.Probe(ctx)
			require.NoError(t, err)
			assert.Equal(t, 12, info.Width)
			assert.Equal(t, 8, info.Height)

			img, err := dec.Decode(ctx)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 12, 8), img.Bounds())
			assert.Equal(t, "decoder:"+string(f), dec.Name())
		})
	}
}

func TestEncoder_WebPUnsupported(t *testing.T) {
	err := NewEncoder(ioport.NewOutputBuffer(1)).Encode(context.Background(), testImage(2, 2), EncodeOptions{Format: FormatWebP})
	assert.Error(t, err)
}

func TestEncoder_ResolveFormat(t *testing.T) {
	tests := []struct {
		name string
		port ioport.Sink
		in   Format
		want Format
	}{
		{"explicit wins", ioport.NewFileOutput(1, "out.jpg"), FormatGIF, FormatGIF},
		{"from extension", ioport.NewFileOutput(1, "out.JPG"), "", FormatJPEG},
		{"tif alias", ioport.NewFileOutput(1, "scan.tif"), "", FormatTIFF},
		{"webp falls back", ioport.NewFileOutput(1, "out.webp"), "", FormatPNG},
		{"buffer defaults to png", ioport.NewOutputBuffer(1), "", FormatPNG},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewEncoder(tt.port).ResolveFormat(tt.in))
		})
	}
}

func TestDecoder_UnrecognizedData(t *testing.T) {
	dec := NewDecoder(ioport.NewBufferInput(0, []byte("definitely not an image")))

	_, err := dec.Probe(context.Background())
	assert.ErrorContains(t, err, "unrecognized image format")
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
		ok   bool
	}{
		{"png", []byte("\x89PNG\r\n\x1a\nrest"), FormatPNG, true},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, FormatJPEG, true},
		{"gif", []byte("GIF89a...."), FormatGIF, true},
		{"bmp", []byte("BM......"), FormatBMP, true},
		{"tiff le", []byte("II*\x00...."), FormatTIFF, true},
		{"tiff be", []byte("MM\x00*...."), FormatTIFF, true},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), FormatWebP, true},
		{"riff not webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), "", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		got, ok := Sniff(tt.data)
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"PNG": FormatPNG, "jpg": FormatJPEG, ".tif": FormatTIFF, "webp": FormatWebP} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("heic")
	assert.Error(t, err)

	assert.Equal(t, "image/jpeg", FormatJPEG.MimeType())
	assert.Equal(t, "image/png", FormatPNG.MimeType())
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"out/photo.JPG", FormatJPEG, true},
		{"scan.tiff", FormatTIFF, true},
		{"a.b/icon.bmp", FormatBMP, true},
		{"anim.Gif", FormatGIF, true},
		{"sticker.webp", FormatWebP, true},
		{"notes.txt", "", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		got, ok := FormatFromPath(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
}

func TestRegistry_Lookup(t *testing.T) {
	in := ioport.NewBufferInput(0, nil)
	out := ioport.NewOutputBuffer(1)
	fileOut := ioport.NewFileOutput(2, "out.png")
	r := NewRegistry(portMap{0: in, 1: out, 2: fileOut})

	c, ok := r.Lookup(0)
	require.True(t, ok)
	assert.IsType(t, &Decoder{}, c)

	c, ok = r.Lookup(1)
	require.True(t, ok)
	assert.IsType(t, &Encoder{}, c)

	c, ok = r.Lookup(2)
	require.True(t, ok)
	assert.IsType(t, &Encoder{}, c, "file ports dispatch on direction")

	again, _ := r.Lookup(2)
	assert.Same(t, c, again)

	_, ok = r.Lookup(9)
	assert.False(t, ok)
}
