package request

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/ioport"
	"github.com/ironsheep/image-flow/internal/nodes"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 40, G: 80, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type memStore struct {
	objects map[string][]byte
}

func (s *memStore) Get(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("no such object %s/%s", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Put(_ context.Context, bucket, key string, body io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[bucket+"/"+key] = data
	return nil
}

func TestParseSteps(t *testing.T) {
	src := base64.StdEncoding.EncodeToString(pngBytes(t, 40, 20))
	r, err := Parse([]byte(`
max_passes: 5
io:
  - {id: 0, direction: in, base64: "` + src + `"}
  - {id: 1, direction: out, buffer: true}
steps:
  - decode: {io_id: 0}
  - constrain: {mode: fit, w: 10, h: 10}
  - copy
  - encode: {io_id: 1, format: png}
`))
	require.NoError(t, err)
	require.Len(t, r.Steps, 4)
	assert.Equal(t, "copy", r.Steps[2].Kind)
	assert.Equal(t, &nodes.Constrain{Mode: "fit", Width: 10, Height: 10}, r.Steps[1].Op)

	job, err := Build(r, Env{})
	require.NoError(t, err)
	assert.Equal(t, 5, job.MaxPasses())
	require.NoError(t, job.Execute(context.Background()))

	p, ok := job.IO(1)
	require.True(t, ok)
	data, ok := p.(*ioport.OutputBuffer).Bytes()
	require.True(t, ok)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Width)
	assert.Equal(t, 5, cfg.Height)
}

func TestParseJSONGraph(t *testing.T) {
	r, err := Parse([]byte(`{
  "io": [{"id": 0, "direction": "output", "buffer": true}],
  "graph": {
    "nodes": {
      "2": {"encode": {"io_id": 0}},
      "10": {"copy_rect": {"from_x": 0, "from_y": 0, "w": 2, "h": 2, "x": 1, "y": 1}},
      "0": {"canvas": {"w": 8, "h": 8, "color": "white"}},
      "1": {"canvas": {"w": 4, "h": 4, "color": "#FF0000"}}
    },
    "edges": [
      {"from": "1", "to": "10", "kind": "input"},
      {"from": "0", "to": "10", "kind": "canvas"},
      {"from": "10", "to": "2"}
    ]
  }
}`))
	require.NoError(t, err)

	job, err := Build(r, Env{})
	require.NoError(t, err)
	g := job.Graph()
	var names []string
	for _, ix := range g.NodeIndices() {
		n, err := g.Node(ix)
		require.NoError(t, err)
		names = append(names, n.Op.Name())
	}
	assert.Equal(t, []string{"canvas", "canvas", "encode", "copy_rect"}, names)

	require.NoError(t, job.Execute(context.Background()))
	p, _ := job.IO(0)
	data, ok := p.(*ioport.OutputBuffer).Bytes()
	require.True(t, ok)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, color.NRGBAModel.Convert(img.At(1, 1)))
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, color.NRGBAModel.Convert(img.At(3, 3)))
}

func TestFilePortsResolveAgainstBaseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.png"), pngBytes(t, 6, 6), 0o644))

	r, err := Parse([]byte(`
io:
  - {id: 0, direction: in, path: in.png}
  - {id: 1, direction: out, path: out/result.bmp}
steps:
  - decode: {io_id: 0}
  - blur: {sigma: 1.5}
  - encode: {io_id: 1}
`))
	require.NoError(t, err)
	job, err := Build(r, Env{BaseDir: dir})
	require.NoError(t, err)
	require.NoError(t, job.Execute(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "out", "result.bmp"))
	require.NoError(t, err)
	assert.Equal(t, "BM", string(data[:2]))
}

func TestObjectPorts(t *testing.T) {
	store := &memStore{objects: map[string][]byte{"images/a.png": pngBytes(t, 4, 4)}}
	r, err := Parse([]byte(`
io:
  - {id: 0, direction: in, key: a.png}
  - {id: 1, direction: out, bucket: thumbs, key: a.jpg}
steps:
  - decode: {io_id: 0}
  - encode: {io_id: 1, quality: 70}
`))
	require.NoError(t, err)

	_, err = Build(r, Env{})
	assert.ErrorContains(t, err, "object storage is not configured")

	job, err := Build(r, Env{Store: store, Bucket: "images"})
	require.NoError(t, err)
	require.NoError(t, job.Execute(context.Background()))
	data, ok := store.objects["thumbs/a.jpg"]
	require.True(t, ok)
	assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
}

func TestParseRejects(t *testing.T) {
	const ioDoc = "io: [{id: 0, direction: out, buffer: true}]\n"
	tests := []struct {
		name       string
		doc        string
		field      string
		contains   string
		structural bool
	}{
		{"empty", ``, "", "empty request", false},
		{"no graph", ioDoc, "", "neither graph nor steps", true},
		{"both", ioDoc + "steps: [copy]\ngraph: {nodes: {a: copy}}\n", "", "both graph and steps", true},
		{"unknown op", ioDoc + "steps: [sharpen]\n", "", `unknown operation "sharpen"`, false},
		{"unknown param", ioDoc + "steps: [{scale: {w: 2, hieght: 3}}]\n", "", "hieght", false},
		{"unknown top level", ioDoc + "stepz: []\n", "", "stepz", false},
		{"bad mode", ioDoc + "steps: [{constrain: {mode: squash, w: 3}}]\n", "steps[0]", "mode fails oneof", false},
		{"bad color", ioDoc + "steps: [{canvas: {w: 1, h: 1, color: mauve}}]\n", "steps[0]", "color fails imgcolor", false},
		{"bad filter", ioDoc + "steps: [{scale: {w: 1, filter: sinc}}]\n", "steps[0]", "filter fails resample", false},
		{"cross field", ioDoc + "steps: [{constrain: {mode: exact, w: 3}}]\n", "steps[0]", "needs both w and h", false},
		{"bad direction", "io: [{id: 0, direction: sideways, buffer: true}]\nsteps: [copy]\n", "", "direction fails oneof", false},
		{"two sources", "io: [{id: 0, direction: in, path: a.png, key: b}]\nsteps: [copy]\n", "io[0]", "exactly one of", false},
		{"buffer input", "io: [{id: 0, direction: in, buffer: true}]\nsteps: [copy]\n", "io[0]", "only valid for outputs", false},
		{"duplicate io", "io: [{id: 0, direction: out, buffer: true}, {id: 0, direction: out, buffer: true}]\nsteps: [copy]\n", "io[1]", "duplicate io id 0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorContains(t, err, tt.contains)
			assert.Equal(t, tt.structural, errors.Is(err, flow.ErrGraphInvalid))
		})
	}
}

func TestAddToStructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"unknown from", "graph: {nodes: {a: copy}, edges: [{from: z, to: a}]}", "graph.edges[0]"},
		{"unknown to", "graph: {nodes: {a: copy}, edges: [{from: a, to: z}]}", "graph.edges[0]"},
		{"cycle", "graph: {nodes: {a: copy, b: copy}, edges: [{from: a, to: b}, {from: b, to: a}]}", "graph.edges[1]"},
		{"advisory cycle", "graph: {nodes: {a: copy, b: copy}, edges: [{from: a, to: b, kind: none}, {from: b, to: a}]}", "graph.edges[1]"},
		{"self edge", "graph: {nodes: {a: copy}, edges: [{from: a, to: a}]}", "graph.edges[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse([]byte(tt.doc))
			require.NoError(t, err)
			g := flow.NewGraph()
			_, err = r.AddTo(g)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.ErrorIs(t, err, flow.ErrGraphInvalid)
			assert.Zero(t, g.Len())
			assert.Empty(t, g.Edges())
		})
	}
}

func TestAddToRequiresEmptyGraph(t *testing.T) {
	r, err := Parse([]byte("steps: [{canvas: {w: 2, h: 2}}, copy]"))
	require.NoError(t, err)

	g := flow.NewGraph()
	_, err = r.AddTo(g)
	require.NoError(t, err)
	require.Equal(t, 2, g.Len())

	_, err = r.AddTo(g)
	assert.ErrorIs(t, err, flow.ErrGraphInvalid)
	assert.ErrorContains(t, err, "graph already has 2 nodes")
	assert.Equal(t, 2, g.Len())
	assert.Len(t, g.Edges(), 1)
}

func TestAddToCopiesOperations(t *testing.T) {
	r, err := Parse([]byte("graph: {nodes: {0: {scale: {w: 4}}, 1: copy}, edges: [{from: 0, to: 1}]}"))
	require.NoError(t, err)

	first, second := flow.NewGraph(), flow.NewGraph()
	ids1, err := r.AddTo(first)
	require.NoError(t, err)
	ids2, err := r.AddTo(second)
	require.NoError(t, err)

	a, err := first.Node(ids1["0"])
	require.NoError(t, err)
	b, err := second.Node(ids2["0"])
	require.NoError(t, err)
	assert.NotSame(t, a.Op, b.Op)
	assert.NotSame(t, r.Graph.Nodes["0"].Op, a.Op)
	assert.Equal(t, &nodes.Scale{Width: 4}, a.Op)
}

func TestSortedKeys(t *testing.T) {
	m := map[string]NodeSpec{"10": {}, "2": {}, "0": {}}
	assert.Equal(t, []string{"0", "2", "10"}, sortedKeys(m))

	m["src"] = NodeSpec{}
	assert.Equal(t, []string{"0", "10", "2", "src"}, sortedKeys(m))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("io: []\nsteps: [{canvas: {w: 2, h: 2}}]\n"), 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	require.Len(t, r.Steps, 1)
	assert.Equal(t, &nodes.Canvas{Width: 2, Height: 2, Color: "transparent"}, r.Steps[0].Op)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read request")
}

func TestIOSpecValidate(t *testing.T) {
	assert.NoError(t, IOSpec{ID: 1, Direction: "out", Key: "a.png"}.Validate())
	assert.ErrorContains(t, IOSpec{ID: -1, Direction: "in", Path: "a.png"}.Validate(), "id fails gte=0")
	assert.ErrorContains(t, IOSpec{ID: 0, Direction: "out", Base64: "AAAA"}.Validate(), "only valid for inputs")
	assert.ErrorContains(t, IOSpec{ID: 0, Direction: "in", Base64: "%%%"}.Validate(), "base64 fails base64")
}
