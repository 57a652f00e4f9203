package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"IMAGEFLOW_MAX_PASSES", "IMAGEFLOW_LOG_LEVEL", "IMAGEFLOW_LOG_FORMAT",
		"IMAGEFLOW_DEBUG_DIR", "IMAGEFLOW_METRICS_ADDR", "IMAGEFLOW_S3_ENDPOINT",
		"OTEL_TRACES_EXPORTER", "OTEL_METRICS_EXPORTER",
	} {
		t.Setenv(k, "")
	}
}

// execute runs the root command and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeInput stores a solid PNG in dir and returns its name.
func writeInput(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, "in.png"))
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return "in.png"
}

func writeRequest(t *testing.T, dir, doc string) string {
	t.Helper()
	path := filepath.Join(dir, "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

const constrainRequest = `
io:
  - {id: 0, direction: in, path: in.png}
  - {id: 1, direction: out, path: out.png}
  - {id: 2, direction: out, buffer: true}
graph:
  nodes:
    "0": {decode: {io_id: 0}}
    "1": {constrain: {mode: within, w: 20, h: 20}}
    "2": {encode: {io_id: 1}}
    "3": {encode: {io_id: 2, format: jpeg, quality: 80}}
  edges:
    - {from: "0", to: "1"}
    - {from: "1", to: "2"}
    - {from: "1", to: "3"}
`

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "imageflow dev")
	assert.Contains(t, out, "Git commit:")
}

func TestRun(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeInput(t, dir, 40, 30)
	reqPath := writeRequest(t, dir, constrainRequest)

	out, _, err := execute(t, "", "run", reqPath)
	require.NoError(t, err)

	var sum runSummary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.NotEmpty(t, sum.JobID)
	assert.GreaterOrEqual(t, sum.Passes, 1)
	require.Len(t, sum.Buffers, 1)
	assert.Equal(t, 2, sum.Buffers[0].IOID)
	assert.Positive(t, sum.Buffers[0].Bytes)

	f, err := os.Open(filepath.Join(dir, "out.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 15, cfg.Height)
}

func TestRun_DebugDir(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	debugDir := t.TempDir()
	writeInput(t, dir, 40, 30)
	reqPath := writeRequest(t, dir, constrainRequest)

	_, _, err := execute(t, "", "--debug-dir", debugDir, "run", "--frames", reqPath)
	require.NoError(t, err)

	graphs, err := filepath.Glob(filepath.Join(debugDir, "job_*_graph_version_*.dot"))
	require.NoError(t, err)
	assert.NotEmpty(t, graphs)

	frames, err := filepath.Glob(filepath.Join(debugDir, "node_frames", "*.png"))
	require.NoError(t, err)
	assert.NotEmpty(t, frames)
}

func TestRun_Errors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, _, err := execute(t, "", "run")
	assert.Error(t, err, "missing request argument")

	_, _, err = execute(t, "", "run", filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read request")

	bad := writeRequest(t, dir, "steps: [sharpen]\n")
	_, _, err = execute(t, "", "run", bad)
	assert.ErrorContains(t, err, "invalid request")

	_, _, err = execute(t, "", "--log-level", "loud", "run", bad)
	assert.Error(t, err)
}

func TestRun_MaxPassesFlag(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeInput(t, dir, 20, 20)
	// an identity scale is replaced after optimization, which costs a pass
	reqPath := writeRequest(t, dir, `
io:
  - {id: 0, direction: in, path: in.png}
  - {id: 1, direction: out, buffer: true}
steps:
  - decode: {io_id: 0}
  - scale: {w: 20, h: 20}
  - encode: {io_id: 1}
`)

	_, _, err := execute(t, "", "--max-passes", "1", "run", reqPath)
	assert.ErrorContains(t, err, "maximum graph passes exceeded")

	_, _, err = execute(t, "", "--max-passes", "3", "run", reqPath)
	assert.NoError(t, err)
}

func TestServe(t *testing.T) {
	clearEnv(t)
	stdin := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"flow_create_job","arguments":{}}}` + "\n"

	out, _, err := execute(t, stdin, "serve")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"image-flow"`)
	assert.Contains(t, lines[1], `\"job\": 1`)
}
