package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/image-flow/internal/codecs"
	"github.com/ironsheep/image-flow/internal/engine"
	"github.com/ironsheep/image-flow/internal/flow"
	"github.com/ironsheep/image-flow/internal/imaging"
	"github.com/ironsheep/image-flow/internal/ioport"
	"github.com/ironsheep/image-flow/internal/request"
)

// errInvalidParams marks tool errors caused by the caller's arguments; they
// are reported as JSON-RPC -32602.
var errInvalidParams = errors.New("invalid params")

func invalidParams(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{errInvalidParams}, args...)...)
}

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "flow_run", "image_dimensions").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Bad arguments, unknown job handles and invalid requests return code -32602;
// other tool failures return -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		var verr *request.ValidationError
		if errors.Is(err, errInvalidParams) || errors.As(err, &verr) {
			return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
		}
		s.logger.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Job lifecycle
	case "flow_create_job":
		return s.handleCreateJob()
	case "flow_add_io":
		return s.handleAddIO(args)
	case "flow_build_graph":
		return s.handleBuildGraph(args)
	case "flow_execute":
		return s.handleExecute(ctx, args)
	case "flow_node_state":
		return s.handleNodeState(args)
	case "flow_get_output":
		return s.handleGetOutput(args)
	case "flow_sample_color":
		return s.handleSampleColor(ctx, args)
	case "flow_destroy_job":
		return s.handleDestroyJob(args)

	// One-shot
	case "flow_run":
		return s.handleRun(ctx, args)

	// Image information
	case "image_dimensions":
		return s.handleImageDimensions(args)

	default:
		return nil, invalidParams("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		args = []byte("{}")
	}
	if err := json.Unmarshal(args, v); err != nil {
		return invalidParams("%v", err)
	}
	return nil
}

type jobArgs struct {
	Job engine.JobHandle `json:"job"`
}

// job checks a caller-supplied handle before it reaches the engine, which
// treats unknown handles as fatal.
func (s *Server) job(h engine.JobHandle) (engine.JobHandle, error) {
	if !s.engine.HasJob(h) {
		return 0, invalidParams("unknown job handle %d", h)
	}
	return h, nil
}

// === Job Lifecycle Handlers ===

func (s *Server) handleCreateJob() (interface{}, error) {
	return map[string]interface{}{"job": s.engine.CreateJob()}, nil
}

type addIOArgs struct {
	jobArgs
	request.IOSpec
	IOID int `json:"io_id"`
}

func (s *Server) handleAddIO(args json.RawMessage) (interface{}, error) {
	var a addIOArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	h, err := s.job(a.Job)
	if err != nil {
		return nil, err
	}
	spec := a.IOSpec
	spec.ID = a.IOID
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	dir, err := ioport.ParseDirection(spec.Direction)
	if err != nil {
		return nil, invalidParams("%v", err)
	}

	in := dir == ioport.In
	switch {
	case spec.Path != "" && in:
		err = s.engine.AddInputFile(h, spec.ID, spec.Path)
	case spec.Path != "":
		err = s.engine.AddOutputFile(h, spec.ID, spec.Path)
	case spec.Base64 != "":
		var data []byte
		data, err = base64.StdEncoding.DecodeString(spec.Base64)
		if err != nil {
			return nil, invalidParams("base64: %v", err)
		}
		err = s.engine.AddInputBuffer(h, spec.ID, data)
	case spec.Buffer:
		err = s.engine.AddOutputBuffer(h, spec.ID)
	case in:
		err = s.engine.AddObjectInput(h, spec.ID, spec.Bucket, spec.Key)
	default:
		err = s.engine.AddObjectOutput(h, spec.ID, spec.Bucket, spec.Key)
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"job": h, "io_id": spec.ID, "direction": dir}, nil
}

type buildGraphArgs struct {
	jobArgs
	Graph json.RawMessage `json:"graph"`
}

func (s *Server) handleBuildGraph(args json.RawMessage) (interface{}, error) {
	var a buildGraphArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	h, err := s.job(a.Job)
	if err != nil {
		return nil, err
	}
	if len(a.Graph) == 0 {
		return nil, invalidParams("graph is required")
	}
	// node specs decode through yaml; JSON is a subset
	var g request.GraphSpec
	if err := yaml.Unmarshal(a.Graph, &g); err != nil {
		return nil, invalidParams("graph: %v", err)
	}
	ids, err := s.engine.BuildGraph(h, &g)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"job": h, "nodes": ids}, nil
}

func (s *Server) handleExecute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a jobArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	h, err := s.job(a.Job)
	if err != nil {
		return nil, err
	}
	if err := s.engine.Execute(ctx, h); err != nil {
		return nil, err
	}
	return summarize(h, s.engine.Snapshot(h)), nil
}

func summarize(h engine.JobHandle, snap flow.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"job":           h,
		"job_id":        snap.JobID,
		"passes":        snap.Pass,
		"graph_version": snap.Version,
		"nodes":         len(snap.Nodes),
	}
}

type nodeStateArgs struct {
	jobArgs
	Node *int `json:"node"`
}

func (s *Server) handleNodeState(args json.RawMessage) (interface{}, error) {
	var a nodeStateArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	h, err := s.job(a.Job)
	if err != nil {
		return nil, err
	}
	if a.Node == nil {
		return s.engine.Snapshot(h), nil
	}
	stage, err := s.engine.NodeStage(h, flow.NodeIndex(*a.Node))
	if err != nil {
		return nil, invalidParams("%v", err)
	}
	return map[string]interface{}{"node": *a.Node, "stage": stage}, nil
}

type outputArgs struct {
	jobArgs
	IOID int `json:"io_id"`
}

// OutputResult is an output buffer returned inline.
type OutputResult struct {
	IOID     int    `json:"io_id"`
	MimeType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
	Base64   string `json:"base64"`
}

func newOutputResult(id int, data []byte) OutputResult {
	mime := "application/octet-stream"
	if f, ok := codecs.Sniff(data); ok {
		mime = f.MimeType()
	}
	return OutputResult{
		IOID:     id,
		MimeType: mime,
		Bytes:    len(data),
		Base64:   base64.StdEncoding.EncodeToString(data),
	}
}

func (s *Server) handleGetOutput(args json.RawMessage) (interface{}, error) {
	var a outputArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	h, err := s.job(a.Job)
	if err != nil {
		return nil, err
	}
	data, err := s.engine.OutputBuffer(h, a.IOID)
	if err != nil {
		return nil, err
	}
	return newOutputResult(a.IOID, data), nil
}

type sampleColorArgs struct {
	outputArgs
	X int `json:"x"`
	Y int `json:"y"`
}

func (s *Server) handleSampleColor(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a sampleColorArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	h, err := s.job(a.Job)
	if err != nil {
		return nil, err
	}
	data, err := s.engine.OutputBuffer(h, a.IOID)
	if err != nil {
		return nil, err
	}
	img, err := codecs.NewDecoder(ioport.NewBufferInput(a.IOID, data)).Decode(ctx)
	if err != nil {
		return nil, err
	}
	return imaging.SampleColor(img, a.X, a.Y)
}

func (s *Server) handleDestroyJob(args json.RawMessage) (interface{}, error) {
	var a jobArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	h, err := s.job(a.Job)
	if err != nil {
		return nil, err
	}
	s.engine.DestroyJob(h)
	return map[string]interface{}{"job": h, "destroyed": true}, nil
}

// === One-shot Handler ===

type runArgs struct {
	Request json.RawMessage `json:"request"`
}

func (s *Server) handleRun(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a runArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	doc := bytes.TrimSpace(a.Request)
	if len(doc) == 0 {
		return nil, invalidParams("request is required")
	}
	if doc[0] == '"' {
		var text string
		if err := json.Unmarshal(doc, &text); err != nil {
			return nil, invalidParams("request: %v", err)
		}
		doc = []byte(text)
	}

	r, err := request.Parse(doc)
	if err != nil {
		return nil, err
	}
	h, err := s.engine.Run(ctx, r)
	if err != nil {
		return nil, err
	}

	result := summarize(h, s.engine.Snapshot(h))
	var outputs []OutputResult
	for _, spec := range r.IO {
		if !spec.Buffer {
			continue
		}
		data, err := s.engine.OutputBuffer(h, spec.ID)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, newOutputResult(spec.ID, data))
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].IOID < outputs[j].IOID })
	result["outputs"] = outputs
	return result, nil
}

// === Image Information Handlers ===

type imagePathArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imagePathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, invalidParams("path is required")
	}
	return s.probes.Probe(a.Path)
}
