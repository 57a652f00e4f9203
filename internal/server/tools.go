package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func jobProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Job handle returned by flow_create_job or flow_run",
	}
}

func ioIDProperty(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": desc,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Job lifecycle
		{
			Name:        "flow_create_job",
			Description: "Create an empty job and return its handle. Add I/O ports with flow_add_io and a graph with flow_build_graph, then run it with flow_execute.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "flow_add_io",
			Description: "Attach an input or output port to a job. Exactly one of path, base64 (inputs), buffer (outputs) or key selects where the bytes live.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job":   jobProperty(),
					"io_id": ioIDProperty("Placeholder id referenced by decode/encode nodes"),
					"direction": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"in", "out"},
						"description": "Whether the port is read (in) or written (out)",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "File path to read or write",
					},
					"base64": map[string]interface{}{
						"type":        "string",
						"description": "Encoded image bytes for an input, base64",
					},
					"buffer": map[string]interface{}{
						"type":        "boolean",
						"description": "Keep an output in memory; read it with flow_get_output",
					},
					"bucket": map[string]interface{}{
						"type":        "string",
						"description": "Object store bucket. Defaults to the configured bucket",
					},
					"key": map[string]interface{}{
						"type":        "string",
						"description": "Object store key",
					},
				},
				"required": []string{"job", "io_id", "direction"},
			},
		},
		{
			Name:        "flow_build_graph",
			Description: "Add nodes and edges to a job that has no graph yet. A rejected graph leaves the job unchanged. Nodes are keyed by id and written as {kind: {params}}; edges connect ids with kind input, canvas or none.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job": jobProperty(),
					"graph": map[string]interface{}{
						"type":        "object",
						"description": `Graph, e.g. {"nodes": {"0": {"decode": {"io_id": 0}}, "1": {"encode": {"io_id": 1}}}, "edges": [{"from": "0", "to": "1"}]}`,
					},
				},
				"required": []string{"job", "graph"},
			},
		},
		{
			Name:        "flow_execute",
			Description: "Run a job's graph to completion. A job executes once.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job": jobProperty(),
				},
				"required": []string{"job"},
			},
		},
		{
			Name:        "flow_node_state",
			Description: "Report the stage, frame and cost of one node, or of every node when node is omitted.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job": jobProperty(),
					"node": map[string]interface{}{
						"type":        "integer",
						"description": "Node index returned by flow_build_graph",
					},
				},
				"required": []string{"job"},
			},
		},
		{
			Name:        "flow_get_output",
			Description: "Return the bytes written to an output buffer as base64 with their MIME type.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job":   jobProperty(),
					"io_id": ioIDProperty("Id of an output buffer port"),
				},
				"required": []string{"job", "io_id"},
			},
		},
		{
			Name:        "flow_sample_color",
			Description: "Get the exact color at a pixel of an output buffer after execution.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job":   jobProperty(),
					"io_id": ioIDProperty("Id of an output buffer port"),
					"x": map[string]interface{}{
						"type":        "integer",
						"description": "X coordinate (0-based, from left)",
					},
					"y": map[string]interface{}{
						"type":        "integer",
						"description": "Y coordinate (0-based, from top)",
					},
				},
				"required": []string{"job", "io_id", "x", "y"},
			},
		},
		{
			Name:        "flow_destroy_job",
			Description: "Release a job and its buffers.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"job": jobProperty(),
				},
				"required": []string{"job"},
			},
		},

		// One-shot
		{
			Name:        "flow_run",
			Description: "Build and execute a complete request in one call. Output buffers are returned inline as base64.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"request": map[string]interface{}{
						"description": "Request object (io plus graph or steps), or the same as a YAML string",
					},
				},
				"required": []string{"request"},
			},
		},

		// Image information
		{
			Name:        "image_dimensions",
			Description: "Get the width, height and format of an image file without decoding its pixels.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the image file",
					},
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
