// Package server implements the MCP (Model Context Protocol) server for the
// image flow engine.
//
// This package provides a JSON-RPC 2.0 server that exposes job construction
// and execution through the MCP protocol, so MCP-compatible clients can build
// operation graphs, run them, and read back the encoded results.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Job Lifecycle:
//   - flow_create_job: Create an empty job and return its handle
//   - flow_add_io: Attach a file, base64, buffer or object port
//   - flow_build_graph: Set the nodes and edges of a job, once
//   - flow_execute: Run the job to completion
//   - flow_node_state: Read one node's stage or the whole graph
//   - flow_get_output: Fetch an output buffer as base64
//   - flow_sample_color: Sample a pixel of an encoded output buffer
//   - flow_destroy_job: Release a job
//
// One-shot:
//   - flow_run: Build and execute a whole request document
//
// Image Information:
//   - image_dimensions: Probe width, height and format of a file
//
// Job handles are only meaningful to the server instance that issued them.
//
// # Error Handling
//
// Tool errors are returned as JSON-RPC error responses with:
//   - code: -32602 for bad arguments, unknown job handles and invalid
//     requests; -32000 for failures while a job runs
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
// The server is typically started by an MCP client through the imageflow
// serve command:
//
//	srv := server.New(server.WithEngine(eng), server.WithLogger(logger))
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
