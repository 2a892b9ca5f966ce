// Package mcp contains the Model Context Protocol data types and constants the
// gateway speaks. It mirrors the wire representation (exported structs with
// json tags, string constants for method names) and holds no transport logic:
// the sse package frames these values and the engine serializes them.
//
// # Method Names
//
// JSON-RPC method and notification names are enumerated as Method constants
// (e.g. ToolsCallMethod).
//
// # Protocol Versions
//
// SupportedProtocolVersions lists the revisions the engine negotiates, newest
// first. LatestProtocolVersion is offered when a client asks for a revision
// that is not listed.
//
// # Metadata
//
// BaseMetadata attaches implementation-defined metadata under the _meta key.
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: "text", Text: "hello"}},
//	}
package mcp
