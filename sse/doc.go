// Package sse implements the HTTP+SSE transport for MCP: every client holds
// one long-lived Server-Sent Events stream for server-to-client messages and
// sends client-to-server messages as individual POST requests. The Handler
// stitches the two halves into one virtual bidirectional channel per client.
//
// # Wire Contract
//
// A client opens the stream with GET on the stream path (default /sse). The
// first frame names the URL for message pushes, carrying the session identity
// in the sessionId query parameter:
//
//	event: endpoint
//	data: /messages?sessionId=3f0c...
//
// Every later frame carries one JSON-RPC message:
//
//	event: message
//	data: {"jsonrpc":"2.0","id":1,"result":{...}}
//
// Keep-alive frames, when enabled, are SSE comments (": keepalive").
//
// Message pushes are POST requests to the message path (default /messages)
// with a single JSON-RPC message body. They are answered with 202 Accepted as
// soon as the message is queued for the session; the protocol response arrives
// on the stream. A push naming no session, or a session that is unknown or
// closed, is rejected with 400 and never reaches the engine.
//
// # Lifecycle
//
// A Channel is registered in a sessions.Registry before the engine sees it and
// is removed exactly once when it closes, whether the client disconnected, a
// write failed or the server shut down. Closing a channel also tears down the
// engine session bound to it.
package sse
