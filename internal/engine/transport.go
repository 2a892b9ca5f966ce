package engine

import (
	"context"

	"github.com/ggoodman/mcp-sse-gateway/internal/jsonrpc"
)

// Transport is the outbound half of one client connection. Send writes a single
// JSON-RPC message to the client; an error means the connection is unusable and
// the transport is expected to tear itself (and the engine session) down.
type Transport interface {
	SessionID() string
	Send(ctx context.Context, msg jsonrpc.Message) error
}

// TransportFunc adapts a session id and send function to a Transport.
type TransportFunc struct {
	ID     string
	SendFn func(ctx context.Context, msg jsonrpc.Message) error
}

func (t TransportFunc) SessionID() string { return t.ID }

func (t TransportFunc) Send(ctx context.Context, msg jsonrpc.Message) error {
	return t.SendFn(ctx, msg)
}
