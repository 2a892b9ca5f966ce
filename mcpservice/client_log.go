package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-sse-gateway/mcp"
)

// ClientLogger sends log messages to the client as notifications/message.
// Messages below the level the client chose with logging/setLevel are
// dropped.
type ClientLogger interface {
	Log(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error
}

type clientLoggerKey struct{}

func WithClientLogger(ctx context.Context, l ClientLogger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, clientLoggerKey{}, l)
}

// LogToClient logs through the ClientLogger on ctx. Without one it does
// nothing.
func LogToClient(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error {
	l, ok := ctx.Value(clientLoggerKey{}).(ClientLogger)
	if !ok || l == nil {
		return nil
	}
	return l.Log(ctx, level, logger, data)
}
