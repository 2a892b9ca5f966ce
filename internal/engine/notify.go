package engine

import (
	"context"

	"github.com/ggoodman/mcp-sse-gateway/mcp"
)

// defaultClientLogLevel applies until the client calls logging/setLevel.
const defaultClientLogLevel = mcp.LoggingLevelInfo

// progressReporter emits notifications/progress for one request's token.
type progressReporter struct {
	session *Session
	token   mcp.ProgressToken
}

func (p *progressReporter) Report(ctx context.Context, progress, total float64) error {
	params := mcp.ProgressNotificationParams{ProgressToken: p.token, Progress: progress}
	if total > 0 {
		params.Total = total
	}
	return p.session.notify(ctx, mcp.ProgressNotificationMethod, params)
}

// clientLogger emits notifications/message at or above the session's level.
type clientLogger struct{ session *Session }

func (l clientLogger) Log(ctx context.Context, level mcp.LoggingLevel, logger string, data any) error {
	if !mcp.IsValidLoggingLevel(level) || !l.session.clientLogLevel().Enabled(level) {
		return nil
	}
	return l.session.notify(ctx, mcp.LoggingMessageNotificationMethod, mcp.LoggingMessageNotification{
		Level:  level,
		Logger: logger,
		Data:   data,
	})
}
