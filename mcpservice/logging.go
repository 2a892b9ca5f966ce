package mcpservice

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/ggoodman/mcp-sse-gateway/sessions"
)

// ErrInvalidLoggingLevel is returned for a level outside the protocol's set.
var ErrInvalidLoggingLevel = errors.New("invalid logging level")

// slog has four levels; the protocol's eight collapse onto them.
var slogLevels = map[mcp.LoggingLevel]slog.Level{
	mcp.LoggingLevelDebug:     slog.LevelDebug,
	mcp.LoggingLevelInfo:      slog.LevelInfo,
	mcp.LoggingLevelNotice:    slog.LevelInfo,
	mcp.LoggingLevelWarning:   slog.LevelWarn,
	mcp.LoggingLevelError:     slog.LevelError,
	mcp.LoggingLevelCritical:  slog.LevelError,
	mcp.LoggingLevelAlert:     slog.LevelError,
	mcp.LoggingLevelEmergency: slog.LevelError,
}

// SlogLevel maps a protocol logging level to the nearest slog level.
func SlogLevel(level mcp.LoggingLevel) (slog.Level, bool) {
	l, ok := slogLevels[level]
	return l, ok
}

// NewSlogLevelVarLogging returns a LoggingCapability that moves lv. Every
// handler built on lv follows the client's requested level.
func NewSlogLevelVarLogging(lv *slog.LevelVar) LoggingCapability {
	return levelVarLogging{lv: lv}
}

type levelVarLogging struct{ lv *slog.LevelVar }

func (l levelVarLogging) SetLevel(_ context.Context, _ sessions.Session, level mcp.LoggingLevel) error {
	sl, ok := SlogLevel(level)
	if !ok {
		return ErrInvalidLoggingLevel
	}
	if l.lv != nil {
		l.lv.Set(sl)
	}
	return nil
}
