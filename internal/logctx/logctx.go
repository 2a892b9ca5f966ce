// Package logctx carries request-scoped log attributes through a context and
// renders them as slog groups.
package logctx

import (
	"context"
	"log/slog"
)

// group is implemented by every value this package stores on a context.
type group interface {
	attr() slog.Attr
}

type ctxKey int

const (
	requestKey ctxKey = iota
	sessionKey
	rpcKey
	toolKey
)

// keys fixes the order groups appear in a record.
var keys = [...]ctxKey{requestKey, sessionKey, rpcKey, toolKey}

// RequestData describes the HTTP request that produced the work.
type RequestData struct {
	RequestID  string
	Method     string
	UserAgent  string
	RemoteAddr string
	Path       string
}

func (d *RequestData) attr() slog.Attr {
	return slog.Group("req",
		slog.String("id", d.RequestID),
		slog.String("method", d.Method),
		slog.String("path", d.Path),
		slog.String("remote_addr", d.RemoteAddr),
		slog.String("user_agent", d.UserAgent),
	)
}

// SessionData identifies the MCP session. Empty fields are omitted.
type SessionData struct {
	SessionID       string
	ProtocolVersion string
	ClientName      string
}

func (d *SessionData) attr() slog.Attr {
	attrs := make([]any, 0, 3)
	attrs = append(attrs, slog.String("id", d.SessionID))
	if v := d.ProtocolVersion; v != "" {
		attrs = append(attrs, slog.String("protocol_version", v))
	}
	if v := d.ClientName; v != "" {
		attrs = append(attrs, slog.String("client", v))
	}
	return slog.Group("sess", attrs...)
}

type RPCMessage struct {
	Method string
	ID     string
	Type   string
}

func (m *RPCMessage) attr() slog.Attr {
	return slog.Group("rpc",
		slog.String("type", m.Type),
		slog.String("method", m.Method),
		slog.String("id", m.ID),
	)
}

type ToolCallData struct {
	ToolName string
}

func (d *ToolCallData) attr() slog.Attr {
	return slog.Group("tool", slog.String("name", d.ToolName))
}

func WithRequestData(ctx context.Context, d *RequestData) context.Context {
	return context.WithValue(ctx, requestKey, d)
}

func WithSessionData(ctx context.Context, d *SessionData) context.Context {
	return context.WithValue(ctx, sessionKey, d)
}

func WithRPCMessage(ctx context.Context, m *RPCMessage) context.Context {
	return context.WithValue(ctx, rpcKey, m)
}

func WithToolCallData(ctx context.Context, d *ToolCallData) context.Context {
	return context.WithValue(ctx, toolKey, d)
}

// Handler decorates every record with the groups found on its context.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	for _, k := range keys {
		if g, ok := ctx.Value(k).(group); ok {
			r.AddAttrs(g.attr())
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{h.Handler.WithGroup(name)}
}

// Wrap returns l with its handler decorated by Handler. A nil l yields a
// logger that discards everything.
func Wrap(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(Handler{slog.DiscardHandler})
	}
	if _, ok := l.Handler().(Handler); ok {
		return l
	}
	return slog.New(Handler{l.Handler()})
}
