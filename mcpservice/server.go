package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/ggoodman/mcp-sse-gateway/sessions"
)

// ServerOption configures the ServerCapabilities built by NewServer.
type ServerOption func(*server)

type (
	infoFunc         func(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)
	instructionsFunc func(ctx context.Context, session sessions.Session) (string, bool, error)
	toolsFunc        func(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error)
)

// server resolves everything through per-session functions; static options
// install constant functions.
type server struct {
	version      string
	info         infoFunc
	instructions instructionsFunc
	tools        toolsFunc
	logging      LoggingCapability
}

// NewServer assembles a ServerCapabilities from options. Capabilities that
// are not configured are reported absent.
func NewServer(opts ...ServerOption) ServerCapabilities {
	s := &server{}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func WithServerInfo(info mcp.ImplementationInfo) ServerOption {
	return WithServerInfoProvider(func(context.Context, sessions.Session) (mcp.ImplementationInfo, error) {
		return info, nil
	})
}

// WithServerInfoProvider computes server info per session.
func WithServerInfoProvider(fn func(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)) ServerOption {
	return func(s *server) { s.info = fn }
}

// WithPreferredProtocolVersion answers every initialize with version instead
// of negotiating.
func WithPreferredProtocolVersion(version string) ServerOption {
	return func(s *server) { s.version = version }
}

func WithInstructions(text string) ServerOption {
	return WithInstructionsProvider(func(context.Context, sessions.Session) (string, bool, error) {
		return text, true, nil
	})
}

func WithInstructionsProvider(fn func(ctx context.Context, session sessions.Session) (string, bool, error)) ServerOption {
	return func(s *server) { s.instructions = fn }
}

// WithToolsCapability serves the same tools to every session.
func WithToolsCapability(tools ToolsCapability) ServerOption {
	return WithToolsProvider(func(context.Context, sessions.Session) (ToolsCapability, bool, error) {
		return tools, tools != nil, nil
	})
}

// WithToolsProvider picks the tools capability per session.
func WithToolsProvider(fn func(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error)) ServerOption {
	return func(s *server) { s.tools = fn }
}

func WithLoggingCapability(logging LoggingCapability) ServerOption {
	return func(s *server) { s.logging = logging }
}

func (s *server) GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error) {
	if s.info == nil {
		return mcp.ImplementationInfo{}, nil
	}
	return s.info(ctx, session)
}

func (s *server) GetPreferredProtocolVersion(context.Context) (string, bool, error) {
	return s.version, s.version != "", nil
}

func (s *server) GetInstructions(ctx context.Context, session sessions.Session) (string, bool, error) {
	if s.instructions == nil {
		return "", false, nil
	}
	return s.instructions(ctx, session)
}

func (s *server) GetToolsCapability(ctx context.Context, session sessions.Session) (ToolsCapability, bool, error) {
	if s.tools == nil {
		return nil, false, nil
	}
	return s.tools(ctx, session)
}

func (s *server) GetLoggingCapability(context.Context, sessions.Session) (LoggingCapability, bool, error) {
	return s.logging, s.logging != nil, nil
}
