package mcpservice

import (
	"context"

	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/ggoodman/mcp-sse-gateway/sessions"
)

// ServerCapabilities is the surface the engine queries while serving a
// session. Discovery methods return (cap, ok, err): ok == false means the
// capability is absent for the session, err is reserved for internal failures.
// Implementations MUST be safe for concurrent use.
type ServerCapabilities interface {
	// GetServerInfo returns implementation information surfaced in the
	// initialize result.
	GetServerInfo(ctx context.Context, session sessions.Session) (mcp.ImplementationInfo, error)

	// GetPreferredProtocolVersion returns a protocol revision that overrides
	// negotiation. If ok is false, the engine negotiates from the client's
	// requested revision.
	GetPreferredProtocolVersion(ctx context.Context) (version string, ok bool, err error)

	// GetInstructions returns optional human-readable instructions for the
	// initialize result.
	GetInstructions(ctx context.Context, session sessions.Session) (instructions string, ok bool, err error)

	// GetToolsCapability returns the tools capability for the session.
	GetToolsCapability(ctx context.Context, session sessions.Session) (cap ToolsCapability, ok bool, err error)

	// GetLoggingCapability returns the logging capability for the session.
	GetLoggingCapability(ctx context.Context, session sessions.Session) (cap LoggingCapability, ok bool, err error)
}

// ToolsCapability defines the server's tools surface area.
type ToolsCapability interface {
	// ListTools returns a (possibly paginated) list of tools available to the
	// session. A nil cursor requests the first page.
	ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error)

	// CallTool invokes a named tool. Unknown names yield an error wrapping
	// ErrToolNotFound. Argument problems are reported in-band as an error
	// result rather than a Go error.
	CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

	// GetListChangedCapability returns an optional capability used to push
	// notifications/tools/list_changed to the session.
	GetListChangedCapability(ctx context.Context, session sessions.Session) (cap ToolListChangedCapability, ok bool, err error)
}

// NotifyToolsListChangedFunc is invoked when the tool list changes for the
// session. Implementations MAY coalesce rapid changes.
type NotifyToolsListChangedFunc func(ctx context.Context, session sessions.Session)

// ToolListChangedCapability provides tools list-changed notifications support.
// Delivery stops when ctx is cancelled.
type ToolListChangedCapability interface {
	Register(ctx context.Context, session sessions.Session, fn NotifyToolsListChangedFunc) (ok bool, err error)
}

// LoggingCapability lets the client adjust the server's logging level.
type LoggingCapability interface {
	SetLevel(ctx context.Context, session sessions.Session, level mcp.LoggingLevel) error
}
