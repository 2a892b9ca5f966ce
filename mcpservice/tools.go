package mcpservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/ggoodman/mcp-sse-gateway/sessions"
)

// ErrToolNotFound is returned by CallTool for names that are not registered.
var ErrToolNotFound = errors.New("tool not found")

type ListToolsFunc func(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error)

type CallToolFunc func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// DynamicToolsOption configures NewDynamicTools.
type DynamicToolsOption func(*funcTools)

// funcTools serves tools from caller functions. Paging is whatever list
// returns.
type funcTools struct {
	list    ListToolsFunc
	call    CallToolFunc
	changes ChangeSubscriber
}

// NewDynamicTools builds a tools capability from functions. Without a list
// function nothing is listed; without a call function every call fails with
// ErrToolNotFound.
func NewDynamicTools(opts ...DynamicToolsOption) ToolsCapability {
	t := new(funcTools)
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func WithToolsListFn(fn ListToolsFunc) DynamicToolsOption {
	return func(t *funcTools) { t.list = fn }
}

func WithToolsCallFn(fn CallToolFunc) DynamicToolsOption {
	return func(t *funcTools) { t.call = fn }
}

// WithToolsChangeSubscriber announces list changes signalled by sub.
func WithToolsChangeSubscriber(sub ChangeSubscriber) DynamicToolsOption {
	return func(t *funcTools) { t.changes = sub }
}

func (t *funcTools) ListTools(ctx context.Context, session sessions.Session, cursor *string) (Page[mcp.Tool], error) {
	if t.list != nil {
		return t.list(ctx, session, cursor)
	}
	return NewPage[mcp.Tool](nil), nil
}

func (t *funcTools) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	switch {
	case req == nil || req.Name == "":
		return nil, errors.New("tool call without a name")
	case t.call == nil:
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	return t.call(ctx, session, req)
}

func (t *funcTools) GetListChangedCapability(context.Context, sessions.Session) (ToolListChangedCapability, bool, error) {
	if t.changes == nil {
		return nil, false, nil
	}
	return subscriberListChanged{t.changes}, true, nil
}

// subscriberListChanged forwards every signal from a ChangeSubscriber to the
// registered callback until the registration context ends.
type subscriberListChanged struct{ sub ChangeSubscriber }

func (s subscriberListChanged) Register(ctx context.Context, session sessions.Session, fn NotifyToolsListChangedFunc) (bool, error) {
	if fn == nil {
		return false, nil
	}
	signals := s.sub.Subscribe(ctx)
	go func() {
		for range signals {
			fn(ctx, session)
		}
	}()
	return true, nil
}
