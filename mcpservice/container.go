package mcpservice

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/ggoodman/mcp-sse-gateway/sessions"
)

const defaultToolsPageSize = 50

// ToolsContainer is a mutable tool set shared by every session. It implements
// ToolsCapability and announces each change to list-changed subscribers.
type ToolsContainer struct {
	mu       sync.RWMutex
	order    []string
	byName   map[string]StaticTool
	pageSize int

	changes ChangeNotifier
}

// NewToolsContainer returns a container holding defs. A later definition
// replaces an earlier one with the same name in place.
func NewToolsContainer(defs ...StaticTool) *ToolsContainer {
	c := &ToolsContainer{pageSize: defaultToolsPageSize}
	c.reset(defs)
	return c
}

func (c *ToolsContainer) reset(defs []StaticTool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = c.order[:0]
	c.byName = make(map[string]StaticTool, len(defs))
	for _, d := range defs {
		if _, seen := c.byName[d.Descriptor.Name]; !seen {
			c.order = append(c.order, d.Descriptor.Name)
		}
		c.byName[d.Descriptor.Name] = d
	}
}

// SetPageSize changes the tools/list page size. Non-positive values are ignored.
func (c *ToolsContainer) SetPageSize(n int) {
	if n > 0 {
		c.mu.Lock()
		c.pageSize = n
		c.mu.Unlock()
	}
}

// Snapshot returns the descriptors in registration order.
func (c *ToolsContainer) Snapshot() []mcp.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]mcp.Tool, len(c.order))
	for i, name := range c.order {
		out[i] = c.byName[name].Descriptor
	}
	return out
}

func (c *ToolsContainer) Replace(ctx context.Context, defs ...StaticTool) {
	c.reset(defs)
	_ = c.changes.Notify(ctx)
}

// Add registers def and reports false when the name is already taken.
func (c *ToolsContainer) Add(ctx context.Context, def StaticTool) bool {
	name := def.Descriptor.Name
	c.mu.Lock()
	if _, taken := c.byName[name]; taken {
		c.mu.Unlock()
		return false
	}
	c.byName[name] = def
	c.order = append(c.order, name)
	c.mu.Unlock()
	_ = c.changes.Notify(ctx)
	return true
}

func (c *ToolsContainer) Remove(ctx context.Context, name string) bool {
	c.mu.Lock()
	if _, ok := c.byName[name]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.byName, name)
	c.order = slices.DeleteFunc(c.order, func(n string) bool { return n == name })
	c.mu.Unlock()
	_ = c.changes.Notify(ctx)
	return true
}

func (c *ToolsContainer) Subscribe(ctx context.Context) <-chan struct{} {
	return c.changes.Subscribe(ctx)
}

func (c *ToolsContainer) ListTools(_ context.Context, _ sessions.Session, cursor *string) (Page[mcp.Tool], error) {
	all := c.Snapshot()
	c.mu.RLock()
	size := c.pageSize
	c.mu.RUnlock()
	return paginate(all, cursor, size), nil
}

func (c *ToolsContainer) CallTool(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, errors.New("invalid tool request: missing name")
	}
	c.mu.RLock()
	def, ok := c.byName[req.Name]
	c.mu.RUnlock()
	if !ok || def.Handler == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
	}
	return def.Handler(ctx, session, req)
}

// GetListChangedCapability is always present for containers.
func (c *ToolsContainer) GetListChangedCapability(context.Context, sessions.Session) (ToolListChangedCapability, bool, error) {
	return subscriberListChanged{c}, true, nil
}
