package mcpservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/ggoodman/mcp-sse-gateway/sessions"
)

// ToolHandler answers one tools/call for a single tool.
type ToolHandler func(ctx context.Context, session sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error)

// StaticTool is a descriptor plus the handler that serves it.
type StaticTool struct {
	Descriptor mcp.Tool
	Handler    ToolHandler
}

// ToolRequest carries the decoded arguments of a call.
type ToolRequest[A any] struct {
	name string
	raw  json.RawMessage
	args A
}

func (r *ToolRequest[A]) Name() string                  { return r.name }
func (r *ToolRequest[A]) RawArguments() json.RawMessage { return r.raw }
func (r *ToolRequest[A]) Args() A                       { return r.args }

// ToolResponseWriterTyped adds a typed structuredContent slot.
type ToolResponseWriterTyped[O any] interface {
	ToolResponseWriter
	SetStructured(v O)
}

type typedWriter[O any] struct {
	ToolResponseWriter
	structured *O
}

func (w *typedWriter[O]) SetStructured(v O) { w.structured = &v }

type ToolOption func(*toolConfig)

type toolConfig struct {
	description string
	lenient     bool
}

func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties lets callers send fields the argument
// type does not declare. Tools reject them by default.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.lenient = allow }
}

func newToolConfig(opts []ToolOption) toolConfig {
	var cfg toolConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// NewTool builds a tool whose input schema is reflected from A. Arguments that
// fail to decode produce an error result rather than a Go error.
func NewTool[A any](name string, fn func(ctx context.Context, session sessions.Session, w ToolResponseWriter, r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := newToolConfig(opts)
	return StaticTool{
		Descriptor: mcp.Tool{
			Name:        name,
			Description: cfg.description,
			InputSchema: inputSchemaFor[A](cfg.lenient),
		},
		Handler: withArgs(cfg.lenient, func(ctx context.Context, s sessions.Session, r *ToolRequest[A]) (*mcp.CallToolResult, error) {
			w := newToolResponseWriter(ctx)
			if err := fn(ctx, s, w, r); err != nil {
				return nil, err
			}
			return w.Result(), nil
		}),
	}
}

// NewToolWithOutput is NewTool with an output schema reflected from O. The
// value passed to SetStructured must encode as a JSON object.
func NewToolWithOutput[A, O any](name string, fn func(ctx context.Context, session sessions.Session, w ToolResponseWriterTyped[O], r *ToolRequest[A]) error, opts ...ToolOption) StaticTool {
	cfg := newToolConfig(opts)
	out := outputSchemaFor[O]()
	return StaticTool{
		Descriptor: mcp.Tool{
			Name:         name,
			Description:  cfg.description,
			InputSchema:  inputSchemaFor[A](cfg.lenient),
			OutputSchema: &out,
		},
		Handler: withArgs(cfg.lenient, func(ctx context.Context, s sessions.Session, r *ToolRequest[A]) (*mcp.CallToolResult, error) {
			base := newToolResponseWriter(ctx)
			w := &typedWriter[O]{ToolResponseWriter: base}
			if err := fn(ctx, s, w, r); err != nil {
				return nil, err
			}
			res := base.Result()
			if w.structured == nil {
				return res, nil
			}
			obj, err := asObject(*w.structured)
			if err != nil {
				return nil, err
			}
			res.StructuredContent = obj
			return res, nil
		}),
	}
}

func withArgs[A any](lenient bool, next func(context.Context, sessions.Session, *ToolRequest[A]) (*mcp.CallToolResult, error)) ToolHandler {
	return func(ctx context.Context, s sessions.Session, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
		var args A
		if err := decodeArgs(req.Arguments, lenient, &args); err != nil {
			return Errorf("invalid arguments: %v", err), nil
		}
		return next(ctx, s, &ToolRequest[A]{name: req.Name, raw: req.Arguments, args: args})
	}
}

// decodeArgs treats absent and null arguments as the zero value.
func decodeArgs(raw json.RawMessage, lenient bool, dst any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if !lenient {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(dst)
}

func asObject(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal structured content: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("structured content must be an object: %w", err)
	}
	return m, nil
}

// TextResult is a successful result with one text block.
func TextResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: s}}}
}

// Errorf is an error result (isError=true) with one formatted text block.
func Errorf(format string, a ...any) *mcp.CallToolResult {
	res := TextResult(fmt.Sprintf(format, a...))
	res.IsError = true
	return res
}
