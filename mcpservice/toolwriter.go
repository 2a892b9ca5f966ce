package mcpservice

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/ggoodman/mcp-sse-gateway/mcp"
)

// ErrFinalized is returned by writes that follow Result.
var ErrFinalized = errors.New("result already finalized")

// ToolResponseWriter accumulates a CallToolResult for one tool call. It may be
// shared by goroutines serving the same call. Once the call's context ends,
// appends fail with the context error.
type ToolResponseWriter interface {
	AppendText(text string) error
	AppendBlocks(blocks ...mcp.ContentBlock) error
	SetError(isError bool)
	SetMeta(key string, v any)
	// SendProgress is a no-op unless the client asked for progress.
	SendProgress(progress, total float64) error
	// Result seals the writer and returns a copy of what was written.
	Result() *mcp.CallToolResult
}

var _ ToolResponseWriter = (*toolResponseWriter)(nil)

type toolResponseWriter struct {
	ctx context.Context

	mu     sync.Mutex
	sealed bool
	res    mcp.CallToolResult
}

func newToolResponseWriter(ctx context.Context) *toolResponseWriter {
	return &toolResponseWriter{ctx: ctx}
}

func (w *toolResponseWriter) AppendText(text string) error {
	if text == "" {
		return nil
	}
	return w.AppendBlocks(mcp.ContentBlock{Type: "text", Text: text})
}

func (w *toolResponseWriter) AppendBlocks(blocks ...mcp.ContentBlock) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	return w.update(func(r *mcp.CallToolResult) { r.Content = append(r.Content, blocks...) })
}

func (w *toolResponseWriter) SetError(isError bool) {
	_ = w.update(func(r *mcp.CallToolResult) { r.IsError = isError })
}

func (w *toolResponseWriter) SetMeta(key string, v any) {
	if key == "" {
		return
	}
	_ = w.update(func(r *mcp.CallToolResult) {
		if r.Meta == nil {
			r.Meta = make(map[string]any)
		}
		r.Meta[key] = v
	})
}

func (w *toolResponseWriter) update(fn func(*mcp.CallToolResult)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return ErrFinalized
	}
	fn(&w.res)
	return nil
}

func (w *toolResponseWriter) SendProgress(progress, total float64) error {
	return ReportProgress(w.ctx, progress, total)
}

func (w *toolResponseWriter) Result() *mcp.CallToolResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sealed = true
	out := w.res
	out.Content = slices.Clone(w.res.Content)
	if out.Content == nil {
		out.Content = []mcp.ContentBlock{}
	}
	out.Meta = maps.Clone(w.res.Meta)
	return &out
}
