package mcpservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/ggoodman/mcp-sse-gateway/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSession struct{ id string }

func (s testSession) SessionID() string               { return s.id }
func (s testSession) ProtocolVersion() string         { return mcp.LatestProtocolVersion }
func (s testSession) ClientInfo() sessions.ClientInfo { return sessions.ClientInfo{Name: "test"} }

type greetArgs struct {
	Name string `json:"name" jsonschema:"description=Who to greet"`
}

func greetTool() StaticTool {
	return NewTool[greetArgs]("greet", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[greetArgs]) error {
		return w.AppendText("Hello, " + r.Args().Name + "!")
	}, WithToolDescription("Greet someone"))
}

func TestNewToolReflectsInputSchema(t *testing.T) {
	tool := greetTool()

	assert.Equal(t, "greet", tool.Descriptor.Name)
	assert.Equal(t, "Greet someone", tool.Descriptor.Description)
	assert.Equal(t, "object", tool.Descriptor.InputSchema.Type)
	assert.False(t, tool.Descriptor.InputSchema.AdditionalProperties)
	require.Contains(t, tool.Descriptor.InputSchema.Properties, "name")
	assert.Equal(t, "string", tool.Descriptor.InputSchema.Properties["name"].Type)
	assert.Equal(t, "Who to greet", tool.Descriptor.InputSchema.Properties["name"].Description)
	assert.Contains(t, tool.Descriptor.InputSchema.Required, "name")
}

func TestToolsContainerCall(t *testing.T) {
	c := NewToolsContainer(greetTool())
	ctx := context.Background()

	res, err := c.CallTool(ctx, testSession{id: "s1"}, &mcp.CallToolRequestReceived{
		Name:      "greet",
		Arguments: json.RawMessage(`{"name":"Ada"}`),
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "Hello, Ada!", res.Content[0].Text)
}

func TestToolsContainerRejectsUnknownFields(t *testing.T) {
	c := NewToolsContainer(greetTool())

	res, err := c.CallTool(context.Background(), testSession{}, &mcp.CallToolRequestReceived{
		Name:      "greet",
		Arguments: json.RawMessage(`{"name":"Ada","extra":true}`),
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "invalid arguments")
}

func TestToolsContainerAllowsUnknownFieldsWhenConfigured(t *testing.T) {
	tool := NewTool[greetArgs]("greet", func(ctx context.Context, s sessions.Session, w ToolResponseWriter, r *ToolRequest[greetArgs]) error {
		return w.AppendText(r.Args().Name)
	}, WithToolAllowAdditionalProperties(true))
	c := NewToolsContainer(tool)

	res, err := c.CallTool(context.Background(), testSession{}, &mcp.CallToolRequestReceived{
		Name:      "greet",
		Arguments: json.RawMessage(`{"name":"Ada","extra":true}`),
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.True(t, tool.Descriptor.InputSchema.AdditionalProperties)
}

func TestToolsContainerUnknownTool(t *testing.T) {
	c := NewToolsContainer(greetTool())

	_, err := c.CallTool(context.Background(), testSession{}, &mcp.CallToolRequestReceived{Name: "nope"})
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestToolsContainerPagination(t *testing.T) {
	var defs []StaticTool
	for i := 0; i < 5; i++ {
		defs = append(defs, StaticTool{Descriptor: mcp.Tool{Name: fmt.Sprintf("t%d", i), InputSchema: mcp.ToolInputSchema{Type: "object"}}})
	}
	c := NewToolsContainer(defs...)
	c.SetPageSize(2)
	ctx := context.Background()

	var names []string
	var cursor *string
	pages := 0
	for {
		page, err := c.ListTools(ctx, testSession{}, cursor)
		require.NoError(t, err)
		for _, tool := range page.Items {
			names = append(names, tool.Name)
		}
		pages++
		if page.NextCursor == nil {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"t0", "t1", "t2", "t3", "t4"}, names)

	bad := "garbage"
	page, err := c.ListTools(ctx, testSession{}, &bad)
	require.NoError(t, err)
	assert.Equal(t, "t0", page.Items[0].Name)
}

func TestToolsContainerAddRemoveNotifies(t *testing.T) {
	c := NewToolsContainer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notified := make(chan struct{}, 4)
	lc, ok, err := c.GetListChangedCapability(ctx, testSession{})
	require.NoError(t, err)
	require.True(t, ok)
	registered, err := lc.Register(ctx, testSession{}, func(context.Context, sessions.Session) {
		notified <- struct{}{}
	})
	require.NoError(t, err)
	require.True(t, registered)

	require.True(t, c.Add(ctx, greetTool()))
	require.False(t, c.Add(ctx, greetTool()))
	waitSignal(t, notified)

	require.True(t, c.Remove(ctx, "greet"))
	require.False(t, c.Remove(ctx, "greet"))
	waitSignal(t, notified)

	assert.Empty(t, c.Snapshot())
}

func TestChangeNotifierDropsSubscriptionOnCancel(t *testing.T) {
	var cn ChangeNotifier
	ctx, cancel := context.WithCancel(context.Background())
	ch := cn.Subscribe(ctx)
	require.Equal(t, 1, cn.Len())

	cancel()
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription channel not closed after cancel")
	}
	require.Equal(t, 0, cn.Len())
}

func TestNewToolWithOutputSetsStructuredContent(t *testing.T) {
	type out struct {
		Value string `json:"value"`
	}
	tool := NewToolWithOutput[struct{}, out]("produce", func(ctx context.Context, s sessions.Session, w ToolResponseWriterTyped[out], r *ToolRequest[struct{}]) error {
		w.SetStructured(out{Value: "hi"})
		return w.AppendText("hi")
	})
	require.NotNil(t, tool.Descriptor.OutputSchema)
	assert.Contains(t, tool.Descriptor.OutputSchema.Properties, "value")

	res, err := NewToolsContainer(tool).CallTool(context.Background(), testSession{}, &mcp.CallToolRequestReceived{Name: "produce"})
	require.NoError(t, err)
	assert.Equal(t, "hi", res.StructuredContent["value"])
}

func TestToolResponseWriterFinalize(t *testing.T) {
	w := newToolResponseWriter(context.Background())
	require.NoError(t, w.AppendText("a"))
	w.SetMeta("k", 1)
	res := w.Result()
	assert.Len(t, res.Content, 1)
	assert.Equal(t, 1, res.Meta["k"])
	assert.ErrorIs(t, w.AppendText("b"), ErrFinalized)

	empty := newToolResponseWriter(context.Background()).Result()
	b, err := json.Marshal(empty)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[]}`, string(b))
}

type recordingReporter struct{ calls [][2]float64 }

func (r *recordingReporter) Report(ctx context.Context, progress, total float64) error {
	r.calls = append(r.calls, [2]float64{progress, total})
	return nil
}

func TestToolResponseWriterProgress(t *testing.T) {
	rep := &recordingReporter{}
	w := newToolResponseWriter(WithProgressReporter(context.Background(), rep))
	require.NoError(t, w.SendProgress(1, 2))
	assert.Equal(t, [][2]float64{{1, 2}}, rep.calls)

	silent := newToolResponseWriter(context.Background())
	assert.NoError(t, silent.SendProgress(1, 2))
}

func TestSlogLevelVarLogging(t *testing.T) {
	var lv slog.LevelVar
	cap := NewSlogLevelVarLogging(&lv)

	require.NoError(t, cap.SetLevel(context.Background(), testSession{}, mcp.LoggingLevelDebug))
	assert.Equal(t, slog.LevelDebug, lv.Level())
	require.NoError(t, cap.SetLevel(context.Background(), testSession{}, mcp.LoggingLevelCritical))
	assert.Equal(t, slog.LevelError, lv.Level())
	assert.ErrorIs(t, cap.SetLevel(context.Background(), testSession{}, "loud"), ErrInvalidLoggingLevel)
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for list changed signal")
	}
}

func TestToolsContainerReplaceKeepsLastDuplicate(t *testing.T) {
	echo := func(text string) StaticTool {
		return StaticTool{
			Descriptor: mcp.Tool{Name: "say", Description: text},
			Handler: func(context.Context, sessions.Session, *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
				return TextResult(text), nil
			},
		}
	}
	c := NewToolsContainer(greetTool())
	sub := c.Subscribe(context.Background())

	c.Replace(context.Background(), echo("first"), echo("second"))
	waitSignal(t, sub)

	tools := c.Snapshot()
	require.Len(t, tools, 1)
	assert.Equal(t, "second", tools[0].Description)

	res, err := c.CallTool(context.Background(), testSession{}, &mcp.CallToolRequestReceived{Name: "say"})
	require.NoError(t, err)
	assert.Equal(t, "second", res.Content[0].Text)

	_, err = c.CallTool(context.Background(), testSession{}, &mcp.CallToolRequestReceived{Name: "greet"})
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestChangeNotifierClose(t *testing.T) {
	var cn ChangeNotifier
	ch := cn.Subscribe(context.Background())
	cn.Close()
	cn.Close()

	_, ok := <-ch
	assert.False(t, ok)
	_, ok = <-cn.Subscribe(context.Background())
	assert.False(t, ok)
	assert.NoError(t, cn.Notify(context.Background()))
}
