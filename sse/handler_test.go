package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggoodman/mcp-sse-gateway/examples/greeter"
	"github.com/ggoodman/mcp-sse-gateway/internal/jsonrpc"
	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	event string
	data  []byte
}

// fakeEngine hands every channel a recordingInbound and counts calls.
type fakeEngine struct {
	attaches atomic.Int32
	mu       sync.Mutex
	inbounds map[string]*recordingInbound
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{inbounds: make(map[string]*recordingInbound)}
}

func (e *fakeEngine) Attach(ctx context.Context, ch *Channel) (Inbound, error) {
	e.attaches.Add(1)
	in := &recordingInbound{}
	e.mu.Lock()
	e.inbounds[ch.SessionID()] = in
	e.mu.Unlock()
	return in, nil
}

func (e *fakeEngine) inbound(id string) *recordingInbound {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inbounds[id]
}

func (e *fakeEngine) delivered() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, in := range e.inbounds {
		n += in.delivered()
	}
	return n
}

type stream struct {
	resp   *http.Response
	br     *bufio.Reader
	id     string
	cancel context.CancelFunc
}

func (s *stream) next(t *testing.T) sseEvent {
	t.Helper()
	type result struct {
		evt sseEvent
		err error
	}
	done := make(chan result, 1)
	go func() {
		evt, err := readOneSSE(s.br)
		done <- result{evt, err}
	}()
	select {
	case r := <-done:
		require.NoError(t, r.err)
		return r.evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for SSE event")
		return sseEvent{}
	}
}

func openStream(t *testing.T, srv *httptest.Server) *stream {
	t.Helper()
	s, err := dialStream(srv)
	require.NoError(t, err)
	t.Cleanup(s.close)
	return s
}

// dialStream opens a stream and consumes its endpoint frame. It does not
// touch t so it can run on any goroutine.
func dialStream(srv *httptest.Server) (*stream, error) {
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+DefaultSSEPath, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := srv.Client().Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	s := &stream{resp: resp, br: bufio.NewReader(resp.Body), cancel: cancel}
	if resp.StatusCode != http.StatusOK {
		s.close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		s.close()
		return nil, fmt.Errorf("unexpected content type %q", ct)
	}

	evt, err := readOneSSE(s.br)
	if err != nil {
		s.close()
		return nil, err
	}
	if evt.event != "endpoint" {
		s.close()
		return nil, fmt.Errorf("first event %q, want endpoint", evt.event)
	}
	u, err := url.Parse(string(evt.data))
	if err != nil {
		s.close()
		return nil, err
	}
	if u.Path != DefaultMessagesPath {
		s.close()
		return nil, fmt.Errorf("endpoint path %q", u.Path)
	}
	s.id = u.Query().Get("sessionId")
	if s.id == "" {
		s.close()
		return nil, errors.New("endpoint carries no sessionId")
	}
	return s, nil
}

func (s *stream) close() {
	s.cancel()
	s.resp.Body.Close()
}

func postMessage(t *testing.T, srv *httptest.Server, query string, body []byte) (int, string) {
	t.Helper()
	target := srv.URL + DefaultMessagesPath
	if query != "" {
		target += "?" + query
	}
	resp, err := srv.Client().Post(target, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func postTo(t *testing.T, srv *httptest.Server, id string, body []byte) (int, string) {
	t.Helper()
	return postMessage(t, srv, "sessionId="+url.QueryEscape(id), body)
}

func newFakeServer(t *testing.T, opts ...Option) (*httptest.Server, *Handler, *fakeEngine) {
	t.Helper()
	eng := newFakeEngine()
	opts = append([]Option{WithLogger(slog.New(testLogHandler(t)))}, opts...)
	h := NewWithEngine(eng, opts...)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		_ = h.Shutdown(context.Background())
		srv.Close()
	})
	return srv, h, eng
}

var pingBody = []byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)

func TestStreamOpenRegistersSession(t *testing.T) {
	srv, h, eng := newFakeServer(t)

	s := openStream(t, srv)

	assert.Equal(t, 1, h.SessionCount())
	assert.EqualValues(t, 1, eng.attaches.Load())
	ch, err := h.Lookup(s.id)
	require.NoError(t, err)
	assert.Equal(t, s.id, ch.SessionID())
}

func TestStreamOpenRejectsNonStreamingAccept(t *testing.T) {
	srv, h, eng := newFakeServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+DefaultSSEPath, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	assert.Zero(t, h.SessionCount())
	assert.Zero(t, eng.attaches.Load())
}

func TestConcurrentStreamOpensGetDistinctIDs(t *testing.T) {
	srv, h, _ := newFakeServer(t)
	const n = 16

	streams := make([]*stream, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			streams[i], errs[i] = dialStream(srv)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	ids := make([]string, 0, n)
	for _, s := range streams {
		t.Cleanup(s.close)
		ids = append(ids, s.id)
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, h.SessionCount())
}

func TestPostWithoutSessionID(t *testing.T) {
	srv, h, eng := newFakeServer(t)
	openStream(t, srv)

	for _, query := range []string{"", "sessionId="} {
		status, body := postMessage(t, srv, query, pingBody)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body, ErrMissingSessionID.Error())
	}
	assert.Zero(t, eng.delivered())
	assert.Equal(t, 1, h.SessionCount())
}

func TestPostUnknownSession(t *testing.T) {
	srv, _, eng := newFakeServer(t)

	status, body := postTo(t, srv, "00000000-0000-4000-8000-000000000000", pingBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, ErrUnknownSession.Error())
	assert.Zero(t, eng.delivered())
}

func TestPostAccepted(t *testing.T) {
	srv, _, eng := newFakeServer(t)
	s := openStream(t, srv)

	status, body := postTo(t, srv, s.id, pingBody)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "Accepted", body)
	assert.Equal(t, 1, eng.inbound(s.id).delivered())
}

func TestPostSessionIDHeaderFallback(t *testing.T) {
	srv, _, eng := newFakeServer(t)
	s := openStream(t, srv)

	req, err := http.NewRequest(http.MethodPost, srv.URL+DefaultMessagesPath, bytes.NewReader(pingBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Mcp-Session-Id", s.id)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, eng.inbound(s.id).delivered())
}

func TestPostRejections(t *testing.T) {
	srv, _, eng := newFakeServer(t, WithMaxMessageBytes(64))
	s := openStream(t, srv)

	t.Run("content type", func(t *testing.T) {
		resp, err := srv.Client().Post(srv.URL+DefaultMessagesPath+"?sessionId="+s.id, "text/plain", bytes.NewReader(pingBody))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
	})

	t.Run("too large", func(t *testing.T) {
		big := []byte(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", 128) + `"}}`)
		status, _ := postTo(t, srv, s.id, big)
		assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	})

	t.Run("invalid message", func(t *testing.T) {
		status, body := postTo(t, srv, s.id, []byte(`{"hello":`))
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Contains(t, body, ErrInvalidMessage.Error())
	})

	t.Run("batch", func(t *testing.T) {
		status, _ := postTo(t, srv, s.id, []byte(`[`+string(pingBody)+`]`))
		assert.Equal(t, http.StatusBadRequest, status)
	})

	assert.Zero(t, eng.delivered())
}

func TestPostAfterDisconnect(t *testing.T) {
	srv, h, eng := newFakeServer(t)
	s := openStream(t, srv)
	in := eng.inbound(s.id)

	s.cancel()
	require.Eventually(t, func() bool { return h.SessionCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	status, body := postTo(t, srv, s.id, pingBody)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, ErrUnknownSession.Error())
	assert.Equal(t, 1, in.closeCount())
	assert.Zero(t, in.delivered())
}

func TestShutdownClosesStreams(t *testing.T) {
	srv, h, eng := newFakeServer(t)
	a := openStream(t, srv)
	b := openStream(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	assert.Zero(t, h.SessionCount())
	assert.Equal(t, 1, eng.inbound(a.id).closeCount())
	assert.Equal(t, 1, eng.inbound(b.id).closeCount())

	_, _ = io.ReadAll(a.br)
	req, err := http.NewRequest(http.MethodGet, srv.URL+DefaultSSEPath, nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCustomPaths(t *testing.T) {
	h := NewWithEngine(newFakeEngine(), WithSSEPath("/events"), WithMessagesPath("/rpc"))
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Shutdown(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	evt, err := readOneSSE(bufio.NewReader(resp.Body))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(evt.data), "/rpc?sessionId="), string(evt.data))
}

func TestGreetOverStream(t *testing.T) {
	h := New(greeter.New(greeter.Options{}))
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		_ = h.Shutdown(context.Background())
		srv.Close()
	})
	s := openStream(t, srv)

	status, _ := postTo(t, srv, s.id, mustRequest(t, 1, mcp.InitializeMethod, mcp.InitializeRequest{
		ProtocolVersion: "2024-11-05",
		ClientInfo:      mcp.ImplementationInfo{Name: "test-client", Version: "1.0.0"},
	}))
	require.Equal(t, http.StatusAccepted, status)

	evt := s.next(t)
	require.Equal(t, "message", evt.event)
	var res jsonrpc.Response
	mustUnmarshalJSON(t, evt.data, &res)
	require.Nil(t, res.Error)
	var initRes mcp.InitializeResult
	mustUnmarshalJSON(t, res.Result, &initRes)
	assert.Equal(t, "2024-11-05", initRes.ProtocolVersion)
	assert.Equal(t, "example-server", initRes.ServerInfo.Name)

	status, _ = postTo(t, srv, s.id, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.Equal(t, http.StatusAccepted, status)

	status, _ = postTo(t, srv, s.id, mustRequest(t, 2, mcp.ToolsCallMethod, map[string]any{
		"name":      "greet",
		"arguments": map[string]any{"name": "Ada"},
	}))
	require.Equal(t, http.StatusAccepted, status)

	evt = s.next(t)
	require.Equal(t, "message", evt.event)
	mustUnmarshalJSON(t, evt.data, &res)
	require.Nil(t, res.Error)
	assert.Equal(t, "2", res.ID.String())
	var call mcp.CallToolResult
	mustUnmarshalJSON(t, res.Result, &call)
	require.Len(t, call.Content, 1)
	assert.Equal(t, "Hello, Ada!", call.Content[0].Text)
}

func mustRequest(t *testing.T, id int, method mcp.Method, params any) []byte {
	t.Helper()
	p, err := json.Marshal(params)
	require.NoError(t, err)
	b, err := json.Marshal(&jsonrpc.Request{
		JSONRPCVersion: jsonrpc.ProtocolVersion,
		Method:         string(method),
		Params:         p,
		ID:             jsonrpc.NewRequestID(id),
	})
	require.NoError(t, err)
	return b
}

func readOneSSE(br *bufio.Reader) (sseEvent, error) {
	var (
		event   sseEvent
		dataBuf bytes.Buffer
		hasData bool
	)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return sseEvent{}, io.ErrUnexpectedEOF
			}
			return sseEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if !hasData && event.event == "" {
				continue
			}
			event.data = append([]byte(nil), dataBuf.Bytes()...)
			return event, nil
		}
		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			event.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if hasData {
				dataBuf.WriteByte('\n')
			}
			hasData = true
			dataBuf.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}
}

func mustUnmarshalJSON[T any](t *testing.T, data []byte, v *T) {
	t.Helper()
	require.NoError(t, json.Unmarshal(data, v), "input: %s", string(data))
}

// logBridge is an implementation of slog.Handler that works
// with the stdlib testing pkg.
type logBridge struct {
	slog.Handler
	t   testing.TB
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (b *logBridge) Handle(ctx context.Context, rec slog.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.Handler.Handle(ctx, rec); err != nil {
		return err
	}
	output, err := io.ReadAll(b.buf)
	if err != nil {
		return err
	}
	b.t.Helper()
	b.t.Log(string(bytes.TrimSuffix(output, []byte("\n"))))
	return nil
}

func (b *logBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logBridge{t: b.t, buf: b.buf, mu: b.mu, Handler: b.Handler.WithAttrs(attrs)}
}

func (b *logBridge) WithGroup(name string) slog.Handler {
	return &logBridge{t: b.t, buf: b.buf, mu: b.mu, Handler: b.Handler.WithGroup(name)}
}

func testLogHandler(t *testing.T) *logBridge {
	b := &logBridge{t: t, buf: &bytes.Buffer{}, mu: &sync.Mutex{}}
	b.Handler = slog.NewTextHandler(b.buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return b
}
