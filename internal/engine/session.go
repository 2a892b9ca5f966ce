package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/ggoodman/mcp-sse-gateway/internal/jsonrpc"
	"github.com/ggoodman/mcp-sse-gateway/internal/logctx"
	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/ggoodman/mcp-sse-gateway/mcpservice"
	"github.com/ggoodman/mcp-sse-gateway/sessions"
)

var _ sessions.Session = (*Session)(nil)

// Session is one client's protocol state. Inbound messages are queued by
// Deliver and consumed in order by a single worker goroutine; requests other
// than initialize and ping are then executed concurrently.
type Session struct {
	id        string
	eng       *Engine
	transport Transport

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu     sync.Mutex
	inbox  *queue.Queue
	closed bool
	signal chan struct{}
	done   chan struct{}

	closeOnce sync.Once

	stateMu         sync.RWMutex
	initialized     bool
	ready           bool
	protocolVersion string
	clientInfo      sessions.ClientInfo
	logLevel        mcp.LoggingLevel

	inflightMu sync.Mutex
	inflight   map[string]context.CancelCauseFunc
	wg         sync.WaitGroup
}

func (s *Session) SessionID() string { return s.id }

func (s *Session) ProtocolVersion() string {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.protocolVersion
}

func (s *Session) ClientInfo() sessions.ClientInfo {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.clientInfo
}

// Ready reports whether the client has sent notifications/initialized.
func (s *Session) Ready() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.ready
}

func (s *Session) clientLogLevel() mcp.LoggingLevel {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.logLevel == "" {
		return defaultClientLogLevel
	}
	return s.logLevel
}

// Deliver enqueues msg for processing and returns without waiting for it to be
// handled. Responses are written to the session's transport.
func (s *Session) Deliver(ctx context.Context, msg *jsonrpc.AnyMessage) error {
	if msg == nil {
		return jsonrpc.ErrInvalidMessage
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.inbox.Add(msg)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return nil
}

// Close tears the session down: queued messages are dropped, in-flight
// requests are cancelled and the worker exits. It is idempotent and does not
// block on the worker, so it is safe to call from a transport callback.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel(ErrSessionClosed)
		s.eng.log.InfoContext(s.logContext(s.ctx), "engine.session.close")
	})
}

// Done is closed once the worker has exited and every in-flight request has
// returned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) run() {
	defer func() {
		s.wg.Wait()
		close(s.done)
	}()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.signal:
		}
		for {
			msg, ok := s.next()
			if !ok {
				break
			}
			s.process(msg)
			if s.ctx.Err() != nil {
				return
			}
		}
	}
}

func (s *Session) next() (*jsonrpc.AnyMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.inbox.Length() == 0 {
		return nil, false
	}
	return s.inbox.Remove().(*jsonrpc.AnyMessage), true
}

func (s *Session) logContext(ctx context.Context) context.Context {
	s.stateMu.RLock()
	sd := &logctx.SessionData{
		SessionID:       s.id,
		ProtocolVersion: s.protocolVersion,
		ClientName:      s.clientInfo.Name,
	}
	s.stateMu.RUnlock()
	return logctx.WithSessionData(ctx, sd)
}

func (s *Session) process(msg *jsonrpc.AnyMessage) {
	ctx := logctx.WithRPCMessage(s.logContext(s.ctx), &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   msg.Kind().String(),
	})
	log := s.eng.log

	switch msg.Kind() {
	case jsonrpc.KindResponse:
		// No server-initiated requests are issued, so nothing awaits this.
		log.InfoContext(ctx, "engine.client_response.ignored")
	case jsonrpc.KindNotification:
		s.handleNotification(ctx, msg.AsRequest())
	case jsonrpc.KindRequest:
		s.handleRequest(ctx, msg.AsRequest())
	}
}

func (s *Session) handleRequest(ctx context.Context, req *jsonrpc.Request) {
	switch req.Method {
	case string(mcp.InitializeMethod):
		s.reply(ctx, s.handleInitialize(ctx, req))
		return
	case string(mcp.PingMethod):
		res, err := jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
		if err != nil {
			res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
		}
		s.reply(ctx, res)
		return
	}

	s.stateMu.RLock()
	initialized := s.initialized
	s.stateMu.RUnlock()
	if !initialized {
		s.eng.log.WarnContext(ctx, "engine.handle_request.uninitialized")
		s.reply(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session not initialized", nil))
		return
	}

	reqID := req.ID.String()
	reqCtx, cancel := context.WithCancelCause(ctx)
	s.inflightMu.Lock()
	if _, exists := s.inflight[reqID]; exists {
		s.inflightMu.Unlock()
		cancel(nil)
		s.eng.log.WarnContext(ctx, "engine.handle_request.duplicate_id")
		s.reply(ctx, jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "duplicate request id", nil))
		return
	}
	s.inflight[reqID] = cancel
	s.inflightMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.inflightMu.Lock()
			delete(s.inflight, reqID)
			s.inflightMu.Unlock()
			cancel(nil)
		}()

		runCtx := reqCtx
		if d := s.eng.requestTimeout; d > 0 {
			var stop context.CancelFunc
			runCtx, stop = context.WithTimeout(reqCtx, d)
			defer stop()
		}
		if token, ok := progressToken(req.Params); ok {
			runCtx = mcpservice.WithProgressReporter(runCtx, &progressReporter{session: s, token: token})
		}
		runCtx = mcpservice.WithClientLogger(runCtx, clientLogger{session: s})

		res := s.dispatch(runCtx, req)
		if errors.Is(context.Cause(reqCtx), errCancelledByClient) {
			s.eng.log.InfoContext(ctx, "engine.handle_request.cancelled")
			return
		}
		s.reply(ctx, res)
	}()
}

func (s *Session) dispatch(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case string(mcp.ToolsListMethod):
		return s.handleToolsList(ctx, req)
	case string(mcp.ToolsCallMethod):
		return s.handleToolCall(ctx, req)
	case string(mcp.LoggingSetLevelMethod):
		return s.handleSetLoggingLevel(ctx, req)
	}
	s.eng.log.InfoContext(ctx, "engine.handle_request.unknown_method")
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found", nil)
}

func (s *Session) handleNotification(ctx context.Context, note *jsonrpc.Request) {
	log := s.eng.log
	switch note.Method {
	case string(mcp.InitializedNotificationMethod):
		s.stateMu.Lock()
		s.ready = true
		s.stateMu.Unlock()
		log.InfoContext(ctx, "engine.session.initialized")
	case string(mcp.CancelledNotificationMethod):
		var params mcp.CancelledNotification
		if err := json.Unmarshal(note.Params, &params); err != nil {
			log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return
		}
		var id jsonrpc.RequestID
		if err := json.Unmarshal(params.RequestID, &id); err != nil {
			log.InfoContext(ctx, "engine.handle_notification.invalid", slog.String("err", err.Error()))
			return
		}
		found := s.cancelInFlight(id.String())
		log.InfoContext(ctx, "engine.request.cancel", slog.String("request_id", id.String()), slog.Bool("found", found), slog.String("reason", params.Reason))
	default:
		log.InfoContext(ctx, "engine.handle_notification.ignored")
	}
}

func (s *Session) cancelInFlight(reqID string) bool {
	if reqID == "" {
		return false
	}
	s.inflightMu.Lock()
	cancel, ok := s.inflight[reqID]
	s.inflightMu.Unlock()
	if ok {
		cancel(errCancelledByClient)
	}
	return ok
}

// reply writes res to the transport. Failures are logged only: the transport
// tears itself down on a failed write.
func (s *Session) reply(ctx context.Context, res *jsonrpc.Response) {
	if res == nil {
		return
	}
	s.send(ctx, res)
}

func (s *Session) send(ctx context.Context, v any) {
	start := time.Now()
	msg, err := jsonrpc.Encode(v)
	if err != nil {
		s.eng.log.ErrorContext(ctx, "engine.send.encode_fail", slog.String("err", err.Error()))
		return
	}
	if err := s.transport.Send(s.ctx, msg); err != nil {
		s.eng.log.WarnContext(ctx, "engine.send.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	}
}

// notify sends a server notification to the client.
func (s *Session) notify(ctx context.Context, method mcp.Method, params any) error {
	n, err := jsonrpc.NewNotification(string(method), params)
	if err != nil {
		return err
	}
	msg, err := jsonrpc.Encode(n)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, msg)
}

// progressToken extracts params._meta.progressToken if present.
func progressToken(params json.RawMessage) (mcp.ProgressToken, bool) {
	if len(params) == 0 {
		return nil, false
	}
	var p struct {
		Meta *mcp.RequestMeta `json:"_meta"`
	}
	if err := json.Unmarshal(params, &p); err != nil || p.Meta == nil || p.Meta.ProgressToken == nil {
		return nil, false
	}
	return p.Meta.ProgressToken, true
}
