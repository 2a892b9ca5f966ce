package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eapache/queue"
	"github.com/ggoodman/mcp-sse-gateway/internal/logctx"
	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/ggoodman/mcp-sse-gateway/mcpservice"
)

var (
	// ErrSessionClosed is returned by Session.Deliver once the session has
	// been torn down.
	ErrSessionClosed = errors.New("session closed")

	errCancelledByClient = errors.New("cancelled by client")
)

// Engine is the MCP protocol core. It is transport-agnostic: each client
// connection is bound to the engine with Attach and receives its own Session
// with a private mailbox and worker.
type Engine struct {
	srv            mcpservice.ServerCapabilities
	log            *slog.Logger
	requestTimeout time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithRequestTimeout bounds the run time of each concurrent request
// (tools/list, tools/call, logging/setLevel). Zero disables the bound.
func WithRequestTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.requestTimeout = d
		}
	}
}

func NewEngine(srv mcpservice.ServerCapabilities, opts ...EngineOption) *Engine {
	e := &Engine{
		srv: srv,
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.log = logctx.Wrap(e.log)
	return e
}

// Attach binds a new engine session to t and starts its worker. The session
// outlives ctx: only Close ends it. Values carried by ctx (log attributes) are
// inherited.
func (e *Engine) Attach(ctx context.Context, t Transport) (*Session, error) {
	if t == nil {
		return nil, fmt.Errorf("engine: nil transport")
	}
	id := t.SessionID()
	if id == "" {
		return nil, fmt.Errorf("engine: transport has no session id")
	}

	sessCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	s := &Session{
		id:        id,
		eng:       e,
		transport: t,
		ctx:       sessCtx,
		cancel:    cancel,
		inbox:     queue.New(),
		signal:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		inflight:  make(map[string]context.CancelCauseFunc),
	}

	go s.run()

	e.log.InfoContext(s.logContext(sessCtx), "engine.session.attach")
	return s, nil
}

// preferredVersion resolves the protocol version for an initialize request.
func (e *Engine) preferredVersion(ctx context.Context, requested string) (string, error) {
	v, ok, err := e.srv.GetPreferredProtocolVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("get preferred protocol version: %w", err)
	}
	if ok && v != "" {
		return v, nil
	}
	return mcp.NegotiateProtocolVersion(requested), nil
}
