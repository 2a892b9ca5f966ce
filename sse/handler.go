package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-sse-gateway/internal/engine"
	"github.com/ggoodman/mcp-sse-gateway/internal/logctx"
	"github.com/ggoodman/mcp-sse-gateway/mcpservice"
	"github.com/ggoodman/mcp-sse-gateway/sessions"
	"github.com/google/uuid"
)

const (
	DefaultSSEPath         = "/sse"
	DefaultMessagesPath    = "/messages"
	DefaultMaxMessageBytes = 4 << 20

	sessionIDQueryParam = "sessionId"
	sessionIDHeader     = "Mcp-Session-Id"
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaTypes = []contenttype.MediaType{contenttype.NewMediaType("text/event-stream")}
)

var _ http.Handler = (*Handler)(nil)

// Engine binds a freshly opened channel to a protocol session.
type Engine interface {
	Attach(ctx context.Context, ch *Channel) (Inbound, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, ch *Channel) (Inbound, error)

func (f EngineFunc) Attach(ctx context.Context, ch *Channel) (Inbound, error) { return f(ctx, ch) }

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Option configures the Handler.
type Option func(*config)

type config struct {
	log             *slog.Logger
	ssePath         string
	messagesPath    string
	maxMessageBytes int64
	writeTimeout    time.Duration
	keepAlive       time.Duration
	requestTimeout  time.Duration
	registryOpts    []sessions.RegistryOption
}

// WithLogger sets the logger for the handler and, via New, the engine.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// WithSSEPath sets the path of the stream-open endpoint. Default "/sse".
func WithSSEPath(p string) Option {
	return func(c *config) {
		if p != "" {
			c.ssePath = p
		}
	}
}

// WithMessagesPath sets the path of the message-push endpoint and of the
// endpoint announced to clients. Default "/messages".
func WithMessagesPath(p string) Option {
	return func(c *config) {
		if p != "" {
			c.messagesPath = p
		}
	}
}

// WithMaxMessageBytes caps the size of a pushed message body.
func WithMaxMessageBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxMessageBytes = n
		}
	}
}

// WithStreamWriteTimeout bounds each frame written to a stream.
func WithStreamWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.writeTimeout = d
		}
	}
}

// WithStreamKeepAlive enables keep-alive comment frames on every stream.
func WithStreamKeepAlive(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.keepAlive = d
		}
	}
}

// WithRequestTimeout bounds each engine request when the handler builds its
// own engine through New.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.requestTimeout = d
		}
	}
}

// WithRegistryOptions tunes the session registry.
func WithRegistryOptions(opts ...sessions.RegistryOption) Option {
	return func(c *config) { c.registryOpts = append(c.registryOpts, opts...) }
}

// Handler serves the two endpoints of the HTTP+SSE transport: a GET that
// opens a stream and a POST that pushes one message into a session.
type Handler struct {
	mux      *http.ServeMux
	log      *slog.Logger
	eng      Engine
	registry *sessions.Registry[*Channel]
	cfg      config
	closing  atomic.Bool
}

// New builds a Handler that serves server over an engine owned by the handler.
func New(server mcpservice.ServerCapabilities, opts ...Option) *Handler {
	cfg := resolve(opts)
	eng := engine.NewEngine(server,
		engine.WithLogger(cfg.log),
		engine.WithRequestTimeout(cfg.requestTimeout),
	)
	return newHandler(EngineFunc(func(ctx context.Context, ch *Channel) (Inbound, error) {
		s, err := eng.Attach(ctx, ch)
		if err != nil {
			return nil, err
		}
		return s, nil
	}), cfg)
}

// NewWithEngine builds a Handler over a caller-supplied Engine.
func NewWithEngine(eng Engine, opts ...Option) *Handler {
	return newHandler(eng, resolve(opts))
}

func resolve(opts []Option) config {
	cfg := config{
		ssePath:         DefaultSSEPath,
		messagesPath:    DefaultMessagesPath,
		maxMessageBytes: DefaultMaxMessageBytes,
		writeTimeout:    defaultWriteTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.log = logctx.Wrap(cfg.log)
	return cfg
}

func newHandler(eng Engine, cfg config) *Handler {
	h := &Handler{
		mux:      http.NewServeMux(),
		log:      cfg.log,
		eng:      eng,
		registry: sessions.NewRegistry[*Channel](cfg.registryOpts...),
		cfg:      cfg,
	}
	h.mux.HandleFunc(fmt.Sprintf("GET %s", cfg.ssePath), h.handleStream)
	h.mux.HandleFunc(fmt.Sprintf("POST %s", cfg.messagesPath), h.handleMessage)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequestData(r.Context(), &logctx.RequestData{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// SessionCount reports the number of open streams.
func (h *Handler) SessionCount() int { return h.registry.Len() }

// Lookup returns the open channel for id.
func (h *Handler) Lookup(id string) (*Channel, error) { return h.registry.Lookup(id) }

// Shutdown refuses new streams, closes every open channel with
// ErrServerShutdown and waits for their teardown or for ctx to end.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.closing.Store(true)
	var open []*Channel
	h.registry.Range(func(_ string, ch *Channel) bool {
		open = append(open, ch)
		return true
	})
	for _, ch := range open {
		ch.Close(ErrServerShutdown)
	}
	for _, ch := range open {
		select {
		case <-ch.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.log.InfoContext(ctx, "sse.shutdown", slog.Int("closed", len(open)))
	return nil
}

func (h *Handler) endpointFor(id string) string {
	return h.cfg.messagesPath + "?" + sessionIDQueryParam + "=" + url.QueryEscape(id)
}

// handleStream opens an event stream, registers it as a new session and
// holds the response open until the channel closes.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if h.closing.Load() {
		writeJSONError(w, http.StatusServiceUnavailable, ErrServerShutdown.Error())
		return
	}
	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeJSONError(w, http.StatusUnsupportedMediaType, "client must accept text/event-stream")
		h.log.WarnContext(ctx, "accept.unsupported")
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		h.log.ErrorContext(ctx, "flusher.missing")
		return
	}

	ch := newChannel(w,
		withChannelLogger(h.log),
		WithWriteTimeout(h.cfg.writeTimeout),
		WithKeepAliveInterval(h.cfg.keepAlive),
	)
	if err := ch.open(); err != nil {
		h.log.WarnContext(ctx, "sse.stream.open_fail", slog.String("err", err.Error()))
		return
	}

	id := h.registry.Create(ch)
	ch.setID(id)
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id})

	ch.OnClosed(func(cause error) {
		h.registry.Remove(id)
		if in := ch.inbound(); in != nil {
			in.Close()
		}
		h.log.InfoContext(ctx, "sse.session.close", slog.String("cause", cause.Error()))
	})

	in, err := h.eng.Attach(ctx, ch)
	if err != nil {
		h.log.ErrorContext(ctx, "sse.session.attach_fail", slog.String("err", err.Error()))
		ch.Close(err)
		return
	}
	ch.bind(in)

	if err := ch.sendEndpoint(h.endpointFor(id)); err != nil {
		h.log.WarnContext(ctx, "sse.endpoint.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.start")

	select {
	case <-ch.Done():
	case <-ctx.Done():
		ch.Close(ErrClientDisconnected)
	}
	h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
}

// handleMessage accepts one JSON-RPC message for an open session. The reply,
// if any, travels on the session's stream.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	id := r.URL.Query().Get(sessionIDQueryParam)
	if id == "" {
		id = r.Header.Get(sessionIDHeader)
	}
	if id == "" {
		writeJSONError(w, http.StatusBadRequest, ErrMissingSessionID.Error())
		h.log.InfoContext(ctx, "http.post.missing_session")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: id})

	ch, err := h.registry.Lookup(id)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, ErrUnknownSession.Error())
		h.log.InfoContext(ctx, "http.post.unknown_session")
		return
	}

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.maxMessageBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "message too large")
			h.log.WarnContext(ctx, "http.post.too_large", slog.Int64("limit", tooLarge.Limit))
			return
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		h.log.WarnContext(ctx, "http.post.read_fail", slog.String("err", err.Error()))
		return
	}

	if err := ch.HandleInbound(ctx, body); err != nil {
		switch {
		case errors.Is(err, ErrInvalidMessage):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrUnknownSession):
			writeJSONError(w, http.StatusBadRequest, ErrUnknownSession.Error())
		default:
			writeJSONError(w, http.StatusInternalServerError, "internal error")
		}
		h.log.WarnContext(ctx, "http.post.fail", slog.String("err", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")
	h.log.InfoContext(ctx, "http.post.ok", slog.Duration("dur", time.Since(start)))
}
