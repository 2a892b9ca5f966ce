package sse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-sse-gateway/internal/engine"
	"github.com/ggoodman/mcp-sse-gateway/internal/jsonrpc"
)

const defaultWriteTimeout = 10 * time.Second

var _ engine.Transport = (*Channel)(nil)

// Inbound is the engine-side half of a session: the sink for messages the
// client pushes.
type Inbound interface {
	Deliver(ctx context.Context, msg *jsonrpc.AnyMessage) error
	Close()
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithWriteTimeout bounds each frame write. Zero disables the bound.
func WithWriteTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d >= 0 {
			c.writeTimeout = d
		}
	}
}

// WithKeepAliveInterval emits a comment frame at the given interval while the
// stream is idle. Zero disables keep-alives.
func WithKeepAliveInterval(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d >= 0 {
			c.keepAlive = d
		}
	}
}

func withChannelLogger(l *slog.Logger) ChannelOption {
	return func(c *Channel) {
		if l != nil {
			c.log = l
		}
	}
}

// Channel is the server side of one open event stream. It frames outbound
// messages as SSE events and hands inbound pushes to the engine session bound
// to it.
type Channel struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	log          *slog.Logger
	writeTimeout time.Duration
	keepAlive    time.Duration

	closing atomic.Bool

	writeMu sync.Mutex
	sealed  bool

	stateMu  sync.Mutex
	id       string
	inbox    Inbound
	onClosed func(error)
	fired    bool
	cause    error

	closeOnce sync.Once
	done      chan struct{}
}

func newChannel(w http.ResponseWriter, opts ...ChannelOption) *Channel {
	c := &Channel{
		w:            w,
		rc:           http.NewResponseController(w),
		log:          slog.New(slog.DiscardHandler),
		writeTimeout: defaultWriteTimeout,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// open commits the response as an event stream.
func (c *Channel) open() error {
	h := c.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.w.WriteHeader(http.StatusOK)
	if err := c.rc.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamWrite, err)
	}
	if c.keepAlive > 0 {
		go c.keepAliveLoop()
	}
	return nil
}

// SessionID returns the id the registry minted for this channel.
func (c *Channel) SessionID() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.id
}

func (c *Channel) setID(id string) {
	c.stateMu.Lock()
	c.id = id
	c.stateMu.Unlock()
}

// bind attaches the engine session. If the channel already closed, in is
// closed immediately.
func (c *Channel) bind(in Inbound) {
	c.stateMu.Lock()
	if c.fired {
		c.stateMu.Unlock()
		in.Close()
		return
	}
	c.inbox = in
	c.stateMu.Unlock()
}

func (c *Channel) inbound() Inbound {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.inbox
}

// Send writes msg as a single "message" event. A write failure closes the
// channel and is reported wrapped in ErrStreamWrite.
func (c *Channel) Send(ctx context.Context, msg jsonrpc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.writeEvent("message", msg); err != nil {
		c.Close(err)
		return err
	}
	return nil
}

func (c *Channel) sendEndpoint(endpoint string) error {
	if err := c.writeEvent("endpoint", []byte(endpoint)); err != nil {
		c.Close(err)
		return err
	}
	return nil
}

func (c *Channel) writeEvent(event string, data []byte) error {
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(event)
	buf.WriteByte('\n')
	for _, line := range bytes.Split(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(bytes.TrimSuffix(line, []byte("\r")))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return c.write(buf.Bytes())
}

func (c *Channel) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.sealed || c.closing.Load() {
		return fmt.Errorf("%w: channel closed", ErrStreamWrite)
	}
	if c.writeTimeout > 0 {
		_ = c.rc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer func() { _ = c.rc.SetWriteDeadline(time.Time{}) }()
	}
	if _, err := c.w.Write(frame); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamWrite, err)
	}
	if err := c.rc.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamWrite, err)
	}
	return nil
}

func (c *Channel) keepAliveLoop() {
	t := time.NewTicker(c.keepAlive)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.write([]byte(": keepalive\n\n")); err != nil {
				c.Close(err)
				return
			}
		}
	}
}

// OnClosed registers fn to run exactly once when the channel closes. If the
// channel is already closed fn runs immediately. Only one callback is kept; a
// later registration replaces an earlier one.
func (c *Channel) OnClosed(fn func(error)) {
	c.stateMu.Lock()
	if c.fired {
		cause := c.cause
		c.stateMu.Unlock()
		fn(cause)
		return
	}
	c.onClosed = fn
	c.stateMu.Unlock()
}

// Done is closed after the channel has closed and its callback has returned.
func (c *Channel) Done() <-chan struct{} { return c.done }

// Err returns the close cause, or nil while the channel is open.
func (c *Channel) Err() error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.cause
}

// Close terminates the channel with cause. It is idempotent; only the first
// cause is recorded. Close returns after the OnClosed callback has run.
func (c *Channel) Close(cause error) {
	if cause == nil {
		cause = ErrClientDisconnected
	}
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		// Unblock a writer stuck on a dead peer before taking the write lock.
		_ = c.rc.SetWriteDeadline(time.Now())
		c.writeMu.Lock()
		c.sealed = true
		c.writeMu.Unlock()

		c.stateMu.Lock()
		c.cause = cause
		c.fired = true
		fn := c.onClosed
		c.onClosed = nil
		c.stateMu.Unlock()

		if fn != nil {
			fn(cause)
		}
		c.log.Debug("sse.channel.close", slog.String("session_id", c.SessionID()), slog.String("cause", cause.Error()))
		close(c.done)
	})
}

// HandleInbound decodes body and delivers it to the bound engine session.
// A closed or unbound channel reports ErrUnknownSession.
func (c *Channel) HandleInbound(ctx context.Context, body []byte) error {
	msg, err := jsonrpc.DecodeMessage(body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if c.closing.Load() {
		return ErrUnknownSession
	}
	in := c.inbound()
	if in == nil {
		return ErrUnknownSession
	}
	if err := in.Deliver(ctx, msg); err != nil {
		if errors.Is(err, engine.ErrSessionClosed) {
			return ErrUnknownSession
		}
		return err
	}
	return nil
}
