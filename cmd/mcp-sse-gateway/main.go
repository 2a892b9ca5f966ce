// Command mcp-sse-gateway serves the greeter MCP server over the HTTP+SSE
// transport.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/mcp-sse-gateway/examples/greeter"
	"github.com/ggoodman/mcp-sse-gateway/internal/config"
	"github.com/ggoodman/mcp-sse-gateway/sse"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load("mcp-sse-gateway", args)
	if err != nil {
		return err
	}
	log, level := cfg.Logger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := sse.New(
		greeter.New(greeter.Options{Name: cfg.ServerName, Version: cfg.ServerVersion, LogLevel: level}),
		sse.WithLogger(log),
		sse.WithSSEPath(cfg.SSEPath),
		sse.WithMessagesPath(cfg.MessagesPath),
		sse.WithMaxMessageBytes(cfg.MaxMessageBytes),
		sse.WithStreamWriteTimeout(cfg.WriteTimeout),
		sse.WithStreamKeepAlive(cfg.KeepAlive),
		sse.WithRequestTimeout(cfg.RequestTimeout),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Streams never end on their own; close them so Shutdown can drain.
	srv.RegisterOnShutdown(func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := handler.Shutdown(sctx); err != nil {
			log.Warn("sse.shutdown.incomplete", slog.String("err", err.Error()))
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http.listen", slog.String("addr", cfg.Addr), slog.String("sse_path", cfg.SSEPath), slog.String("messages_path", cfg.MessagesPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("http.shutdown.start")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		log.Info("http.shutdown.ok", slog.Int("open_sessions", handler.SessionCount()))
		return nil
	})
	return g.Wait()
}
