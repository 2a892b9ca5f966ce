// Package config loads gateway settings from the environment and command line.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/spf13/pflag"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds every runtime setting of the gateway binary. Defaults are
// carried by the env tags; flags registered by BindFlags override them.
type Config struct {
	// Addr is the listen address. ENV: GATEWAY_ADDR
	Addr string `env:"GATEWAY_ADDR,default=:3018"`
	// SSEPath is the stream-open path. ENV: GATEWAY_SSE_PATH
	SSEPath string `env:"GATEWAY_SSE_PATH,default=/sse"`
	// MessagesPath is the message-push path. ENV: GATEWAY_MESSAGES_PATH
	MessagesPath    string        `env:"GATEWAY_MESSAGES_PATH,default=/messages"`
	MaxMessageBytes int64         `env:"GATEWAY_MAX_MESSAGE_BYTES,default=4194304"`
	WriteTimeout    time.Duration `env:"GATEWAY_WRITE_TIMEOUT,default=10s"`
	KeepAlive       time.Duration `env:"GATEWAY_KEEPALIVE_INTERVAL,default=25s"`
	RequestTimeout  time.Duration `env:"GATEWAY_REQUEST_TIMEOUT,default=0s"`
	ShutdownTimeout time.Duration `env:"GATEWAY_SHUTDOWN_TIMEOUT,default=10s"`
	ServerName      string        `env:"GATEWAY_SERVER_NAME,default=example-server"`
	ServerVersion   string        `env:"GATEWAY_SERVER_VERSION,default=1.0.0"`
	LogLevel        string        `env:"GATEWAY_LOG_LEVEL,default=info"`
	LogFormat       string        `env:"GATEWAY_LOG_FORMAT,default=json"`
}

// FromEnv decodes Config from the process environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	return cfg, nil
}

// BindFlags registers one flag per setting, defaulting to the current value.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.StringVar(&c.SSEPath, "sse-path", c.SSEPath, "path that opens an event stream")
	fs.StringVar(&c.MessagesPath, "messages-path", c.MessagesPath, "path that accepts pushed messages")
	fs.Int64Var(&c.MaxMessageBytes, "max-message-bytes", c.MaxMessageBytes, "largest accepted message body")
	fs.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "deadline for each stream frame (0 disables)")
	fs.DurationVar(&c.KeepAlive, "keepalive", c.KeepAlive, "keep-alive comment interval (0 disables)")
	fs.DurationVar(&c.RequestTimeout, "request-timeout", c.RequestTimeout, "bound on each tool request (0 disables)")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "graceful shutdown budget")
	fs.StringVar(&c.ServerName, "server-name", c.ServerName, "server name reported on initialize")
	fs.StringVar(&c.ServerVersion, "server-version", c.ServerVersion, "server version reported on initialize")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "debug, info, warn or error")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "json or text")
}

// Load decodes the environment, then applies command-line overrides from args.
func Load(name string, args []string) (Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return Config{}, err
	}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if !strings.HasPrefix(c.SSEPath, "/") {
		errs = append(errs, fmt.Errorf("sse path %q must start with /", c.SSEPath))
	}
	if !strings.HasPrefix(c.MessagesPath, "/") {
		errs = append(errs, fmt.Errorf("messages path %q must start with /", c.MessagesPath))
	}
	if c.SSEPath == c.MessagesPath {
		errs = append(errs, errors.New("sse and messages paths must differ"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max message bytes must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"write timeout":    c.WriteTimeout,
		"keepalive":        c.KeepAlive,
		"request timeout":  c.RequestTimeout,
		"shutdown timeout": c.ShutdownTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if _, err := c.level(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return lvl, nil
}

// Logger builds the process logger writing to w. The returned LevelVar
// controls its level at runtime.
func (c Config) Logger(w io.Writer) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	if lvl, err := c.level(); err == nil {
		lv.Set(lvl)
	}
	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if c.LogFormat == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h), lv
}
