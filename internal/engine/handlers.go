package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ggoodman/mcp-sse-gateway/internal/jsonrpc"
	"github.com/ggoodman/mcp-sse-gateway/internal/logctx"
	"github.com/ggoodman/mcp-sse-gateway/mcp"
	"github.com/ggoodman/mcp-sse-gateway/mcpservice"
	"github.com/ggoodman/mcp-sse-gateway/sessions"
)

func (s *Session) handleInitialize(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := s.eng.log.With(slog.String("method", req.Method))
	srv := s.eng.srv

	var params mcp.InitializeRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	version, err := s.eng.preferredVersion(ctx, params.ProtocolVersion)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	s.stateMu.Lock()
	if s.initialized {
		s.stateMu.Unlock()
		log.WarnContext(ctx, "engine.handle_request.already_initialized")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "session already initialized", nil)
	}
	s.initialized = true
	s.protocolVersion = version
	s.clientInfo = sessions.ClientInfo{Name: params.ClientInfo.Name, Version: params.ClientInfo.Version}
	s.stateMu.Unlock()
	ctx = s.logContext(ctx)

	serverInfo, err := srv.GetServerInfo(ctx, s)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	initRes := &mcp.InitializeResult{
		ProtocolVersion: version,
		ServerInfo:      serverInfo,
	}

	if instr, ok, err := srv.GetInstructions(ctx, s); err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	} else if ok {
		initRes.Instructions = instr
	}

	if toolsCap, ok, err := srv.GetToolsCapability(ctx, s); err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	} else if ok && toolsCap != nil {
		entry := &mcp.ToolsCapabilities{}
		if lcCap, hasLC, lcErr := toolsCap.GetListChangedCapability(ctx, s); lcErr != nil {
			log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", lcErr.Error()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
		} else if hasLC && lcCap != nil {
			entry.ListChanged = s.registerToolsListChanged(ctx, lcCap)
		}
		initRes.Capabilities.Tools = entry
	}

	if _, ok, err := srv.GetLoggingCapability(ctx, s); err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	} else if ok {
		initRes.Capabilities.Logging = &struct{}{}
	}

	res, err := jsonrpc.NewResultResponse(req.ID, initRes)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	log.InfoContext(ctx, "engine.handle_request.ok", slog.String("protocol_version", version), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return res
}

// registerToolsListChanged forwards tool list changes to the client for the
// life of the session.
func (s *Session) registerToolsListChanged(ctx context.Context, lcCap mcpservice.ToolListChangedCapability) bool {
	ok, err := lcCap.Register(s.ctx, s, func(cbCtx context.Context, _ sessions.Session) {
		if !s.Ready() {
			return
		}
		if err := s.notify(cbCtx, mcp.ToolsListChangedNotificationMethod, struct{}{}); err != nil {
			s.eng.log.WarnContext(ctx, "engine.notify.list_changed.fail", slog.String("err", err.Error()))
		}
	})
	if err != nil {
		s.eng.log.WarnContext(ctx, "engine.register.list_changed.fail", slog.String("err", err.Error()))
		return false
	}
	return ok
}

func (s *Session) handleToolsList(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := s.eng.log.With(slog.String("method", req.Method))

	var params mcp.ListToolsRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
		}
	}

	cap, ok, err := s.eng.srv.GetToolsCapability(ctx, s)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	if !ok || cap == nil {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil)
	}

	var cursor *string
	if params.Cursor != "" {
		c := params.Cursor
		cursor = &c
	}

	page, err := cap.ListTools(ctx, s, cursor)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	result := &mcp.ListToolsResult{Tools: page.Items}
	if page.NextCursor != nil {
		result.NextCursor = *page.NextCursor
	}

	res, err := jsonrpc.NewResultResponse(req.ID, result)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("tool_count", len(page.Items)))
	return res
}

func (s *Session) handleToolCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := s.eng.log.With(slog.String("method", req.Method))

	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}
	if params.Name == "" {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool name"), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	cap, ok, err := s.eng.srv.GetToolsCapability(ctx, s)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	if !ok || cap == nil {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "tools capability not supported", nil)
	}

	res, err := cap.CallTool(ctx, s, &params)
	if err != nil {
		switch {
		case errors.Is(err, mcpservice.ErrToolNotFound):
			log.InfoContext(ctx, "engine.handle_request.unknown_tool", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "unknown tool: "+params.Name, nil)
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			log.InfoContext(ctx, "engine.handle_request.cancelled", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "cancelled", nil)
		}
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	if res == nil {
		res = &mcp.CallToolResult{}
	}
	if res.Content == nil {
		res.Content = []mcp.ContentBlock{}
	}

	out, err := jsonrpc.NewResultResponse(req.ID, res)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	log.InfoContext(ctx, "engine.handle_request.ok", slog.Bool("is_error", res.IsError), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return out
}

func (s *Session) handleSetLoggingLevel(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	log := s.eng.log.With(slog.String("method", req.Method))

	var params mcp.SetLevelRequest
	if err := json.Unmarshal(req.Params, &params); err != nil {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	if !mcp.IsValidLoggingLevel(params.Level) {
		log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("level", string(params.Level)), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
	}

	cap, ok, err := s.eng.srv.GetLoggingCapability(ctx, s)
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	if !ok || cap == nil {
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "logging level not supported", nil)
	}

	if err := cap.SetLevel(ctx, s, params.Level); err != nil {
		if errors.Is(err, mcpservice.ErrInvalidLoggingLevel) {
			log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil)
		}
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}

	s.stateMu.Lock()
	s.logLevel = params.Level
	s.stateMu.Unlock()

	res, err := jsonrpc.NewResultResponse(req.ID, &mcp.EmptyResult{})
	if err != nil {
		log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	log.InfoContext(ctx, "engine.handle_request.ok", slog.String("level", string(params.Level)), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return res
}
