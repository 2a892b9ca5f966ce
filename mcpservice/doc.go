// Package mcpservice provides the building blocks for the tool-serving side of
// the gateway. It exposes the ServerCapabilities interface consumed by the
// protocol engine, plus helpers for typed tools, paginated listings, progress
// reporting and change notifications.
//
// Quick start:
//
//	type GreetArgs struct {
//	    Name string `json:"name" jsonschema:"description=Who to greet"`
//	}
//	tools := mcpservice.NewToolsContainer(
//	    mcpservice.NewTool[GreetArgs]("greet",
//	        func(ctx context.Context, s sessions.Session, w mcpservice.ToolResponseWriter, r *mcpservice.ToolRequest[GreetArgs]) error {
//	            return w.AppendText("Hello, " + r.Args().Name + "!")
//	        },
//	        mcpservice.WithToolDescription("Greet someone by name"),
//	    ),
//	)
//
//	srv := mcpservice.NewServer(
//	    mcpservice.WithServerInfo(mcp.ImplementationInfo{Name: "example-server", Version: "1.0.0"}),
//	    mcpservice.WithToolsCapability(tools),
//	)
//
// Per-session capabilities are wired with WithToolsProvider, which receives the
// sessions.Session for the calling client.
package mcpservice
