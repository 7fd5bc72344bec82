package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer builds the Model Context Protocol tool surface over the
// module-lifecycle operations (SPEC_FULL.md §4.G): list/load/unload/
// reload/import, one tool each, so an external AI operator/agent can
// administer the proxy the same way the human admin API and the built-in
// "module" chat command (spec.md §4.F) do.
func NewMCPServer(modules ModuleRegistry) *server.MCPServer {
	s := server.NewMCPServer("wiretap-admin", "1.0.0")

	s.AddTool(mcp.NewTool("list_modules",
		mcp.WithDescription("List the names of every imported module, loaded or not."),
	), func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if modules == nil {
			return mcp.NewToolResultError("module registry not available"), nil
		}
		raw, err := json.Marshal(modules.Names())
		if err != nil {
			return mcp.NewToolResultErrorFromErr("marshal module names", err), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	})

	s.AddTool(mcp.NewTool("load_module",
		mcp.WithDescription("Load an imported-but-unloaded module by name."),
		mcp.WithString("name", mcp.Required(), mcp.Description("module name")),
	), mcpModuleOpHandler(modules, func(ctx context.Context, name string) error {
		return modules.Load(ctx, name)
	}))

	s.AddTool(mcp.NewTool("unload_module",
		mcp.WithDescription("Unload a loaded module by name. Refuses to unload the core module."),
		mcp.WithString("name", mcp.Required(), mcp.Description("module name")),
	), mcpModuleOpHandler(modules, func(ctx context.Context, name string) error {
		return modules.Unload(ctx, name, false)
	}))

	s.AddTool(mcp.NewTool("reload_module",
		mcp.WithDescription("Hot-reload a loaded module by name, preserving its declared state-preserve keys."),
		mcp.WithString("name", mcp.Required(), mcp.Description("module name")),
	), mcpModuleOpHandler(modules, func(ctx context.Context, name string) error {
		return modules.Reload(ctx, name)
	}))

	s.AddTool(mcp.NewTool("import_module",
		mcp.WithDescription("Import a module from a registered factory under a new name."),
		mcp.WithString("name", mcp.Required(), mcp.Description("name to register the module under")),
		mcp.WithString("module_path", mcp.Required(), mcp.Description("registered factory key to import from")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if modules == nil {
			return mcp.NewToolResultError("module registry not available"), nil
		}
		name, err := req.RequireString("name")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("name", err), nil
		}
		path, err := req.RequireString("module_path")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("module_path", err), nil
		}
		if _, err := modules.Import(name, path, nil); err != nil {
			return mcp.NewToolResultErrorFromErr(fmt.Sprintf("import %s", name), err), nil
		}
		return mcp.NewToolResultText("imported " + name), nil
	})

	return s
}

// mcpModuleOpHandler builds a tool handler for a single-argument
// (name) module lifecycle operation shared by load/unload/reload.
func mcpModuleOpHandler(modules ModuleRegistry, op func(ctx context.Context, name string) error) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if modules == nil {
			return mcp.NewToolResultError("module registry not available"), nil
		}
		name, err := req.RequireString("name")
		if err != nil {
			return mcp.NewToolResultErrorFromErr("name", err), nil
		}
		if err := op(ctx, name); err != nil {
			return mcp.NewToolResultErrorFromErr(name, err), nil
		}
		return mcp.NewToolResultText("ok: " + name), nil
	}
}

// MCPHandler mounts the MCP tool surface as a streamable-HTTP handler,
// suitable for chi's r.Mount under the admin router, alongside stdio
// access via ServeMCPStdio for fully detached operator tooling
// (SPEC_FULL.md §4.G: "stdio or HTTP").
func MCPHandler(mcpServer *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(mcpServer)
}

// ServeMCPStdio runs the MCP tool surface over stdio until ctx is
// cancelled, for operators driving the proxy from a local MCP-aware CLI
// rather than HTTP.
func ServeMCPStdio(ctx context.Context, mcpServer *server.MCPServer) error {
	return server.ServeStdio(mcpServer, server.WithStdioContextFunc(func(c context.Context) context.Context { return ctx }))
}
