// Package mcpserver exposes the global lifecycle operations as MCP tools so
// coding agents can start, stop and inspect local sites.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/edvin/devhost/internal/orchestrator"
	"github.com/edvin/devhost/internal/site"
)

const instructions = "Local PHP development sites. Each site is a directory under the sites root, " +
	"served by its own PHP process behind nginx at <name>.test. Use start_all before browsing sites."

// Orchestrator is the subset of the orchestrator the tools call.
type Orchestrator interface {
	StartAll(ctx context.Context) ([]site.Site, error)
	StopAll(ctx context.Context) error
	RestartAll(ctx context.Context) orchestrator.Result
	ToggleSite(ctx context.Context, name string) (bool, error)
	GetSites(ctx context.Context) ([]site.Site, error)
	GetServicesStatus() bool
}

// Server serves the tools over streamable HTTP.
type Server struct {
	srv     *server.MCPServer
	handler *server.StreamableHTTPServer
	orch    Orchestrator
	logger  zerolog.Logger
}

func New(logger zerolog.Logger, orch Orchestrator, version string) *Server {
	s := &Server{
		orch:   orch,
		logger: logger.With().Str("component", "mcp").Logger(),
	}

	s.srv = server.NewMCPServer("devhost", version, server.WithInstructions(instructions))
	tools := s.Tools()
	s.srv.AddTools(tools...)
	s.handler = server.NewStreamableHTTPServer(s.srv, server.WithEndpointPath("/"))

	s.logger.Info().Int("tools", len(tools)).Msg("registered MCP tools")
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Tools returns every tool with its handler.
func (s *Server) Tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("list_sites",
				mcp.WithDescription("List every site with its alias, port, PHP version and running state."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: s.listSites,
		},
		{
			Tool: mcp.NewTool("services_status",
				mcp.WithDescription("Report whether the site stack (proxy and PHP backends) is running."),
				mcp.WithReadOnlyHintAnnotation(true),
			),
			Handler: s.servicesStatus,
		},
		{
			Tool: mcp.NewTool("start_all",
				mcp.WithDescription("Discover sites, allocate ports, write the proxy config and start every backend and the proxy."),
				mcp.WithIdempotentHintAnnotation(true),
			),
			Handler: s.startAll,
		},
		{
			Tool: mcp.NewTool("stop_all",
				mcp.WithDescription("Stop the proxy, every PHP backend and every dev tool."),
				mcp.WithDestructiveHintAnnotation(false),
				mcp.WithIdempotentHintAnnotation(true),
			),
			Handler: s.stopAll,
		},
		{
			Tool: mcp.NewTool("restart_all",
				mcp.WithDescription("Stop everything, then start everything again."),
			),
			Handler: s.restartAll,
		},
		{
			Tool: mcp.NewTool("toggle_site",
				mcp.WithDescription("Start a stopped site or stop a running one. The proxy config is not regenerated."),
				mcp.WithString("name", mcp.Required(), mcp.Description("Site name (directory name under the sites root)")),
			),
			Handler: s.toggleSite,
		},
	}
}

func (s *Server) listSites(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sites, err := s.orch.GetSites(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sites: %s", err)), nil
	}
	if sites == nil {
		sites = []site.Site{}
	}
	return jsonResult(sites)
}

func (s *Server) servicesStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]bool{"running": s.orch.GetServicesStatus()})
}

// Lifecycle tools detach from the call's context so a pass always
// completes once started.
func (s *Server) startAll(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sites, err := s.orch.StartAll(context.WithoutCancel(ctx))
	res := orchestrator.Result{Success: true, Sites: sites}
	if err != nil {
		var de *orchestrator.DegradedError
		if !errors.As(err, &de) {
			return mcp.NewToolResultError(fmt.Sprintf("start all: %s", err)), nil
		}
		res.Warnings = de.Messages()
	}
	return jsonResult(res)
}

func (s *Server) stopAll(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := orchestrator.Result{Success: true}
	if err := s.orch.StopAll(context.WithoutCancel(ctx)); err != nil {
		var de *orchestrator.DegradedError
		if !errors.As(err, &de) {
			return mcp.NewToolResultError(fmt.Sprintf("stop all: %s", err)), nil
		}
		res.Warnings = de.Messages()
	}
	return jsonResult(res)
}

func (s *Server) restartAll(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res := s.orch.RestartAll(context.WithoutCancel(ctx))
	if !res.Success {
		return mcp.NewToolResultError(fmt.Sprintf("restart all: %s", res.Error)), nil
	}
	return jsonResult(res)
}

func (s *Server) toggleSite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name parameter is required"), nil
	}
	running, err := s.orch.ToggleSite(context.WithoutCancel(ctx), name)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("toggle %s: %s", name, err)), nil
	}
	return jsonResult(map[string]any{"site": name, "running": running})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("format result: %s", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
