package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"envi/app/config"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/do"
	"github.com/tmc/langchaingo/tools"
)

// Registry connects the toolservers listed in config and adapts their
// tools. An empty config yields an empty registry; a failing server is
// logged and skipped rather than blocking startup.
type Registry struct {
	cfg *config.Config

	clients []client.MCPClient
	tools   []tools.Tool
}

var _ do.Shutdownable = (*Registry)(nil)

func New(di *do.Injector) (*Registry, error) {
	r := &Registry{
		cfg: do.MustInvoke[*config.Config](di),
	}

	for _, server := range r.cfg.MCP {
		if err := r.connect(server); err != nil {
			slog.Error("Failed to connect MCP toolserver",
				"name", server.Name,
				"error", err,
			)
		}
	}

	return r, nil
}

func (r *Registry) connect(server config.MCP) error {
	mcpClient, err := client.NewStdioMCPClient(server.Command, nil, server.Args...)
	if err != nil {
		return fmt.Errorf("failed to create MCP client for %s: %w", server.Name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "envi",
		Version: "1.0.0",
	}

	if _, err = mcpClient.Initialize(ctx, initRequest); err != nil {
		return fmt.Errorf("failed to initialize MCP client %s: %w", server.Name, err)
	}

	toolsResponse, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools from %s: %w", server.Name, err)
	}

	for _, mcpTool := range toolsResponse.Tools {
		r.tools = append(r.tools, &toolAdapter{
			client: mcpClient,
			tool:   mcpTool,
			name:   fmt.Sprintf("%s_%s", server.Name, mcpTool.Name),
		})
	}

	r.clients = append(r.clients, mcpClient)

	slog.Info("Connected MCP toolserver",
		"name", server.Name,
		"tools", len(toolsResponse.Tools),
	)

	return nil
}

func (r *Registry) Tools() []tools.Tool {
	return r.tools
}

func (r *Registry) Shutdown() error {
	for _, c := range r.clients {
		_ = c.Close()
	}

	return nil
}
