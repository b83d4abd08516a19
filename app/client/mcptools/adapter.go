package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// toolAdapter exposes a remote MCP tool through the langchaingo tool
// interface the rest of the system uses.
type toolAdapter struct {
	client client.MCPClient
	tool   mcp.Tool
	name   string
}

func (m *toolAdapter) Name() string {
	return m.name
}

func (m *toolAdapter) Description() string {
	return m.tool.Description
}

func (m *toolAdapter) Call(ctx context.Context, input string) (string, error) {
	callRequest := mcp.CallToolRequest{
		Request: mcp.Request{
			Method: "tools/call",
		},
	}

	callRequest.Params.Name = m.tool.Name
	callRequest.Params.Arguments = m.buildArguments(input)

	response, err := m.client.CallTool(ctx, callRequest)
	if err != nil {
		return "", fmt.Errorf("MCP tool call failed: %w", err)
	}

	var result strings.Builder
	for _, content := range response.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			result.WriteString(textContent.Text)
			result.WriteString("\n")
		}
	}

	return strings.TrimSpace(result.String()), nil
}

func (m *toolAdapter) buildArguments(input string) map[string]any {
	trimmed := strings.TrimSpace(input)

	if strings.HasPrefix(trimmed, "{") {
		var args map[string]any
		if err := json.Unmarshal([]byte(trimmed), &args); err == nil {
			return args
		}
	}

	// non-JSON input: bind it to the first declared schema property
	for propName := range m.tool.InputSchema.Properties {
		return map[string]any{
			propName: input,
		}
	}

	return map[string]any{
		"input": input,
	}
}
