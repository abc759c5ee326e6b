package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nanocat-ai/nanocat/internal/tools"
)

// BridgeTool adapts one remote MCP tool to the local tools.Tool interface.
type BridgeTool struct {
	server string
	tool   mcpgo.Tool
	client *mcpclient.Client
}

func NewBridgeTool(server string, tool mcpgo.Tool, client *mcpclient.Client) *BridgeTool {
	return &BridgeTool{server: server, tool: tool, client: client}
}

func (b *BridgeTool) Name() string {
	return "mcp_" + b.server + "_" + b.tool.Name
}

// OriginalName is the tool's name on the MCP server, without the prefix.
func (b *BridgeTool) OriginalName() string { return b.tool.Name }

func (b *BridgeTool) Description() string {
	desc := b.tool.Description
	if desc == "" {
		desc = "MCP tool " + b.tool.Name
	}
	return fmt.Sprintf("[%s] %s", b.server, desc)
}

func (b *BridgeTool) Parameters() map[string]interface{} {
	// Round-trip through JSON: the schema type differs across mcp-go
	// versions but always marshals to a JSON-schema object.
	data, err := json.Marshal(b.tool.InputSchema)
	if err != nil {
		return map[string]interface{}{"type": "object"}
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(data, &schema); err != nil {
		return map[string]interface{}{"type": "object"}
	}
	// A zero-value schema marshals with an empty type string, not a
	// missing key.
	if t, _ := schema["type"].(string); t == "" {
		return map[string]interface{}{"type": "object"}
	}
	return schema
}

func (b *BridgeTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.tool.Name
	req.Params.Arguments = args

	res, err := b.client.CallTool(ctx, req)
	if err != nil {
		return tools.ErrorResult(fmt.Sprintf("MCP call failed: %v", err)).WithError(err)
	}

	text := flattenContent(res.Content)
	if res.IsError {
		if text == "" {
			text = "MCP tool reported an error"
		}
		return tools.ErrorResult(text)
	}
	if text == "" {
		text = "(no output)"
	}
	return tools.SilentResult(text)
}

// flattenContent joins the text parts of an MCP result.
func flattenContent(content []mcpgo.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
