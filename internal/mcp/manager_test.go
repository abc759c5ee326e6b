package mcp

import (
	"context"
	"sort"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nanocat-ai/nanocat/internal/config"
	"github.com/nanocat-ai/nanocat/internal/tools"
)

func TestBridgeToolNaming(t *testing.T) {
	bt := NewBridgeTool("github", mcpgo.Tool{Name: "create_issue", Description: "Create an issue"}, nil)

	if bt.Name() != "mcp_github_create_issue" {
		t.Errorf("name = %q", bt.Name())
	}
	if bt.OriginalName() != "create_issue" {
		t.Errorf("original = %q", bt.OriginalName())
	}
	if !strings.Contains(bt.Description(), "[github]") {
		t.Errorf("description = %q", bt.Description())
	}
}

func TestBridgeToolParametersFallback(t *testing.T) {
	bt := NewBridgeTool("s", mcpgo.Tool{Name: "t"}, nil)
	params := bt.Parameters()
	if params["type"] != "object" {
		t.Errorf("params = %v", params)
	}
}

func TestFlattenContent(t *testing.T) {
	got := flattenContent([]mcpgo.Content{
		mcpgo.TextContent{Type: "text", Text: "line one"},
		mcpgo.TextContent{Type: "text", Text: "line two"},
	})
	if got != "line one\nline two" {
		t.Errorf("got %q", got)
	}
	if flattenContent(nil) != "" {
		t.Error("empty content should flatten to empty string")
	}
}

func TestConnectNoConfigsIsNoop(t *testing.T) {
	m := NewManager(tools.NewRegistry(), nil)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if names := m.ToolNames(); len(names) != 0 {
		t.Errorf("tool names = %v", names)
	}
	m.Close()
}

func TestCreateClientValidation(t *testing.T) {
	if _, err := createClient(config.MCPServerConfig{}); err == nil {
		t.Error("empty config should error")
	}
}

func TestEnvSlice(t *testing.T) {
	got := envSlice(map[string]string{"B": "2", "A": "1"})
	sort.Strings(got)
	if len(got) != 2 || got[0] != "A=1" || got[1] != "B=2" {
		t.Errorf("env = %v", got)
	}
}
