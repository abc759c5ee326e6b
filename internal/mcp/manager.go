package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nanocat-ai/nanocat/internal/config"
	"github.com/nanocat-ai/nanocat/internal/tools"
)

const healthCheckInterval = 30 * time.Second

// serverState tracks one MCP server connection and the registry names of
// the tools it contributed.
type serverState struct {
	name      string
	client    *mcpclient.Client
	toolNames []string
	connected atomic.Bool
	cancel    context.CancelFunc
}

// Manager connects configured MCP servers and merges their tools into the
// registry as mcp_<server>_<tool>. Connection is lazy and single-flight:
// Connect is called before every message but only the first call (and
// retries for servers that failed) does work.
type Manager struct {
	registry *tools.Registry
	configs  map[string]config.MCPServerConfig

	mu         sync.Mutex
	connecting bool
	servers    map[string]*serverState
}

func NewManager(registry *tools.Registry, configs map[string]config.MCPServerConfig) *Manager {
	return &Manager{
		registry: registry,
		configs:  configs,
		servers:  make(map[string]*serverState),
	}
}

// Connect dials every configured server that is not yet connected. Safe to
// call on every message; concurrent calls collapse into one.
func (m *Manager) Connect(ctx context.Context) error {
	if len(m.configs) == 0 {
		return nil
	}

	m.mu.Lock()
	if m.connecting {
		m.mu.Unlock()
		return nil
	}
	pending := make(map[string]config.MCPServerConfig)
	for name, cfg := range m.configs {
		if _, done := m.servers[name]; !done {
			pending[name] = cfg
		}
	}
	if len(pending) == 0 {
		m.mu.Unlock()
		return nil
	}
	m.connecting = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.connecting = false
		m.mu.Unlock()
	}()

	var errs []string
	for name, cfg := range pending {
		if err := m.connectServer(ctx, name, cfg); err != nil {
			slog.Warn("MCP server connect failed", "server", name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("MCP servers failed to connect: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (m *Manager) connectServer(ctx context.Context, name string, cfg config.MCPServerConfig) error {
	client, err := createClient(cfg)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	// SSE transports need an explicit Start; stdio starts on creation.
	if cfg.Command == "" {
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: "nanocat", Version: "1.0.0"}
	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return fmt.Errorf("initialize: %w", err)
	}

	listed, err := client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("list tools: %w", err)
	}

	ss := &serverState{name: name, client: client}
	ss.connected.Store(true)

	for _, mcpTool := range listed.Tools {
		bt := NewBridgeTool(name, mcpTool, client)
		if _, exists := m.registry.Get(bt.Name()); exists {
			slog.Warn("MCP tool name collision, skipped", "server", name, "tool", bt.Name())
			continue
		}
		m.registry.Register(bt)
		ss.toolNames = append(ss.toolNames, bt.Name())
	}

	hctx, hcancel := context.WithCancel(context.Background())
	ss.cancel = hcancel
	go m.healthLoop(hctx, ss)

	m.mu.Lock()
	m.servers[name] = ss
	m.mu.Unlock()

	slog.Info("MCP server connected", "server", name, "tools", len(ss.toolNames))
	return nil
}

func createClient(cfg config.MCPServerConfig) (*mcpclient.Client, error) {
	switch {
	case cfg.Command != "":
		return mcpclient.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	case cfg.URL != "":
		return mcpclient.NewSSEMCPClient(cfg.URL)
	default:
		return nil, fmt.Errorf("server needs either command or url")
	}
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// healthLoop pings the server periodically and flips its connected flag so
// bridge tools can fail fast while it is down.
func (m *Manager) healthLoop(ctx context.Context, ss *serverState) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := ss.client.Ping(ctx)
			if err != nil && !strings.Contains(strings.ToLower(err.Error()), "method not found") {
				// Servers without a ping handler are still alive.
				if ss.connected.Swap(false) {
					slog.Warn("MCP server unhealthy", "server", ss.name, "error", err)
				}
				continue
			}
			if !ss.connected.Swap(true) {
				slog.Info("MCP server recovered", "server", ss.name)
			}
		}
	}
}

// ToolNames lists all registry names contributed by MCP servers.
func (m *Manager) ToolNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, ss := range m.servers {
		names = append(names, ss.toolNames...)
	}
	return names
}

// Close shuts down all connections and removes their tools. One-time.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, ss := range m.servers {
		if ss.cancel != nil {
			ss.cancel()
		}
		if ss.client != nil {
			if err := ss.client.Close(); err != nil {
				slog.Debug("MCP close error", "server", name, "error", err)
			}
		}
		for _, toolName := range ss.toolNames {
			m.registry.Unregister(toolName)
		}
	}
	m.servers = make(map[string]*serverState)
}
