package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/nanocat-ai/nanocat/internal/agent"
	"github.com/nanocat-ai/nanocat/internal/bootstrap"
	"github.com/nanocat-ai/nanocat/internal/browser"
	"github.com/nanocat-ai/nanocat/internal/bus"
	"github.com/nanocat-ai/nanocat/internal/channels"
	"github.com/nanocat-ai/nanocat/internal/channels/discord"
	"github.com/nanocat-ai/nanocat/internal/config"
	"github.com/nanocat-ai/nanocat/internal/cron"
	"github.com/nanocat-ai/nanocat/internal/mcp"
	"github.com/nanocat-ai/nanocat/internal/memory"
	"github.com/nanocat-ai/nanocat/internal/providers"
	"github.com/nanocat-ai/nanocat/internal/sessions"
	"github.com/nanocat-ai/nanocat/internal/skills"
	"github.com/nanocat-ai/nanocat/internal/tools"
)

// providerBases maps provider names to their OpenAI-compatible endpoints.
var providerBases = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"zhipu":      "https://open.bigmodel.cn/api/paas/v4",
}

// runtime holds the wired-up components of a running nanocat instance.
type runtime struct {
	cfg       *config.Config
	bus       *bus.MessageBus
	loop      *agent.Loop
	subagents *agent.SubagentManager
	channels  *channels.Manager
	cron      *cron.Service
	mcp       *mcp.Manager
	skills    *skills.Loader
	browser   *browser.Controller
}

// buildRuntime loads config and wires every component together.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	workspace := cfg.WorkspacePath()
	if _, err := bootstrap.EnsureWorkspaceFiles(workspace); err != nil {
		return nil, fmt.Errorf("workspace setup: %w", err)
	}
	if _, err := bootstrap.EnsureMemoryFiles(cfg.MemoryDir()); err != nil {
		return nil, fmt.Errorf("memory setup: %w", err)
	}
	if err := os.MkdirAll(cfg.SkillsDir(), 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", cfg.SkillsDir(), err)
	}

	b := bus.New()
	sess := sessions.NewManager(config.ExpandHome(cfg.Sessions.Storage))
	mem := memory.NewStore(cfg.MemoryDir())
	sk := skills.NewLoader(cfg.SkillsDir())

	registry := tools.NewRegistry()
	agentCfg := agent.Config{
		Workspace:          workspace,
		Model:              modelFor(cfg),
		MaxIterations:      cfg.Agent.MaxToolIterations,
		Temperature:        cfg.Agent.Temperature,
		MaxTokens:          cfg.Agent.MaxTokens,
		HistoryWindow:      cfg.Agent.HistoryWindow,
		ConsolidationModel: cfg.Agent.ConsolidationModel,
	}

	loop := agent.NewLoop(b, provider, agentCfg, sess, agent.NewContextBuilder(workspace, mem, sk), registry)

	// Subagents get their own registry: no message, spawn, or session
	// tools, so background tasks cannot recurse or hijack conversations.
	subRegistry := tools.NewRegistry()
	subagents := agent.NewSubagentManager(provider, b, subRegistry, agentCfg, cfg.Agent.MaxSubagents)

	cronSvc := cron.NewService(cfg.CronFile(), b)

	rt := &runtime{
		cfg:       cfg,
		bus:       b,
		loop:      loop,
		subagents: subagents,
		channels:  channels.NewManager(b),
		cron:      cronSvc,
		skills:    sk,
	}
	rt.registerTools(registry, subRegistry, sess)

	if len(cfg.MCP.Servers) > 0 {
		rt.mcp = mcp.NewManager(registry, cfg.MCP.Servers)
		loop.SetMCP(rt.mcp)
	}

	if cfg.Channels.Discord.Enabled {
		dc, err := discord.New(cfg.Channels.Discord, b)
		if err != nil {
			return nil, fmt.Errorf("discord channel: %w", err)
		}
		rt.channels.Register(dc)
	}

	return rt, nil
}

// registerTools fills the main and subagent registries.
func (rt *runtime) registerTools(registry, subRegistry *tools.Registry, sess *sessions.Manager) {
	cfg := rt.cfg
	workspace := cfg.WorkspacePath()

	shared := []tools.Tool{
		tools.NewReadFileTool(workspace),
		tools.NewWriteFileTool(workspace),
		tools.NewEditFileTool(workspace),
		tools.NewListDirTool(workspace),
		tools.NewExecTool(workspace, time.Duration(cfg.Tools.Shell.TimeoutSeconds)*time.Second),
		tools.NewWebSearchTool(cfg.Tools.Web.BraveAPIKey, cfg.Tools.Web.MaxResults),
		tools.NewWebFetchTool(),
	}
	for _, t := range shared {
		registry.Register(t)
		subRegistry.Register(t)
	}

	registry.Register(tools.NewMessageTool(rt.bus))
	registry.Register(tools.NewSpawnTool(rt.subagents.Spawn))
	registry.Register(tools.NewCronTool(rt.cron))
	registry.Register(tools.NewImageGenerateTool(
		cfg.Tools.Image.APIKey, cfg.Tools.Image.APIBase, cfg.Tools.Image.Model, workspace))

	sessionTool := tools.NewSessionTool(sess)
	sessionTool.SwitchFunc = rt.loop.SwitchSession
	registry.Register(sessionTool)

	if cfg.Tools.Browser.Enabled {
		bc := cfg.Tools.Browser
		manager := browser.NewManager(bc.Executable, bc.DebugPort, config.ExpandHome(bc.UserDataDir), bc.Headless)
		rt.browser = browser.NewController(manager)
		registry.Register(tools.NewBrowserTool(rt.browser, workspace))
		subRegistry.Register(tools.NewBrowserTool(rt.browser, workspace))
	}
}

// buildProvider creates the configured LLM provider.
func buildProvider(cfg *config.Config) (providers.Provider, error) {
	name := cfg.Agent.Provider
	pc, ok := cfg.ProviderFor(name)
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured (set its API key in %s or via NANOCAT_%s_API_KEY)",
			name, config.DefaultConfigPath(), toEnvSuffix(name))
	}

	apiBase := pc.APIBase
	if apiBase == "" {
		apiBase = providerBases[name]
	}
	if apiBase == "" {
		return nil, fmt.Errorf("provider %q needs an api_base", name)
	}
	return providers.NewOpenAIProvider(name, pc.APIKey, apiBase, modelFor(cfg)), nil
}

func modelFor(cfg *config.Config) string {
	if pc, ok := cfg.ProviderFor(cfg.Agent.Provider); ok && pc.Model != "" {
		return pc.Model
	}
	return cfg.Agent.Model
}

func toEnvSuffix(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// close tears the runtime down in reverse dependency order.
func (rt *runtime) close() {
	if rt.mcp != nil {
		rt.mcp.Close()
	}
	if rt.browser != nil {
		rt.browser.Close()
	}
	rt.cron.Stop()
	rt.skills.Close()
	rt.bus.Close()
}
