package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config is the root configuration, loaded from ~/.nanocat/config.json
// (JSON5: comments and trailing commas allowed).
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Providers ProvidersConfig `json:"providers"`
	Channels  ChannelsConfig  `json:"channels"`
	Tools     ToolsConfig     `json:"tools"`
	Sessions  SessionsConfig  `json:"sessions"`
	MCP       MCPConfig       `json:"mcp"`
}

// AgentConfig holds the core agent loop settings.
type AgentConfig struct {
	Workspace         string  `json:"workspace"`
	Provider          string  `json:"provider"`
	Model             string  `json:"model"`
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	MaxToolIterations int     `json:"max_tool_iterations"`

	// HistoryWindow is the number of recent session messages included in
	// each LLM request; consolidation keeps half of it after archiving.
	HistoryWindow int `json:"history_window"`

	// ConsolidationModel overrides the main model for memory consolidation
	// (a cheaper model is usually enough). Empty means use the main model.
	ConsolidationModel string `json:"consolidation_model"`

	// MaxSubagents caps concurrently running background subagents.
	MaxSubagents int `json:"max_subagents"`
}

// ProviderConfig is one OpenAI-compatible endpoint.
type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
	Model   string `json:"model"`
}

// ProvidersConfig lists the configured LLM endpoints.
type ProvidersConfig struct {
	OpenAI     ProviderConfig `json:"openai"`
	OpenRouter ProviderConfig `json:"openrouter"`
	DeepSeek   ProviderConfig `json:"deepseek"`
	Groq       ProviderConfig `json:"groq"`
	Zhipu      ProviderConfig `json:"zhipu"`
	VLLM       ProviderConfig `json:"vllm"`
}

// DiscordConfig configures the Discord channel adapter.
type DiscordConfig struct {
	Enabled      bool     `json:"enabled"`
	Token        string   `json:"token"`
	AllowedUsers []string `json:"allowed_users"` // empty = everyone
}

// ChannelsConfig lists the chat channel adapters.
type ChannelsConfig struct {
	Discord DiscordConfig `json:"discord"`
}

// BrowserConfig configures the CDP browser controller.
type BrowserConfig struct {
	Enabled    bool   `json:"enabled"`
	Headless   bool   `json:"headless"`
	Executable string `json:"executable"` // empty = auto-discover
	DebugPort  int    `json:"debug_port"`
	UserDataDir string `json:"user_data_dir"`
}

// WebConfig configures the web search and fetch tools.
type WebConfig struct {
	BraveAPIKey string `json:"brave_api_key"`
	MaxResults  int    `json:"max_results"`
}

// ShellConfig configures the shell execution tool.
type ShellConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// ImageConfig configures the image generation tool.
type ImageConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base"`
	Model   string `json:"model"`
}

// ToolsConfig groups per-tool settings.
type ToolsConfig struct {
	Browser BrowserConfig `json:"browser"`
	Web     WebConfig     `json:"web"`
	Shell   ShellConfig   `json:"shell"`
	Image   ImageConfig   `json:"image"`
}

// SessionsConfig controls session persistence.
type SessionsConfig struct {
	Storage string `json:"storage"`
}

// MCPServerConfig describes one MCP server to connect to.
type MCPServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	URL     string            `json:"url"` // streamable HTTP transport when set
}

// MCPConfig maps server names to their launch settings.
type MCPConfig struct {
	Servers map[string]MCPServerConfig `json:"servers"`
}

// ProviderFor returns the endpoint settings for a named provider.
func (c *Config) ProviderFor(name string) (ProviderConfig, bool) {
	switch strings.ToLower(name) {
	case "openai":
		return c.Providers.OpenAI, c.Providers.OpenAI.APIKey != ""
	case "openrouter":
		return c.Providers.OpenRouter, c.Providers.OpenRouter.APIKey != ""
	case "deepseek":
		return c.Providers.DeepSeek, c.Providers.DeepSeek.APIKey != ""
	case "groq":
		return c.Providers.Groq, c.Providers.Groq.APIKey != ""
	case "zhipu":
		return c.Providers.Zhipu, c.Providers.Zhipu.APIKey != ""
	case "vllm":
		// Local VLLM endpoints commonly run without a key.
		return c.Providers.VLLM, c.Providers.VLLM.APIBase != ""
	}
	return ProviderConfig{}, false
}

// WorkspacePath returns the agent workspace with ~ expanded.
func (c *Config) WorkspacePath() string {
	return ExpandHome(c.Agent.Workspace)
}

// MemoryDir is where MEMORY.md and HISTORY.md live.
func (c *Config) MemoryDir() string {
	return filepath.Join(c.WorkspacePath(), "memory")
}

// SkillsDir is where skill packages (SKILL.md files) live.
func (c *Config) SkillsDir() string {
	return filepath.Join(c.WorkspacePath(), "skills")
}

// CronFile is the persisted cron job store.
func (c *Config) CronFile() string {
	return filepath.Join(DataDir(), "cron", "jobs.json")
}

// DataDir returns the nanocat data directory (~/.nanocat).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nanocat"
	}
	return filepath.Join(home, ".nanocat")
}

// DefaultConfigPath is where Load looks when no path is given.
func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
