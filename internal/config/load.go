package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace:         "~/.nanocat/workspace",
			Provider:          "openrouter",
			Model:             "anthropic/claude-sonnet-4",
			MaxTokens:         8192,
			Temperature:       0.7,
			MaxToolIterations: 20,
			HistoryWindow:     50,
			MaxSubagents:      5,
		},
		Tools: ToolsConfig{
			Browser: BrowserConfig{
				Enabled:   true,
				Headless:  false,
				DebugPort: 18800,
			},
			Web: WebConfig{
				MaxResults: 5,
			},
			Shell: ShellConfig{
				TimeoutSeconds: 60,
			},
		},
		Sessions: SessionsConfig{
			Storage: "~/.nanocat/sessions",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("NANOCAT_OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("NANOCAT_OPENROUTER_API_KEY", &c.Providers.OpenRouter.APIKey)
	envStr("NANOCAT_DEEPSEEK_API_KEY", &c.Providers.DeepSeek.APIKey)
	envStr("NANOCAT_GROQ_API_KEY", &c.Providers.Groq.APIKey)
	envStr("NANOCAT_ZHIPU_API_KEY", &c.Providers.Zhipu.APIKey)
	envStr("NANOCAT_VLLM_API_BASE", &c.Providers.VLLM.APIBase)

	envStr("NANOCAT_DISCORD_TOKEN", &c.Channels.Discord.Token)
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
	if v := os.Getenv("NANOCAT_DISCORD_ALLOWED_USERS"); v != "" {
		c.Channels.Discord.AllowedUsers = strings.Split(v, ",")
	}

	envStr("NANOCAT_BRAVE_API_KEY", &c.Tools.Web.BraveAPIKey)
	envStr("NANOCAT_IMAGE_API_KEY", &c.Tools.Image.APIKey)

	envStr("NANOCAT_PROVIDER", &c.Agent.Provider)
	envStr("NANOCAT_MODEL", &c.Agent.Model)
	envStr("NANOCAT_WORKSPACE", &c.Agent.Workspace)
	envStr("NANOCAT_SESSIONS_STORAGE", &c.Sessions.Storage)

	envStr("NANOCAT_BROWSER_EXECUTABLE", &c.Tools.Browser.Executable)
	if v := os.Getenv("NANOCAT_BROWSER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Tools.Browser.DebugPort = port
		}
	}
	if v := os.Getenv("NANOCAT_BROWSER_HEADLESS"); v != "" {
		c.Tools.Browser.Headless = v == "true" || v == "1"
	}
}
