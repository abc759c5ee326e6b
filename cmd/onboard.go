package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nanocat-ai/nanocat/internal/bootstrap"
	"github.com/nanocat-ai/nanocat/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive first-run setup",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runOnboard(); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
		},
	}
}

func runOnboard() error {
	cfgPath := resolveConfigPath()
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}

	if _, err := os.Stat(cfgPath); err == nil {
		overwrite := false
		confirm := huh.NewConfirm().
			Title(fmt.Sprintf("Config already exists at %s. Overwrite?", cfgPath)).
			Value(&overwrite)
		if err := confirm.Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println("Keeping existing config.")
			return seedWorkspace(cfgPath)
		}
	}

	cfg := config.Default()
	var apiKey string
	browserEnabled := cfg.Tools.Browser.Enabled

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM provider").
				Options(
					huh.NewOption("OpenRouter", "openrouter"),
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("DeepSeek", "deepseek"),
					huh.NewOption("Groq", "groq"),
					huh.NewOption("Zhipu", "zhipu"),
					huh.NewOption("vLLM (local)", "vllm"),
				).
				Value(&cfg.Agent.Provider),
			huh.NewInput().
				Title("API key").
				Description("Leave empty to set NANOCAT_<PROVIDER>_API_KEY later").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey),
			huh.NewInput().
				Title("Model").
				Value(&cfg.Agent.Model),
			huh.NewConfirm().
				Title("Enable browser control?").
				Value(&browserEnabled),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Tools.Browser.Enabled = browserEnabled
	setProviderKey(cfg, cfg.Agent.Provider, apiKey)

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Println("Config written to", cfgPath)

	return seedWorkspace(cfgPath)
}

func setProviderKey(cfg *config.Config, provider, key string) {
	if key == "" {
		return
	}
	switch provider {
	case "openai":
		cfg.Providers.OpenAI.APIKey = key
	case "openrouter":
		cfg.Providers.OpenRouter.APIKey = key
	case "deepseek":
		cfg.Providers.DeepSeek.APIKey = key
	case "groq":
		cfg.Providers.Groq.APIKey = key
	case "zhipu":
		cfg.Providers.Zhipu.APIKey = key
	case "vllm":
		cfg.Providers.VLLM.APIKey = key
	}
}

// seedWorkspace creates the workspace skeleton: bootstrap prompt files,
// the memory store, and an empty skills directory. Existing files are
// never touched.
func seedWorkspace(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	created, err := bootstrap.EnsureWorkspaceFiles(cfg.WorkspacePath())
	if err != nil {
		return err
	}
	memCreated, err := bootstrap.EnsureMemoryFiles(cfg.MemoryDir())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.SkillsDir(), 0755); err != nil {
		return err
	}

	for _, name := range created {
		fmt.Println("Created", filepath.Join(cfg.WorkspacePath(), name))
	}
	for _, name := range memCreated {
		fmt.Println("Created", filepath.Join(cfg.MemoryDir(), name))
	}

	fmt.Println("\nDone. Start chatting with: nanocat agent")
	return nil
}
