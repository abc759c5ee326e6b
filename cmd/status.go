package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nanocat-ai/nanocat/internal/config"
	"github.com/nanocat-ai/nanocat/internal/cron"
	"github.com/nanocat-ai/nanocat/internal/sessions"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and runtime state",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runStatus(); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
		},
	}
}

func runStatus() error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}

	fmt.Printf("nanocat %s\n\n", Version)

	providerOK := "not configured"
	if _, ok := cfg.ProviderFor(cfg.Agent.Provider); ok {
		providerOK = "configured"
	}
	fmt.Printf("Provider:   %s (%s)\n", cfg.Agent.Provider, providerOK)
	fmt.Printf("Model:      %s\n", modelFor(cfg))
	fmt.Printf("Workspace:  %s\n", cfg.WorkspacePath())
	fmt.Printf("Browser:    %s\n", onOff(cfg.Tools.Browser.Enabled))
	fmt.Printf("Discord:    %s\n", onOff(cfg.Channels.Discord.Enabled))
	fmt.Printf("MCP:        %d server(s)\n", len(cfg.MCP.Servers))

	sess := sessions.NewManager(config.ExpandHome(cfg.Sessions.Storage))
	fmt.Printf("Sessions:   %d\n", len(sess.List()))

	jobs := cron.NewService(cfg.CronFile(), nil).List()
	enabled := 0
	for _, j := range jobs {
		if j.Enabled {
			enabled++
		}
	}
	fmt.Printf("Cron jobs:  %d (%d enabled)\n", len(jobs), enabled)

	return nil
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
