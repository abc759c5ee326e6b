package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the agent with all configured channels",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	rt, err := buildRuntime()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.skills.Watch(); err != nil {
		slog.Warn("skill hot-reload unavailable", "error", err)
	}
	rt.cron.Start()

	if err := rt.channels.StartAll(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	slog.Info("nanocat gateway running", "version", Version, "workspace", rt.cfg.WorkspacePath())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := rt.loop.Run(ctx); err != nil {
			slog.Error("agent loop exited", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	stop()

	rt.loop.Stop()
	<-done
	if err := rt.channels.StopAll(context.Background()); err != nil {
		slog.Warn("channel shutdown", "error", err)
	}
}
