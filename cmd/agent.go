package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

const cliSessionKey = "cli:direct"

func agentCmd() *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Chat with the agent in the terminal",
		Run: func(cmd *cobra.Command, args []string) {
			rt, err := buildRuntime()
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			defer rt.close()

			if message != "" {
				runOnce(rt, message)
				return
			}
			runREPL(rt)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and exit")
	return cmd
}

func runOnce(rt *runtime, message string) {
	resp, err := rt.loop.ProcessDirect(context.Background(), message, cliSessionKey, "cli", "direct", printProgress)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Println(resp)
}

func runREPL(rt *runtime) {
	fmt.Printf("🐈 nanocat %s (type 'exit' to quit, /help for commands)\n", Version)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		resp, err := rt.loop.ProcessDirect(context.Background(), line, cliSessionKey, "cli", "direct", printProgress)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			continue
		}
		if resp != "" {
			fmt.Println(resp)
		}
	}
}

// printProgress shows intermediate agent output on one dim line each,
// truncated so tool spam does not wrap the terminal.
func printProgress(text string) {
	line := strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	if line == "" {
		return
	}
	fmt.Printf("\033[2m  %s\033[0m\n", runewidth.Truncate(line, 100, "…"))
}
