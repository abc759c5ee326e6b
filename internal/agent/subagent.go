package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nanocat-ai/nanocat/internal/bus"
	"github.com/nanocat-ai/nanocat/internal/providers"
	"github.com/nanocat-ai/nanocat/internal/tools"
)

// SubagentManager runs background tasks in detached goroutines. Each
// subagent gets its own bounded tool-calling loop; when it finishes, the
// result comes back to the main loop as a system-channel message routed to
// the originating conversation.
type SubagentManager struct {
	provider providers.Provider
	bus      *bus.MessageBus
	tools    *tools.Registry
	cfg      Config
	max      int

	mu     sync.Mutex
	active map[string]string // id -> task preview
}

func NewSubagentManager(provider providers.Provider, b *bus.MessageBus, registry *tools.Registry, cfg Config, maxSubagents int) *SubagentManager {
	if maxSubagents <= 0 {
		maxSubagents = 5
	}
	return &SubagentManager{
		provider: provider,
		bus:      b,
		tools:    registry,
		cfg:      cfg,
		max:      maxSubagents,
		active:   make(map[string]string),
	}
}

// Spawn starts a background task and returns its id. Implements
// tools.SpawnFunc.
func (m *SubagentManager) Spawn(ctx context.Context, task, originChannel, originChatID string) (string, error) {
	m.mu.Lock()
	if len(m.active) >= m.max {
		n := len(m.active)
		m.mu.Unlock()
		return "", fmt.Errorf("too many active subagents (%d), wait for one to finish", n)
	}
	id := uuid.NewString()[:8]
	m.active[id] = truncateRunes(task, 60)
	m.mu.Unlock()

	slog.Info("subagent spawned", "id", id, "task", truncateRunes(task, 80))

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.active, id)
			m.mu.Unlock()
		}()
		m.run(context.WithoutCancel(ctx), id, task, originChannel, originChatID)
	}()

	return id, nil
}

// Active lists running subagents as "id: task" lines.
func (m *SubagentManager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.active))
	for id, task := range m.active {
		out = append(out, fmt.Sprintf("%s: %s", id, task))
	}
	sort.Strings(out)
	return out
}

func (m *SubagentManager) run(ctx context.Context, id, task, originChannel, originChatID string) {
	result := m.execute(ctx, task)

	m.bus.PublishInbound(bus.InboundMessage{
		Channel:  "system",
		SenderID: "subagent:" + id,
		ChatID:   bus.SystemChatID(originChannel, originChatID),
		Content:  fmt.Sprintf("Subagent task finished.\nTask: %s\nResult: %s", task, result),
	})
}

// execute runs a bounded tool loop for the task, without the main loop's
// forcing and planning machinery.
func (m *SubagentManager) execute(ctx context.Context, task string) string {
	messages := []providers.Message{
		{Role: "system", Content: m.systemPrompt()},
		{Role: "user", Content: task},
	}

	maxIterations := m.cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 20
	}

	for iteration := 1; iteration <= maxIterations; iteration++ {
		resp, err := m.provider.Chat(ctx, providers.ChatRequest{
			Messages:    messages,
			Tools:       m.tools.Definitions(),
			Model:       m.cfg.Model,
			Temperature: m.cfg.Temperature,
			MaxTokens:   m.cfg.MaxTokens,
		})
		if err != nil {
			slog.Error("subagent LLM call failed", "iteration", iteration, "error", err)
			return fmt.Sprintf("failed: %v", err)
		}

		if !resp.HasToolCalls() {
			if final := StripThink(resp.Content); final != "" {
				return final
			}
			return "completed with no output"
		}

		messages = AddAssistantMessage(messages, resp.Content, resp.ToolCalls, resp.ReasoningContent)
		for _, call := range resp.ToolCalls {
			result := m.tools.Execute(ctx, call.Name, call.Arguments)
			messages = AddToolResult(messages, call.ID, call.Name, result.ForLLM)
		}
	}

	return "stopped after reaching the iteration limit"
}

func (m *SubagentManager) systemPrompt() string {
	return strings.TrimSpace(fmt.Sprintf(`# nanocat subagent

You are a background subagent of nanocat. Complete the assigned task using
the available tools and report a concise result.

Rules:
- Work autonomously; no user is watching.
- Your final text response is delivered back to the main agent, so make it
  a complete, self-contained summary of what you did and found.
- Workspace: %s`, m.cfg.Workspace))
}
