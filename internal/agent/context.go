package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/nanocat-ai/nanocat/internal/memory"
	"github.com/nanocat-ai/nanocat/internal/providers"
	"github.com/nanocat-ai/nanocat/internal/sessions"
	"github.com/nanocat-ai/nanocat/internal/skills"
)

// bootstrapFiles are workspace documents folded into the system prompt,
// in this order, when they exist.
var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// ContextBuilder assembles the system prompt and message list for an LLM
// call: identity, bootstrap files, long-term memory, skills, history, and
// the current user message with any image attachments.
type ContextBuilder struct {
	workspace string
	memory    *memory.Store
	skills    *skills.Loader
}

func NewContextBuilder(workspace string, mem *memory.Store, sk *skills.Loader) *ContextBuilder {
	return &ContextBuilder{workspace: workspace, memory: mem, skills: sk}
}

// Memory exposes the builder's memory store for the consolidator.
func (b *ContextBuilder) Memory() *memory.Store { return b.memory }

// BuildSystemPrompt renders the full system prompt. Isolated sessions skip
// the shared long-term memory so their context stays self-contained.
func (b *ContextBuilder) BuildSystemPrompt(isolated bool) string {
	parts := []string{b.identity()}

	if bootstrap := b.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}

	if isolated {
		parts = append(parts, "## Isolated Session\nThis session is isolated: long-term memory is not loaded and nothing here is consolidated into it.")
	} else if mem := b.memory.MemoryContext(); mem != "" {
		parts = append(parts, "# Memory\n\n"+mem)
	}

	if b.skills != nil {
		if always := b.skills.AlwaysContent(); len(always) > 0 {
			parts = append(parts, "# Active Skills\n\n"+strings.Join(always, "\n\n"))
		}
		if summary := b.skills.SummaryTable(); summary != "" {
			parts = append(parts, "# Skills\n\nThe following skills extend your capabilities. To use a skill, read its SKILL.md file using the read_file tool.\n\n"+summary)
		}
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (b *ContextBuilder) identity() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	zone, _ := time.Now().Zone()
	if zone == "" {
		zone = "UTC"
	}
	ws := b.workspace

	return fmt.Sprintf(`# nanocat 🐈

You are nanocat, a helpful AI assistant. You have access to tools that allow you to:
- Read, write, and edit files
- Execute shell commands
- Search the web and fetch web pages
- Control a real web browser
- Send messages to users on chat channels
- Spawn subagents for complex background tasks

## Current Time
%s (%s)

## Runtime
%s %s, %s

## Workspace
Your workspace is at: %s
- Long-term memory: %s/memory/MEMORY.md
- History log: %s/memory/HISTORY.md (grep-searchable)
- Custom skills: %s/skills/{skill-name}/SKILL.md

IMPORTANT: When responding to direct questions or conversations, reply directly with your text response.
Only use the 'message' tool when you need to send a message to a specific chat channel.
For normal conversation, just respond with text - do not call the message tool.

Always be helpful, accurate, and concise. Before calling tools, briefly tell the user what you're about to do (one short sentence in the user's language).
When remembering something important, write to %s/memory/MEMORY.md
To recall past events, grep %s/memory/HISTORY.md`,
		now, zone,
		runtime.GOOS, runtime.GOARCH, runtime.Version(),
		ws, ws, ws, ws, ws, ws)
}

func (b *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(b.workspace, name))
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages assembles the complete message list for one LLM call:
// system prompt, prior history, and the current user message with any
// image attachments encoded inline.
func (b *ContextBuilder) BuildMessages(history []sessions.Message, current string, media []string, channel, chatID string, isolated bool) []providers.Message {
	msgs := make([]providers.Message, 0, len(history)+2)

	system := b.BuildSystemPrompt(isolated)
	if channel != "" && chatID != "" {
		system += fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}
	msgs = append(msgs, providers.Message{Role: "system", Content: system})

	for _, m := range sanitizeHistory(history) {
		msgs = append(msgs, m.ToProviderMessage())
	}

	user := providers.Message{Role: "user", Content: current}
	user.Images = encodeMediaImages(media)
	return append(msgs, user)
}

// sanitizeHistory drops tool messages whose originating assistant turn is
// not present. History windowing can cut a turn in half, and strict
// providers reject a tool message with no matching tool_calls before it.
func sanitizeHistory(history []sessions.Message) []sessions.Message {
	out := make([]sessions.Message, 0, len(history))
	pending := make(map[string]bool)
	for _, m := range history {
		switch m.Role {
		case "assistant":
			for _, c := range m.ToolCalls {
				pending[c.ID] = true
			}
		case "tool":
			if !pending[m.ToolCallID] {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// AddAssistantMessage appends an assistant turn. Content is always present,
// even when empty: some strict providers reject assistant messages that
// omit the key entirely.
func AddAssistantMessage(msgs []providers.Message, content string, toolCalls []providers.ToolCall, reasoning string) []providers.Message {
	return append(msgs, providers.Message{
		Role:             "assistant",
		Content:          content,
		ToolCalls:        toolCalls,
		ReasoningContent: reasoning,
	})
}

// AddToolResult appends a tool-role message carrying an execution result.
func AddToolResult(msgs []providers.Message, callID, toolName, result string) []providers.Message {
	return append(msgs, providers.Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: callID,
		Name:       toolName,
	})
}
