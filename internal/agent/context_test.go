package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nanocat-ai/nanocat/internal/memory"
	"github.com/nanocat-ai/nanocat/internal/providers"
	"github.com/nanocat-ai/nanocat/internal/sessions"
	"github.com/nanocat-ai/nanocat/internal/skills"
)

func newTestBuilder(t *testing.T) (*ContextBuilder, string) {
	t.Helper()
	ws := t.TempDir()
	mem := memory.NewStore(filepath.Join(ws, "memory"))
	sk := skills.NewLoader(filepath.Join(ws, "skills"))
	return NewContextBuilder(ws, mem, sk), ws
}

func TestBuildSystemPromptIncludesBootstrapAndMemory(t *testing.T) {
	b, ws := newTestBuilder(t)

	os.WriteFile(filepath.Join(ws, "AGENTS.md"), []byte("follow the house rules"), 0644)
	if err := b.Memory().WriteMemory("- User prefers tea"); err != nil {
		t.Fatal(err)
	}

	prompt := b.BuildSystemPrompt(false)
	for _, want := range []string{
		"You are nanocat",
		"## AGENTS.md",
		"follow the house rules",
		"User prefers tea",
		"## Current Time",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildSystemPromptIsolatedSkipsMemory(t *testing.T) {
	b, _ := newTestBuilder(t)
	if err := b.Memory().WriteMemory("- secret fact"); err != nil {
		t.Fatal(err)
	}

	prompt := b.BuildSystemPrompt(true)
	if strings.Contains(prompt, "secret fact") {
		t.Error("isolated prompt should not carry long-term memory")
	}
	if !strings.Contains(prompt, "Isolated Session") {
		t.Error("isolated prompt should announce isolation")
	}
}

func TestBuildMessagesOrderAndSessionBlock(t *testing.T) {
	b, _ := newTestBuilder(t)

	history := []sessions.Message{
		{Role: "user", Content: "hi", Timestamp: time.Now()},
		{Role: "assistant", Content: "hello", Timestamp: time.Now()},
	}
	msgs := b.BuildMessages(history, "what now?", nil, "discord", "chan42", false)

	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	if msgs[0].Role != "system" {
		t.Errorf("first role = %s", msgs[0].Role)
	}
	if !strings.Contains(msgs[0].Content, "Channel: discord") || !strings.Contains(msgs[0].Content, "Chat ID: chan42") {
		t.Error("system prompt missing session block")
	}
	if msgs[1].Content != "hi" || msgs[2].Content != "hello" {
		t.Error("history out of order")
	}
	if msgs[3].Role != "user" || msgs[3].Content != "what now?" {
		t.Errorf("last message = %+v", msgs[3])
	}
}

func TestBuildMessagesDropsOrphanToolMessages(t *testing.T) {
	b, _ := newTestBuilder(t)

	// A window that starts mid-turn: the assistant turn that produced
	// call_0 fell outside it.
	history := []sessions.Message{
		{Role: "tool", Content: "stale result", ToolCallID: "call_0", Name: "lookup"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", ToolCalls: []providers.ToolCall{{ID: "call_1", Name: "lookup"}}},
		{Role: "tool", Content: "fresh result", ToolCallID: "call_1", Name: "lookup"},
		{Role: "assistant", Content: "done"},
	}
	msgs := b.BuildMessages(history, "next", nil, "", "", false)

	for _, m := range msgs {
		if m.Role == "tool" && m.ToolCallID == "call_0" {
			t.Error("orphan tool message survived")
		}
	}
	var keptFresh bool
	for _, m := range msgs {
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			keptFresh = true
		}
	}
	if !keptFresh {
		t.Error("paired tool message dropped")
	}
	// system + 4 history + current user
	if len(msgs) != 6 {
		t.Errorf("len = %d, want 6", len(msgs))
	}
}

func TestAddHelpers(t *testing.T) {
	msgs := AddAssistantMessage(nil, "", nil, "")
	if len(msgs) != 1 || msgs[0].Role != "assistant" {
		t.Fatalf("assistant message = %+v", msgs)
	}

	msgs = AddToolResult(msgs, "call_1", "exec", "ok")
	last := msgs[len(msgs)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" || last.Name != "exec" || last.Content != "ok" {
		t.Errorf("tool message = %+v", last)
	}
}
