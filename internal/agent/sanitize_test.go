package agent

import (
	"strings"
	"testing"

	"github.com/nanocat-ai/nanocat/internal/providers"
)

func TestStripThink(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<think>reasoning</think>answer", "answer"},
		{"before <think>a\nb\nc</think> after", "before  after"},
		{"no tags here", "no tags here"},
		{"<think>only thinking</think>", ""},
		{"<think>one</think>mid<think>two</think>end", "midend"},
	}
	for _, tt := range tests {
		if got := StripThink(tt.in); got != tt.want {
			t.Errorf("StripThink(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToolHint(t *testing.T) {
	calls := []providers.ToolCall{
		{Name: "web_search", Arguments: map[string]interface{}{"query": "golang slog"}},
		{Name: "read_file", Arguments: map[string]interface{}{"path": "notes.md"}},
	}
	got := ToolHint(calls)
	want := `web_search("golang slog"), read_file("notes.md")`
	if got != want {
		t.Errorf("ToolHint = %q, want %q", got, want)
	}
}

func TestToolHintTruncatesLongArgs(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := ToolHint([]providers.ToolCall{{Name: "exec", Arguments: map[string]interface{}{"command": long}}})
	if !strings.Contains(got, "…") {
		t.Errorf("long arg not truncated: %q", got)
	}
	if strings.Contains(got, long) {
		t.Error("full arg should not appear")
	}
}

func TestToolHintNoStringArgs(t *testing.T) {
	got := ToolHint([]providers.ToolCall{{Name: "wait", Arguments: map[string]interface{}{"seconds": 2.0}}})
	if got != "wait" {
		t.Errorf("got %q, want bare name", got)
	}
}
