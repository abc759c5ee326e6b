package agent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nanocat-ai/nanocat/internal/providers"
)

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes <think>...</think> blocks that some models embed in
// their content before the visible answer.
func StripThink(text string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(text, ""))
}

// ToolHint formats tool calls as a concise progress line, e.g.
// `web_search("golang slog")`. The first string argument is shown,
// truncated to 40 runes.
func ToolHint(calls []providers.ToolCall) string {
	parts := make([]string, 0, len(calls))
	for _, tc := range calls {
		parts = append(parts, formatCallHint(tc))
	}
	return strings.Join(parts, ", ")
}

func formatCallHint(tc providers.ToolCall) string {
	keys := make([]string, 0, len(tc.Arguments))
	for k := range tc.Arguments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var val string
	found := false
	for _, k := range keys {
		if s, ok := tc.Arguments[k].(string); ok {
			val = s
			found = true
			break
		}
	}
	if !found {
		return tc.Name
	}
	runes := []rune(val)
	if len(runes) > 40 {
		return fmt.Sprintf("%s(%q…)", tc.Name, string(runes[:40]))
	}
	return fmt.Sprintf("%s(%q)", tc.Name, val)
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
