package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/titanous/json5"

	"github.com/nanocat-ai/nanocat/internal/providers"
	"github.com/nanocat-ai/nanocat/internal/sessions"
)

const consolidationPromptFmt = `You are a memory consolidation agent. Process this conversation and return a JSON object with exactly two keys:

1. "history_entry": A paragraph (2-5 sentences) summarizing the key events/decisions/topics. Start with a timestamp like [YYYY-MM-DD HH:MM]. Include enough detail to be useful when found by grep search later.

2. "memory_update": The updated long-term memory content. Add any new facts: user location, preferences, personal info, habits, project context, technical decisions, tools/services used. If nothing new, return the existing content unchanged.

## Current Long-term Memory
%s

## Conversation to Process
%s

**IMPORTANT**: Both values MUST be strings, not objects or arrays.

Example:
{
  "history_entry": "[2026-02-14 22:50] User asked about...",
  "memory_update": "- Host: HARRYBOOK-T14P\n- Name: Nado"
}

Respond with ONLY valid JSON, no markdown fences.`

// maybeConsolidate kicks off a background consolidation for key when its
// history has outgrown the window.
func (l *Loop) maybeConsolidate(ctx context.Context, key string) {
	info := l.sessions.Info(key)
	if info == nil || info.MessageCount <= l.cfg.HistoryWindow {
		return
	}
	l.startConsolidation(ctx, key, l.sessions.Snapshot(key), false)
}

// startConsolidation runs consolidation for snap in the background. At most
// one consolidation per session key is in flight at a time; a second request
// while one is running is dropped and reported as false.
func (l *Loop) startConsolidation(ctx context.Context, key string, snap *sessions.Session, archiveAll bool) bool {
	l.mu.Lock()
	if l.consolidating[key] {
		l.mu.Unlock()
		return false
	}
	l.consolidating[key] = true
	l.mu.Unlock()

	go func() {
		defer func() {
			l.mu.Lock()
			delete(l.consolidating, key)
			l.mu.Unlock()
		}()
		l.consolidate(context.WithoutCancel(ctx), key, snap, archiveAll)
	}()
	return true
}

// consolidate folds old messages into MEMORY.md and HISTORY.md via the LLM,
// then advances the session's consolidation cursor. With archiveAll set the
// whole snapshot is archived and the cursor is left at zero (the /new path,
// which has already cleared the session). Errors are logged and swallowed:
// consolidation is best-effort background work.
func (l *Loop) consolidate(ctx context.Context, key string, snap *sessions.Session, archiveAll bool) {
	if snap == nil {
		return
	}
	mem := l.context.Memory()

	var old []sessions.Message
	keep := 0
	if archiveAll {
		old = snap.Messages
		slog.Info("memory consolidation (archive all)", "session", key, "messages", len(old))
	} else {
		keep = l.cfg.HistoryWindow / 2
		if len(snap.Messages) <= keep {
			return
		}
		start := snap.LastConsolidated
		end := len(snap.Messages) - keep
		if start >= end {
			slog.Debug("no new messages to consolidate", "session", key, "cursor", start)
			return
		}
		old = snap.Messages[start:end]
		slog.Info("memory consolidation started",
			"session", key, "total", len(snap.Messages), "new", len(old), "keep", keep)
	}
	if len(old) == 0 {
		return
	}

	conversation := renderConversation(old)
	current := mem.ReadMemory()
	currentLabel := current
	if currentLabel == "" {
		currentLabel = "(empty)"
	}

	model := l.cfg.ConsolidationModel
	if model == "" {
		model = l.cfg.Model
	}
	resp, err := l.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: "You are a memory consolidation agent. Respond only with valid JSON."},
			{Role: "user", Content: fmt.Sprintf(consolidationPromptFmt, currentLabel, conversation)},
		},
		Model: model,
	})
	if err != nil {
		slog.Error("memory consolidation failed", "session", key, "error", err)
		return
	}

	entry, update, err := parseConsolidation(resp.Content)
	if err != nil {
		slog.Warn("memory consolidation: unusable response", "session", key, "error", err)
		return
	}

	if entry != "" {
		if err := mem.AppendHistory(entry); err != nil {
			slog.Error("history append failed", "error", err)
		}
	}
	if update != "" && update != current {
		if err := mem.WriteMemory(update); err != nil {
			slog.Error("memory write failed", "error", err)
		}
	}

	if !archiveAll {
		cursor := len(snap.Messages) - keep
		if cursor < 0 {
			cursor = 0
		}
		l.sessions.SetLastConsolidated(key, cursor)
		slog.Info("memory consolidation done", "session", key, "cursor", cursor)
	}
}

// renderConversation formats messages for the consolidation prompt, one
// line per message with timestamp, role, and tools used.
func renderConversation(msgs []sessions.Message) string {
	var lines []string
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		tools := ""
		if len(m.ToolsUsed) > 0 {
			tools = fmt.Sprintf(" [tools: %s]", strings.Join(m.ToolsUsed, ", "))
		}
		ts := "?"
		if !m.Timestamp.IsZero() {
			ts = m.Timestamp.Format("2006-01-02 15:04")
		}
		lines = append(lines, fmt.Sprintf("[%s] %s%s: %s", ts, strings.ToUpper(m.Role), tools, m.Content))
	}
	return strings.Join(lines, "\n")
}

// parseConsolidation extracts history_entry and memory_update from the
// LLM's reply, tolerating markdown fences and loosely formatted JSON.
func parseConsolidation(text string) (entry, update string, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", fmt.Errorf("empty response")
	}
	if strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "\n"); i >= 0 {
			text = text[i+1:]
		}
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}

	var result map[string]interface{}
	if err := json5.Unmarshal([]byte(text), &result); err != nil {
		return "", "", fmt.Errorf("parse: %w", err)
	}
	return stringify(result["history_entry"]), stringify(result["memory_update"]), nil
}

// stringify coerces a value to a string; models sometimes return objects
// where strings were asked for.
func stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
