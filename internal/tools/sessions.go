package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nanocat-ai/nanocat/internal/sessions"
)

// SessionTool manages conversation sessions: isolated scratch sessions for
// side work, plus listing and cleanup of existing ones.
type SessionTool struct {
	manager *sessions.Manager

	// SwitchFunc points the agent's active session for the current chat at
	// another key. Wired by the loop; nil disables the switch action.
	SwitchFunc func(ctx context.Context, targetKey string) error
}

func NewSessionTool(manager *sessions.Manager) *SessionTool {
	return &SessionTool{manager: manager}
}

func (t *SessionTool) Name() string { return "session" }
func (t *SessionTool) Description() string {
	return "Manage conversation sessions: create an isolated session, list, inspect, switch, clear, or delete"
}
func (t *SessionTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"create", "list", "info", "switch", "clear", "delete"},
				"description": "The session operation to perform",
			},
			"key": map[string]interface{}{
				"type":        "string",
				"description": "Session key for info/switch/clear/delete",
			},
		},
		"required": []string{"action"},
	}
}

func (t *SessionTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)
	key, _ := args["key"].(string)

	switch action {
	case "create":
		newKey := "isolated:" + uuid.NewString()
		t.manager.GetOrCreate(newKey)
		t.manager.SetMetadata(newKey, "isolated", true)
		return SilentResult(fmt.Sprintf("Created isolated session %s", newKey))

	case "list":
		infos := t.manager.List()
		if len(infos) == 0 {
			return SilentResult("No sessions.")
		}
		var b strings.Builder
		for _, info := range infos {
			flag := ""
			if info.Isolated {
				flag = " [isolated]"
			}
			fmt.Fprintf(&b, "%s: %d messages, updated %s%s\n",
				info.Key, info.MessageCount, info.UpdatedAt.Format("2006-01-02 15:04"), flag)
		}
		return SilentResult(b.String())

	case "info":
		if key == "" {
			return ErrorResult("key is required for info")
		}
		info := t.manager.Info(key)
		if info == nil {
			return ErrorResult(fmt.Sprintf("session not found: %s", key))
		}
		return SilentResult(fmt.Sprintf(
			"key: %s\nmessages: %d\nconsolidated up to: %d\ncreated: %s\nupdated: %s\nisolated: %v",
			info.Key, info.MessageCount, info.LastConsolidated,
			info.CreatedAt.Format("2006-01-02 15:04"),
			info.UpdatedAt.Format("2006-01-02 15:04"),
			info.Isolated))

	case "switch":
		if key == "" {
			return ErrorResult("key is required for switch")
		}
		if t.SwitchFunc == nil {
			return ErrorResult("session switching is not available here")
		}
		if t.manager.Info(key) == nil {
			return ErrorResult(fmt.Sprintf("session not found: %s", key))
		}
		if err := t.SwitchFunc(ctx, key); err != nil {
			return ErrorResult(fmt.Sprintf("switch failed: %v", err))
		}
		return SilentResult(fmt.Sprintf("Switched to session %s", key))

	case "clear":
		if key == "" {
			return ErrorResult("key is required for clear")
		}
		t.manager.Clear(key)
		return SilentResult(fmt.Sprintf("Cleared session %s", key))

	case "delete":
		if key == "" {
			return ErrorResult("key is required for delete")
		}
		if err := t.manager.Delete(key); err != nil {
			return ErrorResult(fmt.Sprintf("delete failed: %v", err))
		}
		return SilentResult(fmt.Sprintf("Deleted session %s", key))

	default:
		return ErrorResult(fmt.Sprintf("unknown action: %s", action))
	}
}
