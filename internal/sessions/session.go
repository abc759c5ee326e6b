package sessions

import (
	"time"

	"github.com/nanocat-ai/nanocat/internal/providers"
)

// Message is one conversation entry as stored on disk. It mirrors
// providers.Message plus bookkeeping the consolidator needs: a timestamp
// and, on assistant messages, the names of tools used during that turn.
type Message struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	Timestamp  time.Time            `json:"timestamp"`
	ToolCalls  []providers.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Name       string               `json:"name,omitempty"`
	ToolsUsed  []string             `json:"tools_used,omitempty"`
}

// Session stores conversation history for one channel:chat_id pair.
//
// LastConsolidated is a cursor into Messages: everything before it has
// already been written into long-term memory and must not be consolidated
// again. Clear resets it to zero together with the history.
type Session struct {
	Key              string                 `json:"key"`
	Messages         []Message              `json:"messages"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
	LastConsolidated int                    `json:"last_consolidated"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// IsIsolated reports whether this session was created by the session tool
// as an isolated workspace (no shared memory context).
func (s *Session) IsIsolated() bool {
	if s.Metadata == nil {
		return false
	}
	v, _ := s.Metadata["isolated"].(bool)
	return v
}

// ToProviderMessage converts a stored message for an LLM request.
func (m Message) ToProviderMessage() providers.Message {
	return providers.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
}

// SessionInfo is a lightweight session descriptor for listing.
type SessionInfo struct {
	Key              string    `json:"key"`
	MessageCount     int       `json:"message_count"`
	LastConsolidated int       `json:"last_consolidated"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Isolated         bool      `json:"isolated,omitempty"`
}
