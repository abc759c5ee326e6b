package bus

import "strings"

// InboundMessage represents a message received from a channel (Discord, CLI, etc.)
type InboundMessage struct {
	Channel  string            `json:"channel"`
	SenderID string            `json:"sender_id"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Media    []string          `json:"media,omitempty"` // local file paths for attachments
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SessionKey returns the conversation key for this message: "channel:chat_id".
// System messages carry their true destination inside ChatID and are resolved
// by the agent loop instead.
func (m InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Media    []string          `json:"media,omitempty"`    // file paths or URLs to attach
	ReplyTo  string            `json:"reply_to,omitempty"` // message ID to reply to
	Metadata map[string]string `json:"metadata,omitempty"` // channel-specific metadata
}

// IsProgress reports whether this is an intermediate emission that does not
// conclude a turn. Channels may render these distinctly (italic, ephemeral).
func (m OutboundMessage) IsProgress() bool {
	return m.Metadata["_progress"] == "true"
}

// SystemChatID encodes an origin destination into the chat_id of a
// system-channel message so the agent loop can route the reply back.
func SystemChatID(originChannel, originChatID string) string {
	return originChannel + ":" + originChatID
}

// SplitSystemChatID parses a system-channel chat_id back into its origin.
// Falls back to the CLI channel when no separator is present.
func SplitSystemChatID(chatID string) (channel, origin string) {
	if i := strings.Index(chatID, ":"); i >= 0 {
		return chatID[:i], chatID[i+1:]
	}
	return "cli", chatID
}
