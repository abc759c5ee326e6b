// Package channels connects external chat platforms to the agent runtime
// via the message bus.
package channels

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/nanocat-ai/nanocat/internal/bus"
)

// internalChannels never receive outbound dispatch; their messages are
// consumed elsewhere (the CLI reads replies itself, system messages loop
// back into the agent).
var internalChannels = map[string]bool{
	"cli":    true,
	"system": true,
}

// IsInternal reports whether a channel name is internal.
func IsInternal(name string) bool {
	return internalChannels[name]
}

// Channel is the contract every platform adapter satisfies.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord").
	Name() string

	// Start begins listening for messages. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning reports whether the channel is processing messages.
	IsRunning() bool
}

// BaseChannel carries the shared plumbing platform adapters embed: name,
// bus access, running state, and the sender allowlist.
type BaseChannel struct {
	name      string
	bus       *bus.MessageBus
	running   atomic.Bool
	allowList []string
}

func NewBaseChannel(name string, msgBus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus, allowList: allowList}
}

func (c *BaseChannel) Name() string            { return c.name }
func (c *BaseChannel) IsRunning() bool         { return c.running.Load() }
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }
func (c *BaseChannel) Bus() *bus.MessageBus    { return c.bus }

// IsAllowed checks the sender against the allowlist. An empty allowlist
// admits everyone. Entries match the sender id or, with a leading "@",
// the username carried in a compound "id|username" sender.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		if senderID == allowed || senderID == trimmed ||
			idPart == allowed || idPart == trimmed ||
			(userPart != "" && (userPart == allowed || userPart == trimmed)) {
			return true
		}
	}
	return false
}

// HandleMessage publishes a received message to the bus after the
// allowlist check. The standard inbound path for adapters.
func (c *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]string) {
	if !c.IsAllowed(senderID) {
		return
	}
	c.bus.PublishInbound(bus.InboundMessage{
		Channel:  c.name,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
		Media:    media,
		Metadata: metadata,
	})
}

// Truncate shortens a string to maxLen characters, appending "..." if cut.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
