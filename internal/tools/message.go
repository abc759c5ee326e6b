package tools

import (
	"context"
	"sync/atomic"

	"github.com/nanocat-ai/nanocat/internal/bus"
)

// SentLatch records that the agent already messaged the user during the
// current turn. The loop creates a fresh latch per inbound message and
// suppresses the final outbound when it is set, so the user does not get
// the same content twice.
type SentLatch struct {
	sent atomic.Bool
}

func (l *SentLatch) Mark()     { l.sent.Store(true) }
func (l *SentLatch) Set() bool { return l.sent.Load() }

const ctxSentLatch toolContextKey = "tool_sent_latch"

func WithSentLatch(ctx context.Context, l *SentLatch) context.Context {
	return context.WithValue(ctx, ctxSentLatch, l)
}

func SentLatchFromCtx(ctx context.Context) *SentLatch {
	v, _ := ctx.Value(ctxSentLatch).(*SentLatch)
	return v
}

// MessageTool sends a message to the user mid-turn, before the agent loop
// finishes. Useful for progress updates during long tool chains.
type MessageTool struct {
	bus *bus.MessageBus
}

func NewMessageTool(b *bus.MessageBus) *MessageTool {
	return &MessageTool{bus: b}
}

func (t *MessageTool) Name() string { return "message" }
func (t *MessageTool) Description() string {
	return "Send a message to the user immediately, without waiting for the turn to finish"
}
func (t *MessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The message text to send",
			},
			"media": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Optional file paths to attach",
			},
		},
		"required": []string{"content"},
	}
}

func (t *MessageTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	content, _ := args["content"].(string)
	if content == "" {
		return ErrorResult("content is required")
	}

	channel := ChannelFromCtx(ctx)
	chatID := ChatIDFromCtx(ctx)
	if channel == "" || chatID == "" {
		return ErrorResult("no delivery target in context")
	}

	var media []string
	if raw, ok := args["media"].([]interface{}); ok {
		for _, m := range raw {
			if s, ok := m.(string); ok && s != "" {
				media = append(media, s)
			}
		}
	}

	t.bus.PublishOutbound(bus.OutboundMessage{
		Channel: channel,
		ChatID:  chatID,
		Content: content,
		Media:   media,
	})

	if latch := SentLatchFromCtx(ctx); latch != nil {
		latch.Mark()
	}
	return SilentResult("Message sent to user.")
}
