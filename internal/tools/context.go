package tools

import "context"

// Tool execution context keys. Per-message values (origin channel, chat id)
// travel in ctx instead of mutable tool fields so tools stay safe under
// concurrent execution.

type toolContextKey string

const (
	ctxChannel   toolContextKey = "tool_channel"
	ctxChatID    toolContextKey = "tool_chat_id"
	ctxMessageID toolContextKey = "tool_message_id"
)

func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ctxChannel, channel)
}

func ChannelFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxChannel).(string)
	return v
}

func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, ctxChatID, chatID)
}

func ChatIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxChatID).(string)
	return v
}

func WithMessageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxMessageID, id)
}

func MessageIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxMessageID).(string)
	return v
}
