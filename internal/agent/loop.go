package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/nanocat-ai/nanocat/internal/bus"
	"github.com/nanocat-ai/nanocat/internal/providers"
	"github.com/nanocat-ai/nanocat/internal/sessions"
	"github.com/nanocat-ai/nanocat/internal/tools"
)

// MCPConnector lazily attaches MCP-discovered tools to the registry.
// Connect is called before the first message and again on later messages
// until it succeeds.
type MCPConnector interface {
	Connect(ctx context.Context) error
}

// ProgressFunc receives intermediate output (pre-tool text, tool hints)
// while a turn is still running.
type ProgressFunc func(content string)

// Config holds the agent loop's tunables.
type Config struct {
	Workspace          string
	Model              string
	MaxIterations      int
	Temperature        float64
	MaxTokens          int
	HistoryWindow      int
	ConsolidationModel string
}

// Loop is the core processing engine. It consumes inbound messages from
// the bus, builds context (history, memory, skills), drives the LLM through
// tool-calling iterations, and publishes the response outbound.
type Loop struct {
	bus      *bus.MessageBus
	provider providers.Provider
	cfg      Config
	sessions *sessions.Manager
	context  *ContextBuilder
	tools    *tools.Registry
	mcp      MCPConnector

	running atomic.Bool

	mu            sync.Mutex
	consolidating map[string]bool   // session keys with consolidation in flight
	switched      map[string]string // channel:chat_id -> overridden session key
}

func NewLoop(b *bus.MessageBus, provider providers.Provider, cfg Config, sess *sessions.Manager, ctxBuilder *ContextBuilder, registry *tools.Registry) *Loop {
	if cfg.Model == "" {
		cfg.Model = provider.DefaultModel()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 20
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 50
	}
	return &Loop{
		bus:           b,
		provider:      provider,
		cfg:           cfg,
		sessions:      sess,
		context:       ctxBuilder,
		tools:         registry,
		consolidating: make(map[string]bool),
		switched:      make(map[string]string),
	}
}

// SetMCP attaches an MCP connector; safe to leave unset.
func (l *Loop) SetMCP(m MCPConnector) { l.mcp = m }

// Tools returns the loop's tool registry.
func (l *Loop) Tools() *tools.Registry { return l.tools }

// Run consumes inbound messages until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	l.connectMCP(ctx)
	slog.Info("agent loop started", "model", l.cfg.Model)

	for l.running.Load() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, err := l.bus.ConsumeInbound(time.Second)
		if err == bus.ErrTimeout {
			continue
		}
		if err != nil {
			return err
		}

		resp, err := l.processMessage(ctx, msg, "", nil)
		if err != nil {
			slog.Error("message processing failed", "channel", msg.Channel, "error", err)
			l.bus.PublishOutbound(bus.OutboundMessage{
				Channel: msg.Channel,
				ChatID:  msg.ChatID,
				Content: fmt.Sprintf("Sorry, I encountered an error: %v", err),
			})
			continue
		}
		if resp != nil && resp.Content != "" {
			l.bus.PublishOutbound(*resp)
		}
	}
	return nil
}

// Stop makes Run return after the in-flight message finishes.
func (l *Loop) Stop() {
	l.running.Store(false)
	slog.Info("agent loop stopping")
}

// ProcessDirect handles one message synchronously, for the CLI and cron.
func (l *Loop) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string, onProgress ProgressFunc) (string, error) {
	l.connectMCP(ctx)
	msg := bus.InboundMessage{
		Channel:  channel,
		SenderID: "user",
		ChatID:   chatID,
		Content:  content,
	}
	resp, err := l.processMessage(ctx, msg, sessionKey, onProgress)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

// SwitchSession redirects the conversation identified by the tool context
// in ctx onto a different session key. Used by the session tool.
func (l *Loop) SwitchSession(ctx context.Context, targetKey string) error {
	channel := tools.ChannelFromCtx(ctx)
	chatID := tools.ChatIDFromCtx(ctx)
	if channel == "" || chatID == "" {
		return fmt.Errorf("no conversation to switch")
	}
	l.sessions.GetOrCreate(targetKey)
	l.mu.Lock()
	l.switched[channel+":"+chatID] = targetKey
	l.mu.Unlock()
	return nil
}

func (l *Loop) resolveSessionKey(key string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if target, ok := l.switched[key]; ok {
		return target
	}
	return key
}

func (l *Loop) connectMCP(ctx context.Context) {
	if l.mcp == nil {
		return
	}
	if err := l.mcp.Connect(ctx); err != nil {
		slog.Error("MCP connect failed (will retry next message)", "error", err)
	}
}

const helpText = "🐈 nanocat commands:\n/new — Start a new conversation\n/help — Show available commands"

func (l *Loop) processMessage(ctx context.Context, msg bus.InboundMessage, sessionKey string, onProgress ProgressFunc) (*bus.OutboundMessage, error) {
	if msg.Channel == "system" {
		return l.processSystemMessage(ctx, msg)
	}

	slog.Info("processing message",
		"channel", msg.Channel, "sender", msg.SenderID,
		"preview", truncateRunes(msg.Content, 80))

	key := sessionKey
	if key == "" {
		key = l.resolveSessionKey(msg.SessionKey())
	}
	session := l.sessions.GetOrCreate(key)

	switch strings.ToLower(strings.TrimSpace(msg.Content)) {
	case "/new":
		// Snapshot before clearing so the background consolidation sees
		// the history the clear wipes out.
		snap := l.sessions.Snapshot(key)
		l.sessions.Clear(key)
		l.sessions.Invalidate(key)
		l.startConsolidation(ctx, key, snap, true)
		return &bus.OutboundMessage{
			Channel: msg.Channel, ChatID: msg.ChatID,
			Content: "New session started. Memory consolidation in progress.",
		}, nil
	case "/help":
		return &bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: helpText}, nil
	}

	l.maybeConsolidate(ctx, key)

	latch := &tools.SentLatch{}
	toolCtx := l.toolContext(ctx, msg.Channel, msg.ChatID, msg.Metadata["message_id"], latch)

	initial := l.context.BuildMessages(
		l.sessions.GetHistory(key, l.cfg.HistoryWindow),
		msg.Content,
		msg.Media,
		msg.Channel, msg.ChatID,
		session.IsIsolated(),
	)

	if onProgress == nil {
		onProgress = func(content string) {
			meta := map[string]string{"_progress": "true"}
			for k, v := range msg.Metadata {
				meta[k] = v
			}
			l.bus.PublishOutbound(bus.OutboundMessage{
				Channel: msg.Channel, ChatID: msg.ChatID,
				Content: content, Metadata: meta,
			})
		}
	}

	final, toolsUsed, media, transcript := l.runAgentLoop(toolCtx, initial, onProgress)
	if final == "" {
		final = "I've completed processing but have no response to give."
	}

	slog.Info("response ready",
		"channel", msg.Channel, "sender", msg.SenderID,
		"preview", truncateRunes(final, 120))

	l.sessions.AddMessage(key, sessions.Message{Role: "user", Content: msg.Content})
	for _, m := range transcript {
		l.sessions.AddMessage(key, m)
	}
	l.sessions.AddMessage(key, sessions.Message{Role: "assistant", Content: final, ToolsUsed: toolsUsed})

	// The message tool already delivered this turn; suppress the duplicate.
	if latch.Set() {
		return nil, nil
	}

	return &bus.OutboundMessage{
		Channel:  msg.Channel,
		ChatID:   msg.ChatID,
		Content:  final,
		Media:    media,
		Metadata: msg.Metadata,
	}, nil
}

// processSystemMessage handles subagent and cron announcements. Their
// chat_id encodes the origin conversation the reply should go to.
func (l *Loop) processSystemMessage(ctx context.Context, msg bus.InboundMessage) (*bus.OutboundMessage, error) {
	slog.Info("processing system message", "sender", msg.SenderID)

	originChannel, originChatID := bus.SplitSystemChatID(msg.ChatID)
	key := l.resolveSessionKey(originChannel + ":" + originChatID)
	session := l.sessions.GetOrCreate(key)

	latch := &tools.SentLatch{}
	toolCtx := l.toolContext(ctx, originChannel, originChatID, msg.Metadata["message_id"], latch)

	initial := l.context.BuildMessages(
		l.sessions.GetHistory(key, l.cfg.HistoryWindow),
		msg.Content,
		nil,
		originChannel, originChatID,
		session.IsIsolated(),
	)

	final, _, media, transcript := l.runAgentLoop(toolCtx, initial, nil)
	if final == "" {
		final = "Background task completed."
	}

	l.sessions.AddMessage(key, sessions.Message{
		Role:    "user",
		Content: fmt.Sprintf("[System: %s] %s", msg.SenderID, msg.Content),
	})
	for _, m := range transcript {
		l.sessions.AddMessage(key, m)
	}
	l.sessions.AddMessage(key, sessions.Message{Role: "assistant", Content: final})

	if latch.Set() {
		return nil, nil
	}
	return &bus.OutboundMessage{
		Channel: originChannel,
		ChatID:  originChatID,
		Content: final,
		Media:   media,
	}, nil
}

func (l *Loop) toolContext(ctx context.Context, channel, chatID, messageID string, latch *tools.SentLatch) context.Context {
	ctx = tools.WithChannel(ctx, channel)
	ctx = tools.WithChatID(ctx, chatID)
	if messageID != "" {
		ctx = tools.WithMessageID(ctx, messageID)
	}
	return tools.WithSentLatch(ctx, latch)
}

// Keyword groups that force a specific tool. Models routinely answer these
// requests with fabricated text unless pushed to actually call the tool.
var (
	browserKeywords = []string{"打开", "open", "navigate", "浏览", "search", "搜索", "搜", "website"}
	cronKeywords    = []string{"定时", "cron", "reminder", "提醒", "schedule", "预约"}
	imageKeywords   = []string{"画", "生成图像", "generate image", "生成图片", "画图", "draw", "create image", "生成一只", "画一只", "生成一张", "画一张"}
	sessionKeywords = []string{"clear session", "清除会话", "reset session", "新建会话", "clear memory", "清除记忆", "forget"}

	planKeywords = []string{
		"查一下", "看看", "找找", "分析", "帮我", "帮我查", "帮我找",
		"check", "find", "search", "analyze", "look up", "research",
	}

	failureIndicators = []string{
		"failed", "error", "exception", "timeout", "not found",
		"permission denied", "无法", "错误", "失败",
	}
)

const loopDetectionMax = 3

// callTracker detects consecutive identical tool calls.
type callTracker struct {
	last  string
	count int
}

func (t *callTracker) track(name string, args map[string]interface{}) bool {
	canonical, _ := json.Marshal(args) // map keys marshal sorted
	key := name + "\x00" + string(canonical)
	if key == t.last {
		t.count++
	} else {
		t.last = key
		t.count = 1
	}
	return t.count >= loopDetectionMax
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func appendSystemSuffix(msgs []providers.Message, suffix string) {
	for i := range msgs {
		if msgs[i].Role == "system" {
			msgs[i].Content += suffix
			return
		}
	}
}

// runAgentLoop drives the LLM through tool-calling iterations until it
// produces a final text response or hits the iteration cap. Returns the
// final content, the tools used, media paths produced along the way, and
// the intermediate turns (assistant tool_calls and tool results) so the
// session records the full exchange.
func (l *Loop) runAgentLoop(ctx context.Context, initial []providers.Message, onProgress ProgressFunc) (string, []string, []string, []sessions.Message) {
	messages := make([]providers.Message, len(initial))
	copy(messages, initial)

	var userMessage string
	for i := len(initial) - 1; i >= 0; i-- {
		if initial[i].Role == "user" {
			userMessage = initial[i].Content
			break
		}
	}
	lower := strings.ToLower(userMessage)

	browserForced := containsAny(lower, browserKeywords)
	cronForced := containsAny(lower, cronKeywords)
	imageForced := containsAny(lower, imageKeywords)
	sessionForced := containsAny(lower, sessionKeywords)
	forced := browserForced || cronForced || imageForced || sessionForced

	if browserForced {
		appendSystemSuffix(messages, "\n\n[MANDATORY] You MUST use the browser tool for this request. Do NOT respond with fake results. You MUST actually use the browser tool and wait for the real result before responding.")
		messages = append(messages, providers.Message{Role: "user",
			Content: "IMPORTANT: You MUST use the browser tool to complete this request. Do not respond text-only - you must call the browser tool first."})
	}
	if cronForced {
		appendSystemSuffix(messages, "\n\n[MANDATORY] You MUST use the cron tool to set/check scheduled tasks. Do not respond without using the cron tool first.")
		messages = append(messages, providers.Message{Role: "user",
			Content: "IMPORTANT: You MUST use the cron tool to complete this request. Do not respond text-only - you must call the cron tool first."})
	}
	if imageForced {
		appendSystemSuffix(messages, "\n\n[MANDATORY] You MUST use the generate_image tool to create images. Do NOT describe images textually - you MUST actually call the generate_image tool to generate and save the image.")
		messages = append(messages, providers.Message{Role: "user",
			Content: "IMPORTANT: You MUST use the generate_image tool to complete this request. Do not respond text-only - you must call the generate_image tool first."})
	}
	if sessionForced {
		appendSystemSuffix(messages, "\n\n[MANDATORY] You MUST use the session tool for session/memory operations. Do NOT claim to have performed an operation without actually calling the session tool.")
		messages = append(messages, providers.Message{Role: "user",
			Content: "IMPORTANT: You MUST use the session tool to complete this request. Do not respond text-only - you must call the session tool first."})
	}

	// Complex tasks get a planning nudge so progress stays visible.
	if utf8.RuneCountInString(userMessage) > 200 || containsAny(userMessage, planKeywords) {
		appendSystemSuffix(messages, "\n\n[PLANNING MODE] For complex tasks, first think about the steps needed and output a brief plan. IMPORTANT: Format your plan like this so I can track progress:\n\n**TODO:**\n- [ ] **Step 1 name**: description\n- [ ] **Step 2 name**: description\n- [ ] **Step 3 name**: description\n\nThen execute each step and mark them as [x] when done.")
		messages = append(messages, providers.Message{Role: "user",
			Content: "For this complex task, please first output a plan with clear step names like '- [ ] **Search**: 搜索内容', then execute each step and mark them as [x] when done."})
	}

	var (
		tracker    callTracker
		final      string
		toolsUsed  []string
		media      []string
		transcript []sessions.Message
	)

	for iteration := 1; iteration <= l.cfg.MaxIterations; iteration++ {
		resp, err := l.provider.Chat(ctx, providers.ChatRequest{
			Messages:    messages,
			Tools:       l.tools.Definitions(),
			Model:       l.cfg.Model,
			Temperature: l.cfg.Temperature,
			MaxTokens:   l.cfg.MaxTokens,
		})
		if err != nil {
			slog.Error("LLM call failed", "iteration", iteration, "error", err)
			return fmt.Sprintf("Sorry, I encountered an error: %v", err), toolsUsed, media, transcript
		}

		if !resp.HasToolCalls() {
			final = StripThink(resp.Content)
			// Some models emit an interim text response before calling
			// tools. On forced turns keep retrying until a tool is used.
			maxRetries := 1
			if forced {
				maxRetries = 5
			}
			if len(toolsUsed) == 0 && final != "" && iteration < maxRetries {
				slog.Debug("interim text response, retrying",
					"iteration", iteration, "max", maxRetries,
					"preview", truncateRunes(final, 80))
				final = ""
				continue
			}
			break
		}

		if onProgress != nil {
			if clean := StripThink(resp.Content); clean != "" {
				onProgress(clean)
			}
			onProgress(ToolHint(resp.ToolCalls))
		}

		messages = AddAssistantMessage(messages, resp.Content, resp.ToolCalls, resp.ReasoningContent)
		transcript = append(transcript, sessions.Message{
			Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls,
		})

		loopDetected := false
		for _, call := range resp.ToolCalls {
			toolsUsed = append(toolsUsed, call.Name)
			argsJSON, _ := json.Marshal(call.Arguments)
			slog.Info("tool call", "tool", call.Name, "args", truncateRunes(string(argsJSON), 200))

			if tracker.track(call.Name, call.Arguments) {
				loopMsg := fmt.Sprintf("[LOOP DETECTED] Detected %d consecutive identical tool calls: %s with identical arguments. Stopping to prevent infinite loop. Please try a different approach.", loopDetectionMax, call.Name)
				slog.Warn("tool call loop", "tool", call.Name)
				messages = AddToolResult(messages, call.ID, call.Name, loopMsg)
				transcript = append(transcript, sessions.Message{
					Role: "tool", Content: loopMsg, ToolCallID: call.ID, Name: call.Name,
				})
				final = loopMsg
				loopDetected = true
				break
			}

			result := l.tools.Execute(ctx, call.Name, call.Arguments)
			if result.IsError {
				slog.Warn("tool failed", "tool", call.Name,
					"error", result.Err, "result", truncateRunes(result.ForLLM, 200))
			}
			media = append(media, result.Media...)

			// Non-silent results are user-facing output, not just LLM
			// context; surface them while the turn is still running.
			if onProgress != nil && !result.Silent && result.ForLLM != "" {
				onProgress(truncateRunes(result.ForLLM, 500))
			}

			content := result.ForLLM
			// Async results describe work still in flight, so failure
			// words inside them prove nothing yet.
			if !result.Async && containsAny(strings.ToLower(content), failureIndicators) {
				content += fmt.Sprintf("\n\n[TOOL RESULT VERIFICATION] The tool returned an error/failure: %s. You MUST either: (1) Try a different approach, or (2) Admit the failure to the user. Do NOT pretend the tool succeeded!", truncateRunes(result.ForLLM, 200))
			}
			messages = AddToolResult(messages, call.ID, call.Name, content)
			transcript = append(transcript, sessions.Message{
				Role: "tool", Content: content, ToolCallID: call.ID, Name: call.Name,
			})
		}
		if loopDetected {
			break
		}
	}

	return final, toolsUsed, media, transcript
}
