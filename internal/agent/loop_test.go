package agent

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nanocat-ai/nanocat/internal/bus"
	"github.com/nanocat-ai/nanocat/internal/memory"
	"github.com/nanocat-ai/nanocat/internal/providers"
	"github.com/nanocat-ai/nanocat/internal/sessions"
	"github.com/nanocat-ai/nanocat/internal/skills"
	"github.com/nanocat-ai/nanocat/internal/tools"
)

// scriptedProvider replays canned responses and records every request.
type scriptedProvider struct {
	mu         sync.Mutex
	responses  []*providers.ChatResponse
	repeatLast bool
	requests   []providers.ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return &providers.ChatResponse{Content: "done", FinishReason: "stop"}, nil
	}
	resp := p.responses[0]
	if !p.repeatLast || len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }
func (p *scriptedProvider) Name() string         { return "scripted" }

func (p *scriptedProvider) recorded() []providers.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]providers.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// stubTool records invocations and returns a fixed result.
type stubTool struct {
	mu     sync.Mutex
	name   string
	result *tools.Result
	calls  []map[string]interface{}
}

func (s *stubTool) Name() string                       { return s.name }
func (s *stubTool) Description() string                { return "stub" }
func (s *stubTool) Parameters() map[string]interface{} { return map[string]interface{}{"type": "object"} }

func (s *stubTool) Execute(_ context.Context, args map[string]interface{}) *tools.Result {
	s.mu.Lock()
	s.calls = append(s.calls, args)
	s.mu.Unlock()
	return s.result
}

func (s *stubTool) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestLoop(t *testing.T, p providers.Provider) (*Loop, *bus.MessageBus, *tools.Registry) {
	t.Helper()
	ws := t.TempDir()
	b := bus.NewWithSize(16)
	t.Cleanup(b.Close)

	builder := NewContextBuilder(ws,
		memory.NewStore(filepath.Join(ws, "memory")),
		skills.NewLoader(filepath.Join(ws, "skills")))
	registry := tools.NewRegistry()
	sess := sessions.NewManager(filepath.Join(ws, "sessions"))

	loop := NewLoop(b, p, Config{
		Workspace:     ws,
		Model:         "test-model",
		MaxIterations: 10,
		HistoryWindow: 50,
	}, sess, builder, registry)
	return loop, b, registry
}

func inbound(content string) bus.InboundMessage {
	return bus.InboundMessage{Channel: "cli", SenderID: "user", ChatID: "direct", Content: content}
}

func toolCallResponse(name string, args map[string]interface{}) *providers.ChatResponse {
	return &providers.ChatResponse{
		ToolCalls:    []providers.ToolCall{{ID: "call_1", Name: name, Arguments: args}},
		FinishReason: "tool_calls",
	}
}

func TestProcessMessagePlainReply(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "hello there", FinishReason: "stop"},
	}}
	loop, _, _ := newTestLoop(t, p)

	resp, err := loop.processMessage(context.Background(), inbound("hi"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp == nil || resp.Content != "hello there" {
		t.Fatalf("resp = %+v", resp)
	}

	history := loop.sessions.GetHistory("cli:direct", 10)
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("history = %+v", history)
	}
}

func TestProcessMessageRunsTools(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		toolCallResponse("lookup", map[string]interface{}{"query": "weather"}),
		{Content: "it is sunny", FinishReason: "stop"},
	}}
	loop, _, registry := newTestLoop(t, p)
	stub := &stubTool{name: "lookup", result: tools.SilentResult("sunny, 20C")}
	registry.Register(stub)

	resp, err := loop.processMessage(context.Background(), inbound("weather?"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "it is sunny" {
		t.Errorf("content = %q", resp.Content)
	}
	if stub.callCount() != 1 {
		t.Errorf("tool called %d times", stub.callCount())
	}

	history := loop.sessions.GetHistory("cli:direct", 10)
	last := history[len(history)-1]
	if len(last.ToolsUsed) != 1 || last.ToolsUsed[0] != "lookup" {
		t.Errorf("tools used = %v", last.ToolsUsed)
	}

	// Second request must carry the assistant tool_calls turn and the
	// tool result.
	reqs := p.recorded()
	second := reqs[1].Messages
	var sawToolMsg bool
	for _, m := range second {
		if m.Role == "tool" && m.Content == "sunny, 20C" && m.Name == "lookup" {
			sawToolMsg = true
		}
	}
	if !sawToolMsg {
		t.Error("tool result missing from follow-up request")
	}
}

func TestSessionRecordsToolTurns(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		toolCallResponse("lookup", map[string]interface{}{"query": "weather"}),
		{Content: "it is sunny", FinishReason: "stop"},
	}}
	loop, _, registry := newTestLoop(t, p)
	registry.Register(&stubTool{name: "lookup", result: tools.SilentResult("a\nb")})

	if _, err := loop.processMessage(context.Background(), inbound("weather?"), "", nil); err != nil {
		t.Fatal(err)
	}

	history := loop.sessions.GetHistory("cli:direct", 10)
	if len(history) != 4 {
		t.Fatalf("history = %d messages: %+v", len(history), history)
	}
	if history[0].Role != "user" || history[0].Content != "weather?" {
		t.Errorf("first = %+v", history[0])
	}
	if history[1].Role != "assistant" || len(history[1].ToolCalls) != 1 || history[1].ToolCalls[0].Name != "lookup" {
		t.Errorf("tool_calls turn = %+v", history[1])
	}
	if history[2].Role != "tool" || history[2].Content != "a\nb" ||
		history[2].ToolCallID != "call_1" || history[2].Name != "lookup" {
		t.Errorf("tool turn = %+v", history[2])
	}
	if history[3].Role != "assistant" || history[3].Content != "it is sunny" {
		t.Errorf("final = %+v", history[3])
	}

	// A reloaded manager replays the same shape to the provider.
	msgs := loop.context.BuildMessages(history, "and tomorrow?", nil, "cli", "direct", false)
	var sawCalls, sawResult bool
	for _, m := range msgs {
		if m.Role == "assistant" && len(m.ToolCalls) == 1 {
			sawCalls = true
		}
		if m.Role == "tool" && m.ToolCallID == "call_1" {
			sawResult = true
		}
	}
	if !sawCalls || !sawResult {
		t.Error("persisted tool turns lost in replay")
	}
}

func TestLoopDetectionStopsRepeats(t *testing.T) {
	p := &scriptedProvider{
		responses:  []*providers.ChatResponse{toolCallResponse("lookup", map[string]interface{}{"query": "same"})},
		repeatLast: true,
	}
	loop, _, registry := newTestLoop(t, p)
	stub := &stubTool{name: "lookup", result: tools.SilentResult("nothing new")}
	registry.Register(stub)

	resp, err := loop.processMessage(context.Background(), inbound("hi"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Content, "[LOOP DETECTED]") {
		t.Errorf("content = %q", resp.Content)
	}
	// Third identical call is caught before execution.
	if stub.callCount() != 2 {
		t.Errorf("tool executed %d times, want 2", stub.callCount())
	}
}

func TestToolFailureGetsVerificationHint(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		toolCallResponse("lookup", map[string]interface{}{"query": "x"}),
		{Content: "that did not work", FinishReason: "stop"},
	}}
	loop, _, registry := newTestLoop(t, p)
	registry.Register(&stubTool{name: "lookup", result: tools.ErrorResult("lookup failed: boom")})

	if _, err := loop.processMessage(context.Background(), inbound("hi"), "", nil); err != nil {
		t.Fatal(err)
	}

	reqs := p.recorded()
	var hinted bool
	for _, m := range reqs[1].Messages {
		if m.Role == "tool" && strings.Contains(m.Content, "[TOOL RESULT VERIFICATION]") {
			hinted = true
		}
	}
	if !hinted {
		t.Error("failure result missing verification hint")
	}
}

func TestAsyncResultSkipsVerificationHint(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		toolCallResponse("background", map[string]interface{}{"task": "x"}),
		{Content: "running", FinishReason: "stop"},
	}}
	loop, _, registry := newTestLoop(t, p)
	// The result mentions a failure word, but the work has not finished.
	registry.Register(&stubTool{name: "background",
		result: tools.AsyncResult("Task started. Previous run failed, retrying.")})

	if _, err := loop.processMessage(context.Background(), inbound("hi"), "", nil); err != nil {
		t.Fatal(err)
	}

	reqs := p.recorded()
	for _, m := range reqs[1].Messages {
		if m.Role == "tool" && strings.Contains(m.Content, "[TOOL RESULT VERIFICATION]") {
			t.Error("async result got a verification hint")
		}
	}
}

func TestNonSilentResultSurfacesAsProgress(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		toolCallResponse("shot", map[string]interface{}{}),
		{
			ToolCalls:    []providers.ToolCall{{ID: "call_2", Name: "quiet", Arguments: map[string]interface{}{}}},
			FinishReason: "tool_calls",
		},
		{Content: "done", FinishReason: "stop"},
	}}
	loop, _, registry := newTestLoop(t, p)
	registry.Register(&stubTool{name: "shot", result: tools.NewResult("Screenshot saved.")})
	registry.Register(&stubTool{name: "quiet", result: tools.SilentResult("internal detail")})

	var mu sync.Mutex
	var progress []string
	onProgress := func(s string) {
		mu.Lock()
		progress = append(progress, s)
		mu.Unlock()
	}

	if _, err := loop.processMessage(context.Background(), inbound("hi"), "", onProgress); err != nil {
		t.Fatal(err)
	}

	joined := strings.Join(progress, "\n")
	if !strings.Contains(joined, "Screenshot saved.") {
		t.Errorf("non-silent result not surfaced: %q", joined)
	}
	if strings.Contains(joined, "internal detail") {
		t.Errorf("silent result surfaced: %q", joined)
	}
}

func TestForcedKeywordsAddMandatoryHint(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "ok", FinishReason: "stop"},
		{Content: "ok", FinishReason: "stop"},
		{Content: "ok", FinishReason: "stop"},
		{Content: "ok", FinishReason: "stop"},
		{Content: "ok", FinishReason: "stop"},
	}}
	loop, _, _ := newTestLoop(t, p)

	if _, err := loop.processMessage(context.Background(), inbound("open example.com"), "", nil); err != nil {
		t.Fatal(err)
	}

	reqs := p.recorded()
	first := reqs[0].Messages
	if !strings.Contains(first[0].Content, "[MANDATORY] You MUST use the browser tool") {
		t.Error("system prompt missing browser mandate")
	}
	last := first[len(first)-1]
	if last.Role != "user" || !strings.Contains(last.Content, "must call the browser tool first") {
		t.Errorf("missing forcing user message: %+v", last)
	}
	// Text-only responses on a forced turn are retried up to 5 times.
	if len(reqs) != 5 {
		t.Errorf("requests = %d, want 5", len(reqs))
	}
}

func TestHelpCommand(t *testing.T) {
	loop, _, _ := newTestLoop(t, &scriptedProvider{})

	resp, err := loop.processMessage(context.Background(), inbound("/help"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Content, "/new") || !strings.Contains(resp.Content, "nanocat commands") {
		t.Errorf("help = %q", resp.Content)
	}
}

func TestNewCommandClearsSession(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "hi!", FinishReason: "stop"},
		{Content: `{"history_entry": "[2026-08-25 10:00] Chat archived.", "memory_update": ""}`, FinishReason: "stop"},
	}}
	loop, _, _ := newTestLoop(t, p)

	if _, err := loop.processMessage(context.Background(), inbound("hello"), "", nil); err != nil {
		t.Fatal(err)
	}
	resp, err := loop.processMessage(context.Background(), inbound("/new"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Content, "New session started") {
		t.Errorf("reply = %q", resp.Content)
	}
	if got := loop.sessions.GetHistory("cli:direct", 10); len(got) != 0 {
		t.Errorf("history not cleared: %d messages", len(got))
	}
}

func TestConsolidationSingleFlight(t *testing.T) {
	p := &scriptedProvider{}
	loop, _, _ := newTestLoop(t, p)
	key := "cli:direct"
	loop.sessions.AddMessage(key, sessions.Message{Role: "user", Content: "x"})

	loop.mu.Lock()
	loop.consolidating[key] = true
	loop.mu.Unlock()

	if loop.startConsolidation(context.Background(), key, loop.sessions.Snapshot(key), false) {
		t.Error("second consolidation started while one was in flight")
	}

	// /new goes through the same guard: with one in flight it must not
	// reach the provider.
	resp, err := loop.processMessage(context.Background(), inbound("/new"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Content, "New session started") {
		t.Errorf("reply = %q", resp.Content)
	}
	time.Sleep(50 * time.Millisecond)
	if reqs := p.recorded(); len(reqs) != 0 {
		t.Errorf("consolidation ran anyway: %d provider calls", len(reqs))
	}
}

func TestMessageToolSuppressesFinalReply(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		toolCallResponse("message", map[string]interface{}{"content": "direct ping"}),
		{Content: "sent it", FinishReason: "stop"},
	}}
	loop, b, registry := newTestLoop(t, p)
	registry.Register(tools.NewMessageTool(b))

	resp, err := loop.processMessage(context.Background(), inbound("ping me"), "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp != nil {
		t.Errorf("expected suppressed reply, got %+v", resp)
	}

	out, err := b.ConsumeOutbound(time.Second)
	if err != nil {
		t.Fatalf("no outbound from message tool: %v", err)
	}
	if out.Content != "direct ping" {
		t.Errorf("outbound = %q", out.Content)
	}
}

func TestSystemMessageRoutesToOrigin(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "task summary delivered", FinishReason: "stop"},
	}}
	loop, _, _ := newTestLoop(t, p)

	resp, err := loop.processMessage(context.Background(), bus.InboundMessage{
		Channel:  "system",
		SenderID: "subagent:abc123",
		ChatID:   bus.SystemChatID("discord", "chan9"),
		Content:  "Subagent task finished.",
	}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Channel != "discord" || resp.ChatID != "chan9" {
		t.Errorf("routed to %s:%s", resp.Channel, resp.ChatID)
	}

	history := loop.sessions.GetHistory("discord:chan9", 10)
	if len(history) != 2 || !strings.HasPrefix(history[0].Content, "[System: subagent:abc123]") {
		t.Errorf("history = %+v", history)
	}
}

func TestConsolidateAdvancesCursor(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: `{"history_entry": "[2026-08-25 09:00] User set up the project.", "memory_update": "- Name: Nado"}`, FinishReason: "stop"},
	}}
	loop, _, _ := newTestLoop(t, p)
	loop.cfg.HistoryWindow = 4

	key := "cli:direct"
	for i := 0; i < 6; i++ {
		loop.sessions.AddMessage(key, sessions.Message{Role: "user", Content: "msg"})
	}

	loop.consolidate(context.Background(), key, loop.sessions.Snapshot(key), false)

	if got := loop.sessions.GetLastConsolidated(key); got != 4 {
		t.Errorf("cursor = %d, want 4", got)
	}
	mem := loop.context.Memory()
	if !strings.Contains(mem.ReadMemory(), "Name: Nado") {
		t.Errorf("memory = %q", mem.ReadMemory())
	}
	if !strings.Contains(mem.ReadHistory(), "set up the project") {
		t.Errorf("history = %q", mem.ReadHistory())
	}
}

func TestParseConsolidationFences(t *testing.T) {
	entry, update, err := parseConsolidation("```json\n{\"history_entry\": \"e1\", \"memory_update\": \"m1\"}\n```")
	if err != nil {
		t.Fatal(err)
	}
	if entry != "e1" || update != "m1" {
		t.Errorf("got %q, %q", entry, update)
	}

	// Non-string values are stringified rather than dropped.
	entry, _, err = parseConsolidation(`{"history_entry": {"a": 1}, "memory_update": ""}`)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(entry, `"a":1`) {
		t.Errorf("entry = %q", entry)
	}

	if _, _, err := parseConsolidation(""); err == nil {
		t.Error("empty response should error")
	}
}

func TestSwitchSessionRedirectsKey(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		{Content: "in isolated", FinishReason: "stop"},
	}}
	loop, _, _ := newTestLoop(t, p)

	ctx := tools.WithChatID(tools.WithChannel(context.Background(), "cli"), "direct")
	if err := loop.SwitchSession(ctx, "isolated:abc"); err != nil {
		t.Fatal(err)
	}

	if _, err := loop.processMessage(context.Background(), inbound("hello"), "", nil); err != nil {
		t.Fatal(err)
	}
	if got := loop.sessions.GetHistory("isolated:abc", 10); len(got) != 2 {
		t.Errorf("switched session history = %d messages", len(got))
	}
	if got := loop.sessions.GetHistory("cli:direct", 10); len(got) != 0 {
		t.Errorf("original session should be empty, has %d", len(got))
	}
}
