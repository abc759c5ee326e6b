package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nanocat-ai/nanocat/internal/bus"
	"github.com/nanocat-ai/nanocat/internal/providers"
	"github.com/nanocat-ai/nanocat/internal/tools"
)

func TestSubagentReportsBackOnSystemChannel(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		toolCallResponse("lookup", map[string]interface{}{"query": "docs"}),
		{Content: "found the docs at example.com", FinishReason: "stop"},
	}}
	b := bus.NewWithSize(16)
	defer b.Close()
	registry := tools.NewRegistry()
	registry.Register(&stubTool{name: "lookup", result: tools.SilentResult("docs: example.com")})

	m := NewSubagentManager(p, b, registry, Config{Model: "test-model"}, 2)
	id, err := m.Spawn(context.Background(), "find the docs", "discord", "chan1")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("empty subagent id")
	}

	msg, err := b.ConsumeInbound(5 * time.Second)
	if err != nil {
		t.Fatalf("no announcement: %v", err)
	}
	if msg.Channel != "system" || msg.SenderID != "subagent:"+id {
		t.Errorf("announcement from %s:%s", msg.Channel, msg.SenderID)
	}
	if msg.ChatID != "discord:chan1" {
		t.Errorf("chat id = %q", msg.ChatID)
	}
	if !strings.Contains(msg.Content, "found the docs at example.com") {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestSubagentCap(t *testing.T) {
	// A provider that never answers keeps the first subagent active.
	block := make(chan struct{})
	defer close(block)
	p := &blockingProvider{unblock: block}

	b := bus.NewWithSize(16)
	defer b.Close()
	m := NewSubagentManager(p, b, tools.NewRegistry(), Config{Model: "test-model"}, 1)

	if _, err := m.Spawn(context.Background(), "slow task", "cli", "direct"); err != nil {
		t.Fatal(err)
	}
	// Wait for the goroutine to reach the provider call.
	deadline := time.Now().Add(time.Second)
	for len(m.Active()) != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := m.Spawn(context.Background(), "second task", "cli", "direct"); err == nil {
		t.Error("expected cap error")
	}
}

type blockingProvider struct {
	unblock chan struct{}
}

func (p *blockingProvider) Chat(ctx context.Context, _ providers.ChatRequest) (*providers.ChatResponse, error) {
	select {
	case <-p.unblock:
	case <-ctx.Done():
	}
	return &providers.ChatResponse{Content: "late", FinishReason: "stop"}, nil
}

func (p *blockingProvider) DefaultModel() string { return "test-model" }
func (p *blockingProvider) Name() string         { return "blocking" }
