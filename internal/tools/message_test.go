package tools

import (
	"context"
	"testing"
	"time"

	"github.com/nanocat-ai/nanocat/internal/bus"
)

func TestMessageToolPublishesAndMarksLatch(t *testing.T) {
	b := bus.NewWithSize(4)
	defer b.Close()

	latch := &SentLatch{}
	ctx := WithSentLatch(context.Background(), latch)
	ctx = WithChannel(ctx, "discord")
	ctx = WithChatID(ctx, "c1")

	tool := NewMessageTool(b)
	res := tool.Execute(ctx, map[string]interface{}{"content": "working on it"})
	if res.IsError {
		t.Fatalf("execute: %s", res.ForLLM)
	}

	msg, err := b.ConsumeOutbound(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Channel != "discord" || msg.ChatID != "c1" || msg.Content != "working on it" {
		t.Errorf("outbound = %+v", msg)
	}
	if !latch.Set() {
		t.Error("latch should be marked after a send")
	}
}

func TestMessageToolRequiresTarget(t *testing.T) {
	b := bus.NewWithSize(1)
	defer b.Close()

	tool := NewMessageTool(b)
	res := tool.Execute(context.Background(), map[string]interface{}{"content": "hi"})
	if !res.IsError {
		t.Error("expected error without channel/chat in context")
	}
}

func TestExtractDDGResults(t *testing.T) {
	html := `
		<a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage&rut=x">Example <b>Page</b></a>
		<a class="result__snippet" href="#">A sample <i>snippet</i>.</a>`

	results := extractDDGResults(html, 5)
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].URL != "https://example.com/page" {
		t.Errorf("url = %q", results[0].URL)
	}
	if results[0].Title != "Example Page" {
		t.Errorf("title = %q", results[0].Title)
	}
	if results[0].Description != "A sample snippet." {
		t.Errorf("description = %q", results[0].Description)
	}
}

func TestHTMLToText(t *testing.T) {
	html := `<html><head><style>body{}</style><script>x()</script></head>
		<body><h1>Title</h1><p>First &amp; second.</p></body></html>`
	text := htmlToText(html)
	if text != "Title\nFirst & second." {
		t.Errorf("text = %q", text)
	}
}
