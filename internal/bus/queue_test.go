package bus

import (
	"testing"
	"time"
)

func TestPublishConsumeFIFO(t *testing.T) {
	b := NewWithSize(8)
	defer b.Close()

	for _, content := range []string{"one", "two", "three"} {
		b.PublishInbound(InboundMessage{Channel: "cli", ChatID: "u1", Content: content})
	}

	for _, want := range []string{"one", "two", "three"} {
		msg, err := b.ConsumeInbound(time.Second)
		if err != nil {
			t.Fatalf("ConsumeInbound: %v", err)
		}
		if msg.Content != want {
			t.Errorf("got %q, want %q", msg.Content, want)
		}
	}
}

func TestConsumeTimeout(t *testing.T) {
	b := NewWithSize(1)
	defer b.Close()

	_, err := b.ConsumeInbound(10 * time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	_, err = b.ConsumeOutbound(10 * time.Millisecond)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCloseUnblocksConsumer(t *testing.T) {
	b := NewWithSize(1)
	errCh := make(chan error, 1)
	go func() {
		_, err := b.ConsumeInbound(5 * time.Second)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case err := <-errCh:
		if err != ErrClosed {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not unblock after Close")
	}
}

func TestSessionKey(t *testing.T) {
	msg := InboundMessage{Channel: "discord", ChatID: "12345"}
	if got := msg.SessionKey(); got != "discord:12345" {
		t.Errorf("SessionKey = %q", got)
	}
}

func TestSplitSystemChatID(t *testing.T) {
	tests := []struct {
		in          string
		wantChannel string
		wantOrigin  string
	}{
		{"discord:42", "discord", "42"},
		{"discord:guild:42", "discord", "guild:42"},
		{"bare", "cli", "bare"},
	}
	for _, tt := range tests {
		ch, origin := SplitSystemChatID(tt.in)
		if ch != tt.wantChannel || origin != tt.wantOrigin {
			t.Errorf("SplitSystemChatID(%q) = (%q, %q), want (%q, %q)",
				tt.in, ch, origin, tt.wantChannel, tt.wantOrigin)
		}
	}
}

func TestProgressFlag(t *testing.T) {
	msg := OutboundMessage{Metadata: map[string]string{"_progress": "true"}}
	if !msg.IsProgress() {
		t.Error("expected progress flag")
	}
	if (OutboundMessage{}).IsProgress() {
		t.Error("empty message should not be progress")
	}
}
