package sessions

import (
	"path/filepath"
	"testing"
	"time"
)

func TestGetOrCreateAndAddMessage(t *testing.T) {
	m := NewManager(t.TempDir())

	s := m.GetOrCreate("discord:123")
	if s.Key != "discord:123" {
		t.Errorf("key = %q", s.Key)
	}
	if len(s.Messages) != 0 {
		t.Errorf("new session has %d messages", len(s.Messages))
	}

	m.AddMessage("discord:123", Message{Role: "user", Content: "hello"})
	m.AddMessage("discord:123", Message{Role: "assistant", Content: "hi", ToolsUsed: []string{"web_search"}})

	hist := m.GetHistory("discord:123", 0)
	if len(hist) != 2 {
		t.Fatalf("history length = %d", len(hist))
	}
	if hist[0].Timestamp.IsZero() {
		t.Error("AddMessage should stamp messages")
	}
	if hist[1].ToolsUsed[0] != "web_search" {
		t.Errorf("tools_used = %v", hist[1].ToolsUsed)
	}
}

func TestGetHistoryMax(t *testing.T) {
	m := NewManager("")
	for i := 0; i < 5; i++ {
		m.AddMessage("k", Message{Role: "user", Content: string(rune('a' + i))})
	}

	hist := m.GetHistory("k", 2)
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Content != "d" || hist[1].Content != "e" {
		t.Errorf("got %q, %q; want most recent two", hist[0].Content, hist[1].Content)
	}
}

func TestClearResetsCursor(t *testing.T) {
	m := NewManager(t.TempDir())
	m.AddMessage("k", Message{Role: "user", Content: "one"})
	m.AddMessage("k", Message{Role: "assistant", Content: "two"})
	m.SetLastConsolidated("k", 1)

	m.Clear("k")

	if got := m.GetLastConsolidated("k"); got != 0 {
		t.Errorf("cursor after clear = %d", got)
	}
	if hist := m.GetHistory("k", 0); len(hist) != 0 {
		t.Errorf("history after clear = %d messages", len(hist))
	}
}

func TestClearKeepsMetadata(t *testing.T) {
	m := NewManager("")
	m.SetMetadata("iso", "isolated", true)
	m.AddMessage("iso", Message{Role: "user", Content: "x"})

	m.Clear("iso")

	info := m.Info("iso")
	if info == nil || !info.Isolated {
		t.Fatal("isolated flag lost across Clear")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	m1 := NewManager(dir)
	m1.AddMessage("discord:42", Message{Role: "user", Content: "persist me", Timestamp: time.Now()})
	m1.SetLastConsolidated("discord:42", 1)

	// Colons in keys must not leak into filenames.
	if _, err := filepath.Glob(filepath.Join(dir, "discord_42.json")); err != nil {
		t.Fatal(err)
	}

	m2 := NewManager(dir)
	hist := m2.GetHistory("discord:42", 0)
	if len(hist) != 1 || hist[0].Content != "persist me" {
		t.Fatalf("reloaded history = %+v", hist)
	}
	if m2.GetLastConsolidated("discord:42") != 1 {
		t.Error("cursor not persisted")
	}
}

func TestInvalidateReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	m.AddMessage("discord:7", Message{Role: "user", Content: "cached", Timestamp: time.Now()})

	// Rewrite the file behind the manager's back.
	other := NewManager(dir)
	other.AddMessage("discord:7", Message{Role: "user", Content: "from another process", Timestamp: time.Now()})

	if hist := m.GetHistory("discord:7", 0); len(hist) != 1 {
		t.Fatalf("stale history = %+v", hist)
	}
	m.Invalidate("discord:7")
	hist := m.GetHistory("discord:7", 0)
	if len(hist) != 2 || hist[1].Content != "from another process" {
		t.Errorf("reloaded history = %+v", hist)
	}

	// Invalidating a session with no file just evicts it.
	m.Invalidate("never:saved")
	if m.Info("never:saved") != nil {
		t.Error("phantom session after invalidate")
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	m := NewManager("")
	m.AddMessage("k", Message{Role: "user", Content: "a"})

	snap := m.Snapshot("k")
	m.Clear("k")

	if len(snap.Messages) != 1 {
		t.Error("snapshot mutated by Clear")
	}
	if m.Snapshot("missing") != nil {
		t.Error("snapshot of unknown key should be nil")
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	m.AddMessage("gone:1", Message{Role: "user", Content: "x"})

	if err := m.Delete("gone:1"); err != nil {
		t.Fatal(err)
	}
	if m.Info("gone:1") != nil {
		t.Error("session still listed after delete")
	}
	if err := m.Delete("never:existed"); err != nil {
		t.Errorf("deleting unknown session should be a no-op, got %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	m := NewManager("")
	m.AddMessage("old", Message{Role: "user", Content: "1"})
	time.Sleep(5 * time.Millisecond)
	m.AddMessage("new", Message{Role: "user", Content: "2"})

	list := m.List()
	if len(list) != 2 {
		t.Fatalf("list length = %d", len(list))
	}
	if list[0].Key != "new" {
		t.Errorf("most recent first, got %q", list[0].Key)
	}
}
