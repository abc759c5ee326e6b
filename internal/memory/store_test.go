package memory

import (
	"strings"
	"testing"
)

func TestWriteMemoryOverwrites(t *testing.T) {
	s := NewStore(t.TempDir())

	if err := s.WriteMemory("User likes Go."); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteMemory("User likes Go and Rust."); err != nil {
		t.Fatal(err)
	}

	got := s.ReadMemory()
	if strings.Contains(got, "User likes Go.\n") {
		t.Error("old memory content survived overwrite")
	}
	if !strings.Contains(got, "User likes Go and Rust.") {
		t.Errorf("memory = %q", got)
	}
}

func TestWriteMemoryIgnoresEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	s.WriteMemory("keep me")

	if err := s.WriteMemory("   \n"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(s.ReadMemory(), "keep me") {
		t.Error("empty update wiped memory")
	}
}

func TestAppendHistory(t *testing.T) {
	s := NewStore(t.TempDir())

	s.AppendHistory("[2026-08-25] Talked about groceries.")
	s.AppendHistory("[2026-08-26] Planned a trip.")

	got := s.ReadHistory()
	first := strings.Index(got, "groceries")
	second := strings.Index(got, "trip")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("history order wrong: %q", got)
	}
	if !strings.Contains(got, ".\n\n") {
		t.Error("entries should be separated by a blank line")
	}
}

func TestMemoryContext(t *testing.T) {
	s := NewStore(t.TempDir())

	if s.MemoryContext() != "" {
		t.Error("empty store should produce no context block")
	}

	s.WriteMemory("Prefers short answers.")
	ctx := s.MemoryContext()
	if !strings.HasPrefix(ctx, "## Long-term Memory") {
		t.Errorf("context = %q", ctx)
	}
	if !strings.Contains(ctx, "Prefers short answers.") {
		t.Errorf("context = %q", ctx)
	}
}
