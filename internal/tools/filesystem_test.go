package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()

	w := NewWriteFileTool(ws)
	res := w.Execute(ctx, map[string]interface{}{"path": "notes/todo.txt", "content": "buy milk"})
	if res.IsError {
		t.Fatalf("write: %s", res.ForLLM)
	}

	r := NewReadFileTool(ws)
	res = r.Execute(ctx, map[string]interface{}{"path": "notes/todo.txt"})
	if res.IsError || res.ForLLM != "buy milk" {
		t.Errorf("read = %+v", res)
	}
}

func TestReadMissingFile(t *testing.T) {
	r := NewReadFileTool(t.TempDir())
	res := r.Execute(context.Background(), map[string]interface{}{"path": "nope.txt"})
	if !res.IsError {
		t.Error("expected error for missing file")
	}
}

func TestEditFile(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, "f.txt")
	os.WriteFile(path, []byte("alpha beta gamma"), 0644)
	ctx := context.Background()
	e := NewEditFileTool(ws)

	res := e.Execute(ctx, map[string]interface{}{"path": "f.txt", "old_text": "beta", "new_text": "BETA"})
	if res.IsError {
		t.Fatalf("edit: %s", res.ForLLM)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "alpha BETA gamma" {
		t.Errorf("content = %q", data)
	}

	res = e.Execute(ctx, map[string]interface{}{"path": "f.txt", "old_text": "missing", "new_text": "x"})
	if !res.IsError {
		t.Error("expected error when old_text not found")
	}

	os.WriteFile(path, []byte("dup dup"), 0644)
	res = e.Execute(ctx, map[string]interface{}{"path": "f.txt", "old_text": "dup", "new_text": "x"})
	if !res.IsError || !strings.Contains(res.ForLLM, "2 times") {
		t.Errorf("ambiguous edit should fail: %+v", res)
	}
}

func TestListDir(t *testing.T) {
	ws := t.TempDir()
	os.WriteFile(filepath.Join(ws, "b.txt"), nil, 0644)
	os.Mkdir(filepath.Join(ws, "a"), 0755)

	l := NewListDirTool(ws)
	res := l.Execute(context.Background(), map[string]interface{}{})
	if res.IsError {
		t.Fatalf("list: %s", res.ForLLM)
	}
	if res.ForLLM != "a/\nb.txt" {
		t.Errorf("listing = %q", res.ForLLM)
	}
}

func TestResolvePath(t *testing.T) {
	ws := "/ws"
	if got := resolvePath("sub/f.txt", ws); got != "/ws/sub/f.txt" {
		t.Errorf("relative = %q", got)
	}
	if got := resolvePath("/abs/f.txt", ws); got != "/abs/f.txt" {
		t.Errorf("absolute = %q", got)
	}
	home, _ := os.UserHomeDir()
	if got := resolvePath("~/f.txt", ws); got != filepath.Join(home, "f.txt") {
		t.Errorf("home = %q", got)
	}
}
