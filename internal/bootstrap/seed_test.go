package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnsureWorkspaceFiles(t *testing.T) {
	dir := t.TempDir()

	created, err := EnsureWorkspaceFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != len(workspaceFiles) {
		t.Fatalf("created %v, want all of %v", created, workspaceFiles)
	}

	data, err := os.ReadFile(filepath.Join(dir, SoulFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "nanocat") {
		t.Errorf("SOUL.md content: %q", data)
	}
}

func TestEnsureWorkspaceFilesKeepsExisting(t *testing.T) {
	dir := t.TempDir()
	custom := []byte("# my agent\n")
	os.WriteFile(filepath.Join(dir, AgentsFile), custom, 0644)

	created, err := EnsureWorkspaceFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range created {
		if name == AgentsFile {
			t.Error("AGENTS.md should not be re-seeded")
		}
	}

	data, _ := os.ReadFile(filepath.Join(dir, AgentsFile))
	if string(data) != string(custom) {
		t.Error("existing AGENTS.md was overwritten")
	}
}

func TestEnsureMemoryFiles(t *testing.T) {
	dir := t.TempDir()

	created, err := EnsureMemoryFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != 2 {
		t.Fatalf("created = %v", created)
	}

	info, err := os.Stat(filepath.Join(dir, HistoryFile))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Error("HISTORY.md should start empty")
	}
}
