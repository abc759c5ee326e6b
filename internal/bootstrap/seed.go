package bootstrap

import (
	"embed"
	"log/slog"
	"os"
	"path/filepath"
)

//go:embed templates/*.md
var templateFS embed.FS

// Workspace bootstrap files, loaded into the system prompt in this order.
const (
	AgentsFile   = "AGENTS.md"
	SoulFile     = "SOUL.md"
	UserFile     = "USER.md"
	ToolsFile    = "TOOLS.md"
	IdentityFile = "IDENTITY.md"

	MemoryFile  = "MEMORY.md"
	HistoryFile = "HISTORY.md"
)

var workspaceFiles = []string{AgentsFile, SoulFile, UserFile, ToolsFile, IdentityFile}

// EnsureWorkspaceFiles seeds the bootstrap prompt files into a workspace
// directory. Existing files are never overwritten. Returns the names of
// files that were created.
func EnsureWorkspaceFiles(workspaceDir string) ([]string, error) {
	if err := os.MkdirAll(workspaceDir, 0755); err != nil {
		return nil, err
	}

	var created []string
	for _, name := range workspaceFiles {
		ok, err := seedTemplate(workspaceDir, name)
		if err != nil {
			slog.Warn("failed to seed workspace file", "file", name, "error", err)
			continue
		}
		if ok {
			created = append(created, name)
		}
	}
	return created, nil
}

// EnsureMemoryFiles seeds MEMORY.md and an empty HISTORY.md into the
// memory directory.
func EnsureMemoryFiles(memoryDir string) ([]string, error) {
	if err := os.MkdirAll(memoryDir, 0755); err != nil {
		return nil, err
	}

	var created []string
	if ok, err := seedTemplate(memoryDir, MemoryFile); err == nil && ok {
		created = append(created, MemoryFile)
	}

	historyPath := filepath.Join(memoryDir, HistoryFile)
	if _, err := os.Stat(historyPath); os.IsNotExist(err) {
		if err := os.WriteFile(historyPath, nil, 0644); err == nil {
			created = append(created, HistoryFile)
		}
	}
	return created, nil
}

// seedTemplate writes one embedded template if the target doesn't exist.
// O_EXCL keeps concurrent starts from clobbering each other.
func seedTemplate(dir, name string) (bool, error) {
	dstPath := filepath.Join(dir, name)

	f, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	content, err := templateFS.ReadFile(filepath.Join("templates", name))
	if err != nil {
		os.Remove(dstPath)
		return false, err
	}
	if _, err := f.Write(content); err != nil {
		return false, err
	}
	return true, nil
}
