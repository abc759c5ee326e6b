package memory

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store manages the agent's long-term memory files.
//
// Two plain Markdown files live under the memory directory:
//
//	MEMORY.md  - curated long-term facts, replaced wholesale on update
//	HISTORY.md - append-only log of consolidated conversation summaries
//
// Plain files keep the memory greppable and hand-editable; users are
// encouraged to prune MEMORY.md themselves.
type Store struct {
	dir string
	mu  sync.Mutex
}

func NewStore(dir string) *Store {
	os.MkdirAll(dir, 0755)
	return &Store{dir: dir}
}

func (s *Store) memoryPath() string  { return filepath.Join(s.dir, "MEMORY.md") }
func (s *Store) historyPath() string { return filepath.Join(s.dir, "HISTORY.md") }

// ReadMemory returns the current long-term memory, or "" when none exists.
func (s *Store) ReadMemory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.memoryPath())
	if err != nil {
		return ""
	}
	return string(data)
}

// WriteMemory replaces the long-term memory wholesale. An empty update is
// ignored so a misbehaving consolidation cannot wipe the file.
func (s *Store) WriteMemory(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.memoryPath(), []byte(content+"\n"), 0644)
}

// AppendHistory adds one consolidated summary entry to HISTORY.md,
// separated from the previous entry by a blank line.
func (s *Store) AppendHistory(entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.historyPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(entry + "\n\n"); err != nil {
		return err
	}
	return nil
}

// ReadHistory returns the full consolidation log.
func (s *Store) ReadHistory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.historyPath())
	if err != nil {
		return ""
	}
	return string(data)
}

// MemoryContext assembles the memory block for the system prompt.
// Returns "" when no memory exists yet so the prompt stays clean on
// first boot.
func (s *Store) MemoryContext() string {
	mem := s.ReadMemory()
	if strings.TrimSpace(mem) == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Long-term Memory\n\n")
	b.WriteString(strings.TrimSpace(mem))
	b.WriteString("\n")
	return b.String()
}

// Dir returns the memory directory path.
func (s *Store) Dir() string { return s.dir }

// Describe summarizes the store for diagnostics.
func (s *Store) Describe() string {
	mem := s.ReadMemory()
	hist := s.ReadHistory()
	return fmt.Sprintf("memory: %d bytes, history: %d bytes (%s)", len(mem), len(hist), s.dir)
}
