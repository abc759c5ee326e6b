package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Skill is one loaded skill package: <skills>/<name>/SKILL.md.
type Skill struct {
	Name        string
	Description string
	Always      bool // injected verbatim into every system prompt
	Content     string
}

// Loader discovers skills and serves them to the context builder.
// The skills directory is watched with fsnotify so edits take effect
// without a restart.
type Loader struct {
	dir     string
	mu      sync.RWMutex
	skills  map[string]*Skill
	watcher *fsnotify.Watcher
}

func NewLoader(dir string) *Loader {
	l := &Loader{
		dir:    dir,
		skills: make(map[string]*Skill),
	}
	l.reload()
	return l
}

// Watch starts the hot-reload watcher. Call Close to stop it.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	l.watcher = w

	if err := w.Add(l.dir); err != nil {
		w.Close()
		l.watcher = nil
		return err
	}
	// Watch each skill subdirectory too; fsnotify is not recursive.
	entries, _ := os.ReadDir(l.dir)
	for _, e := range entries {
		if e.IsDir() {
			w.Add(filepath.Join(l.dir, e.Name()))
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
					slog.Debug("skills changed, reloading", "event", event.String())
					l.reload()
					if event.Op&fsnotify.Create != 0 {
						if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
							w.Add(event.Name)
						}
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("skills watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher.
func (l *Loader) Close() {
	if l.watcher != nil {
		l.watcher.Close()
	}
}

// reload rescans the skills directory.
func (l *Loader) reload() {
	found := make(map[string]*Skill)

	entries, err := os.ReadDir(l.dir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			path := filepath.Join(l.dir, e.Name(), "SKILL.md")
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			skill := parseSkill(e.Name(), string(data))
			found[skill.Name] = skill
		}
	}

	l.mu.Lock()
	l.skills = found
	l.mu.Unlock()
}

// All returns every loaded skill, sorted by name.
func (l *Loader) All() []*Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Skill, 0, len(l.skills))
	for _, s := range l.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns one skill by name.
func (l *Loader) Get(name string) (*Skill, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.skills[name]
	return s, ok
}

// AlwaysContent returns the full bodies of always-on skills, in order.
func (l *Loader) AlwaysContent() []string {
	var out []string
	for _, s := range l.All() {
		if s.Always {
			out = append(out, s.Content)
		}
	}
	return out
}

// SummaryTable renders the on-demand skills as a markdown table the agent
// can consult, reading a skill's full SKILL.md via read_file when needed.
func (l *Loader) SummaryTable() string {
	var rows []string
	for _, s := range l.All() {
		if s.Always {
			continue
		}
		desc := s.Description
		if desc == "" {
			desc = "(no description)"
		}
		rows = append(rows, fmt.Sprintf("| %s | %s | %s |",
			s.Name, desc, filepath.Join(l.dir, s.Name, "SKILL.md")))
	}
	if len(rows) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Available Skills\n\n")
	b.WriteString("Read the skill file before using it.\n\n")
	b.WriteString("| Skill | Description | File |\n|---|---|---|\n")
	b.WriteString(strings.Join(rows, "\n"))
	b.WriteString("\n")
	return b.String()
}

// parseSkill extracts frontmatter (name, description, always) from a
// SKILL.md. Missing or malformed frontmatter falls back to the directory
// name with the full file as content.
func parseSkill(dirName, content string) *Skill {
	skill := &Skill{Name: dirName, Content: content}

	trimmed := strings.TrimLeft(content, "\n\r \t")
	if !strings.HasPrefix(trimmed, "---") {
		return skill
	}
	rest := trimmed[3:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return skill
	}

	front := rest[:end]
	skill.Content = strings.TrimLeft(rest[end+4:], "\n\r")

	for _, line := range strings.Split(front, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), `"'`))
		switch strings.TrimSpace(key) {
		case "name":
			if value != "" {
				skill.Name = value
			}
		case "description":
			skill.Description = value
		case "always":
			skill.Always = value == "true" || value == "yes"
		}
	}
	return skill
}
