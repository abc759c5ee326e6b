package skills

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSkill(t *testing.T, dir, name, content string) {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	if err := os.MkdirAll(skillDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSkills(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "cooking", `---
name: cooking
description: Recipe helpers
---
# Cooking
Use metric units.`)
	writeSkill(t, dir, "core", `---
description: Core behaviors
always: true
---
Always be brief.`)

	l := NewLoader(dir)
	defer l.Close()

	all := l.All()
	if len(all) != 2 {
		t.Fatalf("loaded %d skills", len(all))
	}

	s, ok := l.Get("cooking")
	if !ok || s.Description != "Recipe helpers" || s.Always {
		t.Errorf("cooking = %+v", s)
	}
	if !strings.HasPrefix(s.Content, "# Cooking") {
		t.Errorf("content should exclude frontmatter: %q", s.Content)
	}

	always := l.AlwaysContent()
	if len(always) != 1 || !strings.Contains(always[0], "Always be brief.") {
		t.Errorf("always = %v", always)
	}
}

func TestSummaryTableExcludesAlways(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "ondemand", "---\ndescription: On demand\n---\nbody")
	writeSkill(t, dir, "builtin", "---\nalways: true\n---\nbody")

	l := NewLoader(dir)
	defer l.Close()

	table := l.SummaryTable()
	if !strings.Contains(table, "ondemand") {
		t.Error("on-demand skill missing from table")
	}
	if strings.Contains(table, "| builtin |") {
		t.Error("always-on skill should not appear in the table")
	}
}

func TestSkillWithoutFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "plain", "# Just content\nno frontmatter here")

	l := NewLoader(dir)
	defer l.Close()

	s, ok := l.Get("plain")
	if !ok || s.Name != "plain" || s.Always {
		t.Errorf("plain = %+v", s)
	}
	if !strings.Contains(s.Content, "no frontmatter here") {
		t.Errorf("content = %q", s.Content)
	}
}

func TestMissingDirIsEmpty(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "absent"))
	defer l.Close()
	if len(l.All()) != 0 {
		t.Error("missing dir should yield no skills")
	}
	if l.SummaryTable() != "" {
		t.Error("empty loader should render no table")
	}
}
