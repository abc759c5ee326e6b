package cron

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nanocat-ai/nanocat/internal/bus"
)

func newTestService(t *testing.T) (*Service, *bus.MessageBus) {
	t.Helper()
	b := bus.NewWithSize(8)
	t.Cleanup(b.Close)
	s := NewService(filepath.Join(t.TempDir(), "jobs.json"), b)
	return s, b
}

func TestAddRejectsInvalidSchedule(t *testing.T) {
	s, _ := newTestService(t)
	if _, err := s.Add("not a cron", "hi", "discord", "1"); err == nil {
		t.Fatal("expected error for invalid expression")
	}
	if _, err := s.Add("*/5 * * * *", "hi", "discord", "1"); err != nil {
		t.Fatalf("valid expression rejected: %v", err)
	}
}

func TestTickFiresDueJobs(t *testing.T) {
	s, b := newTestService(t)
	job, err := s.Add("* * * * *", "take a break", "discord", "chat9")
	if err != nil {
		t.Fatal(err)
	}

	s.tick(time.Now().Truncate(time.Minute))

	msg, err := b.ConsumeInbound(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Channel != "system" {
		t.Errorf("channel = %q", msg.Channel)
	}
	if msg.ChatID != "discord:chat9" {
		t.Errorf("chat_id = %q", msg.ChatID)
	}
	if !strings.Contains(msg.Content, "take a break") {
		t.Errorf("content = %q", msg.Content)
	}

	if got := s.List(); len(got) != 1 || got[0].ID != job.ID || got[0].LastRun.IsZero() {
		t.Errorf("job state after tick = %+v", got)
	}
}

func TestDisabledJobDoesNotFire(t *testing.T) {
	s, b := newTestService(t)
	job, _ := s.Add("* * * * *", "hi", "discord", "1")
	if !s.SetEnabled(job.ID, false) {
		t.Fatal("SetEnabled failed")
	}

	s.tick(time.Now().Truncate(time.Minute))

	if _, err := b.ConsumeInbound(20 * time.Millisecond); err != bus.ErrTimeout {
		t.Fatalf("disabled job fired: %v", err)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "jobs.json")
	b := bus.NewWithSize(1)
	defer b.Close()

	s1 := NewService(file, b)
	job, _ := s1.Add("0 9 * * *", "morning", "discord", "42")

	s2 := NewService(file, b)
	jobs := s2.List()
	if len(jobs) != 1 || jobs[0].ID != job.ID || jobs[0].Schedule != "0 9 * * *" {
		t.Fatalf("reloaded jobs = %+v", jobs)
	}

	if !s2.Remove(job.ID) {
		t.Fatal("Remove failed")
	}
	s3 := NewService(file, b)
	if len(s3.List()) != 0 {
		t.Error("removal not persisted")
	}
}
