package cron

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"github.com/nanocat-ai/nanocat/internal/bus"
)

// Job is one scheduled reminder or task.
type Job struct {
	ID       string    `json:"id"`
	Schedule string    `json:"schedule"` // cron expression
	Message  string    `json:"message"`  // injected as a system message when due
	Channel  string    `json:"channel"`  // delivery origin
	ChatID   string    `json:"chat_id"`
	Enabled  bool      `json:"enabled"`
	Created  time.Time `json:"created"`
	LastRun  time.Time `json:"last_run,omitempty"`
}

// Service schedules jobs with minute granularity. Due jobs are published on
// the bus as system-channel inbound messages so they flow through the normal
// agent loop with their origin encoded in the chat id.
type Service struct {
	mu    sync.Mutex
	jobs  map[string]*Job
	file  string
	bus   *bus.MessageBus
	gron  *gronx.Gronx
	stop  chan struct{}
	stopped bool
}

func NewService(file string, b *bus.MessageBus) *Service {
	s := &Service{
		jobs: make(map[string]*Job),
		file: file,
		bus:  b,
		gron: gronx.New(),
		stop: make(chan struct{}),
	}
	s.load()
	return s
}

// Add validates the schedule and registers a new job.
func (s *Service) Add(schedule, message, channel, chatID string) (*Job, error) {
	if !s.gron.IsValid(schedule) {
		return nil, fmt.Errorf("invalid cron expression: %s", schedule)
	}

	job := &Job{
		ID:       uuid.NewString()[:8],
		Schedule: schedule,
		Message:  message,
		Channel:  channel,
		ChatID:   chatID,
		Enabled:  true,
		Created:  time.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.save()
	return job, nil
}

// Remove deletes a job by id.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()

	if ok {
		s.save()
	}
	return ok
}

// SetEnabled toggles a job on or off.
func (s *Service) SetEnabled(id string, enabled bool) bool {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		job.Enabled = enabled
	}
	s.mu.Unlock()

	if ok {
		s.save()
	}
	return ok
}

// List returns all jobs sorted by creation time.
func (s *Service) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Start runs the scheduler until Stop. Ticks on minute boundaries.
func (s *Service) Start() {
	go func() {
		// Align to the next minute boundary so IsDue sees clean timestamps.
		now := time.Now()
		next := now.Truncate(time.Minute).Add(time.Minute)
		timer := time.NewTimer(next.Sub(now))
		defer timer.Stop()

		for {
			select {
			case <-timer.C:
				s.tick(time.Now())
				timer.Reset(time.Until(time.Now().Truncate(time.Minute).Add(time.Minute)))
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the scheduler. Safe to call once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.stop)
	}
}

func (s *Service) tick(now time.Time) {
	s.mu.Lock()
	var due []*Job
	for _, job := range s.jobs {
		if !job.Enabled {
			continue
		}
		ok, err := s.gron.IsDue(job.Schedule, now)
		if err != nil || !ok {
			continue
		}
		job.LastRun = now
		due = append(due, job)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}
	s.save()

	for _, job := range due {
		slog.Info("cron job due", "id", job.ID, "schedule", job.Schedule)
		s.bus.PublishInbound(bus.InboundMessage{
			Channel:  "system",
			SenderID: "cron",
			ChatID:   bus.SystemChatID(job.Channel, job.ChatID),
			Content:  fmt.Sprintf("[Scheduled task] %s", job.Message),
		})
	}
}

func (s *Service) load() {
	data, err := os.ReadFile(s.file)
	if err != nil {
		return
	}
	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		slog.Warn("skipping corrupt cron store", "file", s.file, "error", err)
		return
	}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
}

func (s *Service) save() {
	s.mu.Lock()
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Created.Before(jobs[j].Created) })

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return
	}
	os.MkdirAll(filepath.Dir(s.file), 0755)
	if err := os.WriteFile(s.file, data, 0644); err != nil {
		slog.Warn("cron store save failed", "file", s.file, "error", err)
	}
}
