package channels

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nanocat-ai/nanocat/internal/bus"
)

// Manager owns the registered channels: starts and stops them and routes
// outbound bus messages to the right adapter.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]Channel
	bus      *bus.MessageBus
	cancel   context.CancelFunc
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		bus:      msgBus,
	}
}

// Register adds a channel. Call before StartAll.
func (m *Manager) Register(c Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[c.Name()] = c
}

// Get returns a registered channel by name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.channels[name]
	return c, ok
}

// StartAll starts every registered channel and the outbound dispatcher.
// A channel that fails to start is logged and skipped; the rest keep going.
func (m *Manager) StartAll(ctx context.Context) error {
	dispatchCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	channels := make([]Channel, 0, len(m.channels))
	for _, c := range m.channels {
		channels = append(channels, c)
	}
	m.mu.Unlock()

	go m.dispatchOutbound(dispatchCtx)

	if len(channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}
	for _, c := range channels {
		slog.Info("starting channel", "channel", c.Name())
		if err := c.Start(ctx); err != nil {
			slog.Error("channel start failed", "channel", c.Name(), "error", err)
		}
	}
	return nil
}

// StopAll stops the dispatcher and every channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	channels := make([]Channel, 0, len(m.channels))
	for _, c := range m.channels {
		channels = append(channels, c)
	}
	m.mu.Unlock()

	for _, c := range channels {
		if err := c.Stop(ctx); err != nil {
			slog.Error("channel stop failed", "channel", c.Name(), "error", err)
		}
	}
	return nil
}

// dispatchOutbound pumps the outbound queue into channel adapters.
// Internal channels are skipped silently.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	slog.Info("outbound dispatcher started")
	for {
		if ctx.Err() != nil {
			slog.Info("outbound dispatcher stopped")
			return
		}
		msg, err := m.bus.ConsumeOutbound(time.Second)
		if err == bus.ErrTimeout {
			continue
		}
		if err != nil {
			slog.Info("outbound dispatcher stopped", "reason", err)
			return
		}

		if IsInternal(msg.Channel) {
			continue
		}

		channel, ok := m.Get(msg.Channel)
		if !ok {
			slog.Warn("no channel for outbound message", "channel", msg.Channel)
			continue
		}
		if err := channel.Send(ctx, msg); err != nil {
			slog.Error("outbound send failed", "channel", msg.Channel, "error", err)
		}
	}
}
