package view

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentdeck/agentdeck/pkg/client"
	"github.com/agentdeck/agentdeck/pkg/concurrent"
	"github.com/agentdeck/agentdeck/pkg/store"
)

// Manager owns one ThreadView per thread, creating them lazily and tearing
// them down together.
type Manager struct {
	backend *client.Client
	cache   store.Store
	narrow  bool
	poll    time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	views *concurrent.Map[string, *ThreadView]
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerCache sets the snapshot cache shared by all views.
func WithManagerCache(s store.Store) ManagerOption {
	return func(m *Manager) {
		m.cache = s
	}
}

// WithManagerNarrowViewport forwards the viewport hint to new views.
func WithManagerNarrowViewport(narrow bool) ManagerOption {
	return func(m *Manager) {
		m.narrow = narrow
	}
}

// WithManagerPollInterval sets the poll interval for new views.
func WithManagerPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.poll = d
	}
}

// NewManager creates a manager whose views live until Close.
func NewManager(ctx context.Context, backend *client.Client, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		backend: backend,
		poll:    defaultPollInterval,
		ctx:     ctx,
		cancel:  cancel,
		views:   concurrent.NewMap[string, *ThreadView](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// View returns the running view for a thread, starting one if needed.
func (m *Manager) View(threadID, projectID string) *ThreadView {
	opts := []ViewOption{
		WithPollInterval(m.poll),
		WithNarrowViewport(m.narrow),
	}
	if m.cache != nil {
		opts = append(opts, WithCache(m.cache))
	}

	candidate := NewThreadView(threadID, projectID, m.backend, opts...)
	v, loaded := m.views.LoadOrStore(threadID, candidate)
	if !loaded {
		go func() {
			if err := v.Run(m.ctx); err != nil && m.ctx.Err() == nil {
				slog.Error("Thread view stopped", "thread_id", threadID, "error", err)
			}
			m.views.Delete(threadID)
		}()
	}
	return v
}

// Lookup returns an existing view without starting one.
func (m *Manager) Lookup(threadID string) (*ThreadView, bool) {
	return m.views.Load(threadID)
}

// Close stops every view.
func (m *Manager) Close() {
	m.cancel()
}
