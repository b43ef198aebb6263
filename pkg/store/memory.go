package store

import (
	"context"
	"sort"
	"time"

	"github.com/agentdeck/agentdeck/pkg/api"
	"github.com/agentdeck/agentdeck/pkg/concurrent"
	"github.com/agentdeck/agentdeck/pkg/thread"
)

type cachedThread struct {
	thread   api.Thread
	messages []thread.Message
	syncedAt time.Time
}

// InMemoryStore keeps the cache in process memory. Used by tests and by
// `watch` runs without a cache path configured.
type InMemoryStore struct {
	threads *concurrent.Map[string, *cachedThread]
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		threads: concurrent.NewMap[string, *cachedThread](),
		now:     time.Now,
	}
}

func (s *InMemoryStore) UpsertThread(_ context.Context, t api.Thread) error {
	if t.ThreadID == "" {
		return ErrEmptyID
	}

	existing, ok := s.threads.Load(t.ThreadID)
	if !ok {
		existing = &cachedThread{}
	}
	existing.thread = t
	existing.syncedAt = s.now()
	s.threads.Store(t.ThreadID, existing)
	return nil
}

func (s *InMemoryStore) ReplaceMessages(_ context.Context, threadID string, messages []thread.Message) error {
	if threadID == "" {
		return ErrEmptyID
	}

	cached, ok := s.threads.Load(threadID)
	if !ok {
		return ErrNotFound
	}

	copied := make([]thread.Message, len(messages))
	copy(copied, messages)
	cached.messages = copied
	cached.syncedAt = s.now()
	s.threads.Store(threadID, cached)
	return nil
}

func (s *InMemoryStore) GetMessages(_ context.Context, threadID string) ([]thread.Message, error) {
	if threadID == "" {
		return nil, ErrEmptyID
	}

	cached, ok := s.threads.Load(threadID)
	if !ok {
		return nil, ErrNotFound
	}

	messages := make([]thread.Message, len(cached.messages))
	copy(messages, cached.messages)
	return messages, nil
}

func (s *InMemoryStore) ListThreads(_ context.Context) ([]Summary, error) {
	summaries := make([]Summary, 0, s.threads.Length())
	s.threads.Range(func(_ string, cached *cachedThread) bool {
		summaries = append(summaries, Summary{
			ThreadID:     cached.thread.ThreadID,
			ProjectID:    cached.thread.ProjectID,
			MessageCount: len(cached.messages),
			UpdatedAt:    cached.thread.UpdatedAt,
			SyncedAt:     cached.syncedAt,
		})
		return true
	})
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (s *InMemoryStore) DeleteThread(_ context.Context, threadID string) error {
	if threadID == "" {
		return ErrEmptyID
	}
	if _, ok := s.threads.Load(threadID); !ok {
		return ErrNotFound
	}
	s.threads.Delete(threadID)
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
