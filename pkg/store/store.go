// Package store caches thread snapshots fetched from the backend so the CLI
// and a cold server start can list and show threads without a round trip.
// It is a cache, never the source of truth.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/agentdeck/agentdeck/pkg/api"
	"github.com/agentdeck/agentdeck/pkg/thread"
)

var (
	ErrEmptyID  = errors.New("thread ID cannot be empty")
	ErrNotFound = errors.New("thread not found")
)

// Summary contains lightweight thread metadata for listing purposes.
type Summary struct {
	ThreadID     string
	ProjectID    string
	MessageCount int
	UpdatedAt    time.Time
	SyncedAt     time.Time
}

// Store is the cache interface. Both implementations replace a thread's
// messages wholesale; snapshots arrive as full replacements, not diffs.
type Store interface {
	UpsertThread(ctx context.Context, t api.Thread) error
	ReplaceMessages(ctx context.Context, threadID string, messages []thread.Message) error
	GetMessages(ctx context.Context, threadID string) ([]thread.Message, error)
	ListThreads(ctx context.Context) ([]Summary, error)
	DeleteThread(ctx context.Context, threadID string) error
	Close() error
}
