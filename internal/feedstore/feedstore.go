// Package feedstore persists the feed registry.
package feedstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

// Store holds the registered feeds as a whole collection. Writers read,
// mutate, and write back; there are no partial updates.
type Store interface {
	Get(ctx context.Context) ([]domain.FeedRegistration, error)
	Set(ctx context.Context, feeds []domain.FeedRegistration) error
	Close() error
}

// NewStore creates the configured registry backend.
func NewStore(typ, path string) (Store, error) {
	switch strings.TrimSpace(strings.ToLower(typ)) {
	case "", "memory":
		return NewMemory(), nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

// memoryStore keeps the registry in process. Useful for tests and one-shot
// runs that should not touch disk.
type memoryStore struct {
	mu    sync.RWMutex
	feeds []domain.FeedRegistration
}

func NewMemory() Store {
	return &memoryStore{}
}

func (m *memoryStore) Get(ctx context.Context) ([]domain.FeedRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.FeedRegistration, len(m.feeds))
	copy(out, m.feeds)
	return out, nil
}

func (m *memoryStore) Set(ctx context.Context, feeds []domain.FeedRegistration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.feeds = make([]domain.FeedRegistration, len(feeds))
	copy(m.feeds, feeds)
	return nil
}

func (m *memoryStore) Close() error { return nil }
