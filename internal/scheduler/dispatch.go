package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

// DispatchRegistry routes registrations to dispatchers by kind, so external
// adapter kinds can sit next to the built-in page executor.
type DispatchRegistry struct {
	byKind map[string]Dispatcher
	mu     sync.RWMutex
}

func NewDispatchRegistry() *DispatchRegistry {
	return &DispatchRegistry{byKind: make(map[string]Dispatcher)}
}

// Register binds a dispatcher to a registration kind. Empty kinds and nil
// dispatchers are ignored.
func (r *DispatchRegistry) Register(kind string, d Dispatcher) {
	if d == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(kind))
	if key == "" {
		return
	}

	r.mu.Lock()
	r.byKind[key] = d
	r.mu.Unlock()
}

// Dispatch routes reg to the dispatcher registered for its kind.
func (r *DispatchRegistry) Dispatch(ctx context.Context, reg domain.FeedRegistration) (domain.ScrapeResult, error) {
	if r == nil {
		return domain.ScrapeResult{}, fmt.Errorf("dispatch registry is nil")
	}

	key := strings.ToLower(strings.TrimSpace(reg.Kind))
	r.mu.RLock()
	d, ok := r.byKind[key]
	r.mu.RUnlock()
	if !ok {
		return domain.ScrapeResult{}, fmt.Errorf("no dispatcher registered for kind %q (feed %q)", reg.Kind, reg.ID)
	}

	return d.Dispatch(ctx, reg)
}
