package scheduler

import (
	"context"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

// Store is the feed registry contract: whole-collection get/set, no partial
// updates. Writers re-resolve their target by ID on every write so
// concurrent external mutation survives a refresh.
type Store interface {
	Get(ctx context.Context) ([]domain.FeedRegistration, error)
	Set(ctx context.Context, feeds []domain.FeedRegistration) error
}

// Dispatcher runs one refresh for a registration. Zero posts with a nil
// error is a valid success, distinct from a failed dispatch.
type Dispatcher interface {
	Dispatch(ctx context.Context, reg domain.FeedRegistration) (domain.ScrapeResult, error)
}

// Notifier receives refresh outcomes. It decides which become user-facing
// notifications; the scheduler reports every outcome.
type Notifier interface {
	RefreshFailed(ctx context.Context, reg domain.FeedRegistration, err error)
	RefreshSucceeded(ctx context.Context, reg domain.FeedRegistration)
}
