// Package scheduler staggers feed refreshes: one timer, one refresh in
// flight at a time, randomized intervals bounded by a staleness ceiling.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
	"github.com/pointfeed-hq/pointfeed/internal/logger"
)

const (
	// Refresh cadence per tick: a uniform draw keeps feeds from syncing up
	// into request bursts.
	minRefreshInterval = 25 * time.Minute
	maxRefreshInterval = 65 * time.Minute

	// stalenessCeiling is the maximum tolerated age of the oldest feed's
	// last check. Drawn intervals shorten to land ceilingMargin before it.
	stalenessCeiling = 6 * time.Hour
	ceilingMargin    = 2 * time.Minute

	// minTickDelay floors every shortened interval and fires near-immediate
	// ticks once the ceiling is already passed.
	minTickDelay = 5 * time.Second

	// failurePenalty advances a failing feed's LastCheckedAt from its
	// previous value, not to now, so a feed that always fails still yields
	// the oldest slot to everyone else eventually.
	failurePenalty = 30 * time.Minute
)

// Scheduler owns the refresh loop. The in-flight flag is its entire
// synchronization surface: ticks that land during a refresh reschedule
// without dispatching.
type Scheduler struct {
	store    Store
	dispatch Dispatcher
	notify   Notifier
	log      logger.Logger

	now func() time.Time
	rng *rand.Rand

	mu       sync.Mutex
	inFlight bool
}

func New(store Store, dispatch Dispatcher, notify Notifier, log logger.Logger) *Scheduler {
	if notify == nil {
		notify = nopNotifier{}
	}
	return &Scheduler{
		store:    store,
		dispatch: dispatch,
		notify:   notify,
		log:      logger.Ensure(log),
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drives the loop until ctx ends. The loop always reschedules, dispatch
// outcome notwithstanding.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.InfoObj("scheduler started", "scheduler", map[string]any{
		"min_interval": minRefreshInterval.String(),
		"max_interval": maxRefreshInterval.String(),
		"ceiling":      stalenessCeiling.String(),
	})

	timer := time.NewTimer(s.planNext(ctx))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.InfoObj("scheduler stopped", "scheduler", map[string]any{})
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.planNext(ctx))
		}
	}
}

// tick dispatches at most one refresh: the feed with the oldest (or absent)
// LastCheckedAt. A tick landing mid-refresh is a no-op.
func (s *Scheduler) tick(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.log.DebugObj("refresh in flight, tick skipped", "scheduler", map[string]any{})
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	feeds, err := s.store.Get(ctx)
	if err != nil {
		s.clearInFlight()
		s.log.WarnObj("feed registry read failed", "scheduler", map[string]any{
			"error": err.Error(),
		})
		return
	}

	reg, ok := oldestFeed(feeds)
	if !ok {
		s.clearInFlight()
		return
	}

	go s.refresh(ctx, reg)
}

// refresh runs one dispatch and records its outcome.
func (s *Scheduler) refresh(ctx context.Context, reg domain.FeedRegistration) {
	defer s.clearInFlight()

	res, err := s.dispatch.Dispatch(ctx, reg)
	if err != nil {
		s.log.WarnObj("feed refresh failed", "scheduler", map[string]any{
			"feed_id": reg.ID,
			"url":     reg.SourceURL,
			"error":   err.Error(),
		})
		s.recordFailure(ctx, reg.ID)
		s.notify.RefreshFailed(ctx, reg, err)
		return
	}

	s.log.InfoObj("feed refreshed", "scheduler", map[string]any{
		"feed_id": reg.ID,
		"url":     reg.SourceURL,
		"posts":   len(res.Posts),
	})
	s.recordSuccess(ctx, reg.ID, res)
	s.notify.RefreshSucceeded(ctx, reg)
}

func (s *Scheduler) recordSuccess(ctx context.Context, id string, res domain.ScrapeResult) {
	now := s.now()
	s.mutateFeed(ctx, id, func(f *domain.FeedRegistration) {
		f.LastCheckedAt = now
		f.PostCount = len(res.Posts)
		if ts, ok := latestPostTimestamp(res.Posts); ok {
			f.LatestPostTimestamp = ts
		}
	})
}

func (s *Scheduler) recordFailure(ctx context.Context, id string) {
	s.mutateFeed(ctx, id, func(f *domain.FeedRegistration) {
		f.LastCheckedAt = f.LastCheckedAt.Add(failurePenalty)
	})
}

// mutateFeed applies one change through the whole-collection contract,
// re-resolving the feed by ID. A feed deleted mid-refresh drops the write.
func (s *Scheduler) mutateFeed(ctx context.Context, id string, mutate func(*domain.FeedRegistration)) {
	feeds, err := s.store.Get(ctx)
	if err != nil {
		s.log.WarnObj("feed registry read failed", "scheduler", map[string]any{
			"feed_id": id,
			"error":   err.Error(),
		})
		return
	}

	found := false
	for i := range feeds {
		if feeds[i].ID == id {
			mutate(&feeds[i])
			found = true
			break
		}
	}
	if !found {
		s.log.DebugObj("feed gone before write, outcome dropped", "scheduler", map[string]any{
			"feed_id": id,
		})
		return
	}

	if err := s.store.Set(ctx, feeds); err != nil {
		s.log.WarnObj("feed registry write failed", "scheduler", map[string]any{
			"feed_id": id,
			"error":   err.Error(),
		})
	}
}

func (s *Scheduler) clearInFlight() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// planNext draws the next tick interval and caps it by the ceiling.
func (s *Scheduler) planNext(ctx context.Context) time.Duration {
	drawn := s.drawInterval()

	feeds, err := s.store.Get(ctx)
	if err != nil || len(feeds) == 0 {
		return drawn
	}
	oldest, ok := oldestFeed(feeds)
	if !ok {
		return drawn
	}

	return nextInterval(drawn, s.now().Sub(oldest.LastCheckedAt))
}

func (s *Scheduler) drawInterval() time.Duration {
	spread := int64(maxRefreshInterval - minRefreshInterval)
	return minRefreshInterval + time.Duration(s.rng.Int63n(spread))
}

// nextInterval caps a drawn interval against the staleness ceiling given
// the oldest feed's age. Past the ceiling the next tick fires in
// minTickDelay; an interval that would cross it lands ceilingMargin short,
// floored at minTickDelay.
func nextInterval(drawn, oldestAge time.Duration) time.Duration {
	remaining := stalenessCeiling - oldestAge
	if remaining <= 0 {
		return minTickDelay
	}
	if drawn > remaining {
		shortened := remaining - ceilingMargin
		if shortened < minTickDelay {
			return minTickDelay
		}
		return shortened
	}
	return drawn
}

// oldestFeed picks the registration with the oldest LastCheckedAt. A zero
// value (never checked) sorts before everything.
func oldestFeed(feeds []domain.FeedRegistration) (domain.FeedRegistration, bool) {
	if len(feeds) == 0 {
		return domain.FeedRegistration{}, false
	}

	best := feeds[0]
	for _, f := range feeds[1:] {
		if f.LastCheckedAt.Before(best.LastCheckedAt) {
			best = f
		}
	}
	return best, true
}

// latestPostTimestamp returns the newest non-estimated timestamp. Absent
// any, it reports none so the caller retains the prior value.
func latestPostTimestamp(posts []domain.NormalizedPost) (time.Time, bool) {
	var latest time.Time
	found := false
	for _, p := range posts {
		if p.TimestampEstimated {
			continue
		}
		if !found || p.Timestamp.After(latest) {
			latest = p.Timestamp
			found = true
		}
	}
	return latest, found
}

type nopNotifier struct{}

func (nopNotifier) RefreshFailed(context.Context, domain.FeedRegistration, error) {}
func (nopNotifier) RefreshSucceeded(context.Context, domain.FeedRegistration)     {}
