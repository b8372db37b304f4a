package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

// Center turns refresh outcomes into notification events. A feed's first
// failure emits a failure event and stays active until the next successful
// refresh, which emits a recovery event. Repeat failures of an already
// failing feed are suppressed. Delivery failures are logged, never
// propagated.
type Center struct {
	fanout *Fanout
	log    Logger
	now    func() time.Time

	mu     sync.Mutex
	active map[string]Event
}

// NewCenter builds a notification center over the given fanout.
func NewCenter(fanout *Fanout, log Logger) *Center {
	if fanout == nil {
		fanout = NewFanout(nil)
	}
	return &Center{
		fanout: fanout,
		log:    ensureLogger(log),
		now:    time.Now,
		active: make(map[string]Event),
	}
}

// RefreshFailed records a failed refresh. Only the transition into the
// failing state emits an event.
func (c *Center) RefreshFailed(ctx context.Context, reg domain.FeedRegistration, err error) {
	message := "refresh failed"
	if err != nil {
		message = err.Error()
	}
	evt := NewEvent(KindRefreshFailed, reg, message)
	evt.OccurredAt = c.now().UTC()

	c.mu.Lock()
	_, already := c.active[reg.ID]
	if !already {
		c.active[reg.ID] = evt
	}
	c.mu.Unlock()

	if already {
		return
	}
	c.emit(ctx, evt)
}

// RefreshSucceeded resolves an active failure, if any, by emitting a
// recovery event. Successes on healthy feeds are silent.
func (c *Center) RefreshSucceeded(ctx context.Context, reg domain.FeedRegistration) {
	c.mu.Lock()
	_, wasFailing := c.active[reg.ID]
	delete(c.active, reg.ID)
	c.mu.Unlock()

	if !wasFailing {
		return
	}

	evt := NewEvent(KindRefreshRecovered, reg, "refresh recovered")
	evt.OccurredAt = c.now().UTC()
	c.emit(ctx, evt)
}

// Active returns the currently unresolved failure notifications, ordered by
// feed ID.
func (c *Center) Active() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Event, 0, len(c.active))
	for _, evt := range c.active {
		out = append(out, evt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeedID < out[j].FeedID })
	return out
}

// Dismiss drops an active failure notification. A later failure of the same
// feed notifies again.
func (c *Center) Dismiss(feedID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[feedID]; !ok {
		return false
	}
	delete(c.active, feedID)
	return true
}

func (c *Center) emit(ctx context.Context, evt Event) {
	delivered, err := c.fanout.Send(ctx, evt)
	if err != nil {
		c.log.WarnObj("notification delivery incomplete", "notify", map[string]any{
			"kind":      evt.Kind,
			"feed_id":   evt.FeedID,
			"delivered": delivered,
			"error":     err.Error(),
		})
		return
	}
	c.log.DebugObj("notification delivered", "notify", map[string]any{
		"kind":      evt.Kind,
		"feed_id":   evt.FeedID,
		"delivered": delivered,
	})
}
