// Package notify delivers feed refresh outcomes to configured sinks.
package notify

import (
	"time"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

// Event kinds delivered to sinks. A failed kind is recoverable: the next
// successful refresh of the same feed emits a recovered event.
const (
	KindRefreshFailed    = "refresh-failed"
	KindRefreshRecovered = "refresh-recovered"
)

// Event represents the payload delivered downstream.
type Event struct {
	Kind       string    `json:"kind"`
	FeedID     string    `json:"feed_id"`
	FeedName   string    `json:"feed_name"`
	SourceURL  string    `json:"source_url"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent constructs an Event for the given feed.
func NewEvent(kind string, reg domain.FeedRegistration, message string) Event {
	name := reg.DisplayName
	if name == "" {
		name = reg.SourceURL
	}
	return Event{
		Kind:       kind,
		FeedID:     reg.ID,
		FeedName:   name,
		SourceURL:  reg.SourceURL,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	}
}
