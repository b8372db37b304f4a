package notify

import "context"

// Sink delivers events to a downstream channel (log, webhook, queue, topic).
type Sink interface {
	ID() string
	Type() string
	Send(ctx context.Context, evt Event) error
}
