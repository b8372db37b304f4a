package notify

import "context"

// logSink writes events to the structured log. The zero-config default sink.
type logSink struct {
	id  string
	log Logger
}

func newLogSink(_ context.Context, cfg SinkConfig, log Logger) (Sink, error) {
	return &logSink{id: cfg.ID, log: ensureLogger(log)}, nil
}

func (s *logSink) ID() string   { return s.id }
func (s *logSink) Type() string { return TypeLog }

func (s *logSink) Send(_ context.Context, evt Event) error {
	fields := map[string]any{
		"feed_id":     evt.FeedID,
		"feed_name":   evt.FeedName,
		"source_url":  evt.SourceURL,
		"message":     evt.Message,
		"occurred_at": evt.OccurredAt,
	}

	if evt.Kind == KindRefreshFailed {
		s.log.WarnObj("feed refresh failing", "notification", fields)
		return nil
	}
	s.log.InfoObj("feed refresh recovered", "notification", fields)
	return nil
}
