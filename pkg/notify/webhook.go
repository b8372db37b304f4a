package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pointfeed-hq/pointfeed/pkg/httpclient"
)

// webhookSink POSTs events as JSON to a configured endpoint.
type webhookSink struct {
	id      string
	url     string
	headers map[string]string
	client  httpclient.Client
}

func newWebhookSink(_ context.Context, cfg SinkConfig, _ Logger) (Sink, error) {
	if cfg.Webhook == nil {
		return nil, fmt.Errorf("notifier %q missing webhook configuration", cfg.ID)
	}

	client := httpclient.NewRestyClient(time.Duration(cfg.Webhook.TimeoutSeconds) * time.Second)

	return &webhookSink{
		id:      cfg.ID,
		url:     cfg.Webhook.URL,
		headers: cfg.Webhook.Headers,
		client:  client,
	}, nil
}

func (w *webhookSink) ID() string   { return w.id }
func (w *webhookSink) Type() string { return TypeWebhook }

func (w *webhookSink) Send(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	resp, err := w.client.Post(ctx, w.url, w.headers, payload)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("webhook response status %d: %s", resp.StatusCode(), readBodySnippet(resp.Body()))
	}
	return nil
}

func readBodySnippet(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return strings.TrimSpace(string(body))
}
