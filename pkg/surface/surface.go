// Package surface models the rendering surface as an opaque capability:
// navigate, evaluate script, destroy. Inference, extraction, and scheduling
// stay substrate-independent; only this package talks to a real browser.
package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Surface is one loaded page with a scoped lifecycle. Every surface must be
// destroyed on every exit path, timeout and extraction error included.
type Surface interface {
	// Navigate loads url and waits for load completion, bounded by timeout.
	// Timeouts and navigation errors are classified as the domain package's
	// load sentinels.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// Eval runs a script in the page and returns its JSON-encoded result.
	// A nil result with nil error means the script returned undefined.
	Eval(ctx context.Context, js string) ([]byte, error)

	// Destroy tears the page down. Safe to call more than once.
	Destroy()
}

// Interactive extends a surface for wizard sessions with a user present:
// control overlay rendering plus the page event stream.
type Interactive interface {
	Surface

	// ApplyOverlay replaces the control overlay with a fresh render of
	// state. The previous overlay is removed, never patched.
	ApplyOverlay(ctx context.Context, state OverlayState) error

	// Events returns the stream of overlay and click events. The channel
	// closes when ctx ends or the page is gone (window closed).
	Events(ctx context.Context) <-chan Event
}

// Factory opens fresh page surfaces, one per scrape or session.
type Factory interface {
	NewPage(ctx context.Context) (Surface, error)
}

// Overlay steps rendered by the control overlay. The wizard's states map
// onto these one to one.
const (
	StepLogin        = "login"
	StepNavigate     = "navigate"
	StepNavigating   = "navigating"
	StepSelect       = "select"
	StepScrollConfig = "scroll-config"
	StepDone         = "done"
)

// Event names in the controller protocol. pick is the one non-protocol
// event: it carries a click path and never transitions wizard state.
const (
	EventLoginDone     = "login-done"
	EventNavigateTo    = "navigate-to"
	EventStartSelector = "start-selector"
	EventConfirmItems  = "confirm-items"
	EventFinishScroll  = "finish-scroll"
	EventCancel        = "cancel"
	EventPick          = "pick"
)

// Event is one message drained from the page: an overlay control event or a
// captured item click.
type Event struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Display string `json:"display,omitempty"`
	Target  string `json:"target,omitempty"`
	Count   int    `json:"count,omitempty"`
	Path    []int  `json:"path,omitempty"`
}

// OverlayState is everything one overlay render shows. The wizard rebuilds
// it from scratch on every transition and load completion.
type OverlayState struct {
	Step      string   `json:"step"`
	TargetURL string   `json:"targetUrl,omitempty"`
	Preview   []string `json:"preview,omitempty"`
	Notice    string   `json:"notice,omitempty"`
}

// Snapshot returns the page's serialized DOM.
func Snapshot(ctx context.Context, s Surface) (string, error) {
	raw, err := s.Eval(ctx, snapshotScript)
	if err != nil {
		return "", err
	}

	var html string
	if err := json.Unmarshal(raw, &html); err != nil {
		return "", fmt.Errorf("decode snapshot: %w", err)
	}
	return html, nil
}

// Location returns the page's current address, redirects applied.
func Location(ctx context.Context, s Surface) (string, error) {
	raw, err := s.Eval(ctx, locationScript)
	if err != nil {
		return "", err
	}

	var href string
	if err := json.Unmarshal(raw, &href); err != nil {
		return "", fmt.Errorf("decode location: %w", err)
	}
	return href, nil
}

// Scroll performs one scroll action against the named container, or the
// whole-page viewport when target is empty.
func Scroll(ctx context.Context, s Surface, target string) error {
	js, err := scrollScript(target)
	if err != nil {
		return err
	}
	_, err = s.Eval(ctx, js)
	return err
}
