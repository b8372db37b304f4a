package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
	"github.com/pointfeed-hq/pointfeed/internal/logger"
)

const (
	defaultViewportWidth  = 1366
	defaultViewportHeight = 900

	// eventPollInterval paces the drain of the in-page event buffer.
	eventPollInterval = 500 * time.Millisecond

	// maxDrainFailures ends the event stream after this many consecutive
	// failed drains. A live page recovers its eval context within a tick
	// or two of a navigation; sustained failure means the window is gone.
	maxDrainFailures = 10
)

// Options configures the launched browser.
type Options struct {
	Bin      string
	Headless bool
	Width    int
	Height   int
}

// Browser owns one launched browser process and hands out page surfaces.
type Browser struct {
	browser *rod.Browser
	opts    Options
	log     logger.Logger
}

// Launch starts a browser and connects to it. The returned Browser must be
// closed by the caller.
func Launch(ctx context.Context, opts Options, log logger.Logger) (*Browser, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Browser{browser: browser, opts: opts, log: logger.Ensure(log)}, nil
}

// NewPage opens a fresh page in its own incognito context.
func (b *Browser) NewPage(ctx context.Context) (Surface, error) {
	return b.newPage(ctx)
}

// NewInteractive opens a page surface with overlay and event support for a
// wizard session.
func (b *Browser) NewInteractive(ctx context.Context) (Interactive, error) {
	page, err := b.newPage(ctx)
	if err != nil {
		return nil, err
	}
	return &interactivePage{pageSurface: page}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	if b == nil || b.browser == nil {
		return nil
	}
	return b.browser.Close()
}

func (b *Browser) newPage(ctx context.Context) (*pageSurface, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	width, height := b.opts.Width, b.opts.Height
	if width <= 0 {
		width = defaultViewportWidth
	}
	if height <= 0 {
		height = defaultViewportHeight
	}
	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		b.log.WarnObj("viewport override failed", "surface_warning", map[string]any{
			"error": err.Error(),
		})
	}

	return &pageSurface{page: page.Context(ctx), log: b.log}, nil
}

// pageSurface implements Surface over one rod page.
type pageSurface struct {
	page      *rod.Page
	log       logger.Logger
	closeOnce sync.Once
}

func (p *pageSurface) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	page := p.page.Context(ctx).Timeout(timeout)

	if err := page.Navigate(url); err != nil {
		return classifyLoadError(err, url)
	}
	if err := page.WaitLoad(); err != nil {
		return classifyLoadError(err, url)
	}
	return nil
}

func classifyLoadError(err error, url string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", domain.ErrLoadTimeout, url)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrLoadFailure, url, err)
}

func (p *pageSurface) Eval(ctx context.Context, js string) ([]byte, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate script: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal script result: %w", err)
	}
	return raw, nil
}

func (p *pageSurface) Destroy() {
	p.closeOnce.Do(func() {
		if err := p.page.Close(); err != nil {
			p.log.DebugObj("page close failed", "surface_close", map[string]any{
				"error": err.Error(),
			})
		}
	})
}

// interactivePage adds overlay rendering and the event stream.
type interactivePage struct {
	*pageSurface
}

func (p *interactivePage) ApplyOverlay(ctx context.Context, state OverlayState) error {
	if _, err := p.Eval(ctx, hookScript); err != nil {
		return fmt.Errorf("install page hook: %w", err)
	}

	js, err := overlayScript(state)
	if err != nil {
		return err
	}
	if _, err := p.Eval(ctx, js); err != nil {
		return fmt.Errorf("render overlay: %w", err)
	}
	return nil
}

func (p *interactivePage) Events(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	go func() {
		defer close(ch)

		ticker := time.NewTicker(eventPollInterval)
		defer ticker.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				events, err := p.drain(ctx)
				if err != nil {
					failures++
					if failures >= maxDrainFailures {
						p.log.InfoObj("event stream ended, page unreachable", "surface_events", map[string]any{
							"failures": failures,
						})
						return
					}
					continue
				}
				failures = 0

				for _, ev := range events {
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

func (p *interactivePage) drain(ctx context.Context) ([]Event, error) {
	raw, err := p.Eval(ctx, drainEventsScript)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var events []Event
	if err := json.Unmarshal(raw, &events); err != nil {
		p.log.DebugObj("event buffer decode failed", "surface_events", map[string]any{
			"error": err.Error(),
		})
		return nil, nil
	}
	return events, nil
}
