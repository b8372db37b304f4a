// Package wizard drives the interactive feed-setup session: a state machine
// walking the user from login through navigation, item selection, and scroll
// configuration to a registered feed.
package wizard

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
	"github.com/pointfeed-hq/pointfeed/internal/extract"
	"github.com/pointfeed-hq/pointfeed/internal/infer"
	"github.com/pointfeed-hq/pointfeed/internal/logger"
	"github.com/pointfeed-hq/pointfeed/pkg/surface"
)

const defaultNavigateTimeout = 30 * time.Second

// stateCancelled is the one terminal state with no overlay step.
const stateCancelled = "cancelled"

// ErrSessionActive rejects a second Run while one session is outstanding.
var ErrSessionActive = errors.New("a wizard session is already active")

// Controller runs interactive sessions over one rendering surface. At most
// one session is outstanding at a time.
type Controller struct {
	surface    surface.Interactive
	log        logger.Logger
	navTimeout time.Duration
	now        func() time.Time
	active     atomic.Bool
}

// session is the explicit state threaded through transitions. It lives on
// the controller side, never on the surface.
type session struct {
	id        string
	state     string
	targetURL string
	locator   domain.Locator
	items     []domain.ExtractedItem
	display   string
	scroll    domain.ScrollConfig
	settled   bool
}

func New(surf surface.Interactive, log logger.Logger) *Controller {
	return &Controller{
		surface:    surf,
		log:        logger.Ensure(log),
		navTimeout: defaultNavigateTimeout,
		now:        time.Now,
	}
}

// Run drives one session to a terminal state and returns its outcome.
// Cancellation, surface closure, and context end all settle the session with
// domain.ErrSessionCancelled. The session settles exactly once.
func (c *Controller) Run(ctx context.Context) (domain.WizardOutcome, error) {
	if !c.active.CompareAndSwap(false, true) {
		return domain.WizardOutcome{}, ErrSessionActive
	}
	defer c.active.Store(false)

	sess := &session{id: uuid.NewString(), state: surface.StepLogin}
	c.log.InfoObj("wizard session started", "wizard_session", map[string]any{
		"session_id": sess.id,
	})
	c.redraw(ctx, sess, "")

	events := c.surface.Events(ctx)
	for {
		select {
		case <-ctx.Done():
			out, _, err := c.settleCancelled(sess, "context ended")
			return out, err
		case ev, ok := <-events:
			if !ok {
				out, _, err := c.settleCancelled(sess, "surface closed")
				return out, err
			}
			if out, done, err := c.handle(ctx, sess, ev); done {
				return out, err
			}
		}
	}
}

// handle applies one event to the session. Events that do not fit the
// current state, and names outside the protocol, are ignored.
func (c *Controller) handle(ctx context.Context, sess *session, ev surface.Event) (domain.WizardOutcome, bool, error) {
	if sess.settled {
		return domain.WizardOutcome{}, false, nil
	}

	switch ev.Name {
	case surface.EventCancel:
		return c.settleCancelled(sess, "cancel event")

	case surface.EventLoginDone:
		if sess.state != surface.StepLogin {
			return domain.WizardOutcome{}, false, nil
		}
		sess.state = surface.StepNavigate
		c.redraw(ctx, sess, "")

	case surface.EventNavigateTo:
		if sess.state != surface.StepNavigate {
			return domain.WizardOutcome{}, false, nil
		}
		url := strings.TrimSpace(ev.URL)
		if url == "" {
			c.redraw(ctx, sess, "Enter a page address first.")
			return domain.WizardOutcome{}, false, nil
		}
		c.navigate(ctx, sess, url)

	case surface.EventStartSelector:
		if sess.state != surface.StepNavigate || sess.targetURL == "" {
			return domain.WizardOutcome{}, false, nil
		}
		sess.state = surface.StepSelect
		sess.locator = domain.Locator{}
		sess.items = nil
		c.redraw(ctx, sess, "")

	case surface.EventPick:
		if sess.state != surface.StepSelect {
			return domain.WizardOutcome{}, false, nil
		}
		c.pick(ctx, sess, ev.Path)

	case surface.EventConfirmItems:
		if sess.state != surface.StepSelect || sess.locator.IsZero() {
			return domain.WizardOutcome{}, false, nil
		}
		sess.display = strings.TrimSpace(ev.Display)
		if sess.display == "" {
			sess.display = sess.targetURL
		}
		sess.state = surface.StepScrollConfig
		c.redraw(ctx, sess, "")

	case surface.EventFinishScroll:
		if sess.state != surface.StepScrollConfig {
			return domain.WizardOutcome{}, false, nil
		}
		count := ev.Count
		if count < 0 {
			count = 0
		}
		sess.scroll = domain.ScrollConfig{Target: strings.TrimSpace(ev.Target), Count: count}
		sess.state = surface.StepDone
		c.redraw(ctx, sess, "")
		return c.settleDone(sess)
	}

	return domain.WizardOutcome{}, false, nil
}

// navigate loads the requested page. The session passes through navigating
// and lands back on navigate whatever the load result. The target URL is
// recorded only on load completion; a failed load keeps the previous page.
func (c *Controller) navigate(ctx context.Context, sess *session, url string) {
	prev := sess.targetURL
	sess.state = surface.StepNavigating
	sess.targetURL = url
	c.redraw(ctx, sess, "")

	err := c.surface.Navigate(ctx, url, c.navTimeout)
	sess.state = surface.StepNavigate
	if err != nil {
		sess.targetURL = prev
		c.log.WarnObj("wizard page load failed", "wizard_session", map[string]any{
			"session_id": sess.id,
			"url":        url,
			"error":      err.Error(),
		})
		notice := "That page could not be loaded."
		if errors.Is(err, domain.ErrLoadTimeout) {
			notice = "That page took too long to load."
		}
		c.redraw(ctx, sess, notice)
		return
	}

	if resolved, err := surface.Location(ctx, c.surface); err == nil && resolved != "" {
		sess.targetURL = resolved
	}
	c.redraw(ctx, sess, "")
}

// pick runs inference over a fresh snapshot for one captured click. It never
// transitions state; a failed pick redraws the overlay with a retry notice.
func (c *Controller) pick(ctx context.Context, sess *session, path []int) {
	html, err := surface.Snapshot(ctx, c.surface)
	if err != nil {
		c.log.WarnObj("selection snapshot failed", "wizard_session", map[string]any{
			"session_id": sess.id,
			"error":      err.Error(),
		})
		c.redraw(ctx, sess, "Something went wrong reading the page. Click the item again.")
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		c.log.WarnObj("selection snapshot parse failed", "wizard_session", map[string]any{
			"session_id": sess.id,
			"error":      err.Error(),
		})
		c.redraw(ctx, sess, "Something went wrong reading the page. Click the item again.")
		return
	}

	leaf, ok := infer.ElementAtPath(doc, path)
	if !ok {
		c.redraw(ctx, sess, "That click could not be matched. Try another item.")
		return
	}

	loc, ok := infer.Infer(doc, leaf)
	if !ok {
		c.redraw(ctx, sess, "No repeating items found there. Click a different part of an item.")
		return
	}

	var items []domain.ExtractedItem
	doc.Find(loc.Selector).Each(func(_ int, sel *goquery.Selection) {
		items = append(items, extract.Extract(sel))
	})
	sess.locator = loc
	sess.items = items

	c.log.InfoObj("selection locator accepted", "wizard_session", map[string]any{
		"session_id":  sess.id,
		"selector":    loc.Selector,
		"match_count": loc.MatchCount,
	})
	c.redraw(ctx, sess, "")
}

// redraw regenerates the overlay from scratch. Script failures are logged,
// never escalated into session failures.
func (c *Controller) redraw(ctx context.Context, sess *session, notice string) {
	state := surface.OverlayState{
		Step:      sess.state,
		TargetURL: sess.targetURL,
		Notice:    notice,
	}
	if sess.state == surface.StepSelect {
		state.Preview = previewCaptions(sess.items)
	}

	if err := c.surface.ApplyOverlay(ctx, state); err != nil {
		c.log.WarnObj("overlay render failed", "wizard_session", map[string]any{
			"session_id": sess.id,
			"step":       sess.state,
			"error":      err.Error(),
		})
	}
}

func (c *Controller) settleDone(sess *session) (domain.WizardOutcome, bool, error) {
	if sess.settled {
		return domain.WizardOutcome{}, false, nil
	}
	sess.settled = true

	now := c.now()
	posts := make([]domain.NormalizedPost, 0, len(sess.items))
	for _, item := range sess.items {
		posts = append(posts, extract.Normalize(item, sess.targetURL, now))
	}

	c.log.InfoObj("wizard session resolved", "wizard_session", map[string]any{
		"session_id":  sess.id,
		"source_url":  sess.targetURL,
		"selector":    sess.locator.Selector,
		"match_count": sess.locator.MatchCount,
		"posts":       len(posts),
	})

	return domain.WizardOutcome{
		SourceURL:   sess.targetURL,
		DisplayName: sess.display,
		Locator:     sess.locator,
		Scroll:      sess.scroll,
		Posts:       posts,
	}, true, nil
}

func (c *Controller) settleCancelled(sess *session, reason string) (domain.WizardOutcome, bool, error) {
	if sess.settled {
		return domain.WizardOutcome{}, false, nil
	}
	sess.settled = true
	sess.state = stateCancelled

	c.log.InfoObj("wizard session cancelled", "wizard_session", map[string]any{
		"session_id": sess.id,
		"reason":     reason,
	})
	return domain.WizardOutcome{}, true, domain.ErrSessionCancelled
}

func previewCaptions(items []domain.ExtractedItem) []string {
	captions := make([]string, 0, len(items))
	for _, item := range items {
		caption := item.Title
		if caption == "" {
			caption = item.Text
		}
		if caption == "" {
			caption = item.Link
		}
		if runes := []rune(caption); len(runes) > 80 {
			caption = string(runes[:80]) + "..."
		}
		captions = append(captions, caption)
	}
	return captions
}
