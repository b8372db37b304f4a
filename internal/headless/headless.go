// Package headless replays a registered feed without a user present: load
// the page, let it settle, run the configured scroll passes, and extract
// every element the feed's locator matches.
package headless

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
	"github.com/pointfeed-hq/pointfeed/internal/extract"
	"github.com/pointfeed-hq/pointfeed/internal/logger"
	"github.com/pointfeed-hq/pointfeed/pkg/surface"
)

// Fixed timing, a documented simplification: slow-rendering pages get no
// adaptive waits, only these.
const (
	loadTimeout      = 30 * time.Second
	settleDelay      = 3 * time.Second
	interScrollDelay = 2 * time.Second
	finalSettleDelay = 2 * time.Second
)

// Job is one reproduction request.
type Job struct {
	SourceURL string
	Locator   domain.Locator
	Scroll    domain.ScrollConfig
}

// Executor reproduces feeds over fresh page surfaces, one page per job,
// destroyed on every exit path. Page loads are spaced by a shared limiter
// so back-to-back refreshes cannot hammer a site.
type Executor struct {
	pages   surface.Factory
	log     logger.Logger
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

// New builds an executor. spacing <= 0 disables page-load spacing.
func New(pages surface.Factory, spacing time.Duration, log logger.Logger) *Executor {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if spacing > 0 {
		limiter = rate.NewLimiter(rate.Every(spacing), 1)
	}
	return &Executor{
		pages:   pages,
		log:     logger.Ensure(log),
		limiter: limiter,
		sleep:   sleepCtx,
		now:     time.Now,
	}
}

// Reproduce runs one job: navigate (bounded by the load timeout), settle,
// scroll sequentially with delays, snapshot, extract, normalize. Snapshot
// and extraction failures degrade to an empty post set; only load failures
// abort the scrape.
func (e *Executor) Reproduce(ctx context.Context, job Job) (domain.ScrapeResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return domain.ScrapeResult{}, fmt.Errorf("page spacing: %w", err)
	}

	page, err := e.pages.NewPage(ctx)
	if err != nil {
		return domain.ScrapeResult{}, fmt.Errorf("open page: %w", err)
	}
	defer page.Destroy()

	if err := page.Navigate(ctx, job.SourceURL, loadTimeout); err != nil {
		return domain.ScrapeResult{}, err
	}
	if err := e.sleep(ctx, settleDelay); err != nil {
		return domain.ScrapeResult{}, err
	}

	// Scroll passes are strictly sequential: lazy-loaded content ordering
	// depends on scroll position.
	if job.Scroll.Count > 0 {
		for i := 0; i < job.Scroll.Count; i++ {
			if err := surface.Scroll(ctx, page, job.Scroll.Target); err != nil {
				e.log.WarnObj("scroll action failed", "headless_scrape", map[string]any{
					"url":   job.SourceURL,
					"pass":  i + 1,
					"error": err.Error(),
				})
			}
			if err := e.sleep(ctx, interScrollDelay); err != nil {
				return domain.ScrapeResult{}, err
			}
		}
		if err := e.sleep(ctx, finalSettleDelay); err != nil {
			return domain.ScrapeResult{}, err
		}
	}

	title, description, posts := e.extractPosts(ctx, page, job)
	if title == "" {
		title = job.SourceURL
	}

	e.log.InfoObj("feed reproduced", "headless_scrape", map[string]any{
		"url":      job.SourceURL,
		"selector": job.Locator.Selector,
		"posts":    len(posts),
	})

	return domain.ScrapeResult{
		DisplayName: title,
		Description: description,
		Posts:       posts,
	}, nil
}

// Dispatch adapts Reproduce to the scheduler's scrape contract for
// page-kind registrations. The registration's display name wins over the
// page's own title.
func (e *Executor) Dispatch(ctx context.Context, reg domain.FeedRegistration) (domain.ScrapeResult, error) {
	res, err := e.Reproduce(ctx, Job{
		SourceURL: reg.SourceURL,
		Locator:   reg.Locator,
		Scroll:    reg.Scroll,
	})
	if err != nil {
		return domain.ScrapeResult{}, err
	}
	if reg.DisplayName != "" {
		res.DisplayName = reg.DisplayName
	}
	return res, nil
}

// extractPosts snapshots the page and runs the shared extraction pipeline.
// Failures here never abort the scrape.
func (e *Executor) extractPosts(ctx context.Context, page surface.Surface, job Job) (string, string, []domain.NormalizedPost) {
	html, err := surface.Snapshot(ctx, page)
	if err != nil {
		e.log.WarnObj("snapshot failed", "headless_scrape", map[string]any{
			"url":   job.SourceURL,
			"error": err.Error(),
		})
		return "", "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.log.WarnObj("snapshot parse failed", "headless_scrape", map[string]any{
			"url":   job.SourceURL,
			"error": err.Error(),
		})
		return "", "", nil
	}

	title, description := extract.Meta(doc)
	return title, description, extract.Posts(doc, job.Locator.Selector, job.SourceURL, e.now())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
