package app

import (
	"context"
	"fmt"

	"github.com/pointfeed-hq/pointfeed/internal/config"
	"github.com/pointfeed-hq/pointfeed/internal/domain"
	"github.com/pointfeed-hq/pointfeed/internal/feedstore"
	"github.com/pointfeed-hq/pointfeed/internal/headless"
	"github.com/pointfeed-hq/pointfeed/internal/logger"
	"github.com/pointfeed-hq/pointfeed/internal/scheduler"
	"github.com/pointfeed-hq/pointfeed/pkg/notify"
	"github.com/pointfeed-hq/pointfeed/pkg/surface"
)

// Refresher is the feed refresh runtime. It owns the feed registry store,
// the headless browser, the notification center, and the scheduler loop
// that ties them together.
type Refresher struct {
	cfg     *config.Config
	store   feedstore.Store
	browser *surface.Browser
	sched   *scheduler.Scheduler
	center  *notify.Center
	log     logger.Logger
}

// NewRefresher builds the refresher runtime from config files.
func NewRefresher(ctx context.Context, cfg *config.Config, log logger.Logger) (*Refresher, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := feedstore.NewStore(cfg.StoreType, cfg.BBoltPath)
	if err != nil {
		return nil, fmt.Errorf("init feed store: %w", err)
	}
	log.InfoObj("feed store initialized", "store_config", map[string]any{
		"type": cfg.StoreType,
		"path": cfg.BBoltPath,
	})

	seeds, err := feedstore.LoadSeedFile(cfg.FeedsFile)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("load feeds file: %w", err)
	}
	added, err := feedstore.Seed(ctx, store, seeds)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed feed registry: %w", err)
	}
	log.InfoObj("feed registry seeded", "feeds_meta", map[string]any{
		"defined": len(seeds),
		"added":   added,
	})

	center, err := buildNotifyCenter(ctx, cfg, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	browser, err := surface.Launch(ctx, surface.Options{
		Bin:      cfg.BrowserBin,
		Headless: cfg.BrowserHeadless,
	}, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	executor := headless.New(browser, cfg.ScrapeSpacing, log)
	dispatch := scheduler.NewDispatchRegistry()
	dispatch.Register(domain.KindPage, executor)

	sched := scheduler.New(store, dispatch, center, log)

	return &Refresher{
		cfg:     cfg,
		store:   store,
		browser: browser,
		sched:   sched,
		center:  center,
		log:     log,
	}, nil
}

// buildNotifyCenter loads the notifier registry and assembles the fanout.
// A registry with nothing enabled leaves the refresher running silent.
func buildNotifyCenter(ctx context.Context, cfg *config.Config, log logger.Logger) (*notify.Center, error) {
	notifReg, err := notify.LoadRegistry(cfg.NotifiersFile)
	if err != nil {
		return nil, fmt.Errorf("load notifiers registry: %w", err)
	}

	enabled := notifReg.Enabled()
	sinks, err := notify.BuildAll(ctx, notify.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build notification sinks: %w", err)
	}
	if len(sinks) == 0 {
		log.WarnObj("no notification sinks enabled", "notifiers_file", cfg.NotifiersFile)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, sinkCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   sinkCfg.ID,
			"type": sinkCfg.Type,
		})
	}
	log.InfoObj("notifiers registry loaded", "notifiers_meta", map[string]any{
		"count": len(summaries),
		"sinks": summaries,
	})

	return notify.NewCenter(notify.NewFanout(sinks), log), nil
}

// Run drives the scheduler loop until the context is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	if r == nil || r.sched == nil {
		return fmt.Errorf("refresher is not initialized")
	}
	defer r.close()

	feeds, err := r.store.Get(ctx)
	if err != nil {
		return fmt.Errorf("read feed registry: %w", err)
	}
	if len(feeds) == 0 {
		r.log.WarnObj("no feeds registered; refresher idle", "feeds_file", r.cfg.FeedsFile)
		<-ctx.Done()
		return nil
	}

	r.log.InfoObj("refresher loop starting", "refresher_state", map[string]any{
		"feeds_count": len(feeds),
	})
	r.sched.Run(ctx)
	return nil
}

// close releases the browser and the registry store, logging failures.
func (r *Refresher) close() {
	if r == nil {
		return
	}
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			r.log.ErrorObj("browser close failed", "error", err)
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.ErrorObj("feed store close failed", "error", err)
		}
	}
}
