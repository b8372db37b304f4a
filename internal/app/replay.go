package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pointfeed-hq/pointfeed/internal/config"
	"github.com/pointfeed-hq/pointfeed/internal/domain"
	"github.com/pointfeed-hq/pointfeed/internal/headless"
	"github.com/pointfeed-hq/pointfeed/internal/logger"
	"github.com/pointfeed-hq/pointfeed/pkg/surface"
)

// Replay runs a single headless reproduction against the replay_* config
// fields and writes the resulting posts as indented JSON to out. It is the
// one-shot counterpart of the refresher loop, useful for checking that a
// stored locator still yields posts.
func Replay(ctx context.Context, cfg *config.Config, log logger.Logger, out io.Writer) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if strings.TrimSpace(cfg.ReplayURL) == "" {
		return fmt.Errorf("replay_url is required")
	}
	if strings.TrimSpace(cfg.ReplaySelector) == "" {
		return fmt.Errorf("replay_selector is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log = logger.Ensure(log)

	browser, err := surface.Launch(ctx, surface.Options{
		Bin:      cfg.BrowserBin,
		Headless: cfg.BrowserHeadless,
	}, log)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			log.ErrorObj("browser close failed", "error", cerr)
		}
	}()

	executor := headless.New(browser, cfg.ScrapeSpacing, log)

	result, err := executor.Reproduce(ctx, headless.Job{
		SourceURL: cfg.ReplayURL,
		Locator:   domain.Locator{Selector: cfg.ReplaySelector},
		Scroll: domain.ScrollConfig{
			Target: cfg.ReplayScrollTarget,
			Count:  cfg.ReplayScrollCount,
		},
	})
	if err != nil {
		return fmt.Errorf("reproduce %q: %w", cfg.ReplayURL, err)
	}

	log.InfoObj("replay finished", "replay_meta", map[string]any{
		"source_url":  cfg.ReplayURL,
		"posts_count": len(result.Posts),
	})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode replay result: %w", err)
	}

	return nil
}
