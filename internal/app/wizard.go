package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pointfeed-hq/pointfeed/internal/config"
	"github.com/pointfeed-hq/pointfeed/internal/domain"
	"github.com/pointfeed-hq/pointfeed/internal/feedstore"
	"github.com/pointfeed-hq/pointfeed/internal/logger"
	"github.com/pointfeed-hq/pointfeed/internal/wizard"
	"github.com/pointfeed-hq/pointfeed/pkg/surface"
)

// RunWizard opens a visible browser window, drives one interactive setup
// session, and registers the resulting feed in the registry store. The
// registration is written as indented JSON to out. A cancelled session is a
// normal end: nothing is registered and no error is returned.
func RunWizard(ctx context.Context, cfg *config.Config, log logger.Logger, out io.Writer) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log = logger.Ensure(log)

	store, err := feedstore.NewStore(cfg.StoreType, cfg.BBoltPath)
	if err != nil {
		return fmt.Errorf("init feed store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			log.ErrorObj("feed store close failed", "error", cerr)
		}
	}()

	// Setup sessions need a window the user can see and click in.
	browser, err := surface.Launch(ctx, surface.Options{
		Bin:      cfg.BrowserBin,
		Headless: false,
	}, log)
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			log.ErrorObj("browser close failed", "error", cerr)
		}
	}()

	page, err := browser.NewInteractive(ctx)
	if err != nil {
		return fmt.Errorf("open interactive page: %w", err)
	}
	defer page.Destroy()

	outcome, err := wizard.New(page, log).Run(ctx)
	if errors.Is(err, domain.ErrSessionCancelled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("wizard session: %w", err)
	}

	reg, err := feedstore.Register(ctx, store, outcome)
	if err != nil {
		return fmt.Errorf("register feed: %w", err)
	}

	log.InfoObj("feed registered", "feed_meta", map[string]any{
		"feed_id":    reg.ID,
		"source_url": reg.SourceURL,
		"selector":   reg.Locator.Selector,
	})

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(reg); err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}

	return nil
}
