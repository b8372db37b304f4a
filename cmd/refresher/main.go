package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pointfeed-hq/pointfeed/internal/app"
	"github.com/pointfeed-hq/pointfeed/internal/config"
	"github.com/pointfeed-hq/pointfeed/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "refresher start failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Close()

	log.InfoObj("refresher starting", "config", cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refresher, err := app.NewRefresher(ctx, cfg, log)
	if err != nil {
		log.ErrorObj("failed to initialize refresher", "error", err)
		return err
	}

	if err := refresher.Run(ctx); err != nil {
		return fmt.Errorf("refresher run: %w", err)
	}

	return nil
}
