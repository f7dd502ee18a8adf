// Command lookbookd runs the lookbook daemon: the render workflow, the
// HTTP API, and the WebSocket progress feed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"lookbook/internal/config"
	"lookbook/internal/daemon"
	"lookbook/internal/logging"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Local overrides such as LOOKBOOK_CONFIG and provider keys.
	_ = godotenv.Load()

	cfg, _, _, err := config.Load(os.Getenv("LOOKBOOK_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	d, err := daemon.New(ctx, cfg, logger, version)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	select {
	case <-ctx.Done():
		logger.Info("lookbookd shutting down")
	case err := <-d.ServerErr():
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}
	return nil
}
