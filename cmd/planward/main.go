package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/planward/planward/adapter/cli"
	"github.com/planward/planward/internal/app"
	"github.com/planward/planward/pkg/config"
	"github.com/planward/planward/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	cli.SetLogger(logger)

	container, err := app.NewWithConfig(ctx, cfg, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			// commands that need storage will say so themselves
			logger.Warn("failed to initialize container, running in limited mode", "error", err)
		} else {
			logger.Error("failed to initialize container", "error", err)
			os.Exit(1)
		}
	} else {
		defer container.Close()
		if err := container.SeedRules(ctx); err != nil {
			logger.Error("failed to seed rules", "error", err)
			os.Exit(1)
		}
		cli.SetContainer(container)
	}

	cli.ExecuteContext(ctx)
}
