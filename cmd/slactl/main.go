package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/app"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.App, cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger = logger.Named("slactl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := func(ctx context.Context) (jobRunner, func(), error) {
		if cfg.Postgres.DSN == "" {
			return nil, nil, errors.New("POSTGRES_DSN is required")
		}
		container, err := app.Build(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return container.Jobs, container.Close, nil
	}

	if err := newRootCmd(factory).ExecuteContext(ctx); err != nil {
		logger.Error("slactl failed", zap.Error(err))
		os.Exit(1)
	}
}
