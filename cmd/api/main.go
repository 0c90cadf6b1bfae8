package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/service-desk/internal/api/http"
	"github.com/spec-kit/service-desk/internal/api/http/handlers"
	"github.com/spec-kit/service-desk/internal/app"
	"github.com/spec-kit/service-desk/internal/auth"
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
	logger = logger.Named("api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise service", zap.Error(err))
	}
	defer container.Close()

	server := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger, container.Metrics),
	})
	httptransport.RegisterMiddlewares(server, logger, container.Metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(server, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": container.Postgres,
			"redis":    container.Redis,
		}),
		Staff:          handlers.NewStaffHandler(container.Auth, container.Organisation),
		Tickets:        handlers.NewTicketsHandler(container.Tickets, container.Assignments),
		Sla:            handlers.NewSlaHandler(container.Calendars, container.Jobs),
		AuthMiddleware: auth.NewMiddleware(container.Auth.TokenManager(), container.Staff),
		Gatherer:       container.Registry,
	})

	go func() {
		if err := server.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := server.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
