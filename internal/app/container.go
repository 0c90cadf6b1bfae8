// Package app wires configuration, storage and the SLA engine into the
// components shared by the API server and the slactl CLI.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/businesshours"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/escalation"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/observability"
	"github.com/spec-kit/service-desk/internal/persistence"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/internal/sla"
	"github.com/spec-kit/service-desk/internal/worker"
)

// Container holds the long-lived components of a process.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	Registry *prometheus.Registry
	Metrics  *observability.Metrics

	Dispatcher events.Dispatcher
	Calculator *businesshours.Calculator
	// Escalation resolves custom rule handlers. Callers may Register more
	// keys after Build; the built-in "unassign" handler is already bound.
	Escalation *escalation.Registry
	SLA        *sla.Service
	Evaluator  *escalation.Evaluator
	Jobs       *worker.Jobs

	Staff        repository.StaffRepository
	Tickets      *service.TicketService
	Assignments  *service.AssignmentService
	Auth         *service.AuthService
	Organisation *service.StaffService
	Calendars    *service.CalendarService
}

// Build connects to Postgres and Redis, runs migrations when enabled and
// assembles the engine. Close releases what Build opened.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, persistence.DefaultMigrationsDir, logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	rdb := persistence.NewRedis(ctx, cfg.Redis, logger)

	reference, err := cfg.SLA.Location()
	if err != nil {
		pg.Close()
		rdb.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	pool := pg.Pool
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)
	scheduleRepo := repository.NewBusinessHoursRepository(pool)
	policyRepo := repository.NewSlaPolicyRepository(pool)
	slaRepo := repository.NewTicketSlaRepository(pool)
	staffRepo := repository.NewStaffRepository(pool)
	departmentRepo := repository.NewDepartmentRepository(pool)
	teamRepo := repository.NewTeamRepository(pool)

	dispatcher := events.NewInMemoryDispatcher(logger)
	notifications := service.NewNotificationService(logger, cfg.Notification)
	fanout := events.NewRedisFanout(rdb.Client, cfg.SLA.EventChannel, logger)
	worker.StartNotificationWorker(dispatcher, notifications, fanout)

	calculator := businesshours.NewCalculator(reference, logger)
	slaService := sla.NewService(sla.Dependencies{
		Config:       cfg.SLA,
		Calculator:   calculator,
		TicketRepo:   ticketRepo,
		ScheduleRepo: scheduleRepo,
		PolicyRepo:   policyRepo,
		SlaRepo:      slaRepo,
		HistoryRepo:  historyRepo,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Logger:       logger,
	})

	handlers := escalation.NewRegistry()
	evaluator := escalation.NewEvaluator(escalation.Dependencies{
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		PolicyRepo:  policyRepo,
		SlaRepo:     slaRepo,
		Notifier:    notifications,
		Registry:    handlers,
		Dispatcher:  dispatcher,
		Metrics:     metrics,
		Logger:      logger,
		Concurrency: cfg.SLA.Concurrency(),
	})
	evaluator.RegisterBuiltins()

	jobs := worker.NewJobs(worker.JobsDependencies{
		Scanner:    slaService,
		Escalation: evaluator,
		Locker:     persistence.NewScanLock(rdb.Client, logger),
		LockTTL:    cfg.SLA.ScanLockTTL(),
		Metrics:    metrics,
		Logger:     logger,
	})

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Postgres:   pg,
		Redis:      rdb,
		Registry:   registry,
		Metrics:    metrics,
		Dispatcher: dispatcher,
		Calculator: calculator,
		Escalation: handlers,
		SLA:        slaService,
		Evaluator:  evaluator,
		Jobs:       jobs,
		Staff:      staffRepo,
		Tickets: service.NewTicketService(service.TicketDependencies{
			TicketRepo:     ticketRepo,
			DepartmentRepo: departmentRepo,
			HistoryRepo:    historyRepo,
			SLA:            slaService,
			Config:         cfg.SLA,
			Dispatcher:     dispatcher,
			Logger:         logger,
		}),
		Assignments: service.NewAssignmentService(service.AssignmentDependencies{
			TicketRepo:  ticketRepo,
			StaffRepo:   staffRepo,
			TeamRepo:    teamRepo,
			HistoryRepo: historyRepo,
			Dispatcher:  dispatcher,
			Logger:      logger,
		}),
		Auth: service.NewAuthService(cfg.Auth, staffRepo),
		Organisation: service.NewStaffService(cfg.Auth, service.OrgDependencies{
			DepartmentRepo: departmentRepo,
			TeamRepo:       teamRepo,
			StaffRepo:      staffRepo,
		}),
		Calendars: service.NewCalendarService(scheduleRepo, calculator),
	}, nil
}

// Close releases storage connections.
func (c *Container) Close() {
	c.Redis.Close()
	c.Postgres.Close()
}
