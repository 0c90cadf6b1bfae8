// Package sla applies SLA policies to tickets, tracks pause and milestone
// state, and scans for breaches and near-breaches.
package sla

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/service-desk/internal/businesshours"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/observability"
	"github.com/spec-kit/service-desk/internal/repository"
)

// Job names used in scan reports, metrics and locks.
const (
	JobCheckBreaches     = "check-breaches"
	JobCheckNearBreaches = "check-near-breaches"
	JobRecalculate       = "recalculate-sla"
)

// Service owns SLA application, pause accounting and breach detection.
type Service struct {
	cfg        config.SLAConfig
	calculator *businesshours.Calculator
	tickets    repository.TicketRepository
	schedules  repository.BusinessHoursRepository
	policies   repository.SlaPolicyRepository
	slas       repository.TicketSlaRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// Dependencies bundles collaborators for the SLA service.
type Dependencies struct {
	Config       config.SLAConfig
	Calculator   *businesshours.Calculator
	TicketRepo   repository.TicketRepository
	ScheduleRepo repository.BusinessHoursRepository
	PolicyRepo   repository.SlaPolicyRepository
	SlaRepo      repository.TicketSlaRepository
	// HistoryRepo, when set, receives SLA_APPLIED and SLA_CLEARED entries.
	HistoryRepo  repository.TicketHistoryRepository
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewService constructs the service.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	calculator := deps.Calculator
	if calculator == nil {
		loc, err := deps.Config.Location()
		if err != nil {
			loc = time.UTC
		}
		calculator = businesshours.NewCalculator(loc, logger)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		cfg:        deps.Config,
		calculator: calculator,
		tickets:    deps.TicketRepo,
		schedules:  deps.ScheduleRepo,
		policies:   deps.PolicyRepo,
		slas:       deps.SlaRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.Named("sla"),
		now:        now,
	}
}

// Calculator exposes the business-hours calculator used for due dates.
func (s *Service) Calculator() *businesshours.Calculator {
	return s.calculator
}

// GetTicketSla returns the SLA record of a ticket.
func (s *Service) GetTicketSla(ctx context.Context, ticketID string) (*domain.TicketSla, error) {
	return s.slas.GetByTicketID(ctx, ticketID)
}

func (s *Service) recordHistory(ctx context.Context, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  domain.SystemActor,
		ChangeType: change,
		OldValue:   oldValue,
		NewValue:   newValue,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record ticket history",
			zap.String("ticket_id", ticketID),
			zap.String("change_type", string(change)),
			zap.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, eventType events.EventType, ticketID string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	event := events.New(eventType, ticketID, domain.SystemActor, s.now(), payload)
	_ = s.dispatcher.Publish(ctx, event)
}

// tally collects scan counters from concurrent workers.
type tally struct {
	mu     sync.Mutex
	report domain.ScanReport
}

func (t *tally) add(fn func(r *domain.ScanReport)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.report)
}

// forEachCandidate runs fn over candidates with bounded concurrency. A
// failing candidate is logged and counted, never returned.
func (s *Service) forEachCandidate(ctx context.Context, job string, candidates []domain.SlaCandidate, fn func(ctx context.Context, c domain.SlaCandidate, t *tally) error) domain.ScanReport {
	return runBounded(ctx, s.cfg.Concurrency(), s.logger, job, candidates,
		func(c domain.SlaCandidate) string { return c.Ticket.ID }, fn)
}

func runBounded[T any](ctx context.Context, limit int, logger *zap.Logger, job string, items []T, key func(T) string, fn func(ctx context.Context, item T, t *tally) error) domain.ScanReport {
	t := &tally{report: domain.ScanReport{Job: job, Scanned: len(items)}}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := fn(gCtx, item, t); err != nil {
				logger.Warn("sla candidate failed",
					zap.String("job", job),
					zap.String("ticket_id", key(item)),
					zap.Error(err))
				t.add(func(r *domain.ScanReport) { r.Failed++ })
			}
			return nil
		})
	}
	_ = g.Wait()
	return t.report
}
