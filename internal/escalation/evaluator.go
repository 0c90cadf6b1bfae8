// Package escalation evaluates SLA escalation rules against ticket SLA state
// and dispatches their actions.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/observability"
	"github.com/spec-kit/service-desk/internal/repository"
)

// JobProcessEscalations names the escalation scan in reports and metrics.
const JobProcessEscalations = "process-escalations"

// Evaluator decides which rules fire and runs their actions.
type Evaluator struct {
	tickets     repository.TicketRepository
	history     repository.TicketHistoryRepository
	policies    repository.SlaPolicyRepository
	slas        repository.TicketSlaRepository
	notifier    Notifier
	registry    *Registry
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
	concurrency int
}

// Dependencies bundles collaborators for the evaluator.
type Dependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	PolicyRepo  repository.SlaPolicyRepository
	SlaRepo     repository.TicketSlaRepository
	Notifier    Notifier
	Registry    *Registry
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Now         func() time.Time
	Concurrency int
}

// NewEvaluator constructs the evaluator.
func NewEvaluator(deps Dependencies) *Evaluator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	concurrency := deps.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Evaluator{
		tickets:     deps.TicketRepo,
		history:     deps.HistoryRepo,
		policies:    deps.PolicyRepo,
		slas:        deps.SlaRepo,
		notifier:    deps.Notifier,
		registry:    registry,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger.Named("escalation"),
		now:         now,
		concurrency: concurrency,
	}
}

// ShouldTrigger reports whether rule fires for the SLA record at now.
// Before-rules fire in [due-minutes, due). After-rules fire from due+minutes
// on and keep firing on every scan.
func ShouldTrigger(rule *domain.EscalationRule, sla *domain.TicketSla, now time.Time) bool {
	due := sla.DueAt(rule.BreachType)
	if due == nil {
		return false
	}
	if sla.Achieved(rule.BreachType) {
		return false
	}
	offset := time.Duration(rule.MinutesBefore) * time.Minute

	switch rule.TriggerType {
	case domain.TriggerBefore:
		triggerAt := due.Add(-offset)
		return !now.Before(triggerAt) && now.Before(*due)
	case domain.TriggerAfter:
		return !now.Before(due.Add(offset))
	}
	return false
}

// ProcessPendingEscalations evaluates the active rules of every open,
// unpaused ticket SLA and dispatches those that trigger. A failing ticket is
// logged and counted; the scan continues.
func (e *Evaluator) ProcessPendingEscalations(ctx context.Context) (domain.ScanReport, error) {
	started := time.Now()
	now := e.now()

	candidates, err := e.slas.ListEscalationCandidates(ctx)
	if err != nil {
		e.metrics.RecordJob(JobProcessEscalations, time.Since(started), 1)
		return domain.ScanReport{Job: JobProcessEscalations}, fmt.Errorf("list escalation candidates: %w", err)
	}

	rules := newRuleCache(e.policies)
	var mu sync.Mutex
	report := domain.ScanReport{Job: JobProcessEscalations, Scanned: len(candidates)}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, candidate := range candidates {
		candidate := candidate
		g.Go(func() error {
			triggered, err := e.evaluate(gCtx, candidate, rules, now)
			mu.Lock()
			defer mu.Unlock()
			report.Triggered += triggered
			if err != nil {
				report.Failed++
				e.logger.Warn("escalation candidate failed",
					zap.String("ticket_id", candidate.Ticket.ID),
					zap.String("sla_id", candidate.Sla.ID),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	e.metrics.RecordJob(JobProcessEscalations, time.Since(started), report.Failed)
	return report, nil
}

func (e *Evaluator) evaluate(ctx context.Context, candidate domain.SlaCandidate, cache *ruleCache, now time.Time) (int, error) {
	rules, err := cache.get(ctx, candidate.Sla.PolicyID)
	if err != nil {
		return 0, fmt.Errorf("load escalation rules: %w", err)
	}

	ticket := candidate.Ticket
	triggered := 0
	var errs []error
	for i := range rules {
		rule := rules[i]
		if !rule.IsActive || !ShouldTrigger(&rule, &candidate.Sla, now) {
			continue
		}
		if err := e.Handle(ctx, &rule, &ticket); err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		triggered++
	}
	return triggered, errors.Join(errs...)
}

// ruleCache loads each policy's rules once per scan.
type ruleCache struct {
	repo    repository.SlaPolicyRepository
	mu      sync.Mutex
	entries map[string][]domain.EscalationRule
}

func newRuleCache(repo repository.SlaPolicyRepository) *ruleCache {
	return &ruleCache{repo: repo, entries: make(map[string][]domain.EscalationRule)}
}

func (c *ruleCache) get(ctx context.Context, policyID string) ([]domain.EscalationRule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rules, ok := c.entries[policyID]; ok {
		return rules, nil
	}
	rules, err := c.repo.ListActiveRules(ctx, policyID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].SortOrder < rules[j].SortOrder })
	c.entries[policyID] = rules
	return rules, nil
}
