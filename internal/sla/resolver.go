package sla

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
)

// ErrPolicyNotFound is returned when a recalculation names an unknown policy.
var ErrPolicyNotFound = errors.New("sla policy not found")

// FindMatchingPolicy returns the first active policy, by ascending sort
// order, whose conditions all hold for the ticket. It returns nil when none
// matches.
func (s *Service) FindMatchingPolicy(ctx context.Context, ticket *domain.Ticket) (*domain.SlaPolicy, error) {
	policies, err := s.policies.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sla policies: %w", err)
	}
	sort.SliceStable(policies, func(i, j int) bool {
		return policies[i].SortOrder < policies[j].SortOrder
	})
	for i := range policies {
		if policies[i].IsActive && Matches(&policies[i], ticket) {
			return &policies[i], nil
		}
	}
	return nil, nil
}

// Matches reports whether every non-empty condition list of policy contains
// the ticket's attribute.
func Matches(policy *domain.SlaPolicy, ticket *domain.Ticket) bool {
	cond := policy.Conditions
	if cond.IsEmpty() {
		return true
	}
	if !cond.MatchesDepartment(ticket.DepartmentID) {
		return false
	}
	if len(cond.CategoryIDs) > 0 && (ticket.CategoryID == nil || !contains(cond.CategoryIDs, *ticket.CategoryID)) {
		return false
	}
	if len(cond.Priorities) > 0 && !contains(cond.Priorities, ticket.Priority) {
		return false
	}
	if len(cond.Sources) > 0 && !contains(cond.Sources, ticket.Source) {
		return false
	}
	return true
}

func contains[T comparable](values []T, want T) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// ApplyPolicy computes due dates for the ticket and writes its SLA record,
// replacing any earlier due dates. A nil policy is resolved with
// FindMatchingPolicy. Disabled SLA, no matching policy, or no target for the
// ticket's priority all return nil without error.
func (s *Service) ApplyPolicy(ctx context.Context, ticket *domain.Ticket, policy *domain.SlaPolicy) (*domain.TicketSla, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	if policy == nil {
		matched, err := s.FindMatchingPolicy(ctx, ticket)
		if err != nil {
			return nil, err
		}
		if matched == nil {
			s.logger.Debug("no sla policy matches ticket", zap.String("ticket_id", ticket.ID))
			return nil, nil
		}
		policy = matched
	}

	target := policy.TargetFor(ticket.Priority)
	if target == nil {
		s.logger.Debug("sla policy has no target for priority",
			zap.String("ticket_id", ticket.ID),
			zap.String("policy_id", policy.ID),
			zap.String("priority", string(ticket.Priority)))
		return nil, nil
	}

	schedule, err := s.scheduleFor(ctx, policy)
	if err != nil {
		return nil, err
	}

	now := s.now()
	due := make(map[domain.SlaBreachType]*time.Time, 3)
	for _, kind := range domain.BreachTypes() {
		due[kind] = s.dueDate(now, target.Minutes(kind), schedule)
	}
	record := &domain.TicketSla{
		TicketID:             ticket.ID,
		PolicyID:             policy.ID,
		PriorityAtAssignment: ticket.Priority,
		FirstResponseDueAt:   due[domain.BreachFirstResponse],
		NextResponseDueAt:    due[domain.BreachNextResponse],
		ResolutionDueAt:      due[domain.BreachResolution],
	}
	if err := s.slas.Upsert(ctx, record); err != nil {
		return nil, fmt.Errorf("save ticket sla: %w", err)
	}
	previousPolicy := ticket.SlaPolicyID

	policyID := policy.ID
	if err := s.tickets.SetPolicy(ctx, ticket.ID, &policyID); err != nil {
		return nil, fmt.Errorf("link ticket policy: %w", err)
	}
	ticket.SlaPolicyID = &policyID

	var scheduleID *string
	if schedule != nil {
		id := schedule.ID
		scheduleID = &id
	}
	s.publish(ctx, events.EventSlaApplied, ticket.ID, events.SlaAppliedPayload{
		SlaID:              record.ID,
		PolicyID:           policy.ID,
		Priority:           ticket.Priority,
		ScheduleID:         scheduleID,
		FirstResponseDueAt: record.FirstResponseDueAt,
		NextResponseDueAt:  record.NextResponseDueAt,
		ResolutionDueAt:    record.ResolutionDueAt,
	})

	s.recordHistory(ctx, ticket.ID, domain.ChangeTypeSlaApplied,
		map[string]any{"policy_id": optionalValue(previousPolicy)},
		map[string]any{
			"policy_id":             policy.ID,
			"priority":              ticket.Priority,
			"first_response_due_at": optionalValue(record.FirstResponseDueAt),
			"next_response_due_at":  optionalValue(record.NextResponseDueAt),
			"resolution_due_at":     optionalValue(record.ResolutionDueAt),
		})

	s.logger.Info("sla policy applied",
		zap.String("ticket_id", ticket.ID),
		zap.String("policy_id", policy.ID),
		zap.String("priority", string(ticket.Priority)))
	return record, nil
}

// Untrack removes the SLA record of a ticket and unlinks its policy. It
// reports false when the ticket had no record.
func (s *Service) Untrack(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	removed, err := s.slas.DeleteByTicketID(ctx, ticket.ID)
	if err != nil {
		return false, fmt.Errorf("delete ticket sla: %w", err)
	}
	if !removed {
		return false, nil
	}
	previousPolicy := ticket.SlaPolicyID
	if err := s.tickets.SetPolicy(ctx, ticket.ID, nil); err != nil {
		return true, fmt.Errorf("unlink ticket policy: %w", err)
	}
	ticket.SlaPolicyID = nil

	s.recordHistory(ctx, ticket.ID, domain.ChangeTypeSlaCleared,
		map[string]any{"policy_id": optionalValue(previousPolicy)},
		map[string]any{"priority": ticket.Priority})
	s.logger.Info("sla tracking cleared",
		zap.String("ticket_id", ticket.ID),
		zap.String("priority", string(ticket.Priority)))
	return true, nil
}

func optionalValue[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

// dueDate returns nil for untracked milestones. A zero target counts as
// untracked.
func (s *Service) dueDate(start time.Time, minutes *int, schedule *domain.BusinessHoursSchedule) *time.Time {
	if minutes == nil || *minutes <= 0 {
		return nil
	}
	due := s.calculator.CalculateDueDate(start, *minutes, schedule)
	return &due
}

// scheduleFor resolves the calendar for a policy: its linked schedule, then
// the configured default id, then the active default schedule. A nil result
// means wall-clock arithmetic.
func (s *Service) scheduleFor(ctx context.Context, policy *domain.SlaPolicy) (*domain.BusinessHoursSchedule, error) {
	if s.schedules == nil {
		return nil, nil
	}
	candidates := []string{}
	if policy.ScheduleID != nil && *policy.ScheduleID != "" {
		candidates = append(candidates, *policy.ScheduleID)
	}
	if s.cfg.DefaultScheduleID != "" {
		candidates = append(candidates, s.cfg.DefaultScheduleID)
	}
	for _, id := range candidates {
		schedule, err := s.schedules.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("business hours schedule not found", zap.String("schedule_id", id))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load schedule %s: %w", id, err)
		}
		return schedule, nil
	}

	schedule, err := s.schedules.GetDefault(ctx)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load default schedule: %w", err)
	}
	return schedule, nil
}

// Recalculate re-applies the stored policy of every open ticket that has an
// SLA record. With a policy id only that policy's tickets are touched; an
// unknown id is an error.
func (s *Service) Recalculate(ctx context.Context, policyID *string) (domain.ScanReport, error) {
	started := time.Now()
	cache := newPolicyCache(s.policies)
	if policyID != nil {
		if _, err := cache.get(ctx, *policyID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ScanReport{Job: JobRecalculate}, fmt.Errorf("%w: %s", ErrPolicyNotFound, *policyID)
			}
			return domain.ScanReport{Job: JobRecalculate}, err
		}
	}

	tickets, err := s.tickets.ListOpen(ctx, policyID)
	if err != nil {
		return domain.ScanReport{Job: JobRecalculate}, fmt.Errorf("list open tickets: %w", err)
	}

	report := runBounded(ctx, s.cfg.Concurrency(), s.logger, JobRecalculate, tickets,
		func(t domain.Ticket) string { return t.ID },
		func(ctx context.Context, ticket domain.Ticket, t *tally) error {
			current, err := s.slas.GetByTicketID(ctx, ticket.ID)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}
			if policyID != nil && current.PolicyID != *policyID {
				return nil
			}
			policy, err := cache.get(ctx, current.PolicyID)
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}
			applied, err := s.ApplyPolicy(ctx, &ticket, policy)
			if err != nil {
				return err
			}
			if applied != nil {
				t.add(func(r *domain.ScanReport) { r.Recalculated++ })
			}
			return nil
		})

	s.metrics.RecordJob(JobRecalculate, time.Since(started), report.Failed)
	s.logger.Info("sla recalculation finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("recalculated", report.Recalculated),
		zap.Int("failed", report.Failed))
	return report, nil
}
