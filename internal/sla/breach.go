package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
)

// CheckBreaches flags every overdue, unachieved milestone of open tickets
// and emits one sla_breached event per flag it flips. Flags are only ever
// raised; a milestone already flagged is not rechecked.
func (s *Service) CheckBreaches(ctx context.Context) (domain.ScanReport, error) {
	started := time.Now()
	now := s.now()

	candidates, err := s.slas.ListBreachCandidates(ctx, now)
	if err != nil {
		s.metrics.RecordJob(JobCheckBreaches, time.Since(started), 1)
		return domain.ScanReport{Job: JobCheckBreaches}, fmt.Errorf("list breach candidates: %w", err)
	}

	report := s.forEachCandidate(ctx, JobCheckBreaches, candidates, func(ctx context.Context, c domain.SlaCandidate, t *tally) error {
		var errs []error
		for _, kind := range domain.BreachTypes() {
			if !c.Sla.IsOverdue(kind, now) {
				continue
			}
			flipped, err := s.slas.MarkBreached(ctx, c.Sla.ID, kind)
			if err != nil {
				errs = append(errs, fmt.Errorf("mark %s breached: %w", kind, err))
				continue
			}
			if !flipped {
				continue
			}
			c.Sla.SetBreached(kind)
			s.metrics.RecordBreach(string(kind))
			s.publish(ctx, events.EventSlaBreached, c.Ticket.ID, events.SlaBreachedPayload{
				SlaID:    c.Sla.ID,
				PolicyID: c.Sla.PolicyID,
				Kind:     kind,
				DueAt:    *c.Sla.DueAt(kind),
				Assignee: c.Ticket.Assignee,
			})
			s.logger.Info("sla breached",
				zap.String("ticket_id", c.Ticket.ID),
				zap.String("sla_id", c.Sla.ID),
				zap.String("kind", string(kind)))
			t.add(func(r *domain.ScanReport) { r.Flagged++ })
		}
		return errors.Join(errs...)
	})

	s.metrics.RecordJob(JobCheckBreaches, time.Since(started), report.Failed)
	return report, nil
}

// CheckNearBreaches emits sla_near_breach for every unflagged, unachieved
// milestone due within the configured lead window. Nothing is recorded, so
// each run re-emits for tickets still inside the window.
func (s *Service) CheckNearBreaches(ctx context.Context) (domain.ScanReport, error) {
	started := time.Now()
	now := s.now()
	until := now.Add(s.cfg.NearBreachWindow())

	candidates, err := s.slas.ListNearBreachCandidates(ctx, now, until)
	if err != nil {
		s.metrics.RecordJob(JobCheckNearBreaches, time.Since(started), 1)
		return domain.ScanReport{Job: JobCheckNearBreaches}, fmt.Errorf("list near-breach candidates: %w", err)
	}

	report := s.forEachCandidate(ctx, JobCheckNearBreaches, candidates, func(ctx context.Context, c domain.SlaCandidate, t *tally) error {
		for _, kind := range domain.BreachTypes() {
			due := c.Sla.DueAt(kind)
			if due == nil || c.Sla.Breached(kind) || c.Sla.Achieved(kind) {
				continue
			}
			if !due.After(now) || due.After(until) {
				continue
			}
			remaining := int(due.Sub(now).Minutes())
			s.metrics.RecordNearBreach(string(kind))
			s.publish(ctx, events.EventSlaNearBreach, c.Ticket.ID, events.SlaNearBreachPayload{
				SlaID:            c.Sla.ID,
				PolicyID:         c.Sla.PolicyID,
				Kind:             kind,
				DueAt:            *due,
				MinutesRemaining: remaining,
				Assignee:         c.Ticket.Assignee,
			})
			t.add(func(r *domain.ScanReport) { r.Emitted++ })
		}
		return nil
	})

	s.metrics.RecordJob(JobCheckNearBreaches, time.Since(started), report.Failed)
	return report, nil
}
