package sla

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
)

// Pause stamps paused_at on the ticket's SLA record. It is a no-op when the
// record is already paused or the ticket has no SLA. Due dates are not
// touched.
func (s *Service) Pause(ctx context.Context, ticketID string) (*domain.TicketSla, error) {
	record, err := s.load(ctx, ticketID)
	if record == nil || err != nil {
		return nil, err
	}
	if record.IsPaused() {
		return record, nil
	}

	at := s.now()
	changed, err := s.slas.Pause(ctx, ticketID, at)
	if err != nil {
		return nil, fmt.Errorf("pause sla: %w", err)
	}
	if !changed {
		return s.load(ctx, ticketID)
	}
	record.PausedAt = &at
	s.logger.Info("sla paused", zap.String("ticket_id", ticketID))
	return record, nil
}

// Resume adds the whole minutes elapsed since paused_at to paused_minutes
// and clears paused_at. It is a no-op when the record is not paused. Due
// dates stay as they were; PausedMinutes is kept for reporting.
func (s *Service) Resume(ctx context.Context, ticketID string) (*domain.TicketSla, error) {
	record, err := s.load(ctx, ticketID)
	if record == nil || err != nil {
		return nil, err
	}
	if !record.IsPaused() {
		return record, nil
	}

	pausedAt := *record.PausedAt
	minutes := int(s.now().Sub(pausedAt).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	changed, err := s.slas.Resume(ctx, ticketID, pausedAt, minutes)
	if err != nil {
		return nil, fmt.Errorf("resume sla: %w", err)
	}
	if !changed {
		return s.load(ctx, ticketID)
	}
	record.PausedMinutes += minutes
	record.PausedAt = nil
	s.logger.Info("sla resumed",
		zap.String("ticket_id", ticketID),
		zap.Int("paused_minutes", minutes),
		zap.Int("total_paused_minutes", record.PausedMinutes))
	return record, nil
}

// RecordFirstResponse stamps the first-response timestamp once.
func (s *Service) RecordFirstResponse(ctx context.Context, ticketID string) (*domain.TicketSla, error) {
	return s.stamp(ctx, ticketID, domain.BreachFirstResponse)
}

// RecordResolution stamps the resolution timestamp once.
func (s *Service) RecordResolution(ctx context.Context, ticketID string) (*domain.TicketSla, error) {
	return s.stamp(ctx, ticketID, domain.BreachResolution)
}

func (s *Service) stamp(ctx context.Context, ticketID string, kind domain.SlaBreachType) (*domain.TicketSla, error) {
	record, err := s.load(ctx, ticketID)
	if record == nil || err != nil {
		return nil, err
	}
	if record.Achieved(kind) {
		return record, nil
	}

	at := s.now()
	var changed bool
	switch kind {
	case domain.BreachFirstResponse:
		changed, err = s.slas.RecordFirstResponse(ctx, ticketID, at)
	case domain.BreachResolution:
		changed, err = s.slas.RecordResolution(ctx, ticketID, at)
	}
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", kind, err)
	}
	if !changed {
		return s.load(ctx, ticketID)
	}
	if kind == domain.BreachFirstResponse {
		record.FirstRespondedAt = &at
	} else {
		record.ResolvedAt = &at
	}
	s.logger.Info("sla milestone achieved", zap.String("ticket_id", ticketID), zap.String("kind", string(kind)))
	return record, nil
}

// load returns nil, nil for tickets without an SLA record.
func (s *Service) load(ctx context.Context, ticketID string) (*domain.TicketSla, error) {
	record, err := s.slas.GetByTicketID(ctx, ticketID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket sla: %w", err)
	}
	return record, nil
}
