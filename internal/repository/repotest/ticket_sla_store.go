package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/service-desk/internal/domain"
)

// TicketSlaStore is an in-memory TicketSlaRepository with the same
// conditional-update semantics as the SQL implementation. Tickets are held
// alongside so candidate scans can filter on status.
type TicketSlaStore struct {
	mu      sync.Mutex
	tickets map[string]domain.Ticket
	slas    map[string]*domain.TicketSla

	// FailFor, when set, makes mutations of the given ticket fail.
	FailFor func(ticketID string) error
}

// NewTicketSlaStore returns an empty store.
func NewTicketSlaStore() *TicketSlaStore {
	return &TicketSlaStore{
		tickets: make(map[string]domain.Ticket),
		slas:    make(map[string]*domain.TicketSla),
	}
}

// PutTicket stores or replaces a ticket.
func (s *TicketSlaStore) PutTicket(ticket domain.Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[ticket.ID] = ticket
}

// Put stores an SLA record as-is.
func (s *TicketSlaStore) Put(sla domain.TicketSla) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sla.ID == "" {
		sla.ID = uuid.NewString()
	}
	copied := sla
	s.slas[sla.TicketID] = &copied
}

// Snapshot returns a copy of the record for a ticket.
func (s *TicketSlaStore) Snapshot(ticketID string) (domain.TicketSla, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sla, ok := s.slas[ticketID]
	if !ok {
		return domain.TicketSla{}, false
	}
	return *sla, true
}

func (s *TicketSlaStore) fail(ticketID string) error {
	if s.FailFor == nil {
		return nil
	}
	return s.FailFor(ticketID)
}

func (s *TicketSlaStore) GetByTicketID(_ context.Context, ticketID string) (*domain.TicketSla, error) {
	sla, ok := s.Snapshot(ticketID)
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &sla, nil
}

func (s *TicketSlaStore) Upsert(_ context.Context, sla *domain.TicketSla) error {
	if err := s.fail(sla.TicketID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	stored, ok := s.slas[sla.TicketID]
	if !ok {
		stored = &domain.TicketSla{ID: uuid.NewString(), TicketID: sla.TicketID, CreatedAt: now}
		s.slas[sla.TicketID] = stored
	}
	stored.PolicyID = sla.PolicyID
	stored.PriorityAtAssignment = sla.PriorityAtAssignment
	stored.FirstResponseDueAt = sla.FirstResponseDueAt
	stored.NextResponseDueAt = sla.NextResponseDueAt
	stored.ResolutionDueAt = sla.ResolutionDueAt
	stored.UpdatedAt = now
	*sla = *stored
	return nil
}

func (s *TicketSlaStore) DeleteByTicketID(_ context.Context, ticketID string) (bool, error) {
	if err := s.fail(ticketID); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.slas[ticketID]; !ok {
		return false, nil
	}
	delete(s.slas, ticketID)
	return true, nil
}

func (s *TicketSlaStore) mutate(ticketID string, apply func(sla *domain.TicketSla) bool) (bool, error) {
	if err := s.fail(ticketID); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sla, ok := s.slas[ticketID]
	if !ok {
		return false, nil
	}
	return apply(sla), nil
}

func (s *TicketSlaStore) Pause(_ context.Context, ticketID string, at time.Time) (bool, error) {
	return s.mutate(ticketID, func(sla *domain.TicketSla) bool {
		if sla.PausedAt != nil {
			return false
		}
		sla.PausedAt = &at
		return true
	})
}

func (s *TicketSlaStore) Resume(_ context.Context, ticketID string, pausedAt time.Time, minutes int) (bool, error) {
	return s.mutate(ticketID, func(sla *domain.TicketSla) bool {
		if sla.PausedAt == nil || !sla.PausedAt.Equal(pausedAt) {
			return false
		}
		sla.PausedMinutes += minutes
		sla.PausedAt = nil
		return true
	})
}

func (s *TicketSlaStore) RecordFirstResponse(_ context.Context, ticketID string, at time.Time) (bool, error) {
	return s.mutate(ticketID, func(sla *domain.TicketSla) bool {
		if sla.FirstRespondedAt != nil {
			return false
		}
		sla.FirstRespondedAt = &at
		return true
	})
}

func (s *TicketSlaStore) RecordResolution(_ context.Context, ticketID string, at time.Time) (bool, error) {
	return s.mutate(ticketID, func(sla *domain.TicketSla) bool {
		if sla.ResolvedAt != nil {
			return false
		}
		sla.ResolvedAt = &at
		return true
	})
}

func (s *TicketSlaStore) MarkBreached(_ context.Context, slaID string, kind domain.SlaBreachType) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("unknown breach type %q", kind)
	}
	s.mu.Lock()
	var target *domain.TicketSla
	for _, sla := range s.slas {
		if sla.ID == slaID {
			target = sla
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return false, nil
	}
	return s.mutate(target.TicketID, func(sla *domain.TicketSla) bool {
		if sla.Breached(kind) {
			return false
		}
		sla.SetBreached(kind)
		return true
	})
}

func (s *TicketSlaStore) ListBreachCandidates(_ context.Context, now time.Time) ([]domain.SlaCandidate, error) {
	return s.candidates(func(sla *domain.TicketSla) bool {
		for _, kind := range domain.BreachTypes() {
			if sla.IsOverdue(kind, now) {
				return true
			}
		}
		return false
	}), nil
}

func (s *TicketSlaStore) ListNearBreachCandidates(_ context.Context, now, until time.Time) ([]domain.SlaCandidate, error) {
	return s.candidates(func(sla *domain.TicketSla) bool {
		for _, kind := range domain.BreachTypes() {
			due := sla.DueAt(kind)
			if due == nil || sla.Breached(kind) || sla.Achieved(kind) {
				continue
			}
			if due.After(now) && !due.After(until) {
				return true
			}
		}
		return false
	}), nil
}

func (s *TicketSlaStore) ListEscalationCandidates(_ context.Context) ([]domain.SlaCandidate, error) {
	return s.candidates(func(sla *domain.TicketSla) bool { return !sla.IsPaused() }), nil
}

func (s *TicketSlaStore) candidates(match func(sla *domain.TicketSla) bool) []domain.SlaCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.SlaCandidate
	for ticketID, sla := range s.slas {
		ticket, ok := s.tickets[ticketID]
		if !ok || ticket.Status.IsTerminal() || !match(sla) {
			continue
		}
		result = append(result, domain.SlaCandidate{Ticket: ticket, Sla: *sla})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Ticket.ID < result[j].Ticket.ID })
	return result
}
