package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

// AssignmentService handles manual ticket assignment. Escalation rules
// reassign through the escalation package instead.
type AssignmentService struct {
	tickets    repository.TicketRepository
	staff      repository.StaffRepository
	teams      repository.TeamRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo  repository.TicketRepository
	StaffRepo   repository.StaffRepository
	TeamRepo    repository.TeamRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		staff:      deps.StaffRepo,
		teams:      deps.TeamRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("assignment"),
		now:        now,
	}
}

// SelfAssignTicket assigns the ticket to the calling staff member.
func (s *AssignmentService) SelfAssignTicket(ctx context.Context, actor *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	return s.assign(ctx, actor, ticketID, actor.Ref())
}

// AssignTicket assigns the ticket to another staff member or a team. Only
// team leads and admins may assign to others.
func (s *AssignmentService) AssignTicket(ctx context.Context, actor *domain.StaffMember, ticketID string, assignee domain.ActorRef) (*domain.Ticket, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if actor.Role != domain.StaffRoleTeamLead && actor.Role != domain.StaffRoleAdmin {
		return nil, apperrors.NewForbidden("team lead or admin role required")
	}
	switch assignee.Kind {
	case domain.ActorKindStaff:
		target, err := s.staff.GetByID(ctx, assignee.ID)
		if err != nil {
			return nil, apperrors.NotFoundOr(err, "staff member", map[string]any{"staff_id": assignee.ID})
		}
		if !target.Active {
			return nil, apperrors.NewConflict("staff member inactive", map[string]any{"staff_id": target.ID})
		}
	case domain.ActorKindTeam:
		if assignee.ID == "" {
			return nil, apperrors.NewValidationError("team id is required", nil)
		}
		if s.teams != nil {
			team, err := s.teams.GetByID(ctx, assignee.ID)
			if err != nil {
				return nil, apperrors.NotFoundOr(err, "team", map[string]any{"team_id": assignee.ID})
			}
			if !team.IsActive {
				return nil, apperrors.NewConflict("team inactive", map[string]any{"team_id": team.ID})
			}
		}
	default:
		return nil, apperrors.NewValidationError("assignee must be STAFF or TEAM", map[string]any{"kind": assignee.Kind})
	}
	return s.assign(ctx, actor, ticketID, assignee)
}

func (s *AssignmentService) assign(ctx context.Context, actor *domain.StaffMember, ticketID string, assignee domain.ActorRef) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if !staffCanAccessTicket(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	if ticket.Assignee != nil && *ticket.Assignee == assignee {
		return ticket, nil
	}

	previous := ticket.Assignee
	if err := s.tickets.UpdateAssignee(ctx, ticket.ID, &assignee); err != nil {
		return nil, apperrors.MapError(fmt.Errorf("assign ticket: %w", err))
	}
	ticket.Assignee = &assignee

	if s.history != nil {
		entry := &domain.TicketHistory{
			TicketID:   ticket.ID,
			ChangedBy:  actor.Ref(),
			ChangeType: domain.ChangeTypeAssignee,
			OldValue:   map[string]any{"assignee": actorValue(previous)},
			NewValue:   map[string]any{"assignee": assignee.String()},
		}
		if err := s.history.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to record assignment history", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.New(events.EventTicketAssigned, ticket.ID, actor.Ref(), s.now(),
			events.TicketAssignedPayload{Previous: previous, Assignee: &assignee}))
	}
	return ticket, nil
}

func actorValue(actor *domain.ActorRef) any {
	if actor == nil {
		return nil
	}
	return actor.String()
}
