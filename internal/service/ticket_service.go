package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/repository"
	"github.com/spec-kit/service-desk/internal/sla"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

// TicketService coordinates ticket workflows and keeps SLA state in step
// with status and priority changes.
type TicketService struct {
	tickets     repository.TicketRepository
	departments repository.DepartmentRepository
	history     repository.TicketHistoryRepository
	sla         *sla.Service
	cfg         config.SLAConfig
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	now         func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	DepartmentRepo repository.DepartmentRepository
	HistoryRepo    repository.TicketHistoryRepository
	SLA            *sla.Service
	Config         config.SLAConfig
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Now            func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Requester    domain.ActorRef
	DepartmentID *string
	CategoryID   *string
	Title        string
	Priority     domain.TicketPriority
	Source       domain.TicketSource
}

// TicketStaffFilter describes staff listing filters.
type TicketStaffFilter struct {
	DepartmentID *string
	AssigneeID   *string
	SlaPolicyID  *string
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	Sources      []domain.TicketSource
	SearchTerm   *string
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		departments: deps.DepartmentRepo,
		history:     deps.HistoryRepo,
		sla:         deps.SLA,
		cfg:         deps.Config,
		dispatcher:  deps.Dispatcher,
		logger:      logger.Named("tickets"),
		now:         now,
	}
}

// CreateTicket stores a new OPEN ticket and applies the first matching SLA
// policy. SLA failures are logged; the ticket is still returned and a later
// recalculation can attach the policy.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.ActorRef, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title is required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	source := input.Source
	if source == "" {
		source = domain.TicketSourceWeb
	}
	if !source.Valid() {
		return nil, apperrors.NewValidationError("invalid source", map[string]any{"source": source})
	}
	if input.DepartmentID != nil && s.departments != nil {
		dept, err := s.departments.GetByID(ctx, *input.DepartmentID)
		if err != nil {
			return nil, apperrors.NotFoundOr(err, "department", map[string]any{"department_id": *input.DepartmentID})
		}
		if !dept.AcceptsWork() {
			return nil, apperrors.NewValidationError("department inactive", map[string]any{"department_id": dept.ID})
		}
	}

	requester := input.Requester
	if requester.IsZero() {
		requester = actor
	}
	ticket := &domain.Ticket{
		ExternalKey:  generateTicketKey(),
		Requester:    requester,
		DepartmentID: input.DepartmentID,
		CategoryID:   input.CategoryID,
		Title:        title,
		Status:       domain.TicketStatusOpen,
		Priority:     priority,
		Source:       source,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(fmt.Errorf("create ticket: %w", err))
	}
	s.publish(ctx, events.EventTicketCreated, ticket.ID, actor, events.TicketCreatedPayload{
		DepartmentID: ticket.DepartmentID,
		CategoryID:   ticket.CategoryID,
		Priority:     ticket.Priority,
		Source:       ticket.Source,
		Title:        ticket.Title,
	})

	if s.sla != nil {
		if _, err := s.sla.ApplyPolicy(ctx, ticket, nil); err != nil {
			s.logger.Warn("failed to apply sla policy to new ticket",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		}
	}
	return ticket, nil
}

// GetTicket returns a ticket the staff member may see.
func (s *TicketService) GetTicket(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NotFoundOr(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if !staffCanAccessTicket(staff, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// ListTickets returns tickets within the staff member's scope.
func (s *TicketService) ListTickets(ctx context.Context, staff *domain.StaffMember, filter TicketStaffFilter) ([]domain.Ticket, error) {
	if staff == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	repoFilter := repository.TicketFilter{
		DepartmentID: filter.DepartmentID,
		AssigneeID:   filter.AssigneeID,
		SlaPolicyID:  filter.SlaPolicyID,
		Statuses:     filter.Statuses,
		Priorities:   filter.Priorities,
		Sources:      filter.Sources,
		SearchTerm:   filter.SearchTerm,
		CreatedFrom:  filter.CreatedFrom,
		CreatedTo:    filter.CreatedTo,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}
	if staff.Role != domain.StaffRoleAdmin && staff.DepartmentID != nil {
		repoFilter.DepartmentID = staff.DepartmentID
	}
	tickets, err := s.tickets.ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// UpdateStatus moves a ticket through the workflow. Entering a pause status
// pauses the SLA and leaving one resumes it. The first move into a working
// status counts as the first response, including after a hold. RESOLVED and
// CLOSED record the resolution.
func (s *TicketService) UpdateStatus(ctx context.Context, staff *domain.StaffMember, ticketID string, newStatus domain.TicketStatus, comment string) (*domain.Ticket, error) {
	if !newStatus.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}
	ticket, err := s.GetTicket(ctx, staff, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status == newStatus {
		return ticket, nil
	}
	if !ticket.Status.CanTransitionTo(newStatus) {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(newStatus))
	}

	oldStatus := ticket.Status
	ticket.Status = newStatus
	if newStatus == domain.TicketStatusClosed {
		now := s.now()
		ticket.ClosedAt = &now
	} else {
		ticket.ClosedAt = nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, apperrors.MapError(fmt.Errorf("update ticket status: %w", err))
	}

	actor := staff.Ref()
	s.recordHistory(ctx, actor, ticket.ID, domain.ChangeTypeStatus,
		map[string]any{"status": oldStatus},
		map[string]any{"status": newStatus, "comment": comment})
	s.publish(ctx, events.EventTicketStatusChanged, ticket.ID, actor, events.TicketStatusChangedPayload{
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Comment:   comment,
	})

	if err := s.syncSla(ctx, ticket.ID, oldStatus, newStatus); err != nil {
		s.logger.Error("failed to update sla after status change",
			zap.String("ticket_id", ticket.ID),
			zap.String("old_status", string(oldStatus)),
			zap.String("new_status", string(newStatus)),
			zap.Error(err))
	}
	return ticket, nil
}

func (s *TicketService) syncSla(ctx context.Context, ticketID string, oldStatus, newStatus domain.TicketStatus) error {
	if s.sla == nil {
		return nil
	}
	wasPaused := s.cfg.PausesOn(string(oldStatus))
	pauses := s.cfg.PausesOn(string(newStatus))

	var errs []error
	switch {
	case pauses && !wasPaused:
		_, err := s.sla.Pause(ctx, ticketID)
		errs = append(errs, err)
	case wasPaused && !pauses:
		_, err := s.sla.Resume(ctx, ticketID)
		errs = append(errs, err)
	}
	if newStatus != domain.TicketStatusOpen && !pauses {
		_, err := s.sla.RecordFirstResponse(ctx, ticketID)
		errs = append(errs, err)
	}
	if newStatus.IsTerminal() {
		_, err := s.sla.RecordResolution(ctx, ticketID)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// UpdatePriority changes the ticket priority and re-applies SLA matching,
// since priority is both a policy condition and the target key.
func (s *TicketService) UpdatePriority(ctx context.Context, staff *domain.StaffMember, ticketID string, newPriority domain.TicketPriority) (*domain.Ticket, error) {
	if !newPriority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": newPriority})
	}
	ticket, err := s.GetTicket(ctx, staff, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Priority == newPriority {
		return ticket, nil
	}

	oldPriority := ticket.Priority
	if err := s.tickets.UpdatePriority(ctx, ticket.ID, newPriority); err != nil {
		return nil, apperrors.MapError(fmt.Errorf("update ticket priority: %w", err))
	}
	ticket.Priority = newPriority

	actor := staff.Ref()
	s.recordHistory(ctx, actor, ticket.ID, domain.ChangeTypePriority,
		map[string]any{"priority": oldPriority},
		map[string]any{"priority": newPriority})
	s.publish(ctx, events.EventTicketPriorityChanged, ticket.ID, actor, events.TicketPriorityChangedPayload{
		OldPriority: oldPriority,
		NewPriority: newPriority,
	})

	if s.sla != nil && !ticket.Status.IsTerminal() {
		applied, err := s.sla.ApplyPolicy(ctx, ticket, nil)
		switch {
		case err != nil:
			s.logger.Error("failed to re-apply sla after priority change",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err))
		case applied == nil && s.cfg.Enabled:
			// No target for the new priority: drop the old deadlines.
			if _, err := s.sla.Untrack(ctx, ticket); err != nil {
				s.logger.Error("failed to clear sla after priority change",
					zap.String("ticket_id", ticket.ID),
					zap.Error(err))
			}
		}
	}
	return ticket, nil
}

// GetTicketSla returns the ticket and its SLA record, which is nil when the
// ticket is not tracked.
func (s *TicketService) GetTicketSla(ctx context.Context, staff *domain.StaffMember, ticketID string) (*domain.Ticket, *domain.TicketSla, error) {
	ticket, err := s.GetTicket(ctx, staff, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if s.sla == nil {
		return ticket, nil, nil
	}
	record, err := s.sla.GetTicketSla(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ticket, nil, nil
		}
		return nil, nil, apperrors.MapError(err)
	}
	return ticket, record, nil
}

// ListHistory returns the audit trail of a ticket, optionally restricted to
// some change types.
func (s *TicketService) ListHistory(ctx context.Context, staff *domain.StaffMember, ticketID string, types ...domain.TicketChangeType) ([]domain.TicketHistory, error) {
	for _, t := range types {
		if !t.Valid() {
			return nil, apperrors.NewValidationError("invalid change type", map[string]any{"type": t})
		}
	}
	if _, err := s.GetTicket(ctx, staff, ticketID); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID, types...)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return entries, nil
}

func staffCanAccessTicket(staff *domain.StaffMember, ticket *domain.Ticket) bool {
	if staff == nil {
		return false
	}
	if staff.Role == domain.StaffRoleAdmin {
		return true
	}
	if ticket.Assignee != nil && *ticket.Assignee == staff.Ref() {
		return true
	}
	if staff.DepartmentID == nil || ticket.DepartmentID == nil {
		return staff.DepartmentID == nil
	}
	return *staff.DepartmentID == *ticket.DepartmentID
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *TicketService) publish(ctx context.Context, eventType events.EventType, ticketID string, actor domain.ActorRef, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.New(eventType, ticketID, actor, s.now(), payload))
}

func (s *TicketService) recordHistory(ctx context.Context, actor domain.ActorRef, ticketID string, change domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticketID,
		ChangedBy:  actor,
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
