package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/service"
)

// TicketsHandler exposes staff ticket endpoints.
type TicketsHandler struct {
	tickets     *service.TicketService
	assignments *service.AssignmentService
	now         func() time.Time
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, assignmentService *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService, assignments: assignmentService, now: time.Now}
}

// CreateTicket POST /staff/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	input := service.TicketCreateInput{
		DepartmentID: req.DepartmentID,
		CategoryID:   req.CategoryID,
		Title:        req.Title,
		Priority:     domain.TicketPriority(strings.ToUpper(string(req.Priority))),
		Source:       domain.TicketSource(strings.ToUpper(string(req.Source))),
	}
	if req.Requester != nil {
		input.Requester = *req.Requester
	}
	ticket, err := h.tickets.CreateTicket(c.UserContext(), staff.Ref(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// ListTickets GET /staff/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	tickets, err := h.tickets.ListTickets(c.UserContext(), staff, parseTicketFilter(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /staff/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticket, err := h.tickets.GetTicket(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateStatus PATCH /staff/tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	status := domain.TicketStatus(strings.ToUpper(string(req.Status)))
	ticket, err := h.tickets.UpdateStatus(c.UserContext(), staff, c.Params("id"), status, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdatePriority PATCH /staff/tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdatePriorityRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	priority := domain.TicketPriority(strings.ToUpper(string(req.Priority)))
	ticket, err := h.tickets.UpdatePriority(c.UserContext(), staff, c.Params("id"), priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// Assign POST /staff/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	var ticket *domain.Ticket
	if req.Assignee == nil || *req.Assignee == staff.Ref() {
		ticket, err = h.assignments.SelfAssignTicket(c.UserContext(), staff, c.Params("id"))
	} else {
		assignee := *req.Assignee
		assignee.Kind = domain.ActorKind(strings.ToUpper(string(assignee.Kind)))
		ticket, err = h.assignments.AssignTicket(c.UserContext(), staff, c.Params("id"), assignee)
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetSla GET /staff/tickets/:id/sla.
func (h *TicketsHandler) GetSla(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	ticket, record, err := h.tickets.GetTicketSla(c.UserContext(), staff, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSlaResponse(ticket.ID, record, h.now())})
}

// ListHistory GET /staff/tickets/:id/history?type=SLA_APPLIED,ESCALATED.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	staff, err := staffPrincipal(c)
	if err != nil {
		return err
	}
	var types []domain.TicketChangeType
	for _, t := range splitQuery(c, "type") {
		types = append(types, domain.TicketChangeType(t))
	}
	entries, err := h.tickets.ListHistory(c.UserContext(), staff, c.Params("id"), types...)
	if err != nil {
		return err
	}
	items := make([]dto.HistoryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, historyResponse(&entries[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseTicketFilter(c *fiber.Ctx) service.TicketStaffFilter {
	filter := service.TicketStaffFilter{
		DepartmentID: optionalQuery(c, "department_id"),
		AssigneeID:   optionalQuery(c, "assignee_id"),
		SlaPolicyID:  optionalQuery(c, "sla_policy_id"),
		SearchTerm:   optionalQuery(c, "search"),
		CreatedFrom:  parseTime(c.Query("created_from")),
		CreatedTo:    parseTime(c.Query("created_to")),
	}
	for _, status := range splitQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, domain.TicketStatus(status))
	}
	for _, priority := range splitQuery(c, "priority") {
		filter.Priorities = append(filter.Priorities, domain.TicketPriority(priority))
	}
	for _, source := range splitQuery(c, "source") {
		filter.Sources = append(filter.Sources, domain.TicketSource(source))
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}
