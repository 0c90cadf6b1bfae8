package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/auth"
	"github.com/spec-kit/service-desk/internal/domain"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

func staffPrincipal(c *fiber.Ctx) (*domain.StaffMember, error) {
	staff, ok := auth.StaffFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	return staff, nil
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return nil
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}

func optionalQuery(c *fiber.Ctx, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}

func parseTime(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil
	}
	return &t
}

func splitQuery(c *fiber.Ctx, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	var parts []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, strings.ToUpper(trimmed))
		}
	}
	return parts
}

func departmentResponse(dept *domain.Department) dto.DepartmentResponse {
	return dto.DepartmentResponse{
		ID:          dept.ID,
		Name:        dept.Name,
		Description: dept.Description,
		IsActive:    dept.IsActive,
	}
}

func teamResponse(team *domain.Team) dto.TeamResponse {
	return dto.TeamResponse{
		ID:           team.ID,
		DepartmentID: team.DepartmentID,
		Name:         team.Name,
		Description:  team.Description,
		IsActive:     team.IsActive,
	}
}

func staffResponse(staff *domain.StaffMember) dto.StaffResponse {
	return dto.StaffResponse{
		ID:           staff.ID,
		Name:         staff.Name,
		Email:        staff.Email,
		Role:         staff.Role,
		DepartmentID: staff.DepartmentID,
		Active:       staff.Active,
	}
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:           ticket.ID,
		ExternalKey:  ticket.ExternalKey,
		Requester:    ticket.Requester,
		DepartmentID: ticket.DepartmentID,
		CategoryID:   ticket.CategoryID,
		Assignee:     ticket.Assignee,
		SlaPolicyID:  ticket.SlaPolicyID,
		Title:        ticket.Title,
		Status:       ticket.Status,
		Priority:     ticket.Priority,
		Source:       ticket.Source,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
		ClosedAt:     ticket.ClosedAt,
	}
}

func ticketSlaResponse(ticketID string, record *domain.TicketSla, now time.Time) dto.TicketSlaResponse {
	if record == nil {
		return dto.TicketSlaResponse{TicketID: ticketID}
	}
	resp := dto.TicketSlaResponse{
		TicketID:             ticketID,
		Tracked:              true,
		PolicyID:             record.PolicyID,
		PriorityAtAssignment: record.PriorityAtAssignment,
		FirstRespondedAt:     record.FirstRespondedAt,
		ResolvedAt:           record.ResolvedAt,
		Paused:               record.IsPaused(),
		PausedAt:             record.PausedAt,
		PausedMinutes:        record.PausedMinutes,
	}
	for _, kind := range domain.BreachTypes() {
		due := record.DueAt(kind)
		if due == nil {
			continue
		}
		resp.Milestones = append(resp.Milestones, dto.SlaMilestone{
			Kind:     kind,
			DueAt:    due,
			Achieved: record.Achieved(kind),
			Breached: record.Breached(kind),
			Overdue:  record.IsOverdue(kind, now),
		})
	}
	return resp
}

func historyResponse(entry *domain.TicketHistory) dto.HistoryResponse {
	return dto.HistoryResponse{
		ID:         entry.ID,
		ChangedBy:  entry.ChangedBy,
		ChangeType: entry.ChangeType,
		OldValue:   entry.OldValue,
		NewValue:   entry.NewValue,
		CreatedAt:  entry.CreatedAt,
	}
}

func scheduleResponse(schedule *domain.BusinessHoursSchedule) dto.ScheduleResponse {
	resp := dto.ScheduleResponse{
		ID:        schedule.ID,
		Name:      schedule.Name,
		Timezone:  schedule.Timezone,
		IsDefault: schedule.IsDefault,
		TimeSlots: make([]dto.TimeSlotView, 0, len(schedule.TimeSlots)),
		Holidays:  make([]dto.HolidayView, 0, len(schedule.Holidays)),
	}
	for _, slot := range schedule.TimeSlots {
		resp.TimeSlots = append(resp.TimeSlots, dto.TimeSlotView{
			DayOfWeek: int(slot.DayOfWeek),
			StartTime: slot.StartTime.String(),
			EndTime:   slot.EndTime.String(),
		})
	}
	for _, holiday := range schedule.Holidays {
		resp.Holidays = append(resp.Holidays, dto.HolidayView{
			Name:        holiday.Name,
			Date:        holiday.Date.Format("2006-01-02"),
			IsRecurring: holiday.IsRecurring,
		})
	}
	return resp
}
