package handlers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/service-desk/internal/api/dto"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/service"
	"github.com/spec-kit/service-desk/internal/sla"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

// SlaJobRunner runs the scheduled SLA jobs on demand.
type SlaJobRunner interface {
	CheckSla(ctx context.Context) (domain.ScanReport, error)
	ProcessEscalations(ctx context.Context) (domain.ScanReport, error)
	RecalculateSla(ctx context.Context, policyID *string) (domain.ScanReport, error)
}

// SlaHandler exposes calendar previews and job triggers to staff.
type SlaHandler struct {
	calendars *service.CalendarService
	jobs      SlaJobRunner
}

// NewSlaHandler constructs handler.
func NewSlaHandler(calendars *service.CalendarService, jobs SlaJobRunner) *SlaHandler {
	return &SlaHandler{calendars: calendars, jobs: jobs}
}

// ListCalendars GET /staff/sla/calendars.
func (h *SlaHandler) ListCalendars(c *fiber.Ctx) error {
	schedules, err := h.calendars.ListSchedules(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.ScheduleResponse, 0, len(schedules))
	for i := range schedules {
		items = append(items, scheduleResponse(&schedules[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// PreviewCalendar GET /staff/sla/calendars/:id/preview?start=RFC3339&minutes=N.
// start defaults to now.
func (h *SlaHandler) PreviewCalendar(c *fiber.Ctx) error {
	start := time.Now().UTC()
	if raw := c.Query("start"); raw != "" {
		parsed := parseTime(raw)
		if parsed == nil {
			return apperrors.NewValidationError("start must be RFC3339", map[string]any{"start": raw})
		}
		start = *parsed
	}
	minutes := 0
	if raw := c.Query("minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return apperrors.NewValidationError("minutes must be an integer", map[string]any{"minutes": raw})
		}
		minutes = parsed
	}

	preview, err := h.calendars.Preview(c.UserContext(), c.Params("id"), start, minutes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CalendarPreviewResponse{
		ScheduleID:     preview.Schedule.ID,
		Start:          preview.Start,
		Minutes:        preview.Minutes,
		DueAt:          preview.DueAt,
		IsBusinessHour: preview.IsBusinessHour,
		IsHoliday:      preview.IsHoliday,
	}})
}

// CheckSla POST /staff/sla/jobs/check-sla.
func (h *SlaHandler) CheckSla(c *fiber.Ctx) error {
	return h.respond(c)(h.jobs.CheckSla(c.UserContext()))
}

// ProcessEscalations POST /staff/sla/jobs/process-escalations.
func (h *SlaHandler) ProcessEscalations(c *fiber.Ctx) error {
	return h.respond(c)(h.jobs.ProcessEscalations(c.UserContext()))
}

// RecalculateSla POST /staff/sla/jobs/recalculate-sla.
func (h *SlaHandler) RecalculateSla(c *fiber.Ctx) error {
	var req dto.RecalculateRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	if req.PolicyID == nil {
		req.PolicyID = optionalQuery(c, "policy_id")
	}
	return h.respond(c)(h.jobs.RecalculateSla(c.UserContext(), req.PolicyID))
}

// respond renders the report. A failed job still returns its partial report
// alongside the error.
func (h *SlaHandler) respond(c *fiber.Ctx) func(domain.ScanReport, error) error {
	return func(report domain.ScanReport, err error) error {
		if err != nil {
			if errors.Is(err, sla.ErrPolicyNotFound) {
				err = apperrors.NewNotFound("sla policy", nil)
			}
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{
				"data": report,
				"error": fiber.Map{
					"code":    domainErr.Code,
					"message": domainErr.Message,
				},
			})
		}
		return c.JSON(fiber.Map{"data": report})
	}
}
