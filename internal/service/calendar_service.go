package service

import (
	"context"
	"time"

	"github.com/spec-kit/service-desk/internal/businesshours"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/repository"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

// maxPreviewMinutes caps what-if queries at one year of minutes.
const maxPreviewMinutes = 366 * 24 * 60

// CalendarService exposes business hours calendars and due date previews.
type CalendarService struct {
	schedules  repository.BusinessHoursRepository
	calculator *businesshours.Calculator
}

// CalendarPreview is the answer to a due date what-if query.
type CalendarPreview struct {
	Schedule       *domain.BusinessHoursSchedule
	Start          time.Time
	Minutes        int
	DueAt          time.Time
	IsBusinessHour bool
	IsHoliday      bool
}

// NewCalendarService constructs the service.
func NewCalendarService(schedules repository.BusinessHoursRepository, calculator *businesshours.Calculator) *CalendarService {
	return &CalendarService{schedules: schedules, calculator: calculator}
}

// ListSchedules returns active calendars.
func (s *CalendarService) ListSchedules(ctx context.Context) ([]domain.BusinessHoursSchedule, error) {
	schedules, err := s.schedules.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return schedules, nil
}

// Preview computes the due date minutes of business time after start and
// reports whether start itself is inside business hours or on a holiday.
func (s *CalendarService) Preview(ctx context.Context, scheduleID string, start time.Time, minutes int) (*CalendarPreview, error) {
	if minutes < 0 || minutes > maxPreviewMinutes {
		return nil, apperrors.NewValidationError("minutes out of range", map[string]any{"minutes": minutes, "max": maxPreviewMinutes})
	}
	schedule, err := s.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, apperrors.NotFoundOr(err, "schedule", map[string]any{"schedule_id": scheduleID})
	}
	return &CalendarPreview{
		Schedule:       schedule,
		Start:          start,
		Minutes:        minutes,
		DueAt:          s.calculator.AddBusinessMinutes(start, minutes, schedule),
		IsBusinessHour: s.calculator.IsBusinessHour(start, schedule),
		IsHoliday:      s.calculator.IsHoliday(start, schedule),
	}, nil
}
