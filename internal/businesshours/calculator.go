package businesshours

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/service-desk/internal/domain"
)

// yearOfMinutes bounds the walk for schedules that never yield business time
// (for example every slotted weekday is also a recurring holiday).
const yearOfMinutes = 366 * 24 * 60

// Calculator performs business-time arithmetic over weekly schedules.
type Calculator struct {
	reference *time.Location
	logger    *zap.Logger
}

// NewCalculator returns a calculator that reports instants in reference.
func NewCalculator(reference *time.Location, logger *zap.Logger) *Calculator {
	if reference == nil {
		reference = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{reference: reference, logger: logger}
}

// CalculateDueDate adds minutes of business time to start. A nil schedule
// means plain wall-clock addition.
func (c *Calculator) CalculateDueDate(start time.Time, minutes int, schedule *domain.BusinessHoursSchedule) time.Time {
	if schedule == nil {
		return start.Add(time.Duration(minutes) * time.Minute).In(c.reference)
	}
	return c.AddBusinessMinutes(start, minutes, schedule)
}

// AddBusinessMinutes advances start by minutes that fall inside the
// schedule's time slots, skipping holidays. A schedule without slots is
// treated as always open.
func (c *Calculator) AddBusinessMinutes(start time.Time, minutes int, schedule *domain.BusinessHoursSchedule) time.Time {
	naive := start.Add(time.Duration(minutes) * time.Minute).In(c.reference)
	if schedule == nil || len(schedule.TimeSlots) == 0 {
		return naive
	}

	byDay := slotsByDay(schedule.TimeSlots)
	current := start.In(c.location(schedule))
	remaining := minutes
	maxIterations := minutes + yearOfMinutes

	for iterations := 0; remaining > 0 && iterations < maxIterations; iterations++ {
		if c.isHolidayLocal(current, schedule) {
			current = startOfNextDay(current)
			continue
		}

		daySlots := byDay[current.Weekday()]
		if len(daySlots) == 0 {
			current = startOfNextDay(current)
			continue
		}

		for _, slot := range daySlots {
			if remaining <= 0 {
				break
			}
			slotStart := slot.StartTime.On(current)
			slotEnd := slot.EndTime.On(current)
			if !current.Before(slotEnd) {
				continue
			}

			effective := current
			if slotStart.After(current) {
				effective = slotStart
			}
			available := int(slotEnd.Sub(effective) / time.Minute)
			if available <= 0 {
				continue
			}

			if remaining <= available {
				current = effective.Add(time.Duration(remaining) * time.Minute)
				remaining = 0
			} else {
				remaining -= available
				current = slotEnd
			}
		}

		if remaining > 0 {
			current = startOfNextDay(current)
		}
	}

	if remaining > 0 {
		c.logger.Warn("schedule yields no business time; using wall-clock addition",
			zap.String("schedule_id", schedule.ID),
			zap.Int("minutes", minutes))
		return naive
	}
	return current.In(c.reference)
}

// IsBusinessHour reports whether instant falls inside a slot on a
// non-holiday day of the schedule.
func (c *Calculator) IsBusinessHour(instant time.Time, schedule *domain.BusinessHoursSchedule) bool {
	if schedule == nil {
		return false
	}
	local := instant.In(c.location(schedule))
	if c.isHolidayLocal(local, schedule) {
		return false
	}
	offset := domain.ClockTime{Hour: local.Hour(), Minute: local.Minute(), Second: local.Second()}.SinceMidnight()
	for _, slot := range schedule.TimeSlots {
		if slot.DayOfWeek != local.Weekday() {
			continue
		}
		if offset >= slot.StartTime.SinceMidnight() && offset < slot.EndTime.SinceMidnight() {
			return true
		}
	}
	return false
}

// IsHoliday reports whether the calendar day of date, in the schedule's
// timezone, is an exact or recurring holiday.
func (c *Calculator) IsHoliday(date time.Time, schedule *domain.BusinessHoursSchedule) bool {
	if schedule == nil {
		return false
	}
	return c.isHolidayLocal(date.In(c.location(schedule)), schedule)
}

func (c *Calculator) isHolidayLocal(local time.Time, schedule *domain.BusinessHoursSchedule) bool {
	year, month, day := local.Date()
	for _, holiday := range schedule.Holidays {
		// Holiday dates are calendar dates; read their fields as stored.
		hYear, hMonth, hDay := holiday.Date.Date()
		if hMonth != month || hDay != day {
			continue
		}
		if holiday.IsRecurring || hYear == year {
			return true
		}
	}
	return false
}

func (c *Calculator) location(schedule *domain.BusinessHoursSchedule) *time.Location {
	if schedule.Timezone == "" {
		return c.reference
	}
	loc, err := time.LoadLocation(schedule.Timezone)
	if err != nil {
		c.logger.Warn("unknown schedule timezone; using reference timezone",
			zap.String("schedule_id", schedule.ID),
			zap.String("timezone", schedule.Timezone),
			zap.Error(err))
		return c.reference
	}
	return loc
}

func slotsByDay(slots []domain.TimeSlot) map[time.Weekday][]domain.TimeSlot {
	byDay := make(map[time.Weekday][]domain.TimeSlot, 7)
	for _, slot := range slots {
		byDay[slot.DayOfWeek] = append(byDay[slot.DayOfWeek], slot)
	}
	for day := range byDay {
		daySlots := byDay[day]
		sort.SliceStable(daySlots, func(i, j int) bool {
			return daySlots[i].StartTime.SinceMidnight() < daySlots[j].StartTime.SinceMidnight()
		})
	}
	return byDay
}

func startOfNextDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
}
