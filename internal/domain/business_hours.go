package domain

import (
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day, independent of any date or zone.
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

// ParseClockTime accepts "HH:MM" or "HH:MM:SS".
func ParseClockTime(value string) (ClockTime, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("invalid clock time %q", value)
}

// ClockTimeFromDuration converts an offset since midnight.
func ClockTimeFromDuration(d time.Duration) ClockTime {
	secs := int(d / time.Second)
	return ClockTime{Hour: secs / 3600, Minute: (secs % 3600) / 60, Second: secs % 60}
}

// SinceMidnight returns the offset of the clock time from midnight.
func (c ClockTime) SinceMidnight() time.Duration {
	return time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute + time.Duration(c.Second)*time.Second
}

// On returns the instant at this clock time on the same calendar day as day,
// in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, c.Second, 0, day.Location())
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// TimeSlot is one working interval on a weekday. Start and end fall on the
// same day and slots within a day do not overlap.
type TimeSlot struct {
	ID         string
	ScheduleID string
	DayOfWeek  time.Weekday
	StartTime  ClockTime
	EndTime    ClockTime
}

// Holiday marks a whole day as non-business. Recurring holidays match by
// month and day in every year.
type Holiday struct {
	ID          string
	ScheduleID  string
	Name        string
	Date        time.Time
	IsRecurring bool
}

// BusinessHoursSchedule is a weekly calendar used to compute SLA due dates.
type BusinessHoursSchedule struct {
	ID        string
	Name      string
	Timezone  string
	IsDefault bool
	IsActive  bool
	TimeSlots []TimeSlot
	Holidays  []Holiday
	CreatedAt time.Time
	UpdatedAt time.Time
}
