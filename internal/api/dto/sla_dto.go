package dto

import "time"

// ScheduleResponse summarises a business hours calendar.
type ScheduleResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Timezone  string         `json:"timezone"`
	IsDefault bool           `json:"is_default"`
	TimeSlots []TimeSlotView `json:"time_slots"`
	Holidays  []HolidayView  `json:"holidays"`
}

// TimeSlotView renders a slot with clock strings.
type TimeSlotView struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// HolidayView renders a holiday date as YYYY-MM-DD.
type HolidayView struct {
	Name        string `json:"name"`
	Date        string `json:"date"`
	IsRecurring bool   `json:"is_recurring"`
}

// CalendarPreviewResponse answers what-if questions against a calendar.
type CalendarPreviewResponse struct {
	ScheduleID     string    `json:"schedule_id"`
	Start          time.Time `json:"start"`
	Minutes        int       `json:"minutes"`
	DueAt          time.Time `json:"due_at"`
	IsBusinessHour bool      `json:"is_business_hour"`
	IsHoliday      bool      `json:"is_holiday"`
}

// RecalculateRequest optionally restricts recalculation to one policy.
type RecalculateRequest struct {
	PolicyID *string `json:"policy_id"`
}
