package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/service-desk/internal/domain"
)

// BusinessHoursRepository loads schedules with their slots and holidays.
type BusinessHoursRepository interface {
	GetByID(ctx context.Context, id string) (*domain.BusinessHoursSchedule, error)
	// GetDefault returns the active default schedule or pgx.ErrNoRows.
	GetDefault(ctx context.Context) (*domain.BusinessHoursSchedule, error)
	ListActive(ctx context.Context) ([]domain.BusinessHoursSchedule, error)
}

type businessHoursRepository struct {
	pool *pgxpool.Pool
}

// NewBusinessHoursRepository builds repository.
func NewBusinessHoursRepository(pool *pgxpool.Pool) BusinessHoursRepository {
	return &businessHoursRepository{pool: pool}
}

const scheduleColumns = `id, name, timezone, is_default, is_active, created_at, updated_at`

func (r *businessHoursRepository) GetByID(ctx context.Context, id string) (*domain.BusinessHoursSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM business_hours_schedules WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *businessHoursRepository) GetDefault(ctx context.Context) (*domain.BusinessHoursSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM business_hours_schedules
        WHERE is_default AND is_active ORDER BY created_at ASC LIMIT 1`
	return r.fetchSingle(ctx, query)
}

func (r *businessHoursRepository) ListActive(ctx context.Context) ([]domain.BusinessHoursSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM business_hours_schedules WHERE is_active ORDER BY name ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	var schedules []domain.BusinessHoursSchedule
	for rows.Next() {
		var schedule domain.BusinessHoursSchedule
		if err := rows.Scan(scheduleDest(&schedule)...); err != nil {
			rows.Close()
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range schedules {
		if err := r.loadCalendar(ctx, &schedules[i]); err != nil {
			return nil, err
		}
	}
	return schedules, nil
}

func (r *businessHoursRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.BusinessHoursSchedule, error) {
	var schedule domain.BusinessHoursSchedule
	if err := r.pool.QueryRow(ctx, query, args...).Scan(scheduleDest(&schedule)...); err != nil {
		return nil, err
	}
	if err := r.loadCalendar(ctx, &schedule); err != nil {
		return nil, err
	}
	return &schedule, nil
}

func scheduleDest(schedule *domain.BusinessHoursSchedule) []any {
	return []any{
		&schedule.ID,
		&schedule.Name,
		&schedule.Timezone,
		&schedule.IsDefault,
		&schedule.IsActive,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	}
}

func (r *businessHoursRepository) loadCalendar(ctx context.Context, schedule *domain.BusinessHoursSchedule) error {
	slots, err := r.listSlots(ctx, schedule.ID)
	if err != nil {
		return err
	}
	holidays, err := r.listHolidays(ctx, schedule.ID)
	if err != nil {
		return err
	}
	schedule.TimeSlots = slots
	schedule.Holidays = holidays
	return nil
}

func (r *businessHoursRepository) listSlots(ctx context.Context, scheduleID string) ([]domain.TimeSlot, error) {
	const query = `
        SELECT id, schedule_id, day_of_week, start_time, end_time
        FROM business_hours_time_slots WHERE schedule_id=$1
        ORDER BY day_of_week ASC, start_time ASC`
	rows, err := r.pool.Query(ctx, query, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []domain.TimeSlot
	for rows.Next() {
		var (
			slot       domain.TimeSlot
			day        int16
			start, end pgtype.Time
		)
		if err := rows.Scan(&slot.ID, &slot.ScheduleID, &day, &start, &end); err != nil {
			return nil, err
		}
		slot.DayOfWeek = time.Weekday(day)
		slot.StartTime = clockFromPg(start)
		slot.EndTime = clockFromPg(end)
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (r *businessHoursRepository) listHolidays(ctx context.Context, scheduleID string) ([]domain.Holiday, error) {
	const query = `
        SELECT id, schedule_id, name, date, is_recurring
        FROM business_hours_holidays WHERE schedule_id=$1 ORDER BY date ASC`
	rows, err := r.pool.Query(ctx, query, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []domain.Holiday
	for rows.Next() {
		var holiday domain.Holiday
		if err := rows.Scan(&holiday.ID, &holiday.ScheduleID, &holiday.Name, &holiday.Date, &holiday.IsRecurring); err != nil {
			return nil, err
		}
		holidays = append(holidays, holiday)
	}
	return holidays, rows.Err()
}

func clockFromPg(value pgtype.Time) domain.ClockTime {
	if !value.Valid {
		return domain.ClockTime{}
	}
	return domain.ClockTimeFromDuration(time.Duration(value.Microseconds) * time.Microsecond)
}
