package sla

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/service-desk/internal/businesshours"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/repository/repotest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(_ context.Context, event events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	return nil
}

func (l *eventLog) ofType(eventType events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	svc       *Service
	clock     *fakeClock
	store     *repotest.TicketSlaStore
	tickets   *repotest.MockTicketRepository
	history   *repotest.HistoryRecorder
	policies  *repotest.MockSlaPolicyRepository
	schedules *repotest.MockBusinessHoursRepository
	log       *eventLog
	linked    map[string]string
	mu        sync.Mutex
}

func newFixture(t *testing.T, mutate ...func(cfg *config.SLAConfig)) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.DefaultSLAConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	f := &fixture{
		clock:     &fakeClock{now: time.Date(2024, time.March, 6, 10, 0, 0, 0, time.UTC)},
		store:     repotest.NewTicketSlaStore(),
		policies:  &repotest.MockSlaPolicyRepository{},
		schedules: &repotest.MockBusinessHoursRepository{Schedules: map[string]*domain.BusinessHoursSchedule{}},
		history:   &repotest.HistoryRecorder{},
		log:       &eventLog{},
		linked:    map[string]string{},
	}
	f.tickets = &repotest.MockTicketRepository{
		SetPolicyFunc: func(_ context.Context, ticketID string, policyID *string) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			if policyID == nil {
				delete(f.linked, ticketID)
				return nil
			}
			f.linked[ticketID] = *policyID
			return nil
		},
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	dispatcher.SubscribeAll(f.log.record)

	f.svc = NewService(Dependencies{
		Config:       cfg,
		Calculator:   businesshours.NewCalculator(time.UTC, logger),
		TicketRepo:   f.tickets,
		ScheduleRepo: f.schedules,
		PolicyRepo:   f.policies,
		SlaRepo:      f.store,
		HistoryRepo:  f.history,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Now:          f.clock.Now,
	})
	return f
}

func (f *fixture) linkedPolicy(ticketID string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.linked[ticketID]
	return id, ok
}

func minutes(v int) *int {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func timePtr(v time.Time) *time.Time {
	return &v
}

func openTicket(id string, priority domain.TicketPriority) domain.Ticket {
	return domain.Ticket{
		ID:       id,
		Title:    "Printer on fire",
		Status:   domain.TicketStatusOpen,
		Priority: priority,
		Source:   domain.TicketSourceWeb,
	}
}

func standardPolicy() domain.SlaPolicy {
	return domain.SlaPolicy{
		ID:        "policy-standard",
		Name:      "Standard",
		IsActive:  true,
		SortOrder: 10,
		Targets: []domain.SlaTarget{
			{Priority: domain.TicketPriorityUrgent, FirstResponseMins: minutes(30), ResolutionMins: minutes(240)},
			{Priority: domain.TicketPriorityHigh, FirstResponseMins: minutes(60), NextResponseMins: minutes(120)},
		},
	}
}

func officeHours(id string) *domain.BusinessHoursSchedule {
	schedule := &domain.BusinessHoursSchedule{ID: id, Name: "Office", Timezone: "UTC", IsActive: true}
	for day := time.Monday; day <= time.Friday; day++ {
		schedule.TimeSlots = append(schedule.TimeSlots, domain.TimeSlot{
			DayOfWeek: day,
			StartTime: domain.ClockTime{Hour: 9},
			EndTime:   domain.ClockTime{Hour: 17},
		})
	}
	return schedule
}
