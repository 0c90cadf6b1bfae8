package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/service-desk/internal/businesshours"
	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/repository/repotest"
	"github.com/spec-kit/service-desk/internal/sla"
	apperrors "github.com/spec-kit/service-desk/pkg/util"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) record(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type serviceFixture struct {
	clock       *testClock
	slaStore    *repotest.TicketSlaStore
	history     *repotest.HistoryRecorder
	staff       *repotest.MockStaffRepository
	departments *repotest.MockDepartmentRepository
	teams       *repotest.MockTeamRepository
	recorded    *recordedEvents
	ticketSvc   *TicketService
	assignSvc   *AssignmentService
	admin       *domain.StaffMember
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clock := &testClock{now: time.Date(2024, time.March, 6, 10, 0, 0, 0, time.UTC)}
	ticketRepo := repotest.NewMemoryTicketRepository()

	f := &serviceFixture{
		clock:       clock,
		slaStore:    repotest.NewTicketSlaStore(),
		history:     &repotest.HistoryRecorder{},
		staff:       &repotest.MockStaffRepository{},
		departments: &repotest.MockDepartmentRepository{},
		teams:       &repotest.MockTeamRepository{},
		recorded:    &recordedEvents{},
		admin:       &domain.StaffMember{ID: "admin-1", Name: "Ada", Role: domain.StaffRoleAdmin, Active: true},
	}
	dispatcher := events.NewInMemoryDispatcher(logger)
	dispatcher.SubscribeAll(f.recorded.record)

	urgent, high := 30, 60
	resolution := 240
	policies := &repotest.MockSlaPolicyRepository{Policies: []domain.SlaPolicy{{
		ID:       "standard",
		IsActive: true,
		Targets: []domain.SlaTarget{
			{Priority: domain.TicketPriorityUrgent, FirstResponseMins: &urgent, ResolutionMins: &resolution},
			{Priority: domain.TicketPriorityHigh, FirstResponseMins: &high},
		},
	}}}

	cfg := config.DefaultSLAConfig()
	slaSvc := sla.NewService(sla.Dependencies{
		Config:       cfg,
		Calculator:   businesshours.NewCalculator(time.UTC, logger),
		TicketRepo:   ticketRepo,
		ScheduleRepo: &repotest.MockBusinessHoursRepository{},
		PolicyRepo:   policies,
		SlaRepo:      f.slaStore,
		Dispatcher:   dispatcher,
		Logger:       logger,
		Now:          clock.Now,
	})

	f.ticketSvc = NewTicketService(TicketDependencies{
		TicketRepo:     ticketRepo,
		DepartmentRepo: f.departments,
		HistoryRepo:    f.history,
		SLA:            slaSvc,
		Config:         cfg,
		Dispatcher:     dispatcher,
		Logger:         logger,
		Now:            clock.Now,
	})
	f.assignSvc = NewAssignmentService(AssignmentDependencies{
		TicketRepo:  ticketRepo,
		StaffRepo:   f.staff,
		TeamRepo:    f.teams,
		HistoryRepo: f.history,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Now:         clock.Now,
	})
	return f
}

func (f *serviceFixture) create(t *testing.T, priority domain.TicketPriority) *domain.Ticket {
	t.Helper()
	ticket, err := f.ticketSvc.CreateTicket(context.Background(), f.admin.Ref(), TicketCreateInput{
		Title:    "VPN down",
		Priority: priority,
	})
	require.NoError(t, err)
	return ticket
}

func domainCode(err error) string {
	if de := apperrors.ToDomainError(err); de != nil {
		return de.Code
	}
	return ""
}
