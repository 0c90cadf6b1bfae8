package sla

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/service-desk/internal/config"
	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
)

func TestFindMatchingPolicy_FirstMatchBySortOrder(t *testing.T) {
	f := newFixture(t)
	catchAll := domain.SlaPolicy{ID: "catch-all", IsActive: true, SortOrder: 100}
	urgentOnly := domain.SlaPolicy{ID: "urgent", IsActive: true, SortOrder: 1,
		Conditions: domain.SlaConditions{Priorities: []domain.TicketPriority{domain.TicketPriorityUrgent}}}
	billing := domain.SlaPolicy{ID: "billing", IsActive: true, SortOrder: 5,
		Conditions: domain.SlaConditions{DepartmentIDs: []string{"dept-billing"}, Sources: []domain.TicketSource{domain.TicketSourceEmail, domain.TicketSourceWeb}}}
	inactive := domain.SlaPolicy{ID: "inactive", IsActive: false, SortOrder: 0}
	f.policies.Policies = []domain.SlaPolicy{catchAll, billing, inactive, urgentOnly}

	cases := []struct {
		name   string
		ticket domain.Ticket
		want   string
	}{
		{"urgent wins by sort order", func() domain.Ticket {
			tk := openTicket("t1", domain.TicketPriorityUrgent)
			tk.DepartmentID = strPtr("dept-billing")
			return tk
		}(), "urgent"},
		{"department and source match", func() domain.Ticket {
			tk := openTicket("t2", domain.TicketPriorityHigh)
			tk.DepartmentID = strPtr("dept-billing")
			return tk
		}(), "billing"},
		{"source outside allow-list", func() domain.Ticket {
			tk := openTicket("t3", domain.TicketPriorityHigh)
			tk.DepartmentID = strPtr("dept-billing")
			tk.Source = domain.TicketSourcePhone
			return tk
		}(), "catch-all"},
		{"missing department falls through", openTicket("t4", domain.TicketPriorityLow), "catch-all"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ticket := tc.ticket
			policy, err := f.svc.FindMatchingPolicy(context.Background(), &ticket)
			require.NoError(t, err)
			require.NotNil(t, policy)
			assert.Equal(t, tc.want, policy.ID)
		})
	}
}

func TestFindMatchingPolicy_NoMatch(t *testing.T) {
	f := newFixture(t)
	f.policies.Policies = []domain.SlaPolicy{{ID: "vip", IsActive: true,
		Conditions: domain.SlaConditions{CategoryIDs: []string{"cat-vip"}}}}

	ticket := openTicket("t1", domain.TicketPriorityHigh)
	ticket.CategoryID = strPtr("cat-other")
	policy, err := f.svc.FindMatchingPolicy(context.Background(), &ticket)

	require.NoError(t, err)
	assert.Nil(t, policy)
}

func TestApplyPolicy_UrgentNaiveDueDates(t *testing.T) {
	f := newFixture(t)
	policy := standardPolicy()
	f.policies.Policies = []domain.SlaPolicy{policy}
	ticket := openTicket("t-urgent", domain.TicketPriorityUrgent)
	f.store.PutTicket(ticket)
	now := f.clock.Now()

	record, err := f.svc.ApplyPolicy(context.Background(), &ticket, nil)

	require.NoError(t, err)
	require.NotNil(t, record)
	require.NotNil(t, record.FirstResponseDueAt)
	require.NotNil(t, record.ResolutionDueAt)
	assert.True(t, record.FirstResponseDueAt.Equal(now.Add(30*time.Minute)))
	assert.True(t, record.ResolutionDueAt.Equal(now.Add(240*time.Minute)))
	assert.Nil(t, record.NextResponseDueAt)
	assert.Equal(t, domain.TicketPriorityUrgent, record.PriorityAtAssignment)

	linked, ok := f.linkedPolicy("t-urgent")
	require.True(t, ok)
	assert.Equal(t, policy.ID, linked)
	require.NotNil(t, ticket.SlaPolicyID)
	assert.Equal(t, policy.ID, *ticket.SlaPolicyID)

	applied := f.log.ofType(events.EventSlaApplied)
	require.Len(t, applied, 1)
	payload := applied[0].Payload.(events.SlaAppliedPayload)
	assert.Equal(t, record.ID, payload.SlaID)
	assert.Nil(t, payload.ScheduleID)

	entries := f.history.OfType(domain.ChangeTypeSlaApplied)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.SystemActor, entries[0].ChangedBy)
	assert.Nil(t, entries[0].OldValue["policy_id"])
	assert.Equal(t, policy.ID, entries[0].NewValue["policy_id"])
	assert.Equal(t, *record.FirstResponseDueAt, entries[0].NewValue["first_response_due_at"])
	assert.Nil(t, entries[0].NewValue["next_response_due_at"])
}

func TestApplyPolicy_NoTargetForPriority(t *testing.T) {
	f := newFixture(t)
	f.policies.Policies = []domain.SlaPolicy{standardPolicy()}
	ticket := openTicket("t-low", domain.TicketPriorityLow)

	record, err := f.svc.ApplyPolicy(context.Background(), &ticket, nil)

	require.NoError(t, err)
	assert.Nil(t, record)
	_, stored := f.store.Snapshot("t-low")
	assert.False(t, stored)
	_, linked := f.linkedPolicy("t-low")
	assert.False(t, linked)
	assert.Nil(t, ticket.SlaPolicyID)
	assert.Empty(t, f.log.ofType(events.EventSlaApplied))
	assert.Empty(t, f.history.Entries)
}

func TestUntrack(t *testing.T) {
	f := newFixture(t)
	policy := standardPolicy()
	f.policies.Policies = []domain.SlaPolicy{policy}
	ticket := openTicket("t1", domain.TicketPriorityUrgent)
	f.store.PutTicket(ticket)
	ctx := context.Background()

	_, err := f.svc.ApplyPolicy(ctx, &ticket, nil)
	require.NoError(t, err)

	ticket.Priority = domain.TicketPriorityLow
	removed, err := f.svc.Untrack(ctx, &ticket)
	require.NoError(t, err)
	assert.True(t, removed)
	_, stored := f.store.Snapshot("t1")
	assert.False(t, stored)
	_, linked := f.linkedPolicy("t1")
	assert.False(t, linked)
	assert.Nil(t, ticket.SlaPolicyID)

	cleared := f.history.OfType(domain.ChangeTypeSlaCleared)
	require.Len(t, cleared, 1)
	assert.Equal(t, policy.ID, cleared[0].OldValue["policy_id"])
	assert.Equal(t, domain.TicketPriorityLow, cleared[0].NewValue["priority"])

	removed, err = f.svc.Untrack(ctx, &ticket)
	require.NoError(t, err)
	assert.False(t, removed, "nothing left to clear")
	assert.Len(t, f.history.OfType(domain.ChangeTypeSlaCleared), 1)
}

func TestUntrack_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.FailFor = func(string) error { return errors.New("connection reset") }
	ticket := openTicket("t1", domain.TicketPriorityUrgent)

	removed, err := f.svc.Untrack(context.Background(), &ticket)

	require.Error(t, err)
	assert.False(t, removed)
	assert.Empty(t, f.history.Entries)
}

func TestApplyPolicy_DisabledSkipsTracking(t *testing.T) {
	f := newFixture(t, func(cfg *config.SLAConfig) { cfg.Enabled = false })
	policy := standardPolicy()
	ticket := openTicket("t1", domain.TicketPriorityUrgent)

	record, err := f.svc.ApplyPolicy(context.Background(), &ticket, &policy)

	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestApplyPolicy_DeterministicAndReplacing(t *testing.T) {
	f := newFixture(t)
	policy := standardPolicy()
	ticket := openTicket("t1", domain.TicketPriorityUrgent)
	ctx := context.Background()

	first, err := f.svc.ApplyPolicy(ctx, &ticket, &policy)
	require.NoError(t, err)
	second, err := f.svc.ApplyPolicy(ctx, &ticket, &policy)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.FirstResponseDueAt.Equal(*second.FirstResponseDueAt))
	assert.True(t, first.ResolutionDueAt.Equal(*second.ResolutionDueAt))

	ticket.Priority = domain.TicketPriorityHigh
	third, err := f.svc.ApplyPolicy(ctx, &ticket, &policy)
	require.NoError(t, err)

	stored, ok := f.store.Snapshot("t1")
	require.True(t, ok)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, domain.TicketPriorityHigh, stored.PriorityAtAssignment)
	assert.True(t, stored.FirstResponseDueAt.Equal(f.clock.Now().Add(60*time.Minute)))
	assert.True(t, stored.NextResponseDueAt.Equal(f.clock.Now().Add(120*time.Minute)))
	assert.Nil(t, stored.ResolutionDueAt)
	assert.Nil(t, third.ResolutionDueAt)
}

func TestApplyPolicy_KeepsBreachFlagsAndPauseState(t *testing.T) {
	f := newFixture(t)
	policy := standardPolicy()
	ticket := openTicket("t1", domain.TicketPriorityUrgent)
	ctx := context.Background()

	_, err := f.svc.ApplyPolicy(ctx, &ticket, &policy)
	require.NoError(t, err)
	stored, _ := f.store.Snapshot("t1")
	stored.FirstResponseBreached = true
	stored.PausedMinutes = 12
	f.store.Put(stored)

	reapplied, err := f.svc.ApplyPolicy(ctx, &ticket, &policy)
	require.NoError(t, err)

	assert.True(t, reapplied.FirstResponseBreached)
	assert.Equal(t, 12, reapplied.PausedMinutes)
}

func TestApplyPolicy_UsesLinkedSchedule(t *testing.T) {
	f := newFixture(t)
	f.schedules.Schedules["office"] = officeHours("office")
	policy := domain.SlaPolicy{ID: "p", IsActive: true, ScheduleID: strPtr("office"),
		Targets: []domain.SlaTarget{{Priority: domain.TicketPriorityMedium, FirstResponseMins: minutes(120)}}}
	f.clock.now = time.Date(2024, time.March, 8, 16, 0, 0, 0, time.UTC)
	ticket := openTicket("t1", domain.TicketPriorityMedium)

	record, err := f.svc.ApplyPolicy(context.Background(), &ticket, &policy)

	require.NoError(t, err)
	assert.True(t, record.FirstResponseDueAt.Equal(time.Date(2024, time.March, 11, 10, 0, 0, 0, time.UTC)),
		"got %s", record.FirstResponseDueAt)
}

func TestApplyPolicy_ScheduleFallbackChain(t *testing.T) {
	policy := domain.SlaPolicy{ID: "p", IsActive: true, ScheduleID: strPtr("deleted"),
		Targets: []domain.SlaTarget{{Priority: domain.TicketPriorityMedium, FirstResponseMins: minutes(120)}}}
	friday := time.Date(2024, time.March, 8, 16, 0, 0, 0, time.UTC)

	t.Run("configured default", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.SLAConfig) { cfg.DefaultScheduleID = "configured" })
		f.schedules.Schedules["configured"] = officeHours("configured")
		f.clock.now = friday
		ticket := openTicket("t1", domain.TicketPriorityMedium)

		record, err := f.svc.ApplyPolicy(context.Background(), &ticket, &policy)

		require.NoError(t, err)
		assert.True(t, record.FirstResponseDueAt.Equal(time.Date(2024, time.March, 11, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("active default schedule", func(t *testing.T) {
		f := newFixture(t)
		fallback := officeHours("fallback")
		fallback.IsDefault = true
		f.schedules.Schedules["fallback"] = fallback
		f.clock.now = friday
		ticket := openTicket("t1", domain.TicketPriorityMedium)

		record, err := f.svc.ApplyPolicy(context.Background(), &ticket, &policy)

		require.NoError(t, err)
		assert.True(t, record.FirstResponseDueAt.Equal(time.Date(2024, time.March, 11, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("no schedule at all", func(t *testing.T) {
		f := newFixture(t)
		f.clock.now = friday
		ticket := openTicket("t1", domain.TicketPriorityMedium)

		record, err := f.svc.ApplyPolicy(context.Background(), &ticket, &policy)

		require.NoError(t, err)
		assert.True(t, record.FirstResponseDueAt.Equal(friday.Add(120*time.Minute)))
	})
}

func TestApplyPolicy_ZeroTargetIsUntracked(t *testing.T) {
	f := newFixture(t)
	policy := domain.SlaPolicy{ID: "p", IsActive: true,
		Targets: []domain.SlaTarget{{Priority: domain.TicketPriorityHigh, FirstResponseMins: minutes(0), ResolutionMins: minutes(60)}}}
	ticket := openTicket("t1", domain.TicketPriorityHigh)

	record, err := f.svc.ApplyPolicy(context.Background(), &ticket, &policy)

	require.NoError(t, err)
	assert.Nil(t, record.FirstResponseDueAt)
	assert.NotNil(t, record.ResolutionDueAt)
}

func TestRecalculate_UnknownPolicy(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Recalculate(context.Background(), strPtr("missing"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPolicyNotFound))
}

func TestRecalculate_ReappliesStoredPolicy(t *testing.T) {
	f := newFixture(t)
	policy := standardPolicy()
	f.policies.Policies = []domain.SlaPolicy{policy}
	ctx := context.Background()

	withSla := []domain.Ticket{openTicket("a", domain.TicketPriorityUrgent), openTicket("b", domain.TicketPriorityHigh)}
	for i := range withSla {
		_, err := f.svc.ApplyPolicy(ctx, &withSla[i], &policy)
		require.NoError(t, err)
	}
	withoutSla := openTicket("c", domain.TicketPriorityLow)
	open := append(append([]domain.Ticket{}, withSla...), withoutSla)
	f.tickets.ListOpenFunc = func(_ context.Context, policyID *string) ([]domain.Ticket, error) {
		return open, nil
	}

	f.clock.Advance(time.Hour)
	report, err := f.svc.Recalculate(ctx, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Recalculated)
	assert.Equal(t, 0, report.Failed)
	stored, _ := f.store.Snapshot("a")
	assert.True(t, stored.FirstResponseDueAt.Equal(f.clock.Now().Add(30*time.Minute)))
}

func TestRecalculate_FilterByPolicy(t *testing.T) {
	f := newFixture(t)
	standard := standardPolicy()
	other := standardPolicy()
	other.ID = "policy-other"
	f.policies.Policies = []domain.SlaPolicy{standard, other}
	ctx := context.Background()

	a := openTicket("a", domain.TicketPriorityUrgent)
	b := openTicket("b", domain.TicketPriorityUrgent)
	_, err := f.svc.ApplyPolicy(ctx, &a, &standard)
	require.NoError(t, err)
	_, err = f.svc.ApplyPolicy(ctx, &b, &other)
	require.NoError(t, err)

	var requested *string
	f.tickets.ListOpenFunc = func(_ context.Context, policyID *string) ([]domain.Ticket, error) {
		requested = policyID
		return []domain.Ticket{a, b}, nil
	}

	report, err := f.svc.Recalculate(ctx, strPtr(other.ID))

	require.NoError(t, err)
	require.NotNil(t, requested)
	assert.Equal(t, other.ID, *requested)
	assert.Equal(t, 1, report.Recalculated)
}
