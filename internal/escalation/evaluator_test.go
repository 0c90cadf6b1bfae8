package escalation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/service-desk/internal/domain"
	"github.com/spec-kit/service-desk/internal/events"
	"github.com/spec-kit/service-desk/internal/repository/repotest"
)

var baseNow = time.Date(2024, time.March, 6, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]domain.ActorRef
	err   error
}

func (n *recordingNotifier) NotifyEscalation(_ context.Context, _ *domain.EscalationRule, _ *domain.Ticket, recipients []domain.ActorRef) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recipients)
	return n.err
}

type capturedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturedEvents) handle(_ context.Context, e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturedEvents) ofType(t events.EventType) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	evaluator *Evaluator
	tickets   *repotest.MockTicketRepository
	history   *repotest.HistoryRecorder
	policies  *repotest.MockSlaPolicyRepository
	store     *repotest.TicketSlaStore
	notifier  *recordingNotifier
	registry  *Registry
	captured  *capturedEvents
	now       time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{
		tickets:  &repotest.MockTicketRepository{},
		history:  &repotest.HistoryRecorder{},
		policies: &repotest.MockSlaPolicyRepository{},
		store:    repotest.NewTicketSlaStore(),
		notifier: &recordingNotifier{},
		registry: NewRegistry(),
		captured: &capturedEvents{},
		now:      baseNow,
	}
	dispatcher := events.NewInMemoryDispatcher(logger)
	dispatcher.SubscribeAll(h.captured.handle)
	h.evaluator = NewEvaluator(Dependencies{
		TicketRepo:  h.tickets,
		HistoryRepo: h.history,
		PolicyRepo:  h.policies,
		SlaRepo:     h.store,
		Notifier:    h.notifier,
		Registry:    h.registry,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Now:         func() time.Time { return h.now },
		Concurrency: 4,
	})
	return h
}

func at(offset time.Duration) *time.Time {
	v := baseNow.Add(offset)
	return &v
}

func TestShouldTrigger_BeforeWindow(t *testing.T) {
	due := baseNow
	sla := &domain.TicketSla{FirstResponseDueAt: &due}
	rule := &domain.EscalationRule{BreachType: domain.BreachFirstResponse, TriggerType: domain.TriggerBefore, MinutesBefore: 30}

	assert.True(t, ShouldTrigger(rule, sla, due.Add(-30*time.Minute)), "window opens at D-30")
	assert.True(t, ShouldTrigger(rule, sla, due.Add(-time.Second)))
	assert.False(t, ShouldTrigger(rule, sla, due), "window closes at D")
	assert.False(t, ShouldTrigger(rule, sla, due.Add(-31*time.Minute)))
	assert.False(t, ShouldTrigger(rule, sla, due.Add(time.Hour)))
}

func TestShouldTrigger_AfterIsOpenEnded(t *testing.T) {
	due := baseNow
	sla := &domain.TicketSla{ResolutionDueAt: &due}
	rule := &domain.EscalationRule{BreachType: domain.BreachResolution, TriggerType: domain.TriggerAfter, MinutesBefore: 15}

	assert.False(t, ShouldTrigger(rule, sla, due.Add(14*time.Minute)))
	assert.True(t, ShouldTrigger(rule, sla, due.Add(15*time.Minute)))
	assert.True(t, ShouldTrigger(rule, sla, due.Add(72*time.Hour)))
}

func TestShouldTrigger_NeverTriggers(t *testing.T) {
	due := baseNow
	responded := baseNow.Add(-time.Hour)

	cases := []struct {
		name string
		rule domain.EscalationRule
		sla  domain.TicketSla
	}{
		{"missing due date",
			domain.EscalationRule{BreachType: domain.BreachResolution, TriggerType: domain.TriggerAfter},
			domain.TicketSla{FirstResponseDueAt: &due}},
		{"first response achieved",
			domain.EscalationRule{BreachType: domain.BreachFirstResponse, TriggerType: domain.TriggerAfter},
			domain.TicketSla{FirstResponseDueAt: &due, FirstRespondedAt: &responded}},
		{"resolution achieved",
			domain.EscalationRule{BreachType: domain.BreachResolution, TriggerType: domain.TriggerAfter},
			domain.TicketSla{ResolutionDueAt: &due, ResolvedAt: &responded}},
		{"unknown trigger type",
			domain.EscalationRule{BreachType: domain.BreachResolution, TriggerType: "during"},
			domain.TicketSla{ResolutionDueAt: &due}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, ShouldTrigger(&tc.rule, &tc.sla, due.Add(time.Hour)))
		})
	}
}

func TestShouldTrigger_NextResponseHasNoAchievedState(t *testing.T) {
	due := baseNow
	responded := baseNow.Add(-time.Hour)
	sla := &domain.TicketSla{NextResponseDueAt: &due, FirstRespondedAt: &responded}
	rule := &domain.EscalationRule{BreachType: domain.BreachNextResponse, TriggerType: domain.TriggerAfter}

	assert.True(t, ShouldTrigger(rule, sla, due))
}

func TestHandle_NotifyDeduplicatesRecipients(t *testing.T) {
	h := newHarness(t)
	rule := &domain.EscalationRule{ID: "r1", Action: domain.ActionNotify,
		ActionConfig: domain.EscalationActionConfig{NotifyUsers: []string{"lead", "agent-7", "lead"}}}
	ticket := &domain.Ticket{ID: "t1", Assignee: &domain.ActorRef{Kind: domain.ActorKindStaff, ID: "agent-7"}}

	require.NoError(t, h.evaluator.Handle(context.Background(), rule, ticket))

	require.Len(t, h.notifier.calls, 1)
	assert.Equal(t, []domain.ActorRef{domain.StaffRef("lead"), domain.StaffRef("agent-7")}, h.notifier.calls[0])
	triggered := h.captured.ofType(events.EventEscalationTriggered)
	require.Len(t, triggered, 1)
	assert.Len(t, triggered[0].Payload.(events.EscalationTriggeredPayload).Recipients, 2)

	escalated := h.history.OfType(domain.ChangeTypeEscalated)
	require.Len(t, escalated, 1)
	assert.Equal(t, domain.SystemActor, escalated[0].ChangedBy)
	assert.Equal(t, "r1", escalated[0].NewValue["rule_id"])
	assert.Equal(t, domain.ActionNotify, escalated[0].NewValue["action"])
	assert.Equal(t, []string{"STAFF:lead", "STAFF:agent-7"}, escalated[0].NewValue["recipients"])
}

func TestHandle_NotifyIncludesAssignee(t *testing.T) {
	rule := &domain.EscalationRule{ActionConfig: domain.EscalationActionConfig{NotifyUsers: []string{"lead"}}}
	ticket := &domain.Ticket{Assignee: &domain.ActorRef{Kind: domain.ActorKindTeam, ID: "tier-2"}}

	assert.Equal(t, []domain.ActorRef{domain.StaffRef("lead"), {Kind: domain.ActorKindTeam, ID: "tier-2"}}, Recipients(rule, ticket))
}

func TestRecipients_DedupsOnKindAndID(t *testing.T) {
	rule := &domain.EscalationRule{ActionConfig: domain.EscalationActionConfig{NotifyUsers: []string{"tier-2"}}}

	team := &domain.Ticket{Assignee: &domain.ActorRef{Kind: domain.ActorKindTeam, ID: "tier-2"}}
	assert.Equal(t, []domain.ActorRef{domain.StaffRef("tier-2"), {Kind: domain.ActorKindTeam, ID: "tier-2"}}, Recipients(rule, team),
		"a team sharing a staff id is a different recipient")

	staff := &domain.Ticket{Assignee: &domain.ActorRef{Kind: domain.ActorKindStaff, ID: "tier-2"}}
	assert.Equal(t, []domain.ActorRef{domain.StaffRef("tier-2")}, Recipients(rule, staff))
}

func TestHandle_NotifyFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("smtp down")
	rule := &domain.EscalationRule{ID: "r1", Action: domain.ActionNotify,
		ActionConfig: domain.EscalationActionConfig{NotifyUsers: []string{"lead"}}}

	require.NoError(t, h.evaluator.Handle(context.Background(), rule, &domain.Ticket{ID: "t1"}))
	assert.Len(t, h.captured.ofType(events.EventEscalationTriggered), 1)
}

func TestHandle_ReassignWithoutTargetIsNoop(t *testing.T) {
	h := newHarness(t)
	h.tickets.UpdateAssigneeFunc = func(context.Context, string, *domain.ActorRef) error {
		t.Fatal("unexpected reassignment")
		return nil
	}
	rule := &domain.EscalationRule{ID: "r1", Action: domain.ActionReassign}

	require.NoError(t, h.evaluator.Handle(context.Background(), rule, &domain.Ticket{ID: "t1"}))
	assert.Len(t, h.captured.ofType(events.EventEscalationTriggered), 1)
	require.Len(t, h.history.Entries, 1)
	assert.Equal(t, domain.ChangeTypeEscalated, h.history.Entries[0].ChangeType)
}

func TestHandle_Reassign(t *testing.T) {
	h := newHarness(t)
	var assigned *domain.ActorRef
	h.tickets.UpdateAssigneeFunc = func(_ context.Context, _ string, assignee *domain.ActorRef) error {
		assigned = assignee
		return nil
	}
	rule := &domain.EscalationRule{ID: "r1", Action: domain.ActionReassign,
		ActionConfig: domain.EscalationActionConfig{AssignToID: "lead-1"}}
	ticket := &domain.Ticket{ID: "t1", Assignee: &domain.ActorRef{Kind: domain.ActorKindStaff, ID: "agent-1"}}

	require.NoError(t, h.evaluator.Handle(context.Background(), rule, ticket))

	require.NotNil(t, assigned)
	assert.Equal(t, domain.StaffRef("lead-1"), *assigned)
	assert.Equal(t, domain.StaffRef("lead-1"), *ticket.Assignee)
	require.Len(t, h.history.Entries, 2)
	assert.Equal(t, domain.ChangeTypeAssignee, h.history.Entries[0].ChangeType)
	assert.Equal(t, domain.SystemActor, h.history.Entries[0].ChangedBy)
	assert.Equal(t, domain.ChangeTypeEscalated, h.history.Entries[1].ChangeType)
	assert.Len(t, h.captured.ofType(events.EventTicketAssigned), 1)
}

func TestHandle_ChangePriority(t *testing.T) {
	h := newHarness(t)
	var updated domain.TicketPriority
	h.tickets.UpdatePriorityFunc = func(_ context.Context, _ string, p domain.TicketPriority) error {
		updated = p
		return nil
	}
	rule := &domain.EscalationRule{ID: "r1", Action: domain.ActionChangePriority,
		ActionConfig: domain.EscalationActionConfig{Priority: domain.TicketPriorityUrgent}}
	ticket := &domain.Ticket{ID: "t1", Priority: domain.TicketPriorityMedium}

	require.NoError(t, h.evaluator.Handle(context.Background(), rule, ticket))

	assert.Equal(t, domain.TicketPriorityUrgent, updated)
	assert.Equal(t, domain.TicketPriorityUrgent, ticket.Priority)
	changed := h.captured.ofType(events.EventTicketPriorityChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, domain.TicketPriorityMedium, changed[0].Payload.(events.TicketPriorityChangedPayload).OldPriority)
}

func TestHandle_ChangePriorityPersistenceFailure(t *testing.T) {
	h := newHarness(t)
	h.tickets.UpdatePriorityFunc = func(context.Context, string, domain.TicketPriority) error {
		return errors.New("connection refused")
	}
	rule := &domain.EscalationRule{ID: "r1", Action: domain.ActionChangePriority,
		ActionConfig: domain.EscalationActionConfig{Priority: domain.TicketPriorityHigh}}

	err := h.evaluator.Handle(context.Background(), rule, &domain.Ticket{ID: "t1"})

	require.Error(t, err)
	assert.Empty(t, h.captured.ofType(events.EventEscalationTriggered))
}

func TestHandle_Custom(t *testing.T) {
	h := newHarness(t)
	var handled []string
	h.registry.Register("page-on-call", HandlerFunc(func(_ context.Context, rule *domain.EscalationRule, ticket *domain.Ticket) error {
		handled = append(handled, rule.ID+"/"+ticket.ID)
		return nil
	}))
	ctx := context.Background()

	registered := &domain.EscalationRule{ID: "r1", Action: domain.ActionCustom,
		ActionConfig: domain.EscalationActionConfig{Handler: "page-on-call"}}
	missing := &domain.EscalationRule{ID: "r2", Action: domain.ActionCustom,
		ActionConfig: domain.EscalationActionConfig{Handler: "not-registered"}}
	unset := &domain.EscalationRule{ID: "r3", Action: domain.ActionCustom}

	require.NoError(t, h.evaluator.Handle(ctx, registered, &domain.Ticket{ID: "t1"}))
	require.NoError(t, h.evaluator.Handle(ctx, missing, &domain.Ticket{ID: "t1"}))
	require.NoError(t, h.evaluator.Handle(ctx, unset, &domain.Ticket{ID: "t1"}))

	assert.Equal(t, []string{"r1/t1"}, handled)
	assert.Len(t, h.captured.ofType(events.EventEscalationTriggered), 3)
	assert.Equal(t, []string{"page-on-call"}, h.registry.Keys())
}

func TestHandle_BuiltinUnassign(t *testing.T) {
	h := newHarness(t)
	h.evaluator.RegisterBuiltins()
	var calls int
	h.tickets.UpdateAssigneeFunc = func(_ context.Context, _ string, assignee *domain.ActorRef) error {
		calls++
		assert.Nil(t, assignee)
		return nil
	}
	rule := &domain.EscalationRule{ID: "r1", Action: domain.ActionCustom,
		ActionConfig: domain.EscalationActionConfig{Handler: HandlerUnassign}}
	ticket := &domain.Ticket{ID: "t1", Assignee: &domain.ActorRef{Kind: domain.ActorKindStaff, ID: "agent-1"}}

	require.NoError(t, h.evaluator.Handle(context.Background(), rule, ticket))
	assert.Nil(t, ticket.Assignee)
	require.Len(t, h.history.OfType(domain.ChangeTypeAssignee), 1)
	assigned := h.captured.ofType(events.EventTicketAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, domain.StaffRef("agent-1"), *assigned[0].Payload.(events.TicketAssignedPayload).Previous)

	require.NoError(t, h.evaluator.Handle(context.Background(), rule, ticket))
	assert.Equal(t, 1, calls, "an unassigned ticket is left alone")
	assert.Len(t, h.history.OfType(domain.ChangeTypeEscalated), 2)
}

func TestRegisterBuiltins_KeepsExistingBinding(t *testing.T) {
	h := newHarness(t)
	var custom bool
	h.registry.Register(HandlerUnassign, HandlerFunc(func(context.Context, *domain.EscalationRule, *domain.Ticket) error {
		custom = true
		return nil
	}))
	h.evaluator.RegisterBuiltins()

	rule := &domain.EscalationRule{ID: "r1", Action: domain.ActionCustom,
		ActionConfig: domain.EscalationActionConfig{Handler: HandlerUnassign}}
	require.NoError(t, h.evaluator.Handle(context.Background(), rule, &domain.Ticket{ID: "t1"}))
	assert.True(t, custom)
	assert.Equal(t, []string{HandlerUnassign}, h.registry.Keys())
}

func TestProcessPendingEscalations(t *testing.T) {
	h := newHarness(t)
	h.policies.Policies = []domain.SlaPolicy{{
		ID:       "p1",
		IsActive: true,
		EscalationRules: []domain.EscalationRule{
			{ID: "warn", PolicyID: "p1", BreachType: domain.BreachFirstResponse, TriggerType: domain.TriggerBefore,
				MinutesBefore: 30, Action: domain.ActionNotify, IsActive: true, SortOrder: 1,
				ActionConfig: domain.EscalationActionConfig{NotifyUsers: []string{"lead"}}},
			{ID: "bump", PolicyID: "p1", BreachType: domain.BreachResolution, TriggerType: domain.TriggerAfter,
				Action: domain.ActionChangePriority, IsActive: true, SortOrder: 2,
				ActionConfig: domain.EscalationActionConfig{Priority: domain.TicketPriorityUrgent}},
			{ID: "disabled", PolicyID: "p1", BreachType: domain.BreachResolution, TriggerType: domain.TriggerAfter,
				Action: domain.ActionNotify, IsActive: false},
		},
	}}
	put := func(id string, status domain.TicketStatus, sla domain.TicketSla) {
		h.store.PutTicket(domain.Ticket{ID: id, Status: status, Priority: domain.TicketPriorityMedium})
		sla.TicketID = id
		sla.PolicyID = "p1"
		h.store.Put(sla)
	}
	put("warn-only", domain.TicketStatusOpen, domain.TicketSla{FirstResponseDueAt: at(10 * time.Minute)})
	put("both", domain.TicketStatusInProgress, domain.TicketSla{FirstResponseDueAt: at(20 * time.Minute), ResolutionDueAt: at(-time.Minute)})
	put("paused", domain.TicketStatusOnHold, domain.TicketSla{FirstResponseDueAt: at(10 * time.Minute), PausedAt: at(-time.Hour)})
	put("closed", domain.TicketStatusClosed, domain.TicketSla{ResolutionDueAt: at(-time.Hour)})
	put("failing", domain.TicketStatusOpen, domain.TicketSla{ResolutionDueAt: at(-time.Hour)})

	h.tickets.UpdatePriorityFunc = func(_ context.Context, ticketID string, _ domain.TicketPriority) error {
		if ticketID == "failing" {
			return errors.New("row locked")
		}
		return nil
	}

	report, err := h.evaluator.ProcessPendingEscalations(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 3, report.Triggered)
	assert.Equal(t, 1, report.Failed)

	byTicket := map[string][]string{}
	for _, e := range h.captured.ofType(events.EventEscalationTriggered) {
		byTicket[e.TicketID] = append(byTicket[e.TicketID], e.Payload.(events.EscalationTriggeredPayload).RuleID)
	}
	assert.Equal(t, []string{"warn"}, byTicket["warn-only"])
	assert.Equal(t, []string{"warn", "bump"}, byTicket["both"])
	assert.NotContains(t, byTicket, "paused")
	assert.NotContains(t, byTicket, "closed")
	assert.NotContains(t, byTicket, "failing")

	// After-rules are not deduplicated: the next scan fires them again.
	h.now = h.now.Add(time.Hour)
	report, err = h.evaluator.ProcessPendingEscalations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggered)
}
