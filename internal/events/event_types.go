package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/service-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"

	EventSlaApplied          EventType = "sla_applied"
	EventSlaBreached         EventType = "sla_breached"
	EventSlaNearBreach       EventType = "sla_near_breach"
	EventEscalationTriggered EventType = "escalation_triggered"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	TicketID  string          `json:"ticket_id"`
	Actor     domain.ActorRef `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload"`
}

// New stamps an event with a fresh id.
func New(eventType EventType, ticketID string, actor domain.ActorRef, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     actor,
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	DepartmentID *string               `json:"department_id,omitempty"`
	CategoryID   *string               `json:"category_id,omitempty"`
	Priority     domain.TicketPriority `json:"priority"`
	Source       domain.TicketSource   `json:"source"`
	Title        string                `json:"title"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Previous *domain.ActorRef `json:"previous,omitempty"`
	Assignee *domain.ActorRef `json:"assignee,omitempty"`
}

// SlaAppliedPayload carries the due dates computed for a ticket.
type SlaAppliedPayload struct {
	SlaID              string                `json:"sla_id"`
	PolicyID           string                `json:"policy_id"`
	Priority           domain.TicketPriority `json:"priority"`
	ScheduleID         *string               `json:"schedule_id,omitempty"`
	FirstResponseDueAt *time.Time            `json:"first_response_due_at,omitempty"`
	NextResponseDueAt  *time.Time            `json:"next_response_due_at,omitempty"`
	ResolutionDueAt    *time.Time            `json:"resolution_due_at,omitempty"`
}

// SlaBreachedPayload is emitted once per milestone when its flag flips.
type SlaBreachedPayload struct {
	SlaID    string               `json:"sla_id"`
	PolicyID string               `json:"policy_id"`
	Kind     domain.SlaBreachType `json:"kind"`
	DueAt    time.Time            `json:"due_at"`
	Assignee *domain.ActorRef     `json:"assignee,omitempty"`
}

// SlaNearBreachPayload is emitted on every scan that finds a milestone inside
// the lead window.
type SlaNearBreachPayload struct {
	SlaID            string               `json:"sla_id"`
	PolicyID         string               `json:"policy_id"`
	Kind             domain.SlaBreachType `json:"kind"`
	DueAt            time.Time            `json:"due_at"`
	MinutesRemaining int                  `json:"minutes_remaining"`
	Assignee         *domain.ActorRef     `json:"assignee,omitempty"`
}

// EscalationTriggeredPayload describes the rule that fired.
type EscalationTriggeredPayload struct {
	RuleID      string                       `json:"rule_id"`
	PolicyID    string                       `json:"policy_id"`
	BreachType  domain.SlaBreachType         `json:"breach_type"`
	TriggerType domain.EscalationTriggerType `json:"trigger_type"`
	Action      domain.EscalationAction      `json:"action"`
	Recipients  []domain.ActorRef            `json:"recipients,omitempty"`
}
