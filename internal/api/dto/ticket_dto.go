package dto

import (
	"time"

	"github.com/spec-kit/service-desk/internal/domain"
)

// CreateTicketRequest payload. Requester defaults to the calling staff member.
type CreateTicketRequest struct {
	Requester    *domain.ActorRef      `json:"requester"`
	DepartmentID *string               `json:"department_id"`
	CategoryID   *string               `json:"category_id"`
	Title        string                `json:"title"`
	Priority     domain.TicketPriority `json:"priority"`
	Source       domain.TicketSource   `json:"source"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload. An empty body self-assigns.
type AssignTicketRequest struct {
	Assignee *domain.ActorRef `json:"assignee"`
}

// TicketResponse representation.
type TicketResponse struct {
	ID           string                `json:"id"`
	ExternalKey  string                `json:"external_key"`
	Requester    domain.ActorRef       `json:"requester"`
	DepartmentID *string               `json:"department_id"`
	CategoryID   *string               `json:"category_id"`
	Assignee     *domain.ActorRef      `json:"assignee"`
	SlaPolicyID  *string               `json:"sla_policy_id"`
	Title        string                `json:"title"`
	Status       domain.TicketStatus   `json:"status"`
	Priority     domain.TicketPriority `json:"priority"`
	Source       domain.TicketSource   `json:"source"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	ClosedAt     *time.Time            `json:"closed_at"`
}

// SlaMilestone is one tracked due date and its state.
type SlaMilestone struct {
	Kind     domain.SlaBreachType `json:"kind"`
	DueAt    *time.Time           `json:"due_at"`
	Achieved bool                 `json:"achieved"`
	Breached bool                 `json:"breached"`
	Overdue  bool                 `json:"overdue"`
}

// TicketSlaResponse is the SLA view of a ticket. Tracked is false when no
// policy applies.
type TicketSlaResponse struct {
	TicketID             string                `json:"ticket_id"`
	Tracked              bool                  `json:"tracked"`
	PolicyID             string                `json:"policy_id,omitempty"`
	PriorityAtAssignment domain.TicketPriority `json:"priority_at_assignment,omitempty"`
	Milestones           []SlaMilestone        `json:"milestones,omitempty"`
	FirstRespondedAt     *time.Time            `json:"first_responded_at,omitempty"`
	ResolvedAt           *time.Time            `json:"resolved_at,omitempty"`
	Paused               bool                  `json:"paused"`
	PausedAt             *time.Time            `json:"paused_at,omitempty"`
	PausedMinutes        int                   `json:"paused_minutes"`
}

// HistoryResponse is one audit entry.
type HistoryResponse struct {
	ID         string                  `json:"id"`
	ChangedBy  domain.ActorRef         `json:"changed_by"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}
