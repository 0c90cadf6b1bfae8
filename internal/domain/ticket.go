package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusPending    TicketStatus = "PENDING"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusOnHold     TicketStatus = "ON_HOLD"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// IsTerminal reports whether SLA scans should ignore tickets in this status.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusClosed
}

// TerminalStatuses lists statuses excluded from breach and escalation scans.
func TerminalStatuses() []TicketStatus {
	return []TicketStatus{TicketStatusResolved, TicketStatusClosed}
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:       {TicketStatusPending, TicketStatusInProgress, TicketStatusOnHold, TicketStatusResolved, TicketStatusClosed},
	TicketStatusPending:    {TicketStatusOpen, TicketStatusInProgress, TicketStatusOnHold, TicketStatusResolved, TicketStatusClosed},
	TicketStatusInProgress: {TicketStatusPending, TicketStatusOnHold, TicketStatusResolved, TicketStatusClosed},
	TicketStatusOnHold:     {TicketStatusOpen, TicketStatusPending, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed},
	TicketStatusResolved:   {TicketStatusOpen, TicketStatusClosed},
	TicketStatusClosed:     {TicketStatusOpen},
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// TicketSource records the channel a ticket arrived through.
type TicketSource string

const (
	TicketSourceWeb            TicketSource = "WEB"
	TicketSourceEmail          TicketSource = "EMAIL"
	TicketSourceAPI            TicketSource = "API"
	TicketSourceServiceRequest TicketSource = "SERVICE_REQUEST"
	TicketSourcePhone          TicketSource = "PHONE"
	TicketSourceChat           TicketSource = "CHAT"
)

// Valid reports whether s is a known source.
func (s TicketSource) Valid() bool {
	switch s {
	case TicketSourceWeb, TicketSourceEmail, TicketSourceAPI, TicketSourceServiceRequest, TicketSourcePhone, TicketSourceChat:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests. Only the attributes the SLA
// engine reads or mutates are modelled here.
type Ticket struct {
	ID           string
	ExternalKey  string
	Requester    ActorRef
	DepartmentID *string
	CategoryID   *string
	Assignee     *ActorRef
	SlaPolicyID  *string
	Title        string
	Status       TicketStatus
	Priority     TicketPriority
	Source       TicketSource
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ClosedAt     *time.Time
}
