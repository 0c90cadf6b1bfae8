package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus     TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee   TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypePriority   TicketChangeType = "PRIORITY_CHANGE"
	ChangeTypeSlaApplied TicketChangeType = "SLA_APPLIED"
	ChangeTypeEscalated  TicketChangeType = "ESCALATED"
	ChangeTypeSlaCleared TicketChangeType = "SLA_CLEARED"
)

// Valid reports whether t is a known change type.
func (t TicketChangeType) Valid() bool {
	switch t {
	case ChangeTypeStatus, ChangeTypeAssignee, ChangeTypePriority, ChangeTypeSlaApplied, ChangeTypeEscalated, ChangeTypeSlaCleared:
		return true
	}
	return false
}

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID         string
	TicketID   string
	ChangedBy  ActorRef
	ChangeType TicketChangeType
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
