package domain

import "time"

// EscalationTriggerType positions the trigger window relative to a due date.
type EscalationTriggerType string

const (
	TriggerBefore EscalationTriggerType = "before"
	TriggerAfter  EscalationTriggerType = "after"
)

// EscalationAction is what a rule does once triggered.
type EscalationAction string

const (
	ActionNotify         EscalationAction = "notify"
	ActionReassign       EscalationAction = "reassign"
	ActionChangePriority EscalationAction = "change_priority"
	ActionCustom         EscalationAction = "custom"
)

// EscalationActionConfig is the operator supplied configuration blob. Which
// fields are read depends on the action.
type EscalationActionConfig struct {
	NotifyUsers  []string       `json:"notify_users,omitempty"`
	AssignToID   string         `json:"assign_to_id,omitempty"`
	AssignToType ActorKind      `json:"assign_to_type,omitempty"`
	Priority     TicketPriority `json:"priority,omitempty"`
	Handler      string         `json:"handler,omitempty"`
}

// EscalationRule fires an action some minutes before or after a due date.
type EscalationRule struct {
	ID            string
	PolicyID      string
	BreachType    SlaBreachType
	TriggerType   EscalationTriggerType
	MinutesBefore int
	Action        EscalationAction
	ActionConfig  EscalationActionConfig
	IsActive      bool
	SortOrder     int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
