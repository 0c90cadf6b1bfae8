package domain

import "time"

// SlaBreachType names the milestone an SLA due date tracks.
type SlaBreachType string

const (
	BreachFirstResponse SlaBreachType = "first_response"
	BreachNextResponse  SlaBreachType = "next_response"
	BreachResolution    SlaBreachType = "resolution"
)

// BreachTypes lists milestones in evaluation order.
func BreachTypes() []SlaBreachType {
	return []SlaBreachType{BreachFirstResponse, BreachNextResponse, BreachResolution}
}

// Valid reports whether t is a known milestone.
func (t SlaBreachType) Valid() bool {
	switch t {
	case BreachFirstResponse, BreachNextResponse, BreachResolution:
		return true
	}
	return false
}

// SlaConditions restricts which tickets a policy applies to. An empty list
// matches any value.
type SlaConditions struct {
	DepartmentIDs []string         `json:"department_ids,omitempty"`
	CategoryIDs   []string         `json:"category_ids,omitempty"`
	Priorities    []TicketPriority `json:"priorities,omitempty"`
	Sources       []TicketSource   `json:"sources,omitempty"`
}

// IsEmpty reports whether no condition list is declared.
func (c SlaConditions) IsEmpty() bool {
	return len(c.DepartmentIDs) == 0 && len(c.CategoryIDs) == 0 && len(c.Priorities) == 0 && len(c.Sources) == 0
}

// SlaTarget holds per-priority target minutes. A nil target means the
// milestone is not tracked for that priority.
type SlaTarget struct {
	ID                string
	PolicyID          string
	Priority          TicketPriority
	FirstResponseMins *int
	NextResponseMins  *int
	ResolutionMins    *int
}

// Minutes returns the target for a milestone.
func (t SlaTarget) Minutes(kind SlaBreachType) *int {
	switch kind {
	case BreachFirstResponse:
		return t.FirstResponseMins
	case BreachNextResponse:
		return t.NextResponseMins
	case BreachResolution:
		return t.ResolutionMins
	}
	return nil
}

// SlaPolicy groups targets and escalation rules under matching conditions.
type SlaPolicy struct {
	ID              string
	Name            string
	Description     string
	ScheduleID      *string
	Conditions      SlaConditions
	IsActive        bool
	SortOrder       int
	Targets         []SlaTarget
	EscalationRules []EscalationRule
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TargetFor returns the target row for a priority, or nil.
func (p *SlaPolicy) TargetFor(priority TicketPriority) *SlaTarget {
	for i := range p.Targets {
		if p.Targets[i].Priority == priority {
			return &p.Targets[i]
		}
	}
	return nil
}

// TicketSla is the per-ticket SLA record.
type TicketSla struct {
	ID                   string
	TicketID             string
	PolicyID             string
	PriorityAtAssignment TicketPriority

	FirstResponseDueAt *time.Time
	NextResponseDueAt  *time.Time
	ResolutionDueAt    *time.Time

	FirstRespondedAt *time.Time
	ResolvedAt       *time.Time

	FirstResponseBreached bool
	NextResponseBreached  bool
	ResolutionBreached    bool

	// PausedMinutes accumulates hold time. Due dates are not shifted by it.
	PausedMinutes int
	PausedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPaused reports whether a pause is in progress.
func (s *TicketSla) IsPaused() bool {
	return s.PausedAt != nil
}

// DueAt returns the due date for a milestone.
func (s *TicketSla) DueAt(kind SlaBreachType) *time.Time {
	switch kind {
	case BreachFirstResponse:
		return s.FirstResponseDueAt
	case BreachNextResponse:
		return s.NextResponseDueAt
	case BreachResolution:
		return s.ResolutionDueAt
	}
	return nil
}

// Achieved reports whether the milestone was met. Next response is recurring
// and never counts as achieved.
func (s *TicketSla) Achieved(kind SlaBreachType) bool {
	switch kind {
	case BreachFirstResponse:
		return s.FirstRespondedAt != nil
	case BreachResolution:
		return s.ResolvedAt != nil
	}
	return false
}

// Breached returns the breach flag for a milestone.
func (s *TicketSla) Breached(kind SlaBreachType) bool {
	switch kind {
	case BreachFirstResponse:
		return s.FirstResponseBreached
	case BreachNextResponse:
		return s.NextResponseBreached
	case BreachResolution:
		return s.ResolutionBreached
	}
	return false
}

// SetBreached raises the flag for a milestone. Flags are never lowered.
func (s *TicketSla) SetBreached(kind SlaBreachType) {
	switch kind {
	case BreachFirstResponse:
		s.FirstResponseBreached = true
	case BreachNextResponse:
		s.NextResponseBreached = true
	case BreachResolution:
		s.ResolutionBreached = true
	}
}

// IsOverdue reports whether the milestone is past due, unflagged and unmet.
func (s *TicketSla) IsOverdue(kind SlaBreachType, now time.Time) bool {
	due := s.DueAt(kind)
	if due == nil || s.Breached(kind) || s.Achieved(kind) {
		return false
	}
	return due.Before(now)
}

// SlaCandidate pairs an SLA record with its ticket for scans.
type SlaCandidate struct {
	Ticket Ticket
	Sla    TicketSla
}
