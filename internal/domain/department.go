package domain

import (
	"slices"
	"time"
)

// Department groups staff and teams. SLA policies match tickets on
// DepartmentID, so an inactive department stops taking new tickets and
// teams but keeps its history and policy conditions.
type Department struct {
	ID          string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AcceptsWork reports whether tickets and teams may be filed under d.
func (d *Department) AcceptsWork() bool {
	return d != nil && d.IsActive
}

// MatchesDepartment reports whether cond admits a ticket filed under
// departmentID. An empty department list admits every ticket.
func (cond SlaConditions) MatchesDepartment(departmentID *string) bool {
	if len(cond.DepartmentIDs) == 0 {
		return true
	}
	return departmentID != nil && slices.Contains(cond.DepartmentIDs, *departmentID)
}
