package domain

import "time"

// Team is an assignable group of staff inside a department. Tickets and
// escalation rules reference it through a TEAM actor.
type Team struct {
	ID           string
	DepartmentID string
	Name         string
	Description  string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Ref returns the actor reference used for assignment.
func (t *Team) Ref() ActorRef {
	return ActorRef{Kind: ActorKindTeam, ID: t.ID}
}
