package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleAgent    StaffRole = "AGENT"
	StaffRoleTeamLead StaffRole = "TEAM_LEAD"
	StaffRoleAdmin    StaffRole = "ADMIN"
)

// Valid reports whether r is a known role.
func (r StaffRole) Valid() bool {
	switch r {
	case StaffRoleAgent, StaffRoleTeamLead, StaffRoleAdmin:
		return true
	}
	return false
}

// StaffMember is an agent or administrator. Staff are the actors behind
// manual status changes and the usual escalation recipients.
type StaffMember struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         StaffRole
	DepartmentID *string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Ref returns the actor reference for the staff member.
func (s *StaffMember) Ref() ActorRef {
	return StaffRef(s.ID)
}
