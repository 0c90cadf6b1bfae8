package domain

import "fmt"

// ActorKind tags what an ActorRef points at.
type ActorKind string

const (
	ActorKindUser   ActorKind = "USER"
	ActorKindStaff  ActorKind = "STAFF"
	ActorKindTeam   ActorKind = "TEAM"
	ActorKindSystem ActorKind = "SYSTEM"
)

// ActorRef is an opaque reference to whoever owns, performs or receives
// something. The SLA engine only passes it along.
type ActorRef struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id"`
}

// SystemActor is used for changes made by scheduled jobs.
var SystemActor = ActorRef{Kind: ActorKindSystem, ID: "sla-engine"}

// StaffRef builds a staff reference.
func StaffRef(id string) ActorRef {
	return ActorRef{Kind: ActorKindStaff, ID: id}
}

func (a ActorRef) String() string {
	return fmt.Sprintf("%s:%s", a.Kind, a.ID)
}

// IsZero reports whether the reference is unset.
func (a ActorRef) IsZero() bool {
	return a.Kind == "" && a.ID == ""
}
