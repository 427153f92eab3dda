package shared

import "strings"

const systemActorID = "system:parallel-distribution"

// Actor identifies who performs a workflow or posting action.
// The system actor can only be obtained through SystemActor.
type Actor struct {
	ID     string
	system bool
}

// User wraps a real user identity.
func User(id string) Actor {
	return Actor{ID: strings.TrimSpace(id)}
}

// SystemActor is the reserved actor used for postings derived from an approved source.
func SystemActor() Actor {
	return Actor{ID: systemActorID, system: true}
}

// IsSystem reports whether the actor is the reserved system actor.
func (a Actor) IsSystem() bool {
	return a.system
}

// IsZero reports whether no identity was supplied.
func (a Actor) IsZero() bool {
	return a.ID == "" && !a.system
}

// Is reports whether the actor is the given real user.
func (a Actor) Is(userID string) bool {
	return !a.system && a.ID != "" && a.ID == strings.TrimSpace(userID)
}

func (a Actor) String() string {
	return a.ID
}
