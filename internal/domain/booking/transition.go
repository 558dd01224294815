package booking

import (
	"time"

	"github.com/google/uuid"
)

// Transition is one audited status change.
type Transition struct {
	ID        uuid.UUID
	BookingID uuid.UUID
	From      Status
	To        Status
	ActorID   uuid.UUID
	ActorRole string
	Reason    string
	At        time.Time
}

// By stamps the actor and reason onto a transition produced by the aggregate.
func (t Transition) By(actorID uuid.UUID, role, reason string) Transition {
	t.ID = uuid.New()
	t.ActorID = actorID
	t.ActorRole = role
	t.Reason = reason
	return t
}
