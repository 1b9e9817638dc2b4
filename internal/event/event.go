package event

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeIdentityRegistered   Type = "identity.registered"
	TypeIdentityLoggedIn     Type = "identity.logged_in"
	TypeIdentityUpdated      Type = "identity.updated"
	TypeIdentityDeactivated  Type = "identity.deactivated"
	TypeIdentityDeleted      Type = "identity.deleted"
	TypePasswordChanged      Type = "password.changed"
	TypePasswordResetRequest Type = "password.reset_requested"
	TypePasswordResetFailed  Type = "password.reset_delivery_failed"
	TypePasswordReset        Type = "password.reset"
)

type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	SubjectID string            `json:"subject_id"`
	ActorID   string            `json:"actor_id,omitempty"` // Who triggered the event
	Attrs     map[string]string `json:"attrs,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// New builds an event about subjectID. actorID is empty for self-service
// actions.
func New(eventType Type, subjectID string, actorID string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		ActorID:   actorID,
		Timestamp: at.UTC(),
	}
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
