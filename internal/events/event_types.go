package events

import (
	"time"

	"github.com/spec-kit/account-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered  EventType = "user_registered"
	EventUserBlocked     EventType = "user_blocked"
	EventUserRoleChanged EventType = "user_role_changed"
)

// Actor encapsulates who triggered an event. ActorID is zero for
// unauthenticated flows such as registration.
type Actor struct {
	ActorID int64       `json:"actor_id,omitempty"`
	Role    domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    int64       `json:"user_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// UserBlockedPayload payload.
type UserBlockedPayload struct {
	SelfBlocked bool `json:"self_blocked"`
}

// UserRoleChangedPayload payload.
type UserRoleChangedPayload struct {
	NewRole domain.Role `json:"new_role"`
}
