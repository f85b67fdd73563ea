package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a session-scoped notification.
type EventType string

// Notification event types broadcast to a session's audience.
const (
	EventPlayerJoined     EventType = "player_joined"
	EventMoveResult       EventType = "move_result"
	EventPlayerCompleted  EventType = "player_completed"
	EventSessionSettled   EventType = "session_settled"
	EventSessionCancelled EventType = "session_cancelled"
)

// Event is a best-effort notification. Delivery is fire-and-forget and never
// blocks core logic.
type Event struct {
	Type      EventType
	SessionID uuid.UUID
	UserID    string
	Payload   any
	TS        time.Time
}
