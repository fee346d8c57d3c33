package domain

import "context"

// EventType classifies an entry of the game chronicle.
type EventType string

const (
	EventAction   EventType = "action"
	EventDialogue EventType = "dialogue"
	EventDecision EventType = "decision"
	EventCombat   EventType = "combat"
	EventOther    EventType = "other"
)

// GameEvent is a notable moment of play kept for later recall.
type GameEvent struct {
	ID        EventID   `json:"id"`
	SessionID SessionID `json:"session_id"`
	At        Timestamp `json:"timestamp"`
	Type      EventType `json:"type"`
	Content   string    `json:"content"`
	Context   string    `json:"context,omitempty"`
}

// ChronicleStore persists game events.
type ChronicleStore interface {
	AppendEvent(ctx context.Context, ev *GameEvent) error
	ListEvents(ctx context.Context, sessionID SessionID, limit int) ([]*GameEvent, error)
}
