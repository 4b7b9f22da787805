package orchestrator

import "github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"

// EventType tags chain progress events.
type EventType string

const (
	EventTurnStarted   EventType = "turn.started"
	EventTurnDelta     EventType = "turn.delta"
	EventTurnCompleted EventType = "turn.completed"
	EventChainFinished EventType = "chain.finished"
)

// Event reports chain progress. Index is the turn's position in the merged
// conversation; for chain.finished it is the final length.
type Event struct {
	Type      EventType         `json:"type"`
	PersonaID string            `json:"persona_id"`
	Index     int               `json:"index"`
	Turn      conversation.Turn `json:"turn"`
	Error     string            `json:"error,omitempty"`
}

// Sink receives events synchronously from the chain goroutine.
type Sink func(Event)
