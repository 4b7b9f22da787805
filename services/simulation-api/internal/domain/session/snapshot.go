package session

import (
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
)

// ConversationSnapshot is a point-in-time copy of one persona conversation.
// Turns may end with a loading placeholder while the chain is running.
type ConversationSnapshot struct {
	Persona persona.Persona
	Record  testrun.PersonaConversation
	Running bool
	Turns   []conversation.Turn
}

// RunSnapshot is a point-in-time copy of a run and its conversations in run
// order.
type RunSnapshot struct {
	Run           testrun.TestRun
	Conversations []ConversationSnapshot
}

// Snapshot copies the run and every conversation.
func (s *Session) Snapshot() RunSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := RunSnapshot{Run: *s.run, Conversations: make([]ConversationSnapshot, 0, len(s.order))}
	for _, id := range s.order {
		out.Conversations = append(out.Conversations, s.snapshotLocked(s.personas[id]))
	}
	return out
}

// ConversationSnapshot copies one persona's conversation.
func (s *Session) ConversationSnapshot(personaID string) (ConversationSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.personas[personaID]
	if !ok {
		return ConversationSnapshot{}, ErrUnknownPersona
	}
	return s.snapshotLocked(st), nil
}

func (s *Session) snapshotLocked(st *personaState) ConversationSnapshot {
	return ConversationSnapshot{
		Persona: st.persona,
		Record:  *st.record,
		Running: st.running,
		Turns:   st.conv.Turns(),
	}
}
