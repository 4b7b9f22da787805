package session

import (
	"context"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/orchestrator"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
)

// The methods below address sessions by owner and run ID and return copies,
// for callers that should not hold on to a Session.

// CreateRun starts a run and returns its initial snapshot.
func (m *Manager) CreateRun(ctx context.Context, params StartParams) (*RunSnapshot, error) {
	s, err := m.StartRun(ctx, params)
	if err != nil {
		return nil, err
	}
	snap := s.Snapshot()
	return &snap, nil
}

// GetRun returns a snapshot of a run.
func (m *Manager) GetRun(ctx context.Context, ownerID, runID string) (*RunSnapshot, error) {
	s, err := m.Session(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	snap := s.Snapshot()
	return &snap, nil
}

// ListRuns returns the owner's recent runs as stored.
func (m *Manager) ListRuns(ctx context.Context, ownerID string, limit int) ([]*testrun.TestRun, error) {
	return m.deps.Runs.ListRuns(ctx, ownerID, limit)
}

// GetConversation returns a snapshot of one persona conversation.
func (m *Manager) GetConversation(ctx context.Context, ownerID, runID, personaID string) (*ConversationSnapshot, error) {
	s, err := m.Session(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	snap, err := s.ConversationSnapshot(personaID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// EditTurn edits a persona turn and returns the conversation as it resumes.
func (m *Manager) EditTurn(ctx context.Context, ownerID, runID, personaID string, turnIndex int, content string) (*ConversationSnapshot, error) {
	s, err := m.Session(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	if err := s.EditTurn(ctx, personaID, turnIndex, content); err != nil {
		return nil, err
	}
	snap, err := s.ConversationSnapshot(personaID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Regenerate restarts a persona conversation and returns it as it restarts.
func (m *Manager) Regenerate(ctx context.Context, ownerID, runID, personaID string) (*ConversationSnapshot, error) {
	s, err := m.Session(ctx, ownerID, runID)
	if err != nil {
		return nil, err
	}
	if err := s.Regenerate(ctx, personaID); err != nil {
		return nil, err
	}
	snap, err := s.ConversationSnapshot(personaID)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Subscribe streams the run's chain events until unsubscribe is called.
func (m *Manager) Subscribe(ctx context.Context, ownerID, runID string, buffer int) (<-chan orchestrator.Event, func(), error) {
	s, err := m.Session(ctx, ownerID, runID)
	if err != nil {
		return nil, nil, err
	}
	events, unsubscribe := s.Events().Subscribe(buffer)
	return events, unsubscribe, nil
}
