// Package testrun models a simulation run: one chatbot configuration exercised
// by several personas, each with its own conversation.
package testrun

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/status"
)

// Limits on the turn budget of a run.
const (
	MinTurnsPerSide = 1
	MaxTurnsPerSide = 50
)

// TestRun is one simulation request.
type TestRun struct {
	ID          uint          `json:"-"`
	PublicID    string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	Config      RunConfig     `json:"config"`
	Status      status.Status `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// RunConfig is shared by every persona conversation of a run.
type RunConfig struct {
	MaxTurnsPerSide int      `json:"max_turns_per_side"`
	AssistantID     string   `json:"assistant_id"`
	FileIDs         []string `json:"file_ids,omitempty"`
	Context         string   `json:"context,omitempty"`
}

// TurnBudget is the maximum number of turns of each conversation.
func (c RunConfig) TurnBudget() int {
	return 2 * c.MaxTurnsPerSide
}

// Validation errors.
var (
	ErrTurnBudget        = errors.New("max_turns_per_side out of range")
	ErrAssistantRequired = errors.New("assistant_id is required")
	ErrNoPersonas        = errors.New("at least one persona is required")
	ErrDuplicatePersona  = errors.New("persona listed more than once")
	ErrRunNotFound       = errors.New("test run not found")
)

// Validate checks the run configuration.
func (c RunConfig) Validate() error {
	if c.MaxTurnsPerSide < MinTurnsPerSide || c.MaxTurnsPerSide > MaxTurnsPerSide {
		return ErrTurnBudget
	}
	if strings.TrimSpace(c.AssistantID) == "" {
		return ErrAssistantRequired
	}
	return nil
}

// PersonaConversation tracks one persona's conversation within a run and the
// provider threads backing both sides.
type PersonaConversation struct {
	ID                uint          `json:"-"`
	PublicID          string        `json:"id"`
	TestRunID         uint          `json:"-"`
	PersonaID         string        `json:"persona_id"`
	PersonaThreadID   string        `json:"persona_thread_id,omitempty"`
	AssistantThreadID string        `json:"assistant_thread_id,omitempty"`
	Status            status.Status `json:"status"`
	Error             string        `json:"error,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Repository persists runs and their persona conversations.
type Repository interface {
	CreateRun(ctx context.Context, run *TestRun, conversations []*PersonaConversation) error
	FindRunByPublicID(ctx context.Context, publicID string) (*TestRun, error)
	ListRuns(ctx context.Context, ownerID string, limit int) ([]*TestRun, error)
	UpdateRunStatus(ctx context.Context, runID uint, s status.Status) error
	ListConversations(ctx context.Context, runID uint) ([]*PersonaConversation, error)
	UpdateConversation(ctx context.Context, conv *PersonaConversation) error
}
