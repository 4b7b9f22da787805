package dto

import (
	"time"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/session"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
)

// PersonaResponse is the API shape of a persona.
type PersonaResponse struct {
	ID              string `json:"id"`
	Object          string `json:"object"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Prompt          string `json:"prompt"`
	OpeningQuestion string `json:"opening_question,omitempty"`
	Shared          bool   `json:"shared"`
	CreatedAt       int64  `json:"created_at"`
}

// ListResponse wraps list endpoints.
type ListResponse[T any] struct {
	Object string `json:"object"`
	Data   []T    `json:"data"`
}

// NewList builds a list response that never serializes data as null.
func NewList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Object: "list", Data: items}
}

// TurnResponse is one message of a merged conversation.
type TurnResponse struct {
	Index     int               `json:"index"`
	ID        string            `json:"id,omitempty"`
	Role      conversation.Role `json:"role"`
	Content   string            `json:"content"`
	CreatedAt int64             `json:"created_at,omitempty"`
	IsLoading bool              `json:"is_loading,omitempty"`
	IsError   bool              `json:"is_error,omitempty"`
}

// ConversationResponse is one persona's conversation in a run.
type ConversationResponse struct {
	ID                string         `json:"id"`
	Object            string         `json:"object"`
	PersonaID         string         `json:"persona_id"`
	PersonaName       string         `json:"persona_name"`
	Status            string         `json:"status"`
	Error             string         `json:"error,omitempty"`
	Running           bool           `json:"running"`
	PersonaThreadID   string         `json:"persona_thread_id,omitempty"`
	AssistantThreadID string         `json:"assistant_thread_id,omitempty"`
	Turns             []TurnResponse `json:"turns"`
}

// RunResponse is a test run with its conversations.
type RunResponse struct {
	ID              string                 `json:"id"`
	Object          string                 `json:"object"`
	Status          string                 `json:"status"`
	MaxTurnsPerSide int                    `json:"max_turns_per_side"`
	AssistantID     string                 `json:"assistant_id"`
	FileIDs         []string               `json:"file_ids,omitempty"`
	Context         string                 `json:"context,omitempty"`
	CreatedAt       int64                  `json:"created_at"`
	CompletedAt     *int64                 `json:"completed_at,omitempty"`
	Conversations   []ConversationResponse `json:"conversations,omitempty"`
}

// FromPersona maps a domain persona.
func FromPersona(p *persona.Persona) PersonaResponse {
	return PersonaResponse{
		ID:              p.PublicID,
		Object:          "persona",
		Name:            p.Name,
		Description:     p.Description,
		Prompt:          p.Prompt,
		OpeningQuestion: p.OpeningQuestion,
		Shared:          p.OwnerID == "",
		CreatedAt:       p.CreatedAt.Unix(),
	}
}

// FromPersonas maps a persona listing.
func FromPersonas(items []*persona.Persona) ListResponse[PersonaResponse] {
	out := make([]PersonaResponse, 0, len(items))
	for _, p := range items {
		out = append(out, FromPersona(p))
	}
	return NewList(out)
}

// FromTurns maps turns keeping their index in the conversation.
func FromTurns(turns []conversation.Turn) []TurnResponse {
	out := make([]TurnResponse, 0, len(turns))
	for i, t := range turns {
		out = append(out, TurnResponse{
			Index:     i,
			ID:        t.ID,
			Role:      t.Role,
			Content:   t.Content,
			CreatedAt: unixOrZero(t.CreatedAt),
			IsLoading: t.IsLoading,
			IsError:   t.IsError,
		})
	}
	return out
}

// FromConversation maps a conversation snapshot.
func FromConversation(snap *session.ConversationSnapshot) ConversationResponse {
	return ConversationResponse{
		ID:                snap.Record.PublicID,
		Object:            "persona_conversation",
		PersonaID:         snap.Persona.PublicID,
		PersonaName:       snap.Persona.Name,
		Status:            string(snap.Record.Status),
		Error:             snap.Record.Error,
		Running:           snap.Running,
		PersonaThreadID:   snap.Record.PersonaThreadID,
		AssistantThreadID: snap.Record.AssistantThreadID,
		Turns:             FromTurns(snap.Turns),
	}
}

// FromRun maps a run without its conversations.
func FromRun(run *testrun.TestRun) RunResponse {
	resp := RunResponse{
		ID:              run.PublicID,
		Object:          "test_run",
		Status:          string(run.Status),
		MaxTurnsPerSide: run.Config.MaxTurnsPerSide,
		AssistantID:     run.Config.AssistantID,
		FileIDs:         run.Config.FileIDs,
		Context:         run.Config.Context,
		CreatedAt:       run.CreatedAt.Unix(),
	}
	if run.CompletedAt != nil {
		completed := run.CompletedAt.Unix()
		resp.CompletedAt = &completed
	}
	return resp
}

// FromRuns maps a run listing.
func FromRuns(runs []*testrun.TestRun) ListResponse[RunResponse] {
	out := make([]RunResponse, 0, len(runs))
	for _, r := range runs {
		out = append(out, FromRun(r))
	}
	return NewList(out)
}

// FromRunSnapshot maps a run and all of its conversations.
func FromRunSnapshot(snap *session.RunSnapshot) RunResponse {
	resp := FromRun(&snap.Run)
	resp.Conversations = make([]ConversationResponse, 0, len(snap.Conversations))
	for i := range snap.Conversations {
		resp.Conversations = append(resp.Conversations, FromConversation(&snap.Conversations[i]))
	}
	return resp
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
