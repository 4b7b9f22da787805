package dto

import (
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/session"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
)

// CreatePersonaRequest is the body of POST /v1/personas.
type CreatePersonaRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Prompt          string `json:"prompt"`
	OpeningQuestion string `json:"opening_question,omitempty"`
}

// ToParams maps the request onto persona creation params.
func (r CreatePersonaRequest) ToParams(ownerID string) persona.CreateParams {
	return persona.CreateParams{
		OwnerID:         ownerID,
		Name:            r.Name,
		Description:     r.Description,
		Prompt:          r.Prompt,
		OpeningQuestion: r.OpeningQuestion,
	}
}

// CreateRunRequest is the body of POST /v1/runs.
type CreateRunRequest struct {
	PersonaIDs      []string `json:"persona_ids"`
	MaxTurnsPerSide int      `json:"max_turns_per_side"`
	AssistantID     string   `json:"assistant_id"`
	FileIDs         []string `json:"file_ids,omitempty"`
	Context         string   `json:"context,omitempty"`
}

// ToParams maps the request onto run start params.
func (r CreateRunRequest) ToParams(ownerID string) session.StartParams {
	return session.StartParams{
		OwnerID:    ownerID,
		PersonaIDs: r.PersonaIDs,
		Config: testrun.RunConfig{
			MaxTurnsPerSide: r.MaxTurnsPerSide,
			AssistantID:     r.AssistantID,
			FileIDs:         r.FileIDs,
			Context:         r.Context,
		},
	}
}

// EditTurnRequest is the body of the edit endpoint.
type EditTurnRequest struct {
	Content string `json:"content"`
}
