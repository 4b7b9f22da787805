// Package persona models the synthetic users that drive simulated conversations.
package persona

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Persona is a synthetic user. Prompt is sent to the persona assistant as
// additional instructions; OpeningQuestion, when set, is used verbatim as the
// first turn instead of generating one.
type Persona struct {
	ID              uint      `json:"-"`
	PublicID        string    `json:"id"`
	OwnerID         string    `json:"owner_id,omitempty"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Prompt          string    `json:"prompt"`
	OpeningQuestion string    `json:"opening_question,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasSeed reports whether the conversation starts with a fixed question.
func (p Persona) HasSeed() bool {
	return strings.TrimSpace(p.OpeningQuestion) != ""
}

// Validation errors.
var (
	ErrNameRequired   = errors.New("persona name is required")
	ErrPromptRequired = errors.New("persona prompt is required")
	ErrUnknownPersona = errors.New("unknown persona")
)

// Validate checks the fields required to simulate the persona.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return ErrPromptRequired
	}
	return nil
}

// Filter narrows persona listings.
type Filter struct {
	OwnerID   *string
	PublicIDs []string
}

// Repository persists personas.
type Repository interface {
	Create(ctx context.Context, p *Persona) error
	FindByPublicID(ctx context.Context, publicID string) (*Persona, error)
	FindByFilter(ctx context.Context, filter Filter) ([]*Persona, error)
}
