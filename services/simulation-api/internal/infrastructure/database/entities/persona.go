package entities

import (
	"time"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
)

// Persona is the stored form of a persona. An empty OwnerID marks a shared
// persona visible to every user.
type Persona struct {
	ID              uint      `gorm:"primaryKey"`
	PublicID        string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	OwnerID         string    `gorm:"type:varchar(64);index:idx_persona_owner;not null;default:''"`
	Name            string    `gorm:"type:varchar(128);not null"`
	Description     string    `gorm:"type:text"`
	Prompt          string    `gorm:"type:text;not null"`
	OpeningQuestion string    `gorm:"type:text"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for Persona.
func (Persona) TableName() string {
	return "personas"
}

// EtoD converts the entity to the domain model.
func (p *Persona) EtoD() *persona.Persona {
	return &persona.Persona{
		ID:              p.ID,
		PublicID:        p.PublicID,
		OwnerID:         p.OwnerID,
		Name:            p.Name,
		Description:     p.Description,
		Prompt:          p.Prompt,
		OpeningQuestion: p.OpeningQuestion,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// NewSchemaPersona converts a domain persona to its entity.
func NewSchemaPersona(p *persona.Persona) *Persona {
	return &Persona{
		ID:              p.ID,
		PublicID:        p.PublicID,
		OwnerID:         p.OwnerID,
		Name:            p.Name,
		Description:     p.Description,
		Prompt:          p.Prompt,
		OpeningQuestion: p.OpeningQuestion,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
