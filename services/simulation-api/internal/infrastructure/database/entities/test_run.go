package entities

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/status"
	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
)

// TestRun is the stored form of a simulation run.
type TestRun struct {
	ID              uint           `gorm:"primaryKey"`
	PublicID        string         `gorm:"type:varchar(64);uniqueIndex;not null"`
	OwnerID         string         `gorm:"type:varchar(64);index:idx_test_run_owner_created,priority:1;not null"`
	MaxTurnsPerSide int            `gorm:"not null"`
	AssistantID     string         `gorm:"type:varchar(128);not null"`
	FileIDs         datatypes.JSON `gorm:"type:jsonb"`
	Context         string         `gorm:"type:text"`
	Status          string         `gorm:"type:varchar(20);index;not null;default:'pending'"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index:idx_test_run_owner_created,priority:2"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
	CompletedAt     *time.Time

	Conversations []PersonaConversation `gorm:"foreignKey:TestRunID"`
}

// TableName specifies the table name for TestRun.
func (TestRun) TableName() string {
	return "test_runs"
}

// PersonaConversation is the stored form of one persona's conversation
// within a run.
type PersonaConversation struct {
	ID                uint      `gorm:"primaryKey"`
	PublicID          string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	TestRunID         uint      `gorm:"index;not null"`
	PersonaID         string    `gorm:"type:varchar(64);not null"`
	PersonaThreadID   string    `gorm:"type:varchar(128)"`
	AssistantThreadID string    `gorm:"type:varchar(128)"`
	Status            string    `gorm:"type:varchar(20);not null;default:'pending'"`
	Error             string    `gorm:"type:text"`
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for PersonaConversation.
func (PersonaConversation) TableName() string {
	return "persona_conversations"
}

// EtoD converts the entity to the domain model.
func (r *TestRun) EtoD() (*testrun.TestRun, error) {
	var fileIDs []string
	if len(r.FileIDs) > 0 {
		if err := json.Unmarshal(r.FileIDs, &fileIDs); err != nil {
			return nil, fmt.Errorf("decode file ids of run %s: %w", r.PublicID, err)
		}
	}
	return &testrun.TestRun{
		ID:       r.ID,
		PublicID: r.PublicID,
		OwnerID:  r.OwnerID,
		Config: testrun.RunConfig{
			MaxTurnsPerSide: r.MaxTurnsPerSide,
			AssistantID:     r.AssistantID,
			FileIDs:         fileIDs,
			Context:         r.Context,
		},
		Status:      status.Status(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		CompletedAt: r.CompletedAt,
	}, nil
}

// NewSchemaTestRun converts a domain run to its entity.
func NewSchemaTestRun(r *testrun.TestRun) (*TestRun, error) {
	var fileIDs datatypes.JSON
	if len(r.Config.FileIDs) > 0 {
		raw, err := json.Marshal(r.Config.FileIDs)
		if err != nil {
			return nil, fmt.Errorf("encode file ids: %w", err)
		}
		fileIDs = raw
	}
	return &TestRun{
		ID:              r.ID,
		PublicID:        r.PublicID,
		OwnerID:         r.OwnerID,
		MaxTurnsPerSide: r.Config.MaxTurnsPerSide,
		AssistantID:     r.Config.AssistantID,
		FileIDs:         fileIDs,
		Context:         r.Config.Context,
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		CompletedAt:     r.CompletedAt,
	}, nil
}

// EtoD converts the entity to the domain model.
func (c *PersonaConversation) EtoD() *testrun.PersonaConversation {
	return &testrun.PersonaConversation{
		ID:                c.ID,
		PublicID:          c.PublicID,
		TestRunID:         c.TestRunID,
		PersonaID:         c.PersonaID,
		PersonaThreadID:   c.PersonaThreadID,
		AssistantThreadID: c.AssistantThreadID,
		Status:            status.Status(c.Status),
		Error:             c.Error,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

// NewSchemaPersonaConversation converts a domain conversation record to its
// entity.
func NewSchemaPersonaConversation(c *testrun.PersonaConversation) *PersonaConversation {
	return &PersonaConversation{
		ID:                c.ID,
		PublicID:          c.PublicID,
		TestRunID:         c.TestRunID,
		PersonaID:         c.PersonaID,
		PersonaThreadID:   c.PersonaThreadID,
		AssistantThreadID: c.AssistantThreadID,
		Status:            string(c.Status),
		Error:             c.Error,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}
