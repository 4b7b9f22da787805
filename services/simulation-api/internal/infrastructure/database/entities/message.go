package entities

import (
	"time"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
)

// Message is one turn in one log of a persona conversation.
type Message struct {
	ID             uint      `gorm:"primaryKey"`
	PublicID       string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	ConversationID string    `gorm:"type:varchar(64);index:idx_message_log,priority:1;not null"`
	Log            string    `gorm:"type:varchar(16);index:idx_message_log,priority:2;not null"`
	Role           string    `gorm:"type:varchar(16);not null"`
	Content        string    `gorm:"type:text;not null"`
	IsError        bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"index:idx_message_log,priority:3;not null"`
}

// TableName specifies the table name for Message.
func (Message) TableName() string {
	return "simulation_messages"
}

// EtoD converts the entity to a conversation turn.
func (m *Message) EtoD() conversation.Turn {
	return conversation.Turn{
		ID:        m.PublicID,
		Role:      conversation.Role(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt.UTC(),
		IsError:   m.IsError,
	}
}
