package database

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/database/entities"
)

// AutoMigrate brings the persona, run and message tables up to date.
func AutoMigrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&entities.Persona{},
		&entities.TestRun{},
		&entities.PersonaConversation{},
		&entities.Message{},
	); err != nil {
		return err
	}
	log.Info().Msg("database schema up to date")
	return nil
}
