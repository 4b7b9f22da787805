package persona

import (
	"context"
	"errors"

	"gorm.io/gorm"

	domain "github.com/janhq/persona-sim/services/simulation-api/internal/domain/persona"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/database/entities"
	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/platformerrors"
)

// PostgresRepository provides persistence for personas.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a persona and fills in its ID and timestamps.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Persona) error {
	entity := entities.NewSchemaPersona(p)
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create persona",
			err,
			"persona-create-001",
		)
	}
	*p = *entity.EtoD()
	return nil
}

// FindByPublicID fetches one persona.
func (r *PostgresRepository) FindByPublicID(ctx context.Context, publicID string) (*domain.Persona, error) {
	var entity entities.Persona
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				"persona not found",
				errors.Join(domain.ErrUnknownPersona, err),
				"persona-find-404",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to find persona",
			err,
			"persona-find-001",
		)
	}
	return entity.EtoD(), nil
}

// FindByFilter lists personas ordered by creation. An owner filter matches the
// owner's personas and the shared ones.
func (r *PostgresRepository) FindByFilter(ctx context.Context, filter domain.Filter) ([]*domain.Persona, error) {
	query := r.db.WithContext(ctx).Model(&entities.Persona{})
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ? OR owner_id = ''", *filter.OwnerID)
	}
	if len(filter.PublicIDs) > 0 {
		query = query.Where("public_id IN ?", filter.PublicIDs)
	}

	var rows []entities.Persona
	if err := query.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list personas",
			err,
			"persona-list-001",
		)
	}
	out := make([]*domain.Persona, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].EtoD())
	}
	return out, nil
}

var _ domain.Repository = (*PostgresRepository)(nil)
