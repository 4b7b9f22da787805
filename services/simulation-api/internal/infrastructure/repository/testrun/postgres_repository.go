package testrun

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/status"
	domain "github.com/janhq/persona-sim/services/simulation-api/internal/domain/testrun"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/database/entities"
	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/platformerrors"
)

const defaultListLimit = 50

// PostgresRepository provides persistence for runs and persona conversations.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateRun inserts a run and its conversations in one transaction and fills
// in the generated IDs.
func (r *PostgresRepository) CreateRun(ctx context.Context, run *domain.TestRun, convs []*domain.PersonaConversation) error {
	runEntity, err := entities.NewSchemaTestRun(run)
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeInternal,
			"failed to map test run to entity", err, "testrun-create-map-001")
	}

	convEntities := make([]*entities.PersonaConversation, 0, len(convs))
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(runEntity).Error; err != nil {
			return err
		}
		for _, c := range convs {
			c.TestRunID = runEntity.ID
			entity := entities.NewSchemaPersonaConversation(c)
			if err := tx.Create(entity).Error; err != nil {
				return err
			}
			convEntities = append(convEntities, entity)
		}
		return nil
	})
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to create test run", err, "testrun-create-db-001")
	}

	run.ID = runEntity.ID
	run.CreatedAt = runEntity.CreatedAt
	run.UpdatedAt = runEntity.UpdatedAt
	for i, entity := range convEntities {
		*convs[i] = *entity.EtoD()
	}
	return nil
}

// FindRunByPublicID fetches one run.
func (r *PostgresRepository) FindRunByPublicID(ctx context.Context, publicID string) (*domain.TestRun, error) {
	var entity entities.TestRun
	if err := r.db.WithContext(ctx).Where("public_id = ?", publicID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound,
				"test run not found", errors.Join(domain.ErrRunNotFound, err), "testrun-find-404")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to find test run", err, "testrun-find-001")
	}
	return entity.EtoD()
}

// ListRuns returns the owner's most recent runs first.
func (r *PostgresRepository) ListRuns(ctx context.Context, ownerID string, limit int) ([]*domain.TestRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var rows []entities.TestRun
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list test runs", err, "testrun-list-001")
	}
	out := make([]*domain.TestRun, 0, len(rows))
	for i := range rows {
		run, err := rows[i].EtoD()
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// UpdateRunStatus stores the aggregated run status. Terminal statuses also
// stamp completed_at; returning to an active status clears it.
func (r *PostgresRepository) UpdateRunStatus(ctx context.Context, runID uint, s status.Status) error {
	updates := map[string]any{"status": string(s), "completed_at": nil}
	if s.IsTerminal() {
		updates["completed_at"] = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Model(&entities.TestRun{ID: runID}).Updates(updates).Error; err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to update test run status", err, "testrun-status-001")
	}
	return nil
}

// ListConversations returns the run's conversations in creation order.
func (r *PostgresRepository) ListConversations(ctx context.Context, runID uint) ([]*domain.PersonaConversation, error) {
	var rows []entities.PersonaConversation
	if err := r.db.WithContext(ctx).Where("test_run_id = ?", runID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to list persona conversations", err, "testrun-conv-list-001")
	}
	out := make([]*domain.PersonaConversation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].EtoD())
	}
	return out, nil
}

// UpdateConversation stores thread IDs, status and error of a conversation.
func (r *PostgresRepository) UpdateConversation(ctx context.Context, conv *domain.PersonaConversation) error {
	err := r.db.WithContext(ctx).
		Model(&entities.PersonaConversation{ID: conv.ID}).
		Updates(map[string]any{
			"persona_thread_id":   conv.PersonaThreadID,
			"assistant_thread_id": conv.AssistantThreadID,
			"status":              string(conv.Status),
			"error":               conv.Error,
		}).Error
	if err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerRepository, platformerrors.ErrorTypeDatabaseError,
			"failed to update persona conversation", err, "testrun-conv-update-001")
	}
	return nil
}

var _ domain.Repository = (*PostgresRepository)(nil)
