package message

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/janhq/persona-sim/services/simulation-api/internal/domain/conversation"
	"github.com/janhq/persona-sim/services/simulation-api/internal/infrastructure/database/entities"
	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/idgen"
	"github.com/janhq/persona-sim/services/simulation-api/internal/utils/platformerrors"
)

// PostgresStore keeps both logs of every persona conversation in one table.
type PostgresStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPostgresStore constructs the store.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Append inserts a turn stamped after every turn already in the conversation.
func (s *PostgresStore) Append(ctx context.Context, ref conversation.Ref, role conversation.Role, content string, isError bool) (conversation.Turn, error) {
	var row entities.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last entities.Message
		var lastAt time.Time
		err := tx.Where("conversation_id = ?", ref.ConversationID).
			Order("created_at DESC").
			First(&last).Error
		switch {
		case err == nil:
			lastAt = last.CreatedAt
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		row = entities.Message{
			PublicID:       idgen.NewID(idgen.PrefixMessage),
			ConversationID: ref.ConversationID,
			Log:            string(ref.Log),
			Role:           string(role),
			Content:        content,
			IsError:        isError,
			CreatedAt:      conversation.NextTimestamp(lastAt, s.now()),
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return conversation.Turn{}, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to append message",
			err,
			"message-append-001",
		)
	}
	return row.EtoD(), nil
}

// DeleteFrom removes turns of the log created at or after cutoff.
func (s *PostgresStore) DeleteFrom(ctx context.Context, ref conversation.Ref, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("conversation_id = ? AND log = ? AND created_at >= ?", ref.ConversationID, string(ref.Log), cutoff.UTC()).
		Delete(&entities.Message{})
	if res.Error != nil {
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to truncate message log",
			res.Error,
			"message-delete-from-001",
		)
	}
	return res.RowsAffected, nil
}

// DeleteAll empties the log.
func (s *PostgresStore) DeleteAll(ctx context.Context, ref conversation.Ref) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("conversation_id = ? AND log = ?", ref.ConversationID, string(ref.Log)).
		Delete(&entities.Message{})
	if res.Error != nil {
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to clear message log",
			res.Error,
			"message-delete-all-001",
		)
	}
	return res.RowsAffected, nil
}

// List returns the log in creation order.
func (s *PostgresStore) List(ctx context.Context, ref conversation.Ref) ([]conversation.Turn, error) {
	var rows []entities.Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ? AND log = ?", ref.ConversationID, string(ref.Log)).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list messages",
			err,
			"message-list-001",
		)
	}
	turns := make([]conversation.Turn, 0, len(rows))
	for i := range rows {
		turns = append(turns, rows[i].EtoD())
	}
	return turns, nil
}

var _ conversation.MessageStore = (*PostgresStore)(nil)
