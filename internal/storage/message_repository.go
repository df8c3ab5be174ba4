package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tg-amnesia/internal/models"
)

// MessageRepository handles the per-conversation message history.
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// MigrateTable ensures the messages and chat_streams tables exist
func (r *MessageRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.Message{}, &models.ChatStream{})
}

// Record inserts one message.
func (r *MessageRepository) Record(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// TouchStream creates the stream or refreshes its name and activity time.
func (r *MessageRepository) TouchStream(ctx context.Context, stream *models.ChatStream) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stream_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"group_name", "last_active_time"}),
	}).Create(stream).Error
}

// CountByChat returns how many messages a conversation holds.
func (r *MessageRepository) CountByChat(ctx context.Context, chatID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).Where("chat_id = ?", chatID).Count(&count).Error
	return count, err
}

// DeleteByChat removes every message of a conversation.
func (r *MessageRepository) DeleteByChat(ctx context.Context, chatID string) (int64, error) {
	result := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&models.Message{})
	return result.RowsAffected, result.Error
}

// DeleteRecent removes the n newest messages of a conversation. Ties on time
// fall back to insertion order so the selection is stable.
func (r *MessageRepository) DeleteRecent(ctx context.Context, chatID string, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("chat_id = ?", chatID).
		Order("time DESC").Order("id DESC").
		Limit(n).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, errors.Wrap(err, "select recent messages")
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).Where("chat_id = ? AND id IN ?", chatID, ids).Delete(&models.Message{})
	return result.RowsAffected, result.Error
}

// DeleteBefore removes messages strictly older than threshold (unix seconds).
func (r *MessageRepository) DeleteBefore(ctx context.Context, chatID string, threshold float64) (int64, error) {
	result := r.db.WithContext(ctx).Where("chat_id = ? AND time < ?", chatID, threshold).Delete(&models.Message{})
	return result.RowsAffected, result.Error
}

// DeleteByMessageIDs removes specific transport messages of a conversation.
func (r *MessageRepository) DeleteByMessageIDs(ctx context.Context, chatID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).Where("chat_id = ? AND message_id IN ?", chatID, messageIDs).Delete(&models.Message{})
	return result.RowsAffected, result.Error
}
