package storage

import (
	"context"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"tg-amnesia/internal/logger"
	"tg-amnesia/internal/models"
)

// Collection names used in reports and logs.
const (
	CollectionMessages      = "messages"
	CollectionChatStreams   = "chat_streams"
	CollectionPersonInfo    = "person_info"
	CollectionGroupInfo     = "group_info"
	CollectionExpression    = "expression"
	CollectionActionRecords = "action_records"
	CollectionChatHistory   = "chat_history"
	CollectionThinkingBack  = "thinking_back"
	CollectionJargon        = "jargon"
)

// Collection is one bot-owned table.
type Collection struct {
	Name  string
	Model interface{}
	// Optional tables may be missing; EraseAll skips them.
	Optional bool
}

// eraseOrder is the single list of tables. AllModels, CollectionNames and the
// CLI all read it.
var eraseOrder = []Collection{
	{Name: CollectionMessages, Model: &models.Message{}},
	{Name: CollectionChatStreams, Model: &models.ChatStream{}},
	{Name: CollectionPersonInfo, Model: &models.PersonInfo{}},
	{Name: CollectionGroupInfo, Model: &models.GroupInfo{}, Optional: true},
	{Name: CollectionExpression, Model: &models.Expression{}},
	{Name: CollectionActionRecords, Model: &models.ActionRecord{}},
	{Name: CollectionChatHistory, Model: &models.ChatHistory{}},
	{Name: CollectionThinkingBack, Model: &models.ThinkingBack{}},
	{Name: CollectionJargon, Model: &models.Jargon{}},
}

// Collections returns every table in erase order.
func Collections() []Collection {
	return append([]Collection(nil), eraseOrder...)
}

// CollectionNames returns the collections EraseAll touches, in order.
func CollectionNames() []string {
	names := make([]string, 0, len(eraseOrder))
	for _, c := range eraseOrder {
		names = append(names, c.Name)
	}
	return names
}

// EraseRepository performs unscoped deletes across every bot-owned table.
type EraseRepository struct {
	db *gorm.DB
}

// NewEraseRepository creates a new EraseRepository
func NewEraseRepository(db *gorm.DB) *EraseRepository {
	return &EraseRepository{db: db}
}

// EraseAll empties every collection. It stops at the first failure and returns
// the counts gathered so far; deletes that already ran are not rolled back.
func (r *EraseRepository) EraseAll(ctx context.Context) (*models.EraseStats, error) {
	stats := &models.EraseStats{}
	for _, c := range eraseOrder {
		if c.Optional && !r.db.Migrator().HasTable(c.Model) {
			logger.Infof("Collection %s does not exist, skipping", c.Name)
			continue
		}
		removed, err := r.deleteAll(ctx, c.Model)
		if err != nil {
			return stats, errors.Wrapf(err, "erase %s", c.Name)
		}
		stats.Add(c.Name, removed)
	}
	return stats, nil
}

// PurgeTraces empties messages and chat_streams only. The deferred cleanup passes
// use it to catch records stored after the main erase.
func (r *EraseRepository) PurgeTraces(ctx context.Context) (*models.EraseStats, error) {
	stats := &models.EraseStats{}
	for _, c := range eraseOrder[:2] {
		removed, err := r.deleteAll(ctx, c.Model)
		if err != nil {
			return stats, errors.Wrapf(err, "purge %s", c.Name)
		}
		stats.Add(c.Name, removed)
	}
	return stats, nil
}

func (r *EraseRepository) deleteAll(ctx context.Context, model interface{}) (int64, error) {
	result := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model)
	return result.RowsAffected, result.Error
}
