package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/VozVule/local-knowledge/domain/persistence"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepository implements persistence.MessageRepository
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *gorm.DB) persistence.MessageRepository {
	return &MessageRepository{db: db}
}

// Create creates a new message record
func (r *MessageRepository) Create(ctx context.Context, entity *persistence.MessageRecord) error {
	if err := dbFrom(ctx, r.db).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create message record: %w", err)
	}
	return nil
}

// CreateBatch inserts records in one statement
func (r *MessageRepository) CreateBatch(ctx context.Context, records []*persistence.MessageRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := dbFrom(ctx, r.db).Create(&records).Error; err != nil {
		return fmt.Errorf("failed to create message records: %w", err)
	}
	return nil
}

// FindByID finds a message record by ID
func (r *MessageRepository) FindByID(ctx context.Context, id uint) (*persistence.MessageRecord, error) {
	var record persistence.MessageRecord
	if err := dbFrom(ctx, r.db).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("message record not found: %w: %w", persistence.ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to find message record: %w", err)
	}
	return &record, nil
}

// FindBySession returns a session's messages by timestamp, insertion order breaking ties
func (r *MessageRepository) FindBySession(ctx context.Context, sessionID string) ([]*persistence.MessageRecord, error) {
	var records []*persistence.MessageRecord
	err := dbFrom(ctx, r.db).
		Where("session_id = ?", sessionID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}}).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find messages for session: %w", err)
	}
	return records, nil
}

// Delete deletes a message record
func (r *MessageRepository) Delete(ctx context.Context, id uint) error {
	result := dbFrom(ctx, r.db).Delete(&persistence.MessageRecord{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete message record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message record not found for deletion: %w: %w", persistence.ErrNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}
