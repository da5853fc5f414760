package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/VozVule/local-knowledge/domain/persistence"

	"gorm.io/gorm"
)

// DocumentRepository implements persistence.DocumentRepository
type DocumentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *gorm.DB) persistence.DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create stores a document
func (r *DocumentRepository) Create(ctx context.Context, entity *persistence.Document) error {
	if err := dbFrom(ctx, r.db).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// FindByID finds a document by ID
func (r *DocumentRepository) FindByID(ctx context.Context, id uint) (*persistence.Document, error) {
	var doc persistence.Document
	if err := dbFrom(ctx, r.db).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("document not found: %w: %w", persistence.ErrNotFound, err)
		}
		return nil, fmt.Errorf("failed to find document: %w", err)
	}
	return &doc, nil
}

// FindAll returns document metadata newest first; content is not loaded
func (r *DocumentRepository) FindAll(ctx context.Context) ([]*persistence.Document, error) {
	var docs []*persistence.Document
	err := dbFrom(ctx, r.db).
		Select("id", "filename", "mime_type", "size_bytes", "checksum", "created_at").
		Order("created_at DESC").
		Order("id DESC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Delete removes a document
func (r *DocumentRepository) Delete(ctx context.Context, id uint) error {
	result := dbFrom(ctx, r.db).Delete(&persistence.Document{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("document not found for deletion: %w: %w", persistence.ErrNotFound, gorm.ErrRecordNotFound)
	}
	return nil
}
