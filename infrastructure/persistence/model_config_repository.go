package persistence

import (
	"context"
	"fmt"

	"github.com/VozVule/local-knowledge/domain/catalog"
	"github.com/VozVule/local-knowledge/domain/persistence"

	"gorm.io/gorm"
)

// ModelConfigRepository implements persistence.ModelConfigRepository
type ModelConfigRepository struct {
	db *gorm.DB
}

// NewModelConfigRepository creates a new app_config repository
func NewModelConfigRepository(db *gorm.DB) persistence.ModelConfigRepository {
	return &ModelConfigRepository{db: db}
}

// FindAll returns every row ordered by provider, then insertion order
func (r *ModelConfigRepository) FindAll(ctx context.Context) ([]*persistence.AppConfig, error) {
	return r.Find(ctx, "", "")
}

// Find filters rows by provider and model name; empty arguments match everything
func (r *ModelConfigRepository) Find(ctx context.Context, provider, modelName string) ([]*persistence.AppConfig, error) {
	query := dbFrom(ctx, r.db).Order("provider ASC").Order("id ASC")
	if provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if modelName != "" {
		query = query.Where("model_name = ?", modelName)
	}

	var rows []*persistence.AppConfig
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find model config: %w", err)
	}
	return rows, nil
}

// Count returns the number of configured pairs
func (r *ModelConfigRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := dbFrom(ctx, r.db).Model(&persistence.AppConfig{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count model config: %w", err)
	}
	return count, nil
}

// Replace deletes all rows and inserts entries in one transaction
func (r *ModelConfigRepository) Replace(ctx context.Context, entries []catalog.ModelEntry) error {
	return dbFrom(ctx, r.db).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&persistence.AppConfig{}).Error; err != nil {
			return fmt.Errorf("failed to clear model config: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		rows := make([]*persistence.AppConfig, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, &persistence.AppConfig{
				Provider:  e.Provider,
				ModelName: e.Name,
				ModelType: e.ModelType,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to insert model config: %w", err)
		}
		return nil
	})
}
