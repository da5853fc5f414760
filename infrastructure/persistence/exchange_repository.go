package persistence

import (
	"context"
	"fmt"

	"github.com/VozVule/local-knowledge/domain/persistence"

	"gorm.io/gorm"
)

// ExchangeRepository implements persistence.ExchangeRepository
type ExchangeRepository struct {
	db *gorm.DB
}

// NewExchangeRepository creates a new exchange metrics repository
func NewExchangeRepository(db *gorm.DB) persistence.ExchangeRepository {
	return &ExchangeRepository{db: db}
}

// Create creates a new exchange record
func (r *ExchangeRepository) Create(ctx context.Context, entity *persistence.ExchangeRecord) error {
	if err := dbFrom(ctx, r.db).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create exchange record: %w", err)
	}
	return nil
}

// FindRecent returns the latest exchange records
func (r *ExchangeRepository) FindRecent(ctx context.Context, limit int) ([]*persistence.ExchangeRecord, error) {
	var records []*persistence.ExchangeRecord
	query := dbFrom(ctx, r.db).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find recent exchanges: %w", err)
	}
	return records, nil
}

// GetAggregatedMetrics aggregates over the most recent limit exchanges, or all when limit <= 0
func (r *ExchangeRepository) GetAggregatedMetrics(ctx context.Context, limit int) (*persistence.AggregatedMetrics, error) {
	db := dbFrom(ctx, r.db)

	var result struct {
		TotalExchanges   int64
		FailedExchanges  int64
		AverageLatencyMs float64
	}

	source := db.Model(&persistence.ExchangeRecord{})
	if limit > 0 {
		// Aggregate over the most recent exchanges only
		recent := db.Model(&persistence.ExchangeRecord{}).
			Select("status", "latency_ms").
			Order("created_at DESC").
			Limit(limit)
		source = db.Table("(?) AS recent", recent)
	}

	err := source.Select(`
			COUNT(*) AS total_exchanges,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed_exchanges,
			COALESCE(AVG(latency_ms), 0) AS average_latency_ms
		`, persistence.ExchangeStatusFailed).
		Scan(&result).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get aggregated metrics: %w", err)
	}

	metrics := &persistence.AggregatedMetrics{
		TotalExchanges:   result.TotalExchanges,
		FailedExchanges:  result.FailedExchanges,
		AverageLatencyMs: result.AverageLatencyMs,
	}
	if result.TotalExchanges > 0 {
		metrics.ErrorRate = float64(result.FailedExchanges) / float64(result.TotalExchanges)
	}
	return metrics, nil
}
