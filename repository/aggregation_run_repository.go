package repository

import (
	"context"
	"fmt"

	"github.com/wertlabs/eventfunnel/models"
	"gorm.io/gorm"
)

// AggregationRunRepositoryImpl implements AggregationRunRepository
type AggregationRunRepositoryImpl struct {
	*BaseRepository[models.AggregationRun, models.AggregationRunFilter]
}

func NewAggregationRunRepository(db *gorm.DB) AggregationRunRepository {
	return &AggregationRunRepositoryImpl{BaseRepository: NewBaseRepository[models.AggregationRun, models.AggregationRunFilter](db)}
}

func (r *AggregationRunRepositoryImpl) Update(ctx context.Context, run *models.AggregationRun) error {
	db := r.getDB(ctx)
	if err := db.Save(run).Error; err != nil {
		return fmt.Errorf("failed to update aggregation run %d: %w", run.ID, err)
	}
	return nil
}

func (r *AggregationRunRepositoryImpl) applyFilter(db *gorm.DB, f models.AggregationRunFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if f.Trigger != nil {
		db = db.Where("trigger = ?", *f.Trigger)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *AggregationRunRepositoryImpl) ByFilter(ctx context.Context, filter models.AggregationRunFilter, orderBy string, limit, offset int) ([]*models.AggregationRun, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.AggregationRun{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.AggregationRun
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AggregationRunRepositoryImpl) Count(ctx context.Context, filter models.AggregationRunFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.AggregationRun{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *AggregationRunRepositoryImpl) Exists(ctx context.Context, filter models.AggregationRunFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
