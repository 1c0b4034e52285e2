package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/wertlabs/eventfunnel/models"
	"gorm.io/gorm"
)

// DailyStatRepositoryImpl implements DailyStatRepository
type DailyStatRepositoryImpl struct {
	*BaseRepository[models.DailyStat, models.DailyStatFilter]
}

func NewDailyStatRepository(db *gorm.DB) DailyStatRepository {
	return &DailyStatRepositoryImpl{BaseRepository: NewBaseRepository[models.DailyStat, models.DailyStatFilter](db)}
}

// ReplaceRange is the only write path for buckets: transactional delete of the
// scope followed by insert of the recomputed rows. Replace-not-increment keeps
// repeated recomputes byte-identical over unchanged source data, and the
// transaction keeps a concurrent reader from seeing a half-replaced range.
func (r *DailyStatRepositoryImpl) ReplaceRange(ctx context.Context, clientID *uint, from, to time.Time, rows []*models.DailyStat) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	del := db.Where("bucket_date >= ? AND bucket_date <= ?", from, to)
	if clientID != nil {
		del = del.Where("client_id = ?", *clientID)
	}
	if err = del.Delete(&models.DailyStat{}).Error; err != nil {
		return fmt.Errorf("failed to clear stat buckets in range: %w", err)
	}

	if len(rows) > 0 {
		if err = db.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("failed to insert recomputed stat buckets: %w", err)
		}
	}

	return nil
}

func (r *DailyStatRepositoryImpl) ListRange(ctx context.Context, filter models.DailyStatFilter) ([]*models.DailyStat, error) {
	return r.ByFilter(ctx, filter, "bucket_date ASC, campaign_id ASC, id ASC", 0, 0)
}

func (r *DailyStatRepositoryImpl) SumConversions(ctx context.Context, campaignID uint, from, to time.Time) (int64, error) {
	return r.sumColumn(ctx, "conversions", campaignID, from, to)
}

func (r *DailyStatRepositoryImpl) SumVisits(ctx context.Context, campaignID uint, from, to time.Time) (int64, error) {
	return r.sumColumn(ctx, "visits", campaignID, from, to)
}

func (r *DailyStatRepositoryImpl) sumColumn(ctx context.Context, column string, campaignID uint, from, to time.Time) (int64, error) {
	db := r.getDB(ctx)
	var total *int64
	err := db.Model(&models.DailyStat{}).
		Select("SUM("+column+")").
		Where("campaign_id = ?", campaignID).
		Where("bucket_date >= ? AND bucket_date <= ?", from, to).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum %s for campaign %d: %w", column, campaignID, err)
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (r *DailyStatRepositoryImpl) applyFilter(db *gorm.DB, f models.DailyStatFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.LinkID != nil {
		db = db.Where("link_id = ?", *f.LinkID)
	}
	if f.DateFrom != nil {
		db = db.Where("bucket_date >= ?", *f.DateFrom)
	}
	if f.DateTo != nil {
		db = db.Where("bucket_date <= ?", *f.DateTo)
	}
	return db
}

func (r *DailyStatRepositoryImpl) ByFilter(ctx context.Context, filter models.DailyStatFilter, orderBy string, limit, offset int) ([]*models.DailyStat, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.DailyStat{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.DailyStat
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DailyStatRepositoryImpl) Count(ctx context.Context, filter models.DailyStatFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.DailyStat{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DailyStatRepositoryImpl) Exists(ctx context.Context, filter models.DailyStatFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
