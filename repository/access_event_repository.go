package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/wertlabs/eventfunnel/models"
	"gorm.io/gorm"
)

// AccessEventRepositoryImpl implements AccessEventRepository
type AccessEventRepositoryImpl struct {
	*BaseRepository[models.AccessEvent, models.AccessEventFilter]
}

func NewAccessEventRepository(db *gorm.DB) AccessEventRepository {
	return &AccessEventRepositoryImpl{BaseRepository: NewBaseRepository[models.AccessEvent, models.AccessEventFilter](db)}
}

// ListMatchCandidates feeds the attribution matcher: every visit to the
// campaign inside the window, newest first so "most recent attributed visit"
// is the first hit during the scan.
func (r *AccessEventRepositoryImpl) ListMatchCandidates(ctx context.Context, campaignID uint, from, to time.Time) ([]*models.AccessEvent, error) {
	db := r.getDB(ctx)
	var rows []*models.AccessEvent
	err := db.Model(&models.AccessEvent{}).
		Where("campaign_id = ?", campaignID).
		Where("accessed_at >= ? AND accessed_at <= ?", from, to).
		Order("accessed_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list match candidates for campaign %d: %w", campaignID, err)
	}
	return rows, nil
}

// StampConversion claims a visit for a conversion. The converted_at IS NULL
// guard keeps the stamp one-shot: a visit already claimed by an earlier match
// is never reassigned.
func (r *AccessEventRepositoryImpl) StampConversion(ctx context.Context, eventID uint, convertedAt time.Time, entryID uint) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.AccessEvent{}).
		Where("id = ? AND converted_at IS NULL", eventID).
		Updates(map[string]any{
			"converted_at": convertedAt,
			"entry_id":     entryID,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to stamp conversion on access event %d: %w", eventID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *AccessEventRepositoryImpl) ListInRange(ctx context.Context, from, to time.Time) ([]*models.AccessEvent, error) {
	db := r.getDB(ctx)
	var rows []*models.AccessEvent
	err := db.Model(&models.AccessEvent{}).
		Where("accessed_at >= ? AND accessed_at < ?", from, to).
		Order("accessed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list access events in range: %w", err)
	}
	return rows, nil
}

func (r *AccessEventRepositoryImpl) CountInRange(ctx context.Context, campaignID uint, from, to time.Time) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.AccessEvent{}).
		Where("campaign_id = ?", campaignID).
		Where("accessed_at >= ? AND accessed_at < ?", from, to).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count access events in range: %w", err)
	}
	return count, nil
}

// ListCampaignTraffic returns every visit counting toward a campaign in a
// half-open span: direct campaign hits plus hits on the webinars whose
// registrations land on it.
func (r *AccessEventRepositoryImpl) ListCampaignTraffic(ctx context.Context, campaignID uint, webinarIDs []uint, from, to time.Time) ([]*models.AccessEvent, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.AccessEvent{}).
		Where("accessed_at >= ? AND accessed_at < ?", from, to)
	if len(webinarIDs) > 0 {
		query = query.Where("campaign_id = ? OR webinar_id IN ?", campaignID, webinarIDs)
	} else {
		query = query.Where("campaign_id = ?", campaignID)
	}
	var rows []*models.AccessEvent
	if err := query.Order("accessed_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list campaign traffic for campaign %d: %w", campaignID, err)
	}
	return rows, nil
}

// ListConvertedOrphans returns converted visits whose entry_id no longer
// resolves to a conversion entry. These are the recovery source after a
// deletion: attribution survives on the visit even when the entry is gone.
func (r *AccessEventRepositoryImpl) ListConvertedOrphans(ctx context.Context, campaignID uint) ([]*models.AccessEvent, error) {
	db := r.getDB(ctx)
	var rows []*models.AccessEvent
	err := db.Model(&models.AccessEvent{}).
		Where("campaign_id = ?", campaignID).
		Where("entry_id IS NOT NULL AND converted_at IS NOT NULL").
		Where("NOT EXISTS (SELECT 1 FROM conversion_entries e WHERE e.id = access_events.entry_id)").
		Order("converted_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list converted orphans for campaign %d: %w", campaignID, err)
	}
	return rows, nil
}

func (r *AccessEventRepositoryImpl) applyFilter(db *gorm.DB, f models.AccessEventFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.SessionID != nil {
		db = db.Where("session_id = ?", *f.SessionID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.WebinarID != nil {
		db = db.Where("webinar_id = ?", *f.WebinarID)
	}
	if f.LinkID != nil {
		db = db.Where("link_id = ?", *f.LinkID)
	}
	if f.EntryID != nil {
		db = db.Where("entry_id = ?", *f.EntryID)
	}
	if f.Converted != nil {
		if *f.Converted {
			db = db.Where("converted_at IS NOT NULL")
		} else {
			db = db.Where("converted_at IS NULL")
		}
	}
	if f.AccessedAfter != nil {
		db = db.Where("accessed_at >= ?", *f.AccessedAfter)
	}
	if f.AccessedBefore != nil {
		db = db.Where("accessed_at < ?", *f.AccessedBefore)
	}
	return db
}

func (r *AccessEventRepositoryImpl) ByFilter(ctx context.Context, filter models.AccessEventFilter, orderBy string, limit, offset int) ([]*models.AccessEvent, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.AccessEvent{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.AccessEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AccessEventRepositoryImpl) Count(ctx context.Context, filter models.AccessEventFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.AccessEvent{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *AccessEventRepositoryImpl) Exists(ctx context.Context, filter models.AccessEventFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
