package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/wertlabs/eventfunnel/models"
	"gorm.io/gorm"
)

// ConversionEntryRepositoryImpl implements ConversionEntryRepository
type ConversionEntryRepositoryImpl struct {
	*BaseRepository[models.ConversionEntry, models.ConversionEntryFilter]
}

func NewConversionEntryRepository(db *gorm.DB) ConversionEntryRepository {
	return &ConversionEntryRepositoryImpl{BaseRepository: NewBaseRepository[models.ConversionEntry, models.ConversionEntryFilter](db)}
}

func (r *ConversionEntryRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.ConversionEntry, error) {
	filter := models.ConversionEntryFilter{UUID: &uuid}
	rows, err := r.ByFilter(ctx, filter, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByCampaignAndPhone is the duplicate-submission check: one entry per contact
// identity per campaign.
func (r *ConversionEntryRepositoryImpl) ByCampaignAndPhone(ctx context.Context, campaignID uint, phoneNorm string) (*models.ConversionEntry, error) {
	filter := models.ConversionEntryFilter{CampaignID: &campaignID, PhoneNorm: &phoneNorm}
	rows, err := r.ByFilter(ctx, filter, "id ASC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// UpdateAttribution settles the channel question exactly once. The guard
// requires the entry to still be unsettled, so two matcher runs never fight
// over one row and a link-resolved entry is never repainted from raw UTM
// params. attributed_at is stamped even when the matched visit carried no
// channel, which is what keeps a confirmed-direct entry out of later sweeps.
func (r *ConversionEntryRepositoryImpl) UpdateAttribution(ctx context.Context, entryID uint, link *models.CampaignLink, utm map[string]*string, attributedAt time.Time) (bool, error) {
	db := r.getDB(ctx)

	fields := map[string]any{
		"utm_source":    utm["utm_source"],
		"utm_medium":    utm["utm_medium"],
		"utm_campaign":  utm["utm_campaign"],
		"utm_term":      utm["utm_term"],
		"utm_content":   utm["utm_content"],
		"attributed_at": attributedAt,
	}
	if link != nil {
		fields["link_id"] = link.ID
		fields["cid"] = link.CID
	}

	res := db.Model(&models.ConversionEntry{}).
		Where("id = ?", entryID).
		Where("attributed_at IS NULL").
		Where("link_id IS NULL AND utm_source IS NULL AND utm_medium IS NULL AND utm_campaign IS NULL AND utm_term IS NULL AND utm_content IS NULL").
		Updates(fields)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update attribution on entry %d: %w", entryID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *ConversionEntryRepositoryImpl) ListUnattributed(ctx context.Context, campaignID *uint, from, to time.Time) ([]*models.ConversionEntry, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.ConversionEntry{}).
		Where("attributed_at IS NULL").
		Where("link_id IS NULL AND utm_source IS NULL AND utm_medium IS NULL AND utm_campaign IS NULL AND utm_term IS NULL AND utm_content IS NULL").
		Where("submitted_at >= ? AND submitted_at < ?", from, to)
	if campaignID != nil {
		query = query.Where("campaign_id = ?", *campaignID)
	}
	var rows []*models.ConversionEntry
	if err := query.Order("submitted_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list unattributed entries: %w", err)
	}
	return rows, nil
}

func (r *ConversionEntryRepositoryImpl) ListInRange(ctx context.Context, from, to time.Time) ([]*models.ConversionEntry, error) {
	db := r.getDB(ctx)
	var rows []*models.ConversionEntry
	err := db.Model(&models.ConversionEntry{}).
		Where("submitted_at >= ? AND submitted_at < ?", from, to).
		Order("submitted_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversion entries in range: %w", err)
	}
	return rows, nil
}

func (r *ConversionEntryRepositoryImpl) CountInRange(ctx context.Context, campaignID uint, from, to time.Time) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.ConversionEntry{}).
		Where("campaign_id = ?", campaignID).
		Where("submitted_at >= ? AND submitted_at < ?", from, to).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count conversion entries in range: %w", err)
	}
	return count, nil
}

func (r *ConversionEntryRepositoryImpl) applyFilter(db *gorm.DB, f models.ConversionEntryFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.SurveyNo != nil {
		db = db.Where("survey_no = ?", *f.SurveyNo)
	}
	if f.PhoneNorm != nil {
		db = db.Where("phone_norm = ?", *f.PhoneNorm)
	}
	if f.SessionID != nil {
		db = db.Where("session_id = ?", *f.SessionID)
	}
	if f.LinkID != nil {
		db = db.Where("link_id = ?", *f.LinkID)
	}
	if f.Unattributed != nil && *f.Unattributed {
		db = db.Where("attributed_at IS NULL AND link_id IS NULL AND utm_source IS NULL AND utm_medium IS NULL AND utm_campaign IS NULL AND utm_term IS NULL AND utm_content IS NULL")
	}
	if f.IsRecovered != nil {
		db = db.Where("is_recovered = ?", *f.IsRecovered)
	}
	if f.SubmittedAfter != nil {
		db = db.Where("submitted_at >= ?", *f.SubmittedAfter)
	}
	if f.SubmittedBefore != nil {
		db = db.Where("submitted_at < ?", *f.SubmittedBefore)
	}
	return db
}

func (r *ConversionEntryRepositoryImpl) ByFilter(ctx context.Context, filter models.ConversionEntryFilter, orderBy string, limit, offset int) ([]*models.ConversionEntry, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ConversionEntry{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.ConversionEntry
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ConversionEntryRepositoryImpl) Count(ctx context.Context, filter models.ConversionEntryFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.ConversionEntry{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ConversionEntryRepositoryImpl) Exists(ctx context.Context, filter models.ConversionEntryFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
