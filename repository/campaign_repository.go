package repository

import (
	"context"
	"fmt"

	"github.com/wertlabs/eventfunnel/models"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements CampaignRepository
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db)}
}

func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Campaign, error) {
	filter := models.CampaignFilter{UUID: &uuid}
	rows, err := r.ByFilter(ctx, filter, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *CampaignRepositoryImpl) ListByClient(ctx context.Context, clientID uint) ([]*models.Campaign, error) {
	filter := models.CampaignFilter{ClientID: &clientID}
	return r.ByFilter(ctx, filter, "id ASC", 0, 0)
}

// AdvanceSurveyNo is the ordinal allocation guard. The WHERE clause on the
// current value makes the increment a compare-and-swap: of two concurrent
// registrations reading the same counter, exactly one update matches a row.
func (r *CampaignRepositoryImpl) AdvanceSurveyNo(ctx context.Context, campaignID uint, current int64) (bool, error) {
	db := r.getDB(ctx)
	res := db.Model(&models.Campaign{}).
		Where("id = ? AND next_survey_no = ?", campaignID, current).
		Update("next_survey_no", current+1)
	if res.Error != nil {
		return false, fmt.Errorf("failed to advance survey_no for campaign %d: %w", campaignID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, f models.CampaignFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if f.Type != nil {
		db = db.Where("type = ?", *f.Type)
	}
	return db
}

func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Campaign
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Campaign{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// WebinarRepositoryImpl implements WebinarRepository
type WebinarRepositoryImpl struct {
	*BaseRepository[models.Webinar, models.WebinarFilter]
}

func NewWebinarRepository(db *gorm.DB) WebinarRepository {
	return &WebinarRepositoryImpl{BaseRepository: NewBaseRepository[models.Webinar, models.WebinarFilter](db)}
}

func (r *WebinarRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.Webinar, error) {
	filter := models.WebinarFilter{UUID: &uuid}
	rows, err := r.ByFilter(ctx, filter, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *WebinarRepositoryImpl) applyFilter(db *gorm.DB, f models.WebinarFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if f.Slug != nil {
		db = db.Where("slug = ?", *f.Slug)
	}
	if f.RegistrationCampaignID != nil {
		db = db.Where("registration_campaign_id = ?", *f.RegistrationCampaignID)
	}
	return db
}

func (r *WebinarRepositoryImpl) ByFilter(ctx context.Context, filter models.WebinarFilter, orderBy string, limit, offset int) ([]*models.Webinar, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Webinar{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.Webinar
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *WebinarRepositoryImpl) Count(ctx context.Context, filter models.WebinarFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.Webinar{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *WebinarRepositoryImpl) Exists(ctx context.Context, filter models.WebinarFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
