package repository

import (
	"context"
	"fmt"

	"github.com/wertlabs/eventfunnel/models"
	"gorm.io/gorm"
)

// CampaignLinkRepositoryImpl implements CampaignLinkRepository
type CampaignLinkRepositoryImpl struct {
	*BaseRepository[models.CampaignLink, models.CampaignLinkFilter]
}

func NewCampaignLinkRepository(db *gorm.DB) CampaignLinkRepository {
	return &CampaignLinkRepositoryImpl{BaseRepository: NewBaseRepository[models.CampaignLink, models.CampaignLinkFilter](db)}
}

func (r *CampaignLinkRepositoryImpl) ByUUID(ctx context.Context, uuid string) (*models.CampaignLink, error) {
	filter := models.CampaignLinkFilter{UUID: &uuid}
	rows, err := r.ByFilter(ctx, filter, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ByCID is the resolution path for visits and conversions: case-sensitive exact
// match, scoped to the owning client, active links only.
func (r *CampaignLinkRepositoryImpl) ByCID(ctx context.Context, clientID uint, cid string) (*models.CampaignLink, error) {
	status := models.LinkStatusActive
	filter := models.CampaignLinkFilter{ClientID: &clientID, CID: &cid, Status: &status}
	rows, err := r.ByFilter(ctx, filter, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *CampaignLinkRepositoryImpl) ByClientAndName(ctx context.Context, clientID uint, name string) (*models.CampaignLink, error) {
	filter := models.CampaignLinkFilter{ClientID: &clientID, Name: &name}
	rows, err := r.ByFilter(ctx, filter, "id DESC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// UpdateFields applies a partial update; only the supplied columns change.
func (r *CampaignLinkRepositoryImpl) UpdateFields(ctx context.Context, id uint, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	db := r.getDB(ctx)
	res := db.Model(&models.CampaignLink{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update campaign link %d: %w", id, res.Error)
	}
	return nil
}

func (r *CampaignLinkRepositoryImpl) applyFilter(db *gorm.DB, f models.CampaignLinkFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.UUID != nil {
		db = db.Where("uuid = ?", *f.UUID)
	}
	if f.ClientID != nil {
		db = db.Where("client_id = ?", *f.ClientID)
	}
	if f.CampaignID != nil {
		db = db.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.WebinarID != nil {
		db = db.Where("webinar_id = ?", *f.WebinarID)
	}
	if f.Name != nil {
		db = db.Where("name = ?", *f.Name)
	}
	if f.CID != nil {
		db = db.Where("cid = ?", *f.CID)
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

func (r *CampaignLinkRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignLinkFilter, orderBy string, limit, offset int) ([]*models.CampaignLink, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.CampaignLink{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.CampaignLink
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CampaignLinkRepositoryImpl) Count(ctx context.Context, filter models.CampaignLinkFilter) (int64, error) {
	db := r.getDB(ctx)
	query := r.applyFilter(db.Model(&models.CampaignLink{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *CampaignLinkRepositoryImpl) Exists(ctx context.Context, filter models.CampaignLinkFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
