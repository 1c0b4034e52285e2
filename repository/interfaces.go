// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/wertlabs/eventfunnel/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// ClientRepository defines operations for tenant clients
type ClientRepository interface {
	Repository[models.Client, models.ClientFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Client, error)
}

// CampaignRepository defines operations for campaigns, including the
// compare-and-swap ordinal allocation used by the conversion recorder
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	ListByClient(ctx context.Context, clientID uint) ([]*models.Campaign, error)
	// AdvanceSurveyNo performs UPDATE ... SET next_survey_no = current+1
	// WHERE id = ? AND next_survey_no = current. It reports whether the swap
	// won; a false return means a concurrent writer advanced the counter first.
	AdvanceSurveyNo(ctx context.Context, campaignID uint, current int64) (bool, error)
}

// WebinarRepository defines operations for webinar entry points
type WebinarRepository interface {
	Repository[models.Webinar, models.WebinarFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Webinar, error)
}

// CampaignLinkRepository defines operations for trackable campaign links
type CampaignLinkRepository interface {
	Repository[models.CampaignLink, models.CampaignLinkFilter]
	ByUUID(ctx context.Context, uuid string) (*models.CampaignLink, error)
	// ByCID resolves an active link by its short code within one client scope.
	// Returns (nil, nil) when no active link matches.
	ByCID(ctx context.Context, clientID uint, cid string) (*models.CampaignLink, error)
	ByClientAndName(ctx context.Context, clientID uint, name string) (*models.CampaignLink, error)
	UpdateFields(ctx context.Context, id uint, fields map[string]any) error
}

// AccessEventRepository defines operations for raw visit events
type AccessEventRepository interface {
	Repository[models.AccessEvent, models.AccessEventFilter]
	// ListMatchCandidates returns events for the campaign whose accessed_at falls
	// inside [from, to], newest first, for the attribution matcher's window join.
	ListMatchCandidates(ctx context.Context, campaignID uint, from, to time.Time) ([]*models.AccessEvent, error)
	// StampConversion sets converted_at and entry_id on a visit, but only if the
	// visit has not been claimed by an earlier match. Reports whether a row changed.
	StampConversion(ctx context.Context, eventID uint, convertedAt time.Time, entryID uint) (bool, error)
	ListInRange(ctx context.Context, from, to time.Time) ([]*models.AccessEvent, error)
	CountInRange(ctx context.Context, campaignID uint, from, to time.Time) (int64, error)
	// ListCampaignTraffic returns events with accessed_at in [from, to) that
	// count toward the campaign: its own hits plus hits on the given webinars.
	ListCampaignTraffic(ctx context.Context, campaignID uint, webinarIDs []uint, from, to time.Time) ([]*models.AccessEvent, error)
	ListConvertedOrphans(ctx context.Context, campaignID uint) ([]*models.AccessEvent, error)
}

// ConversionEntryRepository defines operations for conversion entries
type ConversionEntryRepository interface {
	Repository[models.ConversionEntry, models.ConversionEntryFilter]
	ByUUID(ctx context.Context, uuid string) (*models.ConversionEntry, error)
	ByCampaignAndPhone(ctx context.Context, campaignID uint, phoneNorm string) (*models.ConversionEntry, error)
	// UpdateAttribution settles an unattributed entry's channel and stamps
	// attributed_at, even when the match resolved no channel (confirmed
	// direct). The write is guarded so a settled entry is never overwritten;
	// reports whether a row changed.
	UpdateAttribution(ctx context.Context, entryID uint, link *models.CampaignLink, utm map[string]*string, attributedAt time.Time) (bool, error)
	ListUnattributed(ctx context.Context, campaignID *uint, from, to time.Time) ([]*models.ConversionEntry, error)
	ListInRange(ctx context.Context, from, to time.Time) ([]*models.ConversionEntry, error)
	CountInRange(ctx context.Context, campaignID uint, from, to time.Time) (int64, error)
}

// DailyStatRepository defines operations for the materialized stats table.
// Writes go through ReplaceRange only so reruns stay idempotent.
type DailyStatRepository interface {
	Repository[models.DailyStat, models.DailyStatFilter]
	// ReplaceRange deletes every bucket in the (client?, date range) scope and
	// inserts the recomputed rows inside one transaction.
	ReplaceRange(ctx context.Context, clientID *uint, from, to time.Time, rows []*models.DailyStat) error
	ListRange(ctx context.Context, filter models.DailyStatFilter) ([]*models.DailyStat, error)
	SumConversions(ctx context.Context, campaignID uint, from, to time.Time) (int64, error)
	SumVisits(ctx context.Context, campaignID uint, from, to time.Time) (int64, error)
}

// AggregationRunRepository defines operations for recompute audit records
type AggregationRunRepository interface {
	Repository[models.AggregationRun, models.AggregationRunFilter]
	Update(ctx context.Context, run *models.AggregationRun) error
}
