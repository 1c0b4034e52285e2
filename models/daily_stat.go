package models

import "time"

// DailyStat is one materialized aggregate row: visit and conversion counts for
// a single (client, campaign, attribution key, local calendar date) bucket.
// The attribution key is the link id when known, otherwise the raw UTM triple;
// all-null attribution columns form the direct/unattributed bucket.
// Recomputation always replaces a bucket's counts, never increments them.
type DailyStat struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ClientID    uint      `gorm:"not null;index:idx_daily_stats_client_id;uniqueIndex:uk_daily_stats_bucket" json:"client_id"`
	CampaignID  uint      `gorm:"not null;index:idx_daily_stats_campaign_id;uniqueIndex:uk_daily_stats_bucket" json:"campaign_id"`
	BucketDate  time.Time `gorm:"type:date;not null;index:idx_daily_stats_bucket_date;uniqueIndex:uk_daily_stats_bucket" json:"bucket_date"`
	LinkID      *uint     `gorm:"index:idx_daily_stats_link_id;uniqueIndex:uk_daily_stats_bucket" json:"link_id,omitempty"`
	UTMSource   *string   `gorm:"size:255;uniqueIndex:uk_daily_stats_bucket" json:"utm_source,omitempty"`
	UTMMedium   *string   `gorm:"size:255;uniqueIndex:uk_daily_stats_bucket" json:"utm_medium,omitempty"`
	UTMCampaign *string   `gorm:"size:255;uniqueIndex:uk_daily_stats_bucket" json:"utm_campaign,omitempty"`
	Visits      int64     `gorm:"not null;default:0" json:"visits"`
	Conversions int64     `gorm:"not null;default:0" json:"conversions"`
	ComputedAt  time.Time `gorm:"not null" json:"computed_at"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for DailyStat
func (DailyStat) TableName() string { return "daily_stats" }

// DailyStatFilter provides filter fields for repository queries
type DailyStatFilter struct {
	ID         *uint
	ClientID   *uint
	CampaignID *uint
	LinkID     *uint
	DateFrom   *time.Time
	DateTo     *time.Time
}
