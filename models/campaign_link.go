package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign link lifecycle status constants
const (
	LinkStatusActive   = "active"
	LinkStatusArchived = "archived"
)

// Landing variant constants
const (
	LandingVariantWelcome  = "welcome"
	LandingVariantRegister = "register"
	LandingVariantSurvey   = "survey"
)

// CampaignLink represents a named, reusable trackable URL for one marketing channel
// CID is the short opaque code embedded in shared URLs; unique within the owning client
// UTM fields are stored normalized (trimmed, lower-cased)
// Archived links are never physically removed because historical stats reference them by id
type CampaignLink struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UUID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_campaign_links_uuid" json:"uuid"`
	ClientID       uint      `gorm:"not null;index:idx_campaign_links_client_id;uniqueIndex:uk_campaign_links_client_name;uniqueIndex:uk_campaign_links_client_cid" json:"client_id"`
	CampaignID     *uint     `gorm:"index:idx_campaign_links_campaign_id" json:"campaign_id,omitempty"`
	WebinarID      *uint     `gorm:"index:idx_campaign_links_webinar_id" json:"webinar_id,omitempty"`
	Name           string    `gorm:"size:255;not null;uniqueIndex:uk_campaign_links_client_name" json:"name"`
	CID            string    `gorm:"size:64;not null;uniqueIndex:uk_campaign_links_client_cid" json:"cid"`
	LandingVariant string    `gorm:"size:32;not null;default:'register'" json:"landing_variant"`
	UTMSource      *string   `gorm:"size:255" json:"utm_source,omitempty"`
	UTMMedium      *string   `gorm:"size:255" json:"utm_medium,omitempty"`
	UTMCampaign    *string   `gorm:"size:255" json:"utm_campaign,omitempty"`
	UTMTerm        *string   `gorm:"size:255" json:"utm_term,omitempty"`
	UTMContent     *string   `gorm:"size:255" json:"utm_content,omitempty"`
	Status         string    `gorm:"size:32;not null;default:'active';index:idx_campaign_links_status" json:"status"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaign_links_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for CampaignLink
func (CampaignLink) TableName() string { return "campaign_links" }

// IsArchived reports whether the link has been soft-deleted
func (l *CampaignLink) IsArchived() bool { return l.Status == LinkStatusArchived }

// CampaignLinkFilter provides filter fields for repository queries
type CampaignLinkFilter struct {
	ID            *uint
	UUID          *string
	ClientID      *uint
	CampaignID    *uint
	WebinarID     *uint
	Name          *string
	CID           *string
	Status        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
