package models

import (
	"time"

	"github.com/google/uuid"
)

// Campaign type constants
const (
	CampaignTypeRegistration = "registration"
	CampaignTypeSurvey       = "survey"
)

// Campaign represents an event-survey campaign (the registration target of webinars and links)
// NextSurveyNo is the per-campaign ordinal counter; it is only advanced through
// a compare-and-swap update so concurrent registrations never share an ordinal
type Campaign struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UUID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	ClientID     uint      `gorm:"not null;index:idx_campaigns_client_id" json:"client_id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Type         string    `gorm:"size:32;not null;default:'registration'" json:"type"`
	NextSurveyNo int64     `gorm:"not null;default:1" json:"next_survey_no"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for Campaign
func (Campaign) TableName() string { return "campaigns" }

// CampaignFilter provides filter fields for repository queries
type CampaignFilter struct {
	ID       *uint
	UUID     *string
	ClientID *uint
	Type     *string
}

// Webinar represents a live event entry point; visits may land on a webinar
// page instead of a campaign page. RegistrationCampaignID, when set, is the
// campaign that collects the webinar's registrations.
type Webinar struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	UUID                   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_webinars_uuid" json:"uuid"`
	ClientID               uint      `gorm:"not null;index:idx_webinars_client_id" json:"client_id"`
	Slug                   string    `gorm:"size:128;not null" json:"slug"`
	Title                  string    `gorm:"size:255;not null" json:"title"`
	RegistrationCampaignID *uint     `gorm:"index:idx_webinars_registration_campaign_id" json:"registration_campaign_id,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for Webinar
func (Webinar) TableName() string { return "webinars" }

// WebinarFilter provides filter fields for repository queries
type WebinarFilter struct {
	ID                     *uint
	UUID                   *string
	ClientID               *uint
	Slug                   *string
	RegistrationCampaignID *uint
}
