package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ConversionEntry represents a completed registration or survey submission
// (CampaignID, SurveyNo) and (CampaignID, PhoneNorm) are unique; Code6 is the
// zero-padded human code shown to the registrant. Attribution fields are populated from one source only:
// a resolved link, explicit UTM params, or a later matcher backfill.
// FormData is the opaque submitted payload; every field the attribution and
// dedup logic reads (identity, UTM) is hoisted into typed columns at write time.
// IsRecovered marks rows rebuilt from access events after a deletion; such
// rows carry attribution but no personal identity fields.
// AttributedAt is stamped exactly once when the channel question is settled,
// whether at submission, by the matcher, or by an operator correction. A
// non-NULL AttributedAt with NULL channel columns is a confirmed direct
// conversion: the matcher joined it to a visit that itself carried no channel,
// and later sweeps must not reopen it.
type ConversionEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_conversion_entries_uuid" json:"uuid"`
	CampaignID  uint      `gorm:"not null;index:idx_conversion_entries_campaign_id;uniqueIndex:uk_conversion_entries_campaign_survey_no;uniqueIndex:uk_conversion_entries_campaign_phone" json:"campaign_id"`
	SurveyNo    int64     `gorm:"not null;uniqueIndex:uk_conversion_entries_campaign_survey_no" json:"survey_no"`
	Code6       string    `gorm:"size:6;not null" json:"code6"`
	Name        *string   `gorm:"size:255" json:"name,omitempty"`
	Company     *string   `gorm:"size:255" json:"company,omitempty"`
	PhoneNorm   *string   `gorm:"size:32;uniqueIndex:uk_conversion_entries_campaign_phone" json:"phone_norm,omitempty"`
	SessionID   *string   `gorm:"size:128;index:idx_conversion_entries_session_id" json:"session_id,omitempty"`
	LinkID      *uint     `gorm:"index:idx_conversion_entries_link_id" json:"link_id,omitempty"`
	CID         *string   `gorm:"size:64" json:"cid,omitempty"`
	UTMSource   *string   `gorm:"size:255" json:"utm_source,omitempty"`
	UTMMedium   *string   `gorm:"size:255" json:"utm_medium,omitempty"`
	UTMCampaign *string   `gorm:"size:255" json:"utm_campaign,omitempty"`
	UTMTerm     *string   `gorm:"size:255" json:"utm_term,omitempty"`
	UTMContent  *string   `gorm:"size:255" json:"utm_content,omitempty"`

	FormData     datatypes.JSONMap `gorm:"type:jsonb" json:"form_data,omitempty"`
	IsRecovered  *bool             `gorm:"default:false" json:"is_recovered"`
	AttributedAt *time.Time        `gorm:"index:idx_conversion_entries_attributed_at" json:"attributed_at,omitempty"`

	SubmittedAt time.Time `gorm:"not null;index:idx_conversion_entries_submitted_at" json:"submitted_at"`
	CreatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt   time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for ConversionEntry
func (ConversionEntry) TableName() string { return "conversion_entries" }

// HasAttribution reports whether the entry carries any resolved marketing channel
func (e *ConversionEntry) HasAttribution() bool {
	return e.LinkID != nil || e.UTMSource != nil || e.UTMMedium != nil ||
		e.UTMCampaign != nil || e.UTMTerm != nil || e.UTMContent != nil
}

// FormatCode6 renders a survey ordinal as the 6-digit zero-padded human code
func FormatCode6(surveyNo int64) string {
	return fmt.Sprintf("%06d", surveyNo)
}

// ConversionEntryFilter provides filter fields for repository queries
type ConversionEntryFilter struct {
	ID              *uint
	UUID            *string
	CampaignID      *uint
	SurveyNo        *int64
	PhoneNorm       *string
	SessionID       *string
	LinkID          *uint
	Unattributed    *bool
	IsRecovered     *bool
	SubmittedAfter  *time.Time
	SubmittedBefore *time.Time
}
