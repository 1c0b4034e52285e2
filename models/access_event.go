package models

import "time"

// AccessEvent represents a single page visit at a public campaign or webinar entry point
// Exactly one of CampaignID / WebinarID is set
// AccessedAt is immutable once written; ConvertedAt and EntryID are stamped at
// most once by the attribution matcher when a later conversion is joined back
// to this visit
type AccessEvent struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	SessionID   *string `gorm:"size:128;index:idx_access_events_session_id" json:"session_id,omitempty"`
	CampaignID  *uint   `gorm:"index:idx_access_events_campaign_id" json:"campaign_id,omitempty"`
	WebinarID   *uint   `gorm:"index:idx_access_events_webinar_id" json:"webinar_id,omitempty"`
	LinkID      *uint   `gorm:"index:idx_access_events_link_id" json:"link_id,omitempty"`
	CID         *string `gorm:"size:64" json:"cid,omitempty"`
	UTMSource   *string `gorm:"size:255" json:"utm_source,omitempty"`
	UTMMedium   *string `gorm:"size:255" json:"utm_medium,omitempty"`
	UTMCampaign *string `gorm:"size:255" json:"utm_campaign,omitempty"`
	UTMTerm     *string `gorm:"size:255" json:"utm_term,omitempty"`
	UTMContent  *string `gorm:"size:255" json:"utm_content,omitempty"`
	Referrer    *string `gorm:"type:text" json:"referrer,omitempty"`
	UserAgent   *string `gorm:"type:text" json:"user_agent,omitempty"`

	AccessedAt  time.Time  `gorm:"not null;index:idx_access_events_accessed_at" json:"accessed_at"`
	ConvertedAt *time.Time `gorm:"index:idx_access_events_converted_at" json:"converted_at,omitempty"`
	EntryID     *uint      `gorm:"index:idx_access_events_entry_id" json:"entry_id,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
}

// TableName returns the table name for AccessEvent
func (AccessEvent) TableName() string { return "access_events" }

// HasAttribution reports whether the visit carries any resolved marketing channel
func (e *AccessEvent) HasAttribution() bool {
	return e.LinkID != nil || e.UTMSource != nil || e.UTMMedium != nil ||
		e.UTMCampaign != nil || e.UTMTerm != nil || e.UTMContent != nil
}

// AccessEventFilter provides filter fields for repository queries
type AccessEventFilter struct {
	ID             *uint
	SessionID      *string
	CampaignID     *uint
	WebinarID      *uint
	LinkID         *uint
	EntryID        *uint
	Converted      *bool
	AccessedAfter  *time.Time
	AccessedBefore *time.Time
}
