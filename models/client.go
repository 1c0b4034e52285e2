package models

import (
	"time"

	"github.com/google/uuid"
)

// Client represents a tenant (an agency's customer) that owns campaigns and links
// ReportingTimezone overrides the platform default when set
type Client struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UUID              uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_clients_uuid" json:"uuid"`
	AgencyID          *uint     `gorm:"index:idx_clients_agency_id" json:"agency_id,omitempty"`
	Name              string    `gorm:"size:255;not null" json:"name"`
	ReportingTimezone *string   `gorm:"size:64" json:"reporting_timezone,omitempty"`
	IsActive          *bool     `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for Client
func (Client) TableName() string { return "clients" }

// ClientFilter provides filter fields for repository queries
type ClientFilter struct {
	ID       *uint
	UUID     *string
	AgencyID *uint
	Name     *string
	IsActive *bool
}
