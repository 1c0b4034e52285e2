package models

import (
	"encoding/json"
	"time"
)

// Aggregation run trigger constants
const (
	AggregationTriggerSchedule   = "schedule"
	AggregationTriggerCron       = "cron"
	AggregationTriggerCorrection = "correction"
)

// Aggregation run status constants
const (
	AggregationRunStatusRunning   = "running"
	AggregationRunStatusSucceeded = "succeeded"
	AggregationRunStatusFailed    = "failed"
)

// AggregationRun is the audit record of one Recompute invocation: who asked,
// over what scope, and what it produced. Corrections are never applied
// silently, so every recompute leaves one of these rows behind.
type AggregationRun struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ClientID     *uint           `gorm:"index:idx_aggregation_runs_client_id" json:"client_id,omitempty"`
	Trigger      string          `gorm:"size:32;not null;index:idx_aggregation_runs_trigger" json:"trigger"`
	RangeFrom    time.Time       `gorm:"type:date;not null" json:"range_from"`
	RangeTo      time.Time       `gorm:"type:date;not null" json:"range_to"`
	BucketsWrote int64           `gorm:"not null;default:0" json:"buckets_wrote"`
	Visits       int64           `gorm:"not null;default:0" json:"visits"`
	Conversions  int64           `gorm:"not null;default:0" json:"conversions"`
	Status       string          `gorm:"size:32;not null;index:idx_aggregation_runs_status" json:"status"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	StartedAt    time.Time       `gorm:"not null" json:"started_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_aggregation_runs_created_at" json:"created_at"`
}

// TableName returns the table name for AggregationRun
func (AggregationRun) TableName() string { return "aggregation_runs" }

// AggregationRunFilter provides filter fields for repository queries
type AggregationRunFilter struct {
	ID            *uint
	ClientID      *uint
	Trigger       *string
	Status        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
