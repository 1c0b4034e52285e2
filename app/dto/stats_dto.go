package dto

// ListStatsRequest defines filters for the stats read API. Dates are
// YYYY-MM-DD in the reporting time zone.
type ListStatsRequest struct {
	ClientID   *uint  `json:"client_id,omitempty"`
	CampaignID *uint  `json:"campaign_id,omitempty"`
	From       string `json:"from" validate:"required,datetime=2006-01-02"`
	To         string `json:"to" validate:"required,datetime=2006-01-02"`
}

// DailyStatDTO is one materialized bucket row, optionally joined with link
// metadata for display
type DailyStatDTO struct {
	ClientID    uint    `json:"client_id"`
	CampaignID  uint    `json:"campaign_id"`
	BucketDate  string  `json:"bucket_date"`
	LinkID      *uint   `json:"link_id,omitempty"`
	LinkName    *string `json:"link_name,omitempty"`
	LinkCID     *string `json:"link_cid,omitempty"`
	UTMSource   *string `json:"utm_source,omitempty"`
	UTMMedium   *string `json:"utm_medium,omitempty"`
	UTMCampaign *string `json:"utm_campaign,omitempty"`
	Visits      int64   `json:"visits"`
	Conversions int64   `json:"conversions"`
	ComputedAt  string  `json:"computed_at"`
}

// ListStatsResponse wraps bucket rows for one query
type ListStatsResponse struct {
	Stats []DailyStatDTO `json:"stats"`
	Total int            `json:"total"`
}

// AggregateRequest triggers a recompute over a date range (cron or manual)
type AggregateRequest struct {
	From     string `json:"from" validate:"required,datetime=2006-01-02"`
	To       string `json:"to" validate:"required,datetime=2006-01-02"`
	ClientID *uint  `json:"client_id,omitempty"`
}

// AggregateResponse summarizes one recompute run
type AggregateResponse struct {
	Success      bool   `json:"success"`
	BucketsWrote int64  `json:"buckets_wrote"`
	Visits       int64  `json:"visits"`
	Conversions  int64  `json:"conversions"`
	From         string `json:"from"`
	To           string `json:"to"`
}

// ReconcileRequest checks raw events against materialized buckets
type ReconcileRequest struct {
	CampaignID uint   `json:"campaign_id" validate:"required"`
	From       string `json:"from" validate:"required,datetime=2006-01-02"`
	To         string `json:"to" validate:"required,datetime=2006-01-02"`
}

// ReconcileResponse reports the conservation check outcome; mismatches are
// reported, never auto-corrected
type ReconcileResponse struct {
	Consistent        bool  `json:"consistent"`
	RawVisits         int64 `json:"raw_visits"`
	BucketVisits      int64 `json:"bucket_visits"`
	RawConversions    int64 `json:"raw_conversions"`
	BucketConversions int64 `json:"bucket_conversions"`
	DistinctRawVisits int64 `json:"distinct_raw_visits"`
}

// ReattributeRequest re-runs the attribution matcher over a past range
type ReattributeRequest struct {
	CampaignID *uint  `json:"campaign_id,omitempty"`
	From       string `json:"from" validate:"required,datetime=2006-01-02"`
	To         string `json:"to" validate:"required,datetime=2006-01-02"`
}

// ReattributeResponse summarizes a matcher back-run
type ReattributeResponse struct {
	Examined int `json:"examined"`
	Matched  int `json:"matched"`
}

// RecoverEntriesRequest rebuilds deleted conversion entries from access events
type RecoverEntriesRequest struct {
	CampaignID uint `json:"campaign_id" validate:"required"`
}

// RecoverEntriesResponse summarizes a recovery run
type RecoverEntriesResponse struct {
	Recovered int `json:"recovered"`
}

// CorrectEntryRequest manually fixes one entry's attribution, identified by UUID
type CorrectEntryRequest struct {
	EntryUUID   string  `json:"entry_uuid" validate:"required,uuid"`
	LinkUUID    *string `json:"link_uuid,omitempty" validate:"omitempty,uuid"`
	UTMSource   *string `json:"utm_source,omitempty"`
	UTMMedium   *string `json:"utm_medium,omitempty"`
	UTMCampaign *string `json:"utm_campaign,omitempty"`
	UTMTerm     *string `json:"utm_term,omitempty"`
	UTMContent  *string `json:"utm_content,omitempty"`
}

// CorrectEntryResponse reports the correction and the recompute that followed
type CorrectEntryResponse struct {
	Success      bool   `json:"success"`
	RecomputedOn string `json:"recomputed_on"`
}
