package dto

// TrackingQuery carries the attribution-relevant query parameters forwarded by
// public entry pages. All fields are optional; a request with none of them is
// ordinary direct traffic.
type TrackingQuery struct {
	CID         *string `json:"cid,omitempty"`
	UTMSource   *string `json:"utm_source,omitempty"`
	UTMMedium   *string `json:"utm_medium,omitempty"`
	UTMCampaign *string `json:"utm_campaign,omitempty"`
	UTMTerm     *string `json:"utm_term,omitempty"`
	UTMContent  *string `json:"utm_content,omitempty"`
}

// RecordVisitRequest defines input for the public visit ingestion endpoint
type RecordVisitRequest struct {
	SessionID  string        `json:"session_id"`
	CampaignID *uint         `json:"campaign_id,omitempty"`
	WebinarID  *uint         `json:"webinar_id,omitempty"`
	Referrer   *string       `json:"referrer,omitempty"`
	UserAgent  *string       `json:"user_agent,omitempty"`
	Query      TrackingQuery `json:"query"`
}

// RecordVisitResponse acknowledges a visit; success is reported even when no
// attribution could be resolved
type RecordVisitResponse struct {
	Success bool `json:"success"`
}

// RecordConversionRequest defines input for the public registration endpoint
type RecordConversionRequest struct {
	CampaignID uint           `json:"campaign_id" validate:"required"`
	SessionID  *string        `json:"session_id,omitempty"`
	Name       string         `json:"name" validate:"required,max=255"`
	Company    *string        `json:"company,omitempty" validate:"omitempty,max=255"`
	Phone      string         `json:"phone" validate:"required,max=32"`
	FormData   map[string]any `json:"form_data,omitempty"`
	Query      TrackingQuery  `json:"query"`
}

// RecordConversionResponse returns the allocated ordinal and human code.
// AlreadySubmitted reports the duplicate-identity case, in which the existing
// entry's ordinal is returned instead of a new one.
type RecordConversionResponse struct {
	Success          bool   `json:"success"`
	SurveyNo         int64  `json:"survey_no"`
	Code6            string `json:"code6"`
	AlreadySubmitted bool   `json:"already_submitted"`
}
