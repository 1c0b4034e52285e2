package dto

// CreateLinkRequest defines input for creating a trackable campaign link
type CreateLinkRequest struct {
	ClientID       uint    `json:"client_id" validate:"required"`
	CampaignID     *uint   `json:"campaign_id,omitempty" validate:"required_without=WebinarID"`
	WebinarID      *uint   `json:"webinar_id,omitempty"`
	Name           string  `json:"name" validate:"required,max=255"`
	CID            *string `json:"cid,omitempty" validate:"omitempty,max=64"`
	LandingVariant string  `json:"landing_variant" validate:"omitempty,oneof=welcome register survey"`
	UTMSource      *string `json:"utm_source,omitempty" validate:"omitempty,max=255"`
	UTMMedium      *string `json:"utm_medium,omitempty" validate:"omitempty,max=255"`
	UTMCampaign    *string `json:"utm_campaign,omitempty" validate:"omitempty,max=255"`
	UTMTerm        *string `json:"utm_term,omitempty" validate:"omitempty,max=255"`
	UTMContent     *string `json:"utm_content,omitempty" validate:"omitempty,max=255"`
}

// UpdateLinkRequest defines a partial update; only supplied fields change
type UpdateLinkRequest struct {
	UUID        string  `json:"uuid" validate:"required,uuid"`
	ClientID    uint    `json:"client_id" validate:"required"`
	Name        *string `json:"name,omitempty" validate:"omitempty,max=255"`
	CampaignID  *uint   `json:"campaign_id,omitempty"`
	WebinarID   *uint   `json:"webinar_id,omitempty"`
	UTMSource   *string `json:"utm_source,omitempty" validate:"omitempty,max=255"`
	UTMMedium   *string `json:"utm_medium,omitempty" validate:"omitempty,max=255"`
	UTMCampaign *string `json:"utm_campaign,omitempty" validate:"omitempty,max=255"`
	UTMTerm     *string `json:"utm_term,omitempty" validate:"omitempty,max=255"`
	UTMContent  *string `json:"utm_content,omitempty" validate:"omitempty,max=255"`
	Status      *string `json:"status,omitempty" validate:"omitempty,oneof=active archived"`
}

// LinkDTO is the Link resource returned by management endpoints, including the
// computed share and ad URLs
type LinkDTO struct {
	UUID           string  `json:"uuid"`
	ClientID       uint    `json:"client_id"`
	CampaignID     *uint   `json:"campaign_id,omitempty"`
	WebinarID      *uint   `json:"webinar_id,omitempty"`
	Name           string  `json:"name"`
	CID            string  `json:"cid"`
	LandingVariant string  `json:"landing_variant"`
	UTMSource      *string `json:"utm_source,omitempty"`
	UTMMedium      *string `json:"utm_medium,omitempty"`
	UTMCampaign    *string `json:"utm_campaign,omitempty"`
	UTMTerm        *string `json:"utm_term,omitempty"`
	UTMContent     *string `json:"utm_content,omitempty"`
	Status         string  `json:"status"`
	ShareURL       string  `json:"share_url"`
	CampaignURL    string  `json:"campaign_url"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// ListLinksRequest defines filters for listing a client's links
type ListLinksRequest struct {
	ClientID   uint    `json:"client_id" validate:"required"`
	CampaignID *uint   `json:"campaign_id,omitempty"`
	Status     *string `json:"status,omitempty" validate:"omitempty,oneof=active archived"`
	Page       int     `json:"page" validate:"omitempty,min=1"`
	PageSize   int     `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// ListLinksResponse wraps a page of links
type ListLinksResponse struct {
	Links []LinkDTO `json:"links"`
	Total int64     `json:"total"`
}
