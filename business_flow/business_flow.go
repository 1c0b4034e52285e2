// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/wertlabs/eventfunnel/app/dto"
	"github.com/wertlabs/eventfunnel/config"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	"github.com/wertlabs/eventfunnel/utils"
)

const RequestIDKey = "X-Request-ID"

// ClientMetadata holds request-scoped caller information for audit trails
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// SetSessionID sets the session ID
func (cm *ClientMetadata) SetSessionID(sessionID string) {
	cm.SessionID = sessionID
}

func getClient(ctx context.Context, repo repository.ClientRepository, clientID uint) (models.Client, error) {
	client, err := repo.ByID(ctx, clientID)
	if err != nil {
		return models.Client{}, err
	}
	if client == nil {
		return models.Client{}, ErrClientNotFound
	}
	if !utils.IsTrue(client.IsActive) {
		return models.Client{}, ErrClientInactive
	}
	return *client, nil
}

func getCampaign(ctx context.Context, repo repository.CampaignRepository, campaignID uint) (models.Campaign, error) {
	campaign, err := repo.ByID(ctx, campaignID)
	if err != nil {
		return models.Campaign{}, err
	}
	if campaign == nil {
		return models.Campaign{}, ErrCampaignNotFound
	}
	return *campaign, nil
}

// reportingLocation resolves the zone daily buckets are evaluated in: the
// client override when present, otherwise the platform default.
func reportingLocation(client *models.Client, cfg config.AttributionConfig) (*time.Location, error) {
	name := cfg.ReportingTimezone
	if client != nil && client.ReportingTimezone != nil && *client.ReportingTimezone != "" {
		name = *client.ReportingTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, ErrInvalidReportingTimezone
	}
	return loc, nil
}

// utmFromQuery normalizes the raw tracking query into stored UTM pointers
func utmFromQuery(q dto.TrackingQuery) map[string]*string {
	return map[string]*string{
		"utm_source":   utils.NormalizeUTMPtr(q.UTMSource),
		"utm_medium":   utils.NormalizeUTMPtr(q.UTMMedium),
		"utm_campaign": utils.NormalizeUTMPtr(q.UTMCampaign),
		"utm_term":     utils.NormalizeUTMPtr(q.UTMTerm),
		"utm_content":  utils.NormalizeUTMPtr(q.UTMContent),
	}
}

func utmFromLink(link *models.CampaignLink) map[string]*string {
	return map[string]*string{
		"utm_source":   link.UTMSource,
		"utm_medium":   link.UTMMedium,
		"utm_campaign": link.UTMCampaign,
		"utm_term":     link.UTMTerm,
		"utm_content":  link.UTMContent,
	}
}

func hasAnyUTM(utm map[string]*string) bool {
	for _, v := range utm {
		if v != nil {
			return true
		}
	}
	return false
}

// BuildShareURL returns the short URL handed to channel owners: the public
// landing origin with only the cid attached.
func BuildShareURL(cfg config.TrackingConfig, link *models.CampaignLink) string {
	return fmt.Sprintf("%s/l/%s?%s=%s", cfg.ShareBaseURL, link.LandingVariant, cfg.CIDParam, url.QueryEscape(link.CID))
}

// BuildCampaignURL returns the long-form URL for ad platforms that require
// explicit UTM parameters in the final destination.
func BuildCampaignURL(cfg config.TrackingConfig, link *models.CampaignLink) string {
	values := url.Values{}
	values.Set(cfg.CIDParam, link.CID)
	for key, v := range map[string]*string{
		"utm_source":   link.UTMSource,
		"utm_medium":   link.UTMMedium,
		"utm_campaign": link.UTMCampaign,
		"utm_term":     link.UTMTerm,
		"utm_content":  link.UTMContent,
	} {
		if v != nil {
			values.Set(key, *v)
		}
	}
	return fmt.Sprintf("%s/l/%s?%s", cfg.ShareBaseURL, link.LandingVariant, values.Encode())
}

// ToLinkDTO converts a link model to its API representation
func ToLinkDTO(link *models.CampaignLink, cfg config.TrackingConfig) dto.LinkDTO {
	return dto.LinkDTO{
		UUID:           link.UUID.String(),
		ClientID:       link.ClientID,
		CampaignID:     link.CampaignID,
		WebinarID:      link.WebinarID,
		Name:           link.Name,
		CID:            link.CID,
		LandingVariant: link.LandingVariant,
		UTMSource:      link.UTMSource,
		UTMMedium:      link.UTMMedium,
		UTMCampaign:    link.UTMCampaign,
		UTMTerm:        link.UTMTerm,
		UTMContent:     link.UTMContent,
		Status:         link.Status,
		ShareURL:       BuildShareURL(cfg, link),
		CampaignURL:    BuildCampaignURL(cfg, link),
		CreatedAt:      link.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      link.UpdatedAt.Format(time.RFC3339),
	}
}

// ToDailyStatDTO converts a materialized bucket to its API representation
func ToDailyStatDTO(stat *models.DailyStat) dto.DailyStatDTO {
	return dto.DailyStatDTO{
		ClientID:    stat.ClientID,
		CampaignID:  stat.CampaignID,
		BucketDate:  stat.BucketDate.Format("2006-01-02"),
		LinkID:      stat.LinkID,
		UTMSource:   stat.UTMSource,
		UTMMedium:   stat.UTMMedium,
		UTMCampaign: stat.UTMCampaign,
		Visits:      stat.Visits,
		Conversions: stat.Conversions,
		ComputedAt:  stat.ComputedAt.Format(time.RFC3339),
	}
}

// parseDateRange parses inclusive YYYY-MM-DD bounds into local calendar dates
func parseDateRange(from, to string) (time.Time, time.Time, error) {
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, ErrDateRangeRequired
	}
	f, err := time.Parse("2006-01-02", from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", err)
	}
	t, err := time.Parse("2006-01-02", to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", err)
	}
	if f.After(t) {
		return time.Time{}, time.Time{}, ErrStartDateAfterEndDate
	}
	return f, t, nil
}
