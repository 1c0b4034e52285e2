// Package testing provides test utilities and database setup for testing the attribution system
package testing

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestClient creates an active client with the platform default timezone
func (tf *TestFixtures) CreateTestClient() (*models.Client, error) {
	client := &models.Client{
		UUID:     uuid.New(),
		Name:     fmt.Sprintf("Test Client %d", rand.Intn(100000)),
		IsActive: utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(client).Error; err != nil {
		return nil, fmt.Errorf("failed to create test client: %w", err)
	}
	return client, nil
}

// CreateTestClientInTimezone creates an active client with an explicit reporting timezone
func (tf *TestFixtures) CreateTestClientInTimezone(tz string) (*models.Client, error) {
	client := &models.Client{
		UUID:              uuid.New(),
		Name:              fmt.Sprintf("Test Client %d", rand.Intn(100000)),
		ReportingTimezone: utils.ToPtr(tz),
		IsActive:          utils.ToPtr(true),
	}
	if err := tf.DB.DB.Create(client).Error; err != nil {
		return nil, fmt.Errorf("failed to create test client: %w", err)
	}
	return client, nil
}

// CreateTestCampaign creates a registration campaign owned by the given client
func (tf *TestFixtures) CreateTestCampaign(clientID uint) (*models.Campaign, error) {
	campaign := &models.Campaign{
		UUID:         uuid.New(),
		ClientID:     clientID,
		Title:        fmt.Sprintf("Test Campaign %d", rand.Intn(100000)),
		Type:         models.CampaignTypeRegistration,
		NextSurveyNo: 1,
	}
	if err := tf.DB.DB.Create(campaign).Error; err != nil {
		return nil, fmt.Errorf("failed to create test campaign: %w", err)
	}
	return campaign, nil
}

// CreateTestWebinar creates a webinar whose registrations land on the given campaign
func (tf *TestFixtures) CreateTestWebinar(clientID uint, registrationCampaignID *uint) (*models.Webinar, error) {
	webinar := &models.Webinar{
		UUID:                   uuid.New(),
		ClientID:               clientID,
		Slug:                   fmt.Sprintf("test-webinar-%d", rand.Intn(100000)),
		Title:                  "Test Webinar",
		RegistrationCampaignID: registrationCampaignID,
	}
	if err := tf.DB.DB.Create(webinar).Error; err != nil {
		return nil, fmt.Errorf("failed to create test webinar: %w", err)
	}
	return webinar, nil
}

// CreateTestLink creates an active campaign link with the given UTM source
func (tf *TestFixtures) CreateTestLink(clientID, campaignID uint, utmSource string) (*models.CampaignLink, error) {
	cid, err := utils.GenerateCID(utils.CIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate cid: %w", err)
	}
	link := &models.CampaignLink{
		UUID:           uuid.New(),
		ClientID:       clientID,
		CampaignID:     &campaignID,
		Name:           fmt.Sprintf("Test Link %d", rand.Intn(100000)),
		CID:            cid,
		LandingVariant: models.LandingVariantRegister,
		Status:         models.LinkStatusActive,
	}
	if utmSource != "" {
		link.UTMSource = utils.ToPtr(utmSource)
		link.UTMMedium = utils.ToPtr("cpc")
		link.UTMCampaign = utils.ToPtr("launch")
	}
	if err := tf.DB.DB.Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create test link: %w", err)
	}
	return link, nil
}

// CreateTestVisit creates an access event for the given campaign
func (tf *TestFixtures) CreateTestVisit(campaignID uint, sessionID string, link *models.CampaignLink, accessedAt time.Time) (*models.AccessEvent, error) {
	event := &models.AccessEvent{
		CampaignID: &campaignID,
		AccessedAt: accessedAt,
	}
	if sessionID != "" {
		event.SessionID = utils.ToPtr(sessionID)
	}
	if link != nil {
		event.LinkID = &link.ID
		event.CID = utils.ToPtr(link.CID)
		event.UTMSource = link.UTMSource
		event.UTMMedium = link.UTMMedium
		event.UTMCampaign = link.UTMCampaign
	}
	if err := tf.DB.DB.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to create test visit: %w", err)
	}
	return event, nil
}

// CreateTestWebinarVisit creates an access event landing on a webinar page
func (tf *TestFixtures) CreateTestWebinarVisit(webinarID uint, sessionID string, accessedAt time.Time) (*models.AccessEvent, error) {
	event := &models.AccessEvent{
		WebinarID:  &webinarID,
		AccessedAt: accessedAt,
	}
	if sessionID != "" {
		event.SessionID = utils.ToPtr(sessionID)
	}
	if err := tf.DB.DB.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to create test webinar visit: %w", err)
	}
	return event, nil
}

// CreateTestEntry creates a conversion entry with the next free ordinal for
// the campaign. An empty sessionID leaves the entry sessionless.
func (tf *TestFixtures) CreateTestEntry(campaignID uint, surveyNo int64, sessionID string, submittedAt time.Time) (*models.ConversionEntry, error) {
	phone := fmt.Sprintf("0101%07d", rand.Intn(10000000))
	entry := &models.ConversionEntry{
		UUID:        uuid.New(),
		CampaignID:  campaignID,
		SurveyNo:    surveyNo,
		Code6:       models.FormatCode6(surveyNo),
		Name:        utils.ToPtr("Test Person"),
		PhoneNorm:   utils.ToPtr(phone),
		IsRecovered: utils.ToPtr(false),
		SubmittedAt: submittedAt,
	}
	if sessionID != "" {
		entry.SessionID = utils.ToPtr(sessionID)
	}
	if err := tf.DB.DB.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to create test entry: %w", err)
	}
	return entry, nil
}
