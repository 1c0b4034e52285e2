package businessflow

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wertlabs/eventfunnel/app/dto"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	"github.com/wertlabs/eventfunnel/utils"
)

// ConversionFlow records registrations and survey submissions
// Each accepted entry receives the campaign's next ordinal through a
// compare-and-swap on the counter; the swap and the insert share one
// transaction so a failed insert never burns an ordinal
// Public flow, no authentication required
type ConversionFlow interface {
	RecordConversion(ctx context.Context, req *dto.RecordConversionRequest, metadata *ClientMetadata) (*dto.RecordConversionResponse, error)
}

// ConversionFlowImpl implements the conversion recorder business flow
type ConversionFlowImpl struct {
	campaignRepo repository.CampaignRepository
	linkRepo     repository.CampaignLinkRepository
	entryRepo    repository.ConversionEntryRepository
	matcher      AttributionMatcherFlow
	db           *gorm.DB
}

// NewConversionFlow creates a new conversion flow instance
func NewConversionFlow(
	campaignRepo repository.CampaignRepository,
	linkRepo repository.CampaignLinkRepository,
	entryRepo repository.ConversionEntryRepository,
	matcher AttributionMatcherFlow,
	db *gorm.DB,
) ConversionFlow {
	return &ConversionFlowImpl{
		campaignRepo: campaignRepo,
		linkRepo:     linkRepo,
		entryRepo:    entryRepo,
		matcher:      matcher,
		db:           db,
	}
}

// RecordConversion handles one submission end to end: identity dedup, ordinal
// allocation, attribution snapshot, and the async matcher handoff for entries
// that arrive without any channel information.
func (f *ConversionFlowImpl) RecordConversion(ctx context.Context, req *dto.RecordConversionRequest, metadata *ClientMetadata) (*dto.RecordConversionResponse, error) {
	if err := validateConversionRequest(req); err != nil {
		return nil, NewBusinessError("CONVERSION_VALIDATION_FAILED", "Conversion validation failed", err)
	}

	campaign, err := getCampaign(ctx, f.campaignRepo, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	phoneNorm := utils.NormalizePhone(req.Phone)
	entry := f.buildEntry(ctx, &campaign, req, phoneNorm)

	lockCampaignOrdinal(campaign.ID)
	defer unlockCampaignOrdinal(campaign.ID)

	// Duplicate identity: hand back the original ordinal instead of minting
	// a second registration for the same person. The check runs under the
	// campaign lock so two concurrent submissions of one phone serialize.
	existing, err := f.entryRepo.ByCampaignAndPhone(ctx, campaign.ID, phoneNorm)
	if err != nil {
		return nil, NewBusinessError("CONVERSION_LOOKUP_FAILED", "Failed to check existing registration", err)
	}
	if existing != nil {
		conversionsRecorded.WithLabelValues("duplicate").Inc()
		return &dto.RecordConversionResponse{
			Success:          true,
			SurveyNo:         existing.SurveyNo,
			Code6:            existing.Code6,
			AlreadySubmitted: true,
		}, nil
	}

	if err := f.allocateAndInsert(ctx, campaign.ID, entry); err != nil {
		if IsOrdinalConflict(err) {
			return nil, err
		}
		// Another instance can still land the same phone between the check
		// and the insert; the unique index turns that into an insert error
		if dup, derr := f.entryRepo.ByCampaignAndPhone(ctx, campaign.ID, phoneNorm); derr == nil && dup != nil {
			conversionsRecorded.WithLabelValues("duplicate").Inc()
			return &dto.RecordConversionResponse{
				Success:          true,
				SurveyNo:         dup.SurveyNo,
				Code6:            dup.Code6,
				AlreadySubmitted: true,
			}, nil
		}
		return nil, NewBusinessError("CONVERSION_RECORDING_FAILED", "Failed to record conversion", err)
	}

	// Entries that arrived without channel information go to the matcher.
	// This runs off the request path; a match failure only delays backfill.
	if !entry.HasAttribution() && f.matcher != nil {
		entryID := entry.ID
		go func() {
			bg, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := f.matcher.MatchEntry(bg, entryID); err != nil {
				log.Printf("conversion: async attribution match failed for entry %d: %v", entryID, err)
			}
		}()
	}

	conversionsRecorded.WithLabelValues("created").Inc()
	return &dto.RecordConversionResponse{
		Success:  true,
		SurveyNo: entry.SurveyNo,
		Code6:    entry.Code6,
	}, nil
}

func validateConversionRequest(req *dto.RecordConversionRequest) error {
	if req.Name == "" {
		return ErrNameRequired
	}
	if utils.NormalizePhone(req.Phone) == "" {
		return ErrPhoneRequired
	}
	return nil
}

// buildEntry assembles the row minus its ordinal. Attribution precedence
// mirrors the visit recorder: resolving cid first, explicit UTM second,
// nothing third.
func (f *ConversionFlowImpl) buildEntry(ctx context.Context, campaign *models.Campaign, req *dto.RecordConversionRequest, phoneNorm string) *models.ConversionEntry {
	now := utils.UTCNow()
	entry := &models.ConversionEntry{
		UUID:        uuid.New(),
		CampaignID:  campaign.ID,
		Name:        utils.ToPtr(req.Name),
		Company:     req.Company,
		PhoneNorm:   utils.ToPtr(phoneNorm),
		SessionID:   req.SessionID,
		FormData:    datatypes.JSONMap(req.FormData),
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.Query.CID != nil {
		cid := utils.NormalizeCID(*req.Query.CID)
		if cid != "" {
			entry.CID = &cid
			link, err := f.linkRepo.ByCID(ctx, campaign.ClientID, cid)
			if err != nil {
				log.Printf("conversion: cid lookup failed, deferring to matcher: %v", err)
			} else if link != nil {
				entry.LinkID = &link.ID
				entry.UTMSource = link.UTMSource
				entry.UTMMedium = link.UTMMedium
				entry.UTMCampaign = link.UTMCampaign
				entry.UTMTerm = link.UTMTerm
				entry.UTMContent = link.UTMContent
				entry.AttributedAt = &now
				return entry
			}
		}
	}

	utm := utmFromQuery(req.Query)
	if hasAnyUTM(utm) {
		entry.UTMSource = utm["utm_source"]
		entry.UTMMedium = utm["utm_medium"]
		entry.UTMCampaign = utm["utm_campaign"]
		entry.UTMTerm = utm["utm_term"]
		entry.UTMContent = utm["utm_content"]
		entry.AttributedAt = &now
	}
	return entry
}

// allocateAndInsert wins the next ordinal and persists the entry atomically.
// A lost swap means another writer took the ordinal between our read and our
// update; reload and retry once before giving up.
func (f *ConversionFlowImpl) allocateAndInsert(ctx context.Context, campaignID uint, entry *models.ConversionEntry) error {
	const maxAttempts = 2

	for attempt := 0; attempt < maxAttempts; attempt++ {
		campaign, err := f.campaignRepo.ByID(ctx, campaignID)
		if err != nil {
			return err
		}
		if campaign == nil {
			return ErrCampaignNotFound
		}

		current := campaign.NextSurveyNo

		err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
			won, err := f.campaignRepo.AdvanceSurveyNo(txCtx, campaignID, current)
			if err != nil {
				return err
			}
			if !won {
				return ErrOrdinalConflict
			}
			entry.SurveyNo = current
			entry.Code6 = models.FormatCode6(current)
			return f.entryRepo.Save(txCtx, entry)
		})

		if err == nil {
			return nil
		}
		if !IsOrdinalConflict(err) {
			return err
		}
		ordinalConflicts.Inc()
	}

	return ErrOrdinalConflict
}
