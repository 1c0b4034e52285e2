package businessflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wertlabs/eventfunnel/app/dto"
	"github.com/wertlabs/eventfunnel/config"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	"github.com/wertlabs/eventfunnel/utils"
)

// CorrectionFlow is the operator toolkit for historical fixes: matcher
// back-runs, conservation checks, manual attribution overrides, and recovery
// of deleted entries from their converted visits
// Every mutation here ends with a recompute of the affected window so the
// materialized buckets never drift from the raw events
type CorrectionFlow interface {
	ReattributeRange(ctx context.Context, req *dto.ReattributeRequest, metadata *ClientMetadata) (*dto.ReattributeResponse, error)
	ReconcileRange(ctx context.Context, req *dto.ReconcileRequest) (*dto.ReconcileResponse, error)
	CorrectEntryAttribution(ctx context.Context, req *dto.CorrectEntryRequest, metadata *ClientMetadata) (*dto.CorrectEntryResponse, error)
	RecoverDeletedEntries(ctx context.Context, req *dto.RecoverEntriesRequest, metadata *ClientMetadata) (*dto.RecoverEntriesResponse, error)
}

// CorrectionFlowImpl implements the correction toolkit
type CorrectionFlowImpl struct {
	clientRepo     repository.ClientRepository
	campaignRepo   repository.CampaignRepository
	webinarRepo    repository.WebinarRepository
	linkRepo       repository.CampaignLinkRepository
	eventRepo      repository.AccessEventRepository
	entryRepo      repository.ConversionEntryRepository
	statRepo       repository.DailyStatRepository
	matcher        AttributionMatcherFlow
	aggregation    AggregationFlow
	attributionCfg config.AttributionConfig
	db             *gorm.DB
}

// NewCorrectionFlow creates a new correction flow instance
func NewCorrectionFlow(
	clientRepo repository.ClientRepository,
	campaignRepo repository.CampaignRepository,
	webinarRepo repository.WebinarRepository,
	linkRepo repository.CampaignLinkRepository,
	eventRepo repository.AccessEventRepository,
	entryRepo repository.ConversionEntryRepository,
	statRepo repository.DailyStatRepository,
	matcher AttributionMatcherFlow,
	aggregation AggregationFlow,
	db *gorm.DB,
	attributionCfg config.AttributionConfig,
) CorrectionFlow {
	return &CorrectionFlowImpl{
		clientRepo:     clientRepo,
		campaignRepo:   campaignRepo,
		webinarRepo:    webinarRepo,
		linkRepo:       linkRepo,
		eventRepo:      eventRepo,
		entryRepo:      entryRepo,
		statRepo:       statRepo,
		matcher:        matcher,
		aggregation:    aggregation,
		attributionCfg: attributionCfg,
		db:             db,
	}
}

// ReattributeRange re-runs the matcher over a past window, then recomputes the
// same window so matched entries move out of the direct bucket.
func (f *CorrectionFlowImpl) ReattributeRange(ctx context.Context, req *dto.ReattributeRequest, metadata *ClientMetadata) (*dto.ReattributeResponse, error) {
	resp, err := f.matcher.BackfillAttribution(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.Matched > 0 {
		fromDate, toDate, perr := parseDateRange(req.From, req.To)
		if perr != nil {
			return nil, NewBusinessError("REATTRIBUTE_VALIDATION_FAILED", "Reattribute validation failed", perr)
		}
		var clientID *uint
		if req.CampaignID != nil {
			campaign, cerr := getCampaign(ctx, f.campaignRepo, *req.CampaignID)
			if cerr != nil {
				return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", cerr)
			}
			clientID = &campaign.ClientID
		}
		if _, err := f.aggregation.RecomputeWindow(ctx, models.AggregationTriggerCorrection, clientID, fromDate, toDate); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// ReconcileRange checks conservation for one campaign: distinct-session visits
// and entry counts in the raw tables must equal the bucket sums. Mismatches
// are reported, never silently patched.
func (f *CorrectionFlowImpl) ReconcileRange(ctx context.Context, req *dto.ReconcileRequest) (*dto.ReconcileResponse, error) {
	fromDate, toDate, err := parseDateRange(req.From, req.To)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_VALIDATION_FAILED", "Reconcile validation failed", err)
	}

	campaign, err := getCampaign(ctx, f.campaignRepo, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}
	client, err := f.clientRepo.ByID(ctx, campaign.ClientID)
	if err != nil || client == nil {
		return nil, NewBusinessError("CLIENT_LOOKUP_FAILED", "Failed to lookup client", err)
	}
	loc, err := reportingLocation(client, f.attributionCfg)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_TZ_FAILED", "Failed to resolve reporting timezone", err)
	}

	utcFrom, _ := utils.LocalDayBounds(fromDate, loc)
	_, utcTo := utils.LocalDayBounds(toDate, loc)

	// Webinar visits count under the registration campaign during aggregation,
	// so the raw side must sweep them in too.
	webinars, err := f.webinarRepo.ByFilter(ctx, models.WebinarFilter{RegistrationCampaignID: &campaign.ID}, "", 0, 0)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_SCAN_FAILED", "Failed to scan webinars", err)
	}
	webinarIDs := make([]uint, 0, len(webinars))
	for _, w := range webinars {
		webinarIDs = append(webinarIDs, w.ID)
	}

	events, err := f.eventRepo.ListCampaignTraffic(ctx, campaign.ID, webinarIDs, utcFrom, utcTo)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_SCAN_FAILED", "Failed to scan raw visits", err)
	}
	rawVisits := int64(len(events))
	distinctVisits := distinctVisitCount(events, loc)

	rawConversions, err := f.entryRepo.CountInRange(ctx, campaign.ID, utcFrom, utcTo)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_SCAN_FAILED", "Failed to count raw conversions", err)
	}
	bucketVisits, err := f.statRepo.SumVisits(ctx, campaign.ID, fromDate, toDate)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_SCAN_FAILED", "Failed to sum bucket visits", err)
	}
	bucketConversions, err := f.statRepo.SumConversions(ctx, campaign.ID, fromDate, toDate)
	if err != nil {
		return nil, NewBusinessError("RECONCILE_SCAN_FAILED", "Failed to sum bucket conversions", err)
	}

	return &dto.ReconcileResponse{
		Consistent:        bucketVisits == distinctVisits && bucketConversions == rawConversions,
		RawVisits:         rawVisits,
		BucketVisits:      bucketVisits,
		RawConversions:    rawConversions,
		BucketConversions: bucketConversions,
		DistinctRawVisits: distinctVisits,
	}, nil
}

// CorrectEntryAttribution overrides one entry's channel by hand. Unlike the
// matcher this is allowed to repaint an attributed entry; that is the point.
// The entry's local date is recomputed before returning.
func (f *CorrectionFlowImpl) CorrectEntryAttribution(ctx context.Context, req *dto.CorrectEntryRequest, metadata *ClientMetadata) (*dto.CorrectEntryResponse, error) {
	if req.LinkUUID == nil && req.UTMSource == nil && req.UTMMedium == nil &&
		req.UTMCampaign == nil && req.UTMTerm == nil && req.UTMContent == nil {
		return nil, NewBusinessError("CORRECTION_VALIDATION_FAILED", "Correction validation failed", ErrCorrectionFieldsRequired)
	}

	entry, err := f.entryRepo.ByUUID(ctx, req.EntryUUID)
	if err != nil {
		return nil, NewBusinessError("ENTRY_LOOKUP_FAILED", "Failed to lookup entry", err)
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	campaign, err := getCampaign(ctx, f.campaignRepo, entry.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	if req.LinkUUID != nil {
		link, err := f.linkRepo.ByUUID(ctx, *req.LinkUUID)
		if err != nil {
			return nil, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to lookup link", err)
		}
		if link == nil || link.ClientID != campaign.ClientID {
			return nil, ErrLinkNotFound
		}
		entry.LinkID = &link.ID
		entry.CID = &link.CID
		entry.UTMSource = link.UTMSource
		entry.UTMMedium = link.UTMMedium
		entry.UTMCampaign = link.UTMCampaign
		entry.UTMTerm = link.UTMTerm
		entry.UTMContent = link.UTMContent
	} else {
		entry.LinkID = nil
		entry.CID = nil
		entry.UTMSource = utils.NormalizeUTMPtr(req.UTMSource)
		entry.UTMMedium = utils.NormalizeUTMPtr(req.UTMMedium)
		entry.UTMCampaign = utils.NormalizeUTMPtr(req.UTMCampaign)
		entry.UTMTerm = utils.NormalizeUTMPtr(req.UTMTerm)
		entry.UTMContent = utils.NormalizeUTMPtr(req.UTMContent)
	}
	entry.AttributedAt = utils.UTCNowPtr()
	entry.UpdatedAt = utils.UTCNow()

	if err := f.entryRepo.Save(ctx, entry); err != nil {
		return nil, NewBusinessError("CORRECTION_WRITE_FAILED", "Failed to write correction", err)
	}

	client, err := f.clientRepo.ByID(ctx, campaign.ClientID)
	if err != nil || client == nil {
		return nil, NewBusinessError("CLIENT_LOOKUP_FAILED", "Failed to lookup client", err)
	}
	loc, err := reportingLocation(client, f.attributionCfg)
	if err != nil {
		return nil, NewBusinessError("CORRECTION_TZ_FAILED", "Failed to resolve reporting timezone", err)
	}
	date := utils.LocalDate(entry.SubmittedAt, loc)

	if _, err := f.aggregation.RecomputeWindow(ctx, models.AggregationTriggerCorrection, &campaign.ClientID, date, date); err != nil {
		return nil, err
	}

	return &dto.CorrectEntryResponse{
		Success:      true,
		RecomputedOn: date.Format("2006-01-02"),
	}, nil
}

// RecoverDeletedEntries rebuilds conversion entries that were deleted after
// their visit had already been stamped. The visit keeps the entry id and the
// attribution, so the row can be reconstructed under its original id; the
// original ordinal is gone, a fresh one is minted.
func (f *CorrectionFlowImpl) RecoverDeletedEntries(ctx context.Context, req *dto.RecoverEntriesRequest, metadata *ClientMetadata) (*dto.RecoverEntriesResponse, error) {
	campaign, err := getCampaign(ctx, f.campaignRepo, req.CampaignID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
	}

	orphans, err := f.eventRepo.ListConvertedOrphans(ctx, campaign.ID)
	if err != nil {
		return nil, NewBusinessError("RECOVERY_SCAN_FAILED", "Failed to scan converted orphans", err)
	}
	if len(orphans) == 0 {
		return &dto.RecoverEntriesResponse{}, nil
	}

	lockCampaignOrdinal(campaign.ID)
	defer unlockCampaignOrdinal(campaign.ID)

	recovered := 0
	var minAt, maxAt time.Time
	for _, ev := range orphans {
		entry := f.entryFromOrphan(campaign.ID, ev)
		if err := f.allocateOrdinal(ctx, campaign.ID, entry); err != nil {
			return nil, NewBusinessError("RECOVERY_WRITE_FAILED", "Failed to recover entry", err)
		}
		recovered++
		if minAt.IsZero() || entry.SubmittedAt.Before(minAt) {
			minAt = entry.SubmittedAt
		}
		if entry.SubmittedAt.After(maxAt) {
			maxAt = entry.SubmittedAt
		}
	}

	client, err := f.clientRepo.ByID(ctx, campaign.ClientID)
	if err != nil || client == nil {
		return nil, NewBusinessError("CLIENT_LOOKUP_FAILED", "Failed to lookup client", err)
	}
	loc, err := reportingLocation(client, f.attributionCfg)
	if err != nil {
		return nil, NewBusinessError("RECOVERY_TZ_FAILED", "Failed to resolve reporting timezone", err)
	}
	if _, err := f.aggregation.RecomputeWindow(ctx, models.AggregationTriggerCorrection, &campaign.ClientID,
		utils.LocalDate(minAt, loc), utils.LocalDate(maxAt, loc)); err != nil {
		return nil, err
	}

	return &dto.RecoverEntriesResponse{Recovered: recovered}, nil
}

// entryFromOrphan rebuilds the recoverable part of a deleted entry. Identity
// fields are gone for good; only attribution and timing survive on the visit.
func (f *CorrectionFlowImpl) entryFromOrphan(campaignID uint, ev *models.AccessEvent) *models.ConversionEntry {
	now := utils.UTCNow()
	entry := &models.ConversionEntry{
		ID:           *ev.EntryID,
		UUID:         uuid.New(),
		CampaignID:   campaignID,
		SessionID:    ev.SessionID,
		LinkID:       ev.LinkID,
		CID:          ev.CID,
		UTMSource:    ev.UTMSource,
		UTMMedium:    ev.UTMMedium,
		UTMCampaign:  ev.UTMCampaign,
		UTMTerm:      ev.UTMTerm,
		UTMContent:   ev.UTMContent,
		IsRecovered:  utils.ToPtr(true),
		AttributedAt: &now,
		SubmittedAt:  *ev.ConvertedAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return entry
}

func (f *CorrectionFlowImpl) allocateOrdinal(ctx context.Context, campaignID uint, entry *models.ConversionEntry) error {
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
	}
	return ErrOrdinalConflict
}

// distinctVisitCount counts visits the way the aggregation engine does:
// distinct sessions per (local date, channel) group, sessionless rows counting
// once each
func distinctVisitCount(events []*models.AccessEvent, loc *time.Location) int64 {
	type group struct {
		date   string
		linkID uint
		src    string
		med    string
		cmp    string
	}
	sessions := make(map[group]map[string]struct{})
	var anon int64
	for _, ev := range events {
		g := group{date: utils.LocalDate(ev.AccessedAt, loc).Format("2006-01-02")}
		if ev.LinkID != nil {
			g.linkID = *ev.LinkID
		} else {
			if ev.UTMSource != nil {
				g.src = *ev.UTMSource
			}
			if ev.UTMMedium != nil {
				g.med = *ev.UTMMedium
			}
			if ev.UTMCampaign != nil {
				g.cmp = *ev.UTMCampaign
			}
		}
		if ev.SessionID != nil && *ev.SessionID != "" {
			if sessions[g] == nil {
				sessions[g] = make(map[string]struct{})
			}
			sessions[g][*ev.SessionID] = struct{}{}
		} else {
			anon++
		}
	}
	var total int64
	for _, s := range sessions {
		total += int64(len(s))
	}
	return total + anon
}
