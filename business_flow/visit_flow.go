package businessflow

import (
	"context"
	"log"

	"github.com/wertlabs/eventfunnel/app/dto"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	"github.com/wertlabs/eventfunnel/utils"
)

// VisitFlow records raw page visits at public entry points
// Attribution resolution is best effort: a dead cid or an archived link must
// never cost the visit row, so lookup failures degrade to an unattributed event
// Public flow, no authentication required
type VisitFlow interface {
	RecordVisit(ctx context.Context, req *dto.RecordVisitRequest, metadata *ClientMetadata) (*dto.RecordVisitResponse, error)
}

// VisitFlowImpl implements the visit recorder business flow
type VisitFlowImpl struct {
	campaignRepo repository.CampaignRepository
	webinarRepo  repository.WebinarRepository
	linkRepo     repository.CampaignLinkRepository
	eventRepo    repository.AccessEventRepository
}

// NewVisitFlow creates a new visit flow instance
func NewVisitFlow(
	campaignRepo repository.CampaignRepository,
	webinarRepo repository.WebinarRepository,
	linkRepo repository.CampaignLinkRepository,
	eventRepo repository.AccessEventRepository,
) VisitFlow {
	return &VisitFlowImpl{
		campaignRepo: campaignRepo,
		webinarRepo:  webinarRepo,
		linkRepo:     linkRepo,
		eventRepo:    eventRepo,
	}
}

// RecordVisit persists one access event with whatever attribution resolves.
// Precedence: a resolving cid wins and its stored UTM values are snapshotted
// onto the event; explicit UTM parameters apply only when no link resolved.
func (f *VisitFlowImpl) RecordVisit(ctx context.Context, req *dto.RecordVisitRequest, metadata *ClientMetadata) (*dto.RecordVisitResponse, error) {
	if req.CampaignID == nil && req.WebinarID == nil {
		return nil, NewBusinessError("VISIT_VALIDATION_FAILED", "Visit validation failed", ErrCampaignTargetRequired)
	}
	if req.CampaignID != nil && req.WebinarID != nil {
		return nil, NewBusinessError("VISIT_VALIDATION_FAILED", "Visit validation failed", ErrCampaignTargetAmbiguous)
	}

	clientID, err := f.resolveOwner(ctx, req)
	if err != nil {
		return nil, err
	}

	event := &models.AccessEvent{
		CampaignID: req.CampaignID,
		WebinarID:  req.WebinarID,
		Referrer:   req.Referrer,
		UserAgent:  req.UserAgent,
		AccessedAt: utils.UTCNow(),
		CreatedAt:  utils.UTCNow(),
	}
	if req.SessionID != "" {
		event.SessionID = utils.ToPtr(req.SessionID)
	}

	f.resolveAttribution(ctx, clientID, req.Query, event)

	if err := f.eventRepo.Save(ctx, event); err != nil {
		return nil, NewBusinessError("VISIT_RECORDING_FAILED", "Failed to record visit", err)
	}

	visitsRecorded.Inc()
	return &dto.RecordVisitResponse{Success: true}, nil
}

// resolveOwner returns the client that owns the landing target
func (f *VisitFlowImpl) resolveOwner(ctx context.Context, req *dto.RecordVisitRequest) (uint, error) {
	if req.CampaignID != nil {
		campaign, err := getCampaign(ctx, f.campaignRepo, *req.CampaignID)
		if err != nil {
			return 0, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to lookup campaign", err)
		}
		return campaign.ClientID, nil
	}
	webinar, err := f.webinarRepo.ByID(ctx, *req.WebinarID)
	if err != nil {
		return 0, NewBusinessError("WEBINAR_LOOKUP_FAILED", "Failed to lookup webinar", err)
	}
	if webinar == nil {
		return 0, ErrWebinarNotFound
	}
	return webinar.ClientID, nil
}

func (f *VisitFlowImpl) resolveAttribution(ctx context.Context, clientID uint, query dto.TrackingQuery, event *models.AccessEvent) {
	if query.CID != nil {
		cid := utils.NormalizeCID(*query.CID)
		if cid != "" {
			event.CID = &cid
			link, err := f.linkRepo.ByCID(ctx, clientID, cid)
			if err != nil {
				log.Printf("visit: cid lookup failed, recording unattributed: %v", err)
			} else if link != nil {
				event.LinkID = &link.ID
				event.UTMSource = link.UTMSource
				event.UTMMedium = link.UTMMedium
				event.UTMCampaign = link.UTMCampaign
				event.UTMTerm = link.UTMTerm
				event.UTMContent = link.UTMContent
				return
			}
		}
	}

	utm := utmFromQuery(query)
	event.UTMSource = utm["utm_source"]
	event.UTMMedium = utm["utm_medium"]
	event.UTMCampaign = utm["utm_campaign"]
	event.UTMTerm = utm["utm_term"]
	event.UTMContent = utm["utm_content"]
}
