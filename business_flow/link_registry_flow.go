package businessflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wertlabs/eventfunnel/app/dto"
	"github.com/wertlabs/eventfunnel/config"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	"github.com/wertlabs/eventfunnel/utils"
)

// LinkRegistryFlow manages the catalog of trackable campaign links
type LinkRegistryFlow interface {
	CreateLink(ctx context.Context, req *dto.CreateLinkRequest, metadata *ClientMetadata) (*dto.LinkDTO, error)
	UpdateLink(ctx context.Context, req *dto.UpdateLinkRequest, metadata *ClientMetadata) (*dto.LinkDTO, error)
	ArchiveLink(ctx context.Context, clientID uint, linkUUID string, metadata *ClientMetadata) error
	ResolveByCID(ctx context.Context, clientID uint, cid string) (*models.CampaignLink, error)
	ListLinks(ctx context.Context, req *dto.ListLinksRequest) (*dto.ListLinksResponse, error)
}

// LinkRegistryFlowImpl implements the link registry business flow
type LinkRegistryFlowImpl struct {
	clientRepo   repository.ClientRepository
	campaignRepo repository.CampaignRepository
	webinarRepo  repository.WebinarRepository
	linkRepo     repository.CampaignLinkRepository
	trackingCfg  config.TrackingConfig
	db           *gorm.DB
}

// NewLinkRegistryFlow creates a new link registry flow instance
func NewLinkRegistryFlow(
	clientRepo repository.ClientRepository,
	campaignRepo repository.CampaignRepository,
	webinarRepo repository.WebinarRepository,
	linkRepo repository.CampaignLinkRepository,
	db *gorm.DB,
	trackingCfg config.TrackingConfig,
) LinkRegistryFlow {
	return &LinkRegistryFlowImpl{
		clientRepo:   clientRepo,
		campaignRepo: campaignRepo,
		webinarRepo:  webinarRepo,
		linkRepo:     linkRepo,
		trackingCfg:  trackingCfg,
		db:           db,
	}
}

// CreateLink registers a named trackable link for one marketing channel
func (f *LinkRegistryFlowImpl) CreateLink(ctx context.Context, req *dto.CreateLinkRequest, metadata *ClientMetadata) (*dto.LinkDTO, error) {
	if err := f.validateCreateLinkRequest(ctx, req); err != nil {
		return nil, NewBusinessError("LINK_VALIDATION_FAILED", "Link validation failed", err)
	}

	client, err := getClient(ctx, f.clientRepo, req.ClientID)
	if err != nil {
		return nil, NewBusinessError("CLIENT_LOOKUP_FAILED", "Failed to lookup client", err)
	}

	var link *models.CampaignLink

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		existing, err := f.linkRepo.ByClientAndName(txCtx, client.ID, req.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateLinkName
		}

		cid, err := f.resolveCID(txCtx, client.ID, req.CID)
		if err != nil {
			return err
		}

		variant := req.LandingVariant
		if variant == "" {
			variant = models.LandingVariantRegister
		}

		link = &models.CampaignLink{
			UUID:           uuid.New(),
			ClientID:       client.ID,
			CampaignID:     req.CampaignID,
			WebinarID:      req.WebinarID,
			Name:           req.Name,
			CID:            cid,
			LandingVariant: variant,
			UTMSource:      utils.NormalizeUTMPtr(req.UTMSource),
			UTMMedium:      utils.NormalizeUTMPtr(req.UTMMedium),
			UTMCampaign:    utils.NormalizeUTMPtr(req.UTMCampaign),
			UTMTerm:        utils.NormalizeUTMPtr(req.UTMTerm),
			UTMContent:     utils.NormalizeUTMPtr(req.UTMContent),
			Status:         models.LinkStatusActive,
			CreatedAt:      utils.UTCNow(),
			UpdatedAt:      utils.UTCNow(),
		}
		return f.linkRepo.Save(txCtx, link)
	})

	if err != nil {
		if IsDuplicateLinkName(err) || IsDuplicateCID(err) {
			return nil, err
		}
		return nil, NewBusinessError("LINK_CREATION_FAILED", "Link creation failed", err)
	}

	resp := ToLinkDTO(link, f.trackingCfg)
	return &resp, nil
}

// UpdateLink changes mutable link fields. The cid is immutable once issued
// because already-distributed URLs embed it.
func (f *LinkRegistryFlowImpl) UpdateLink(ctx context.Context, req *dto.UpdateLinkRequest, metadata *ClientMetadata) (*dto.LinkDTO, error) {
	if req.UUID == "" {
		return nil, NewBusinessError("LINK_UPDATE_VALIDATION_FAILED", "Link update validation failed", ErrLinkUUIDRequired)
	}
	if req.Name == nil && req.CampaignID == nil && req.WebinarID == nil &&
		req.UTMSource == nil && req.UTMMedium == nil && req.UTMCampaign == nil &&
		req.UTMTerm == nil && req.UTMContent == nil && req.Status == nil {
		return nil, NewBusinessError("LINK_UPDATE_VALIDATION_FAILED", "Link update validation failed", ErrLinkUpdateRequired)
	}

	link, err := f.getOwnedLink(ctx, req.ClientID, req.UUID)
	if err != nil {
		return nil, err
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		fields := map[string]any{"updated_at": utils.UTCNow()}

		if req.Name != nil && *req.Name != link.Name {
			existing, err := f.linkRepo.ByClientAndName(txCtx, link.ClientID, *req.Name)
			if err != nil {
				return err
			}
			if existing != nil && existing.ID != link.ID {
				return ErrDuplicateLinkName
			}
			fields["name"] = *req.Name
		}
		if req.CampaignID != nil || req.WebinarID != nil {
			if err := f.validateTargetOwnership(txCtx, link.ClientID, req.CampaignID, req.WebinarID); err != nil {
				return err
			}
		}
		if req.CampaignID != nil {
			fields["campaign_id"] = *req.CampaignID
		}
		if req.WebinarID != nil {
			fields["webinar_id"] = *req.WebinarID
		}
		if req.UTMSource != nil {
			fields["utm_source"] = utils.NormalizeUTMPtr(req.UTMSource)
		}
		if req.UTMMedium != nil {
			fields["utm_medium"] = utils.NormalizeUTMPtr(req.UTMMedium)
		}
		if req.UTMCampaign != nil {
			fields["utm_campaign"] = utils.NormalizeUTMPtr(req.UTMCampaign)
		}
		if req.UTMTerm != nil {
			fields["utm_term"] = utils.NormalizeUTMPtr(req.UTMTerm)
		}
		if req.UTMContent != nil {
			fields["utm_content"] = utils.NormalizeUTMPtr(req.UTMContent)
		}
		if req.Status != nil {
			fields["status"] = *req.Status
		}

		return f.linkRepo.UpdateFields(txCtx, link.ID, fields)
	})

	if err != nil {
		if IsDuplicateLinkName(err) || IsCampaignNotFound(err) || IsWebinarNotFound(err) ||
			IsCampaignNotOwned(err) || IsWebinarNotOwned(err) {
			return nil, err
		}
		return nil, NewBusinessError("LINK_UPDATE_FAILED", "Link update failed", err)
	}

	updated, err := f.linkRepo.ByID(ctx, link.ID)
	if err != nil || updated == nil {
		return nil, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to reload link", err)
	}

	resp := ToLinkDTO(updated, f.trackingCfg)
	return &resp, nil
}

// ArchiveLink soft-deletes a link. The row stays because historical stats and
// events reference it by id; its cid simply stops resolving.
func (f *LinkRegistryFlowImpl) ArchiveLink(ctx context.Context, clientID uint, linkUUID string, metadata *ClientMetadata) error {
	link, err := f.getOwnedLink(ctx, clientID, linkUUID)
	if err != nil {
		return err
	}
	if link.IsArchived() {
		return nil
	}
	fields := map[string]any{
		"status":     models.LinkStatusArchived,
		"updated_at": utils.UTCNow(),
	}
	if err := f.linkRepo.UpdateFields(ctx, link.ID, fields); err != nil {
		return NewBusinessError("LINK_ARCHIVE_FAILED", "Link archive failed", err)
	}
	return nil
}

// ResolveByCID looks up the active link behind a short code. Unknown and
// archived codes both return ErrLinkNotFound so callers treat them alike.
func (f *LinkRegistryFlowImpl) ResolveByCID(ctx context.Context, clientID uint, cid string) (*models.CampaignLink, error) {
	normalized := utils.NormalizeCID(cid)
	if normalized == "" {
		return nil, ErrLinkNotFound
	}
	link, err := f.linkRepo.ByCID(ctx, clientID, normalized)
	if err != nil {
		return nil, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to lookup link", err)
	}
	if link == nil {
		return nil, ErrLinkNotFound
	}
	return link, nil
}

// ListLinks returns a page of the client's links
func (f *LinkRegistryFlowImpl) ListLinks(ctx context.Context, req *dto.ListLinksRequest) (*dto.ListLinksResponse, error) {
	page := req.Page
	if page == 0 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = 20
	}
	if page < 1 {
		return nil, NewBusinessError("LINK_LIST_VALIDATION_FAILED", "Link list validation failed", ErrInvalidPage)
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, NewBusinessError("LINK_LIST_VALIDATION_FAILED", "Link list validation failed", ErrInvalidPageSize)
	}

	filter := models.CampaignLinkFilter{
		ClientID:   &req.ClientID,
		CampaignID: req.CampaignID,
		Status:     req.Status,
	}

	rows, err := f.linkRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("LINK_LIST_FAILED", "Failed to list links", err)
	}
	total, err := f.linkRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LINK_LIST_FAILED", "Failed to count links", err)
	}

	resp := &dto.ListLinksResponse{
		Links: make([]dto.LinkDTO, 0, len(rows)),
		Total: total,
	}
	for _, row := range rows {
		resp.Links = append(resp.Links, ToLinkDTO(row, f.trackingCfg))
	}
	return resp, nil
}

func (f *LinkRegistryFlowImpl) validateCreateLinkRequest(ctx context.Context, req *dto.CreateLinkRequest) error {
	if req.Name == "" {
		return ErrLinkNameRequired
	}
	if req.CampaignID == nil && req.WebinarID == nil {
		return ErrCampaignTargetRequired
	}
	if req.LandingVariant != "" &&
		req.LandingVariant != models.LandingVariantWelcome &&
		req.LandingVariant != models.LandingVariantRegister &&
		req.LandingVariant != models.LandingVariantSurvey {
		return ErrInvalidLandingVariant
	}
	return f.validateTargetOwnership(ctx, req.ClientID, req.CampaignID, req.WebinarID)
}

// validateTargetOwnership checks that a link's campaign/webinar targets exist
// and belong to the owning client. A target owned by another client is a
// forbidden reference, not a missing one.
func (f *LinkRegistryFlowImpl) validateTargetOwnership(ctx context.Context, clientID uint, campaignID, webinarID *uint) error {
	if campaignID != nil {
		campaign, err := getCampaign(ctx, f.campaignRepo, *campaignID)
		if err != nil {
			return err
		}
		if campaign.ClientID != clientID {
			return ErrCampaignNotOwned
		}
	}
	if webinarID != nil {
		webinar, err := f.webinarRepo.ByID(ctx, *webinarID)
		if err != nil {
			return err
		}
		if webinar == nil {
			return ErrWebinarNotFound
		}
		if webinar.ClientID != clientID {
			return ErrWebinarNotOwned
		}
	}
	return nil
}

// resolveCID validates a caller-supplied short code or generates a fresh one.
// Generated codes retry on the rare collision with an existing row.
func (f *LinkRegistryFlowImpl) resolveCID(ctx context.Context, clientID uint, requested *string) (string, error) {
	if requested != nil {
		cid := utils.NormalizeCID(*requested)
		if cid == "" {
			return "", ErrDuplicateCID
		}
		existing, err := f.linkRepo.ByFilter(ctx, models.CampaignLinkFilter{ClientID: &clientID, CID: &cid}, "", 1, 0)
		if err != nil {
			return "", err
		}
		if len(existing) > 0 {
			return "", ErrDuplicateCID
		}
		return cid, nil
	}

	for attempt := 0; attempt < 5; attempt++ {
		cid, err := utils.GenerateCID(utils.CIDLength)
		if err != nil {
			return "", err
		}
		existing, err := f.linkRepo.ByFilter(ctx, models.CampaignLinkFilter{ClientID: &clientID, CID: &cid}, "", 1, 0)
		if err != nil {
			return "", err
		}
		if len(existing) == 0 {
			return cid, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique cid after retries")
}

func (f *LinkRegistryFlowImpl) getOwnedLink(ctx context.Context, clientID uint, linkUUID string) (*models.CampaignLink, error) {
	link, err := f.linkRepo.ByUUID(ctx, linkUUID)
	if err != nil {
		return nil, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to lookup link", err)
	}
	if link == nil || link.ClientID != clientID {
		return nil, ErrLinkNotFound
	}
	return link, nil
}
