// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"log"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/wertlabs/eventfunnel/app/dto"
	businessflow "github.com/wertlabs/eventfunnel/business_flow"
)

// LinkHandlerInterface defines the contract for link registry handlers
type LinkHandlerInterface interface {
	CreateLink(c fiber.Ctx) error
	UpdateLink(c fiber.Ctx) error
	ArchiveLink(c fiber.Ctx) error
	ListLinks(c fiber.Ctx) error
}

// LinkHandler handles link registry HTTP requests
type LinkHandler struct {
	linkFlow  businessflow.LinkRegistryFlow
	validator *validator.Validate
}

// NewLinkHandler creates a new link handler
func NewLinkHandler(linkFlow businessflow.LinkRegistryFlow) *LinkHandler {
	return &LinkHandler{
		linkFlow:  linkFlow,
		validator: validator.New(),
	}
}

func (h *LinkHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *LinkHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateLink handles link registration
// @Summary Create Link
// @Description Register a named trackable link for one marketing channel
// @Tags Links
// @Accept json
// @Produce json
// @Param request body dto.CreateLinkRequest true "Link creation data"
// @Success 201 {object} dto.APIResponse{data=dto.LinkDTO} "Link created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 403 {object} dto.APIResponse "Target campaign or webinar belongs to another client"
// @Failure 409 {object} dto.APIResponse "Duplicate name or cid"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/links [post]
func (h *LinkHandler) CreateLink(c fiber.Ctx) error {
	var req dto.CreateLinkRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ctx, cancel := createRequestContext(c, "/api/v1/links")
	defer cancel()
	result, err := h.linkFlow.CreateLink(ctx, &req, metadata)
	if err != nil {
		if businessflow.IsDuplicateLinkName(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Link name already exists", "DUPLICATE_LINK_NAME", nil)
		}
		if businessflow.IsDuplicateCID(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "CID already exists", "DUPLICATE_CID", nil)
		}
		if businessflow.IsClientNotFound(err) || businessflow.IsClientInactive(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Client not found", "CLIENT_NOT_FOUND", nil)
		}
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		if businessflow.IsWebinarNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Webinar not found", "WEBINAR_NOT_FOUND", nil)
		}
		if businessflow.IsCampaignNotOwned(err) || businessflow.IsWebinarNotOwned(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Link target belongs to another client", "LINK_TARGET_FORBIDDEN", nil)
		}
		if businessflow.IsCampaignTargetRequired(err) || businessflow.IsInvalidLandingVariant(err) || businessflow.IsLinkNameRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Link validation failed", "LINK_VALIDATION_FAILED", err.Error())
		}

		log.Println("Link creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Link creation failed", "LINK_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Link created successfully", result)
}

// UpdateLink handles partial link updates
// @Summary Update Link
// @Description Update mutable fields of an existing link
// @Tags Links
// @Accept json
// @Produce json
// @Param uuid path string true "Link UUID"
// @Param request body dto.UpdateLinkRequest true "Link update data"
// @Success 200 {object} dto.APIResponse{data=dto.LinkDTO} "Link updated successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 403 {object} dto.APIResponse "Target campaign or webinar belongs to another client"
// @Failure 404 {object} dto.APIResponse "Link not found"
// @Failure 409 {object} dto.APIResponse "Duplicate name"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/links/{uuid} [put]
func (h *LinkHandler) UpdateLink(c fiber.Ctx) error {
	var req dto.UpdateLinkRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	req.UUID = c.Params("uuid")

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ctx, cancel := createRequestContext(c, "/api/v1/links/"+req.UUID)
	defer cancel()
	result, err := h.linkFlow.UpdateLink(ctx, &req, metadata)
	if err != nil {
		if businessflow.IsLinkNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Link not found", "LINK_NOT_FOUND", nil)
		}
		if businessflow.IsDuplicateLinkName(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Link name already exists", "DUPLICATE_LINK_NAME", nil)
		}
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		if businessflow.IsWebinarNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Webinar not found", "WEBINAR_NOT_FOUND", nil)
		}
		if businessflow.IsCampaignNotOwned(err) || businessflow.IsWebinarNotOwned(err) {
			return h.ErrorResponse(c, fiber.StatusForbidden, "Link target belongs to another client", "LINK_TARGET_FORBIDDEN", nil)
		}
		if businessflow.IsLinkUpdateRequired(err) || businessflow.IsLinkUUIDRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Link update validation failed", "LINK_UPDATE_VALIDATION_FAILED", err.Error())
		}

		log.Println("Link update failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Link update failed", "LINK_UPDATE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Link updated successfully", result)
}

// ArchiveLink soft-deletes a link
// @Summary Archive Link
// @Description Archive a link so its cid stops resolving; history is kept
// @Tags Links
// @Produce json
// @Param uuid path string true "Link UUID"
// @Param client_id query int true "Owning client ID"
// @Success 200 {object} dto.APIResponse "Link archived successfully"
// @Failure 404 {object} dto.APIResponse "Link not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/links/{uuid} [delete]
func (h *LinkHandler) ArchiveLink(c fiber.Ctx) error {
	linkUUID := c.Params("uuid")
	clientID, err := strconv.ParseUint(c.Query("client_id"), 10, 32)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid client_id", "INVALID_REQUEST", nil)
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ctx, cancel := createRequestContext(c, "/api/v1/links/"+linkUUID)
	defer cancel()
	if err := h.linkFlow.ArchiveLink(ctx, uint(clientID), linkUUID, metadata); err != nil {
		if businessflow.IsLinkNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Link not found", "LINK_NOT_FOUND", nil)
		}
		log.Println("Link archive failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Link archive failed", "LINK_ARCHIVE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Link archived successfully", nil)
}

// ListLinks returns a page of the client's links
// @Summary List Links
// @Description List links for a client with optional campaign and status filters
// @Tags Links
// @Produce json
// @Param client_id query int true "Owning client ID"
// @Param campaign_id query int false "Campaign filter"
// @Param status query string false "Status filter (active or archived)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} dto.APIResponse{data=dto.ListLinksResponse} "Links listed successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/links [get]
func (h *LinkHandler) ListLinks(c fiber.Ctx) error {
	clientID, err := strconv.ParseUint(c.Query("client_id"), 10, 32)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid client_id", "INVALID_REQUEST", nil)
	}

	req := dto.ListLinksRequest{
		ClientID: uint(clientID),
		Page:     fiber.Query(c, "page", 1),
		PageSize: fiber.Query(c, "page_size", 20),
	}
	if v := c.Query("campaign_id"); v != "" {
		campaignID, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid campaign_id", "INVALID_REQUEST", nil)
		}
		id := uint(campaignID)
		req.CampaignID = &id
	}
	if v := c.Query("status"); v != "" {
		req.Status = &v
	}

	ctx, cancel := createRequestContext(c, "/api/v1/links")
	defer cancel()
	result, err := h.linkFlow.ListLinks(ctx, &req)
	if err != nil {
		if businessflow.IsInvalidPage(err) || businessflow.IsInvalidPageSize(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Pagination validation failed", "VALIDATION_ERROR", err.Error())
		}
		log.Println("Link listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Link listing failed", "LINK_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Links listed successfully", result)
}
