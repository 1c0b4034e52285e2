// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/wertlabs/eventfunnel/app/dto"
	businessflow "github.com/wertlabs/eventfunnel/business_flow"
)

// TrackingHandlerInterface defines the contract for public tracking handlers
type TrackingHandlerInterface interface {
	RecordVisit(c fiber.Ctx) error
	RecordConversion(c fiber.Ctx) error
}

// TrackingHandler handles public visit and conversion ingestion
type TrackingHandler struct {
	visitFlow      businessflow.VisitFlow
	conversionFlow businessflow.ConversionFlow
	validator      *validator.Validate
}

// NewTrackingHandler creates a new tracking handler
func NewTrackingHandler(visitFlow businessflow.VisitFlow, conversionFlow businessflow.ConversionFlow) *TrackingHandler {
	return &TrackingHandler{
		visitFlow:      visitFlow,
		conversionFlow: conversionFlow,
		validator:      validator.New(),
	}
}

func (h *TrackingHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *TrackingHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// RecordVisit ingests one page visit
// Visitor-facing pages must never break on tracking problems, so everything
// past request parsing degrades to a success response
// @Summary Record Visit
// @Description Record a page visit with whatever attribution resolves
// @Tags Tracking
// @Accept json
// @Produce json
// @Param request body dto.RecordVisitRequest true "Visit data"
// @Success 200 {object} dto.APIResponse{data=dto.RecordVisitResponse} "Visit recorded"
// @Failure 400 {object} dto.APIResponse "Malformed request body"
// @Router /api/v1/track/visit [post]
func (h *TrackingHandler) RecordVisit(c fiber.Ctx) error {
	var req dto.RecordVisitRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if req.UserAgent == nil {
		if ua := c.Get("User-Agent"); ua != "" {
			req.UserAgent = &ua
		}
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))

	ctx, cancel := createRequestContext(c, "/api/v1/track/visit")
	defer cancel()
	if _, err := h.visitFlow.RecordVisit(ctx, &req, metadata); err != nil {
		log.Println("Visit recording failed", err)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Visit recorded", dto.RecordVisitResponse{Success: true})
}

// RecordConversion ingests one registration or survey submission
// @Summary Record Conversion
// @Description Record a submission and return its allocated ordinal and code
// @Tags Tracking
// @Accept json
// @Produce json
// @Param request body dto.RecordConversionRequest true "Conversion data"
// @Success 201 {object} dto.APIResponse{data=dto.RecordConversionResponse} "Conversion recorded"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 409 {object} dto.APIResponse "Ordinal allocation conflict"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/track/conversion [post]
func (h *TrackingHandler) RecordConversion(c fiber.Ctx) error {
	var req dto.RecordConversionRequest
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

	ctx, cancel := createRequestContext(c, "/api/v1/track/conversion")
	defer cancel()
	result, err := h.conversionFlow.RecordConversion(ctx, &req, metadata)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		if businessflow.IsNameRequired(err) || businessflow.IsPhoneRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Conversion validation failed", "CONVERSION_VALIDATION_FAILED", err.Error())
		}
		if businessflow.IsOrdinalConflict(err) {
			return h.ErrorResponse(c, fiber.StatusConflict, "Registration is busy, please retry", "ORDINAL_CONFLICT", nil)
		}

		log.Println("Conversion recording failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Conversion recording failed", "CONVERSION_RECORDING_FAILED", nil)
	}

	status := fiber.StatusCreated
	if result.AlreadySubmitted {
		status = fiber.StatusOK
	}
	return h.SuccessResponse(c, status, "Conversion recorded", result)
}
