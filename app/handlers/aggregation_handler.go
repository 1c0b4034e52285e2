// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"crypto/subtle"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/wertlabs/eventfunnel/app/dto"
	businessflow "github.com/wertlabs/eventfunnel/business_flow"
	"github.com/wertlabs/eventfunnel/models"
)

// AggregationHandlerInterface defines the contract for aggregation and correction handlers
type AggregationHandlerInterface interface {
	TriggerAggregation(c fiber.Ctx) error
	Reattribute(c fiber.Ctx) error
	Reconcile(c fiber.Ctx) error
	CorrectEntry(c fiber.Ctx) error
	RecoverEntries(c fiber.Ctx) error
}

// AggregationHandler handles the cron recompute endpoint and the operator
// correction toolkit
type AggregationHandler struct {
	aggregationFlow businessflow.AggregationFlow
	correctionFlow  businessflow.CorrectionFlow
	cronSecret      string
	validator       *validator.Validate
}

// NewAggregationHandler creates a new aggregation handler
func NewAggregationHandler(aggregationFlow businessflow.AggregationFlow, correctionFlow businessflow.CorrectionFlow, cronSecret string) *AggregationHandler {
	return &AggregationHandler{
		aggregationFlow: aggregationFlow,
		correctionFlow:  correctionFlow,
		cronSecret:      cronSecret,
		validator:       validator.New(),
	}
}

func (h *AggregationHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *AggregationHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// authorizeCron guards the recompute endpoint with a shared secret so only
// the platform scheduler can hit it
func (h *AggregationHandler) authorizeCron(c fiber.Ctx) bool {
	provided := c.Get("X-Cron-Secret")
	return h.cronSecret != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(h.cronSecret)) == 1
}

// TriggerAggregation recomputes a date range on demand
// @Summary Trigger Aggregation
// @Description Recompute daily buckets for a date range (cron secret required)
// @Tags Aggregation
// @Accept json
// @Produce json
// @Param X-Cron-Secret header string true "Shared cron secret"
// @Param request body dto.AggregateRequest true "Range to recompute"
// @Success 200 {object} dto.APIResponse{data=dto.AggregateResponse} "Aggregation completed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 401 {object} dto.APIResponse "Missing or wrong secret"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/cron/aggregate [post]
func (h *AggregationHandler) TriggerAggregation(c fiber.Ctx) error {
	if !h.authorizeCron(c) {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid cron secret", "INVALID_CRON_SECRET", nil)
	}

	var req dto.AggregateRequest
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

	ctx, cancel := createRequestContext(c, "/api/v1/cron/aggregate")
	defer cancel()
	result, err := h.aggregationFlow.Recompute(ctx, models.AggregationTriggerCron, &req)
	if err != nil {
		if businessflow.IsStartDateAfterEndDate(err) || businessflow.IsDateRangeRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid date range", "VALIDATION_ERROR", err.Error())
		}
		if businessflow.IsClientNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Client not found", "CLIENT_NOT_FOUND", nil)
		}
		log.Println("Aggregation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Aggregation failed", "AGGREGATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Aggregation completed", result)
}

// Reattribute re-runs the matcher over a past window
// @Summary Reattribute Range
// @Description Re-run the attribution matcher over unattributed entries in a range
// @Tags Corrections
// @Accept json
// @Produce json
// @Param request body dto.ReattributeRequest true "Range to reattribute"
// @Success 200 {object} dto.APIResponse{data=dto.ReattributeResponse} "Reattribution completed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/corrections/reattribute [post]
func (h *AggregationHandler) Reattribute(c fiber.Ctx) error {
	var req dto.ReattributeRequest
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

	ctx, cancel := createRequestContext(c, "/api/v1/corrections/reattribute")
	defer cancel()
	result, err := h.correctionFlow.ReattributeRange(ctx, &req, metadata)
	if err != nil {
		if businessflow.IsStartDateAfterEndDate(err) || businessflow.IsDateRangeRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid date range", "VALIDATION_ERROR", err.Error())
		}
		log.Println("Reattribution failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Reattribution failed", "REATTRIBUTE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Reattribution completed", result)
}

// Reconcile checks bucket sums against raw events
// @Summary Reconcile Range
// @Description Compare materialized buckets with raw events for one campaign
// @Tags Corrections
// @Accept json
// @Produce json
// @Param request body dto.ReconcileRequest true "Range to reconcile"
// @Success 200 {object} dto.APIResponse{data=dto.ReconcileResponse} "Reconciliation completed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/corrections/reconcile [post]
func (h *AggregationHandler) Reconcile(c fiber.Ctx) error {
	var req dto.ReconcileRequest
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

	ctx, cancel := createRequestContext(c, "/api/v1/corrections/reconcile")
	defer cancel()
	result, err := h.correctionFlow.ReconcileRange(ctx, &req)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		if businessflow.IsStartDateAfterEndDate(err) || businessflow.IsDateRangeRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid date range", "VALIDATION_ERROR", err.Error())
		}
		log.Println("Reconciliation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Reconciliation failed", "RECONCILE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Reconciliation completed", result)
}

// CorrectEntry overrides one entry's attribution by hand
// @Summary Correct Entry Attribution
// @Description Manually fix one entry's channel and recompute its date
// @Tags Corrections
// @Accept json
// @Produce json
// @Param request body dto.CorrectEntryRequest true "Correction data"
// @Success 200 {object} dto.APIResponse{data=dto.CorrectEntryResponse} "Correction applied"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Entry or link not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/corrections/entry [post]
func (h *AggregationHandler) CorrectEntry(c fiber.Ctx) error {
	var req dto.CorrectEntryRequest
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

	ctx, cancel := createRequestContext(c, "/api/v1/corrections/entry")
	defer cancel()
	result, err := h.correctionFlow.CorrectEntryAttribution(ctx, &req, metadata)
	if err != nil {
		if businessflow.IsEntryNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Entry not found", "ENTRY_NOT_FOUND", nil)
		}
		if businessflow.IsLinkNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Link not found", "LINK_NOT_FOUND", nil)
		}
		if businessflow.IsCorrectionFieldsRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Correction validation failed", "CORRECTION_VALIDATION_FAILED", err.Error())
		}
		log.Println("Entry correction failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Entry correction failed", "CORRECTION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Correction applied", result)
}

// RecoverEntries rebuilds deleted entries from converted visits
// @Summary Recover Deleted Entries
// @Description Rebuild conversion entries from orphaned converted visits
// @Tags Corrections
// @Accept json
// @Produce json
// @Param request body dto.RecoverEntriesRequest true "Campaign to recover"
// @Success 200 {object} dto.APIResponse{data=dto.RecoverEntriesResponse} "Recovery completed"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Campaign not found"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/corrections/recover [post]
func (h *AggregationHandler) RecoverEntries(c fiber.Ctx) error {
	var req dto.RecoverEntriesRequest
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

	ctx, cancel := createRequestContext(c, "/api/v1/corrections/recover")
	defer cancel()
	result, err := h.correctionFlow.RecoverDeletedEntries(ctx, &req, metadata)
	if err != nil {
		if businessflow.IsCampaignNotFound(err) {
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		}
		log.Println("Entry recovery failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Entry recovery failed", "RECOVERY_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Recovery completed", result)
}
