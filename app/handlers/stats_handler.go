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

// StatsHandlerInterface defines the contract for stats read handlers
type StatsHandlerInterface interface {
	ListStats(c fiber.Ctx) error
	ExportStats(c fiber.Ctx) error
}

// StatsHandler handles materialized stats reads
type StatsHandler struct {
	statsFlow businessflow.StatsFlow
	validator *validator.Validate
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(statsFlow businessflow.StatsFlow) *StatsHandler {
	return &StatsHandler{
		statsFlow: statsFlow,
		validator: validator.New(),
	}
}

func (h *StatsHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *StatsHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func (h *StatsHandler) parseListRequest(c fiber.Ctx) (*dto.ListStatsRequest, error) {
	req := &dto.ListStatsRequest{
		From: c.Query("from"),
		To:   c.Query("to"),
	}
	if v := c.Query("client_id"); v != "" {
		clientID, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, err
		}
		id := uint(clientID)
		req.ClientID = &id
	}
	if v := c.Query("campaign_id"); v != "" {
		campaignID, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return nil, err
		}
		id := uint(campaignID)
		req.CampaignID = &id
	}
	if err := h.validator.Struct(req); err != nil {
		return nil, err
	}
	return req, nil
}

// ListStats returns daily stat buckets for a date range
// @Summary List Stats
// @Description List materialized daily buckets joined with link metadata
// @Tags Stats
// @Produce json
// @Param from query string true "Start date (YYYY-MM-DD, reporting timezone)"
// @Param to query string true "End date (YYYY-MM-DD, reporting timezone)"
// @Param client_id query int false "Client filter"
// @Param campaign_id query int false "Campaign filter"
// @Success 200 {object} dto.APIResponse{data=dto.ListStatsResponse} "Stats listed successfully"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/stats [get]
func (h *StatsHandler) ListStats(c fiber.Ctx) error {
	req, err := h.parseListRequest(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid stats query", "VALIDATION_ERROR", err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/v1/stats")
	defer cancel()
	result, err := h.statsFlow.ListStats(ctx, req)
	if err != nil {
		if businessflow.IsStartDateAfterEndDate(err) || businessflow.IsDateRangeRequired(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid date range", "VALIDATION_ERROR", err.Error())
		}
		log.Println("Stats listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Stats listing failed", "STATS_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Stats listed successfully", result)
}

// ExportStats downloads the same range as an Excel workbook
// @Summary Export Stats
// @Description Export materialized daily buckets as an .xlsx file
// @Tags Stats
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param from query string true "Start date (YYYY-MM-DD, reporting timezone)"
// @Param to query string true "End date (YYYY-MM-DD, reporting timezone)"
// @Param client_id query int false "Client filter"
// @Param campaign_id query int false "Campaign filter"
// @Success 200 {file} binary "Workbook"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/stats/export [get]
func (h *StatsHandler) ExportStats(c fiber.Ctx) error {
	req, err := h.parseListRequest(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid stats query", "VALIDATION_ERROR", err.Error())
	}

	ctx, cancel := createRequestContext(c, "/api/v1/stats/export")
	defer cancel()
	filename, payload, err := h.statsFlow.ExportStatsExcel(ctx, req)
	if err != nil {
		log.Println("Stats export failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Stats export failed", "STATS_EXPORT_FAILED", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	return c.Send(payload)
}
