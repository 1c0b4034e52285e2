// Package businessflow contains the core business logic and use cases for attribution workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Client-related errors
	ErrClientNotFound = errors.New("client not found")
	ErrClientInactive = errors.New("client is inactive")

	// Campaign and webinar errors
	ErrCampaignNotFound        = errors.New("campaign not found")
	ErrWebinarNotFound         = errors.New("webinar not found")
	ErrCampaignTargetRequired  = errors.New("either campaign or webinar must be provided")
	ErrCampaignTargetAmbiguous = errors.New("campaign and webinar cannot both be provided")
	ErrCampaignNotOwned        = errors.New("campaign belongs to another client")
	ErrWebinarNotOwned         = errors.New("webinar belongs to another client")

	// Link registry errors
	ErrLinkNotFound          = errors.New("link not found")
	ErrLinkArchived          = errors.New("link is archived")
	ErrDuplicateLinkName     = errors.New("link name already exists for client")
	ErrDuplicateCID          = errors.New("cid already exists for client")
	ErrLinkNameRequired      = errors.New("link name is required")
	ErrLinkUpdateRequired    = errors.New("at least one field must be provided for update")
	ErrLinkUUIDRequired      = errors.New("link UUID is required")
	ErrInvalidLandingVariant = errors.New("invalid landing variant")

	// Conversion recorder errors
	ErrPhoneRequired       = errors.New("phone number is required")
	ErrNameRequired        = errors.New("name is required")
	ErrOrdinalConflict     = errors.New("ordinal allocation lost to a concurrent writer")
	ErrEntryNotFound       = errors.New("conversion entry not found")
	ErrEntryAlreadyMatched = errors.New("conversion entry already has attribution")

	// Aggregation and correction errors
	ErrDateRangeRequired        = errors.New("date range is required")
	ErrStartDateAfterEndDate    = errors.New("start date cannot be after end date")
	ErrInvalidReportingTimezone = errors.New("invalid reporting timezone")
	ErrAggregationInconsistency = errors.New("materialized buckets disagree with raw events")
	ErrCorrectionFieldsRequired = errors.New("at least one attribution field must be provided")
	ErrAggregationLeaseNotHeld  = errors.New("aggregation lease held by another instance")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsClientNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound)
}

func IsClientInactive(err error) bool {
	return errors.Is(err, ErrClientInactive)
}

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsWebinarNotFound(err error) bool {
	return errors.Is(err, ErrWebinarNotFound)
}

func IsCampaignTargetRequired(err error) bool {
	return errors.Is(err, ErrCampaignTargetRequired)
}

func IsCampaignTargetAmbiguous(err error) bool {
	return errors.Is(err, ErrCampaignTargetAmbiguous)
}

func IsCampaignNotOwned(err error) bool {
	return errors.Is(err, ErrCampaignNotOwned)
}

func IsWebinarNotOwned(err error) bool {
	return errors.Is(err, ErrWebinarNotOwned)
}

func IsLinkNotFound(err error) bool {
	return errors.Is(err, ErrLinkNotFound)
}

func IsLinkArchived(err error) bool {
	return errors.Is(err, ErrLinkArchived)
}

func IsDuplicateLinkName(err error) bool {
	return errors.Is(err, ErrDuplicateLinkName)
}

func IsDuplicateCID(err error) bool {
	return errors.Is(err, ErrDuplicateCID)
}

func IsLinkNameRequired(err error) bool {
	return errors.Is(err, ErrLinkNameRequired)
}

func IsLinkUpdateRequired(err error) bool {
	return errors.Is(err, ErrLinkUpdateRequired)
}

func IsLinkUUIDRequired(err error) bool {
	return errors.Is(err, ErrLinkUUIDRequired)
}

func IsInvalidLandingVariant(err error) bool {
	return errors.Is(err, ErrInvalidLandingVariant)
}

func IsPhoneRequired(err error) bool {
	return errors.Is(err, ErrPhoneRequired)
}

func IsNameRequired(err error) bool {
	return errors.Is(err, ErrNameRequired)
}

func IsOrdinalConflict(err error) bool {
	return errors.Is(err, ErrOrdinalConflict)
}

func IsEntryNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}

func IsEntryAlreadyMatched(err error) bool {
	return errors.Is(err, ErrEntryAlreadyMatched)
}

func IsDateRangeRequired(err error) bool {
	return errors.Is(err, ErrDateRangeRequired)
}

func IsStartDateAfterEndDate(err error) bool {
	return errors.Is(err, ErrStartDateAfterEndDate)
}

func IsInvalidReportingTimezone(err error) bool {
	return errors.Is(err, ErrInvalidReportingTimezone)
}

func IsAggregationInconsistency(err error) bool {
	return errors.Is(err, ErrAggregationInconsistency)
}

func IsCorrectionFieldsRequired(err error) bool {
	return errors.Is(err, ErrCorrectionFieldsRequired)
}

func IsAggregationLeaseNotHeld(err error) bool {
	return errors.Is(err, ErrAggregationLeaseNotHeld)
}

func IsInvalidPage(err error) bool {
	return errors.Is(err, ErrInvalidPage)
}

func IsInvalidPageSize(err error) bool {
	return errors.Is(err, ErrInvalidPageSize)
}
