package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatCode6(t *testing.T) {
	assert.Equal(t, "000001", FormatCode6(1))
	assert.Equal(t, "000042", FormatCode6(42))
	assert.Equal(t, "014000", FormatCode6(14000))
	assert.Equal(t, "999999", FormatCode6(999999))
	// Ordinals past six digits widen rather than truncate
	assert.Equal(t, "1000000", FormatCode6(1000000))
}

func TestAccessEventHasAttribution(t *testing.T) {
	assert.False(t, (&AccessEvent{}).HasAttribution())

	linkID := uint(7)
	assert.True(t, (&AccessEvent{LinkID: &linkID}).HasAttribution())

	src := "kakao"
	assert.True(t, (&AccessEvent{UTMSource: &src}).HasAttribution())

	term := "spring"
	assert.True(t, (&AccessEvent{UTMTerm: &term}).HasAttribution())
}

func TestConversionEntryHasAttribution(t *testing.T) {
	assert.False(t, (&ConversionEntry{}).HasAttribution())

	medium := "cpc"
	assert.True(t, (&ConversionEntry{UTMMedium: &medium}).HasAttribution())
}

func TestCampaignLinkIsArchived(t *testing.T) {
	assert.False(t, (&CampaignLink{Status: LinkStatusActive}).IsArchived())
	assert.True(t, (&CampaignLink{Status: LinkStatusArchived}).IsArchived())
}
