package businessflow_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wertlabs/eventfunnel/app/dto"
	businessflow "github.com/wertlabs/eventfunnel/business_flow"
	"github.com/wertlabs/eventfunnel/config"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	testingutil "github.com/wertlabs/eventfunnel/testing"
)

const matchWindow = 10 * time.Minute

func newMatcherFlow(testDB *testingutil.TestDB) businessflow.AttributionMatcherFlow {
	return businessflow.NewAttributionMatcherFlow(
		repository.NewConversionEntryRepository(testDB.DB),
		repository.NewAccessEventRepository(testDB.DB),
		repository.NewCampaignLinkRepository(testDB.DB),
		testDB.DB,
		config.AttributionConfig{MatchWindow: matchWindow, ReportingTimezone: "Asia/Seoul"},
	)
}

func reloadEntry(t *testing.T, testDB *testingutil.TestDB, id uint) *models.ConversionEntry {
	t.Helper()
	var entry models.ConversionEntry
	require.NoError(t, testDB.DB.First(&entry, id).Error)
	return &entry
}

func reloadEvent(t *testing.T, testDB *testingutil.TestDB, id uint) *models.AccessEvent {
	t.Helper()
	var event models.AccessEvent
	require.NoError(t, testDB.DB.First(&event, id).Error)
	return &event
}

func TestAttributionMatcherFlowMatchEntry(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newMatcherFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
		require.NoError(t, err)

		submittedAt := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

		t.Run("SameSessionClosestVisitWins", func(t *testing.T) {
			far, err := fixtures.CreateTestVisit(campaign.ID, "sess-a", link, submittedAt.Add(-3*time.Minute))
			require.NoError(t, err)
			near, err := fixtures.CreateTestVisit(campaign.ID, "sess-a", link, submittedAt.Add(-1*time.Minute))
			require.NoError(t, err)

			entry, err := fixtures.CreateTestEntry(campaign.ID, 1, "sess-a", submittedAt)
			require.NoError(t, err)

			require.NoError(t, flow.MatchEntry(ctx, entry.ID))

			matched := reloadEntry(t, testDB, entry.ID)
			require.NotNil(t, matched.LinkID)
			assert.Equal(t, link.ID, *matched.LinkID)
			assert.Equal(t, "kakao", *matched.UTMSource)

			stamped := reloadEvent(t, testDB, near.ID)
			require.NotNil(t, stamped.ConvertedAt)
			assert.Equal(t, entry.ID, *stamped.EntryID)

			untouched := reloadEvent(t, testDB, far.ID)
			assert.Nil(t, untouched.ConvertedAt)
		})

		t.Run("VisitOutsideWindowIgnored", func(t *testing.T) {
			campaignB, err := fixtures.CreateTestCampaign(client.ID)
			require.NoError(t, err)
			linkB, err := fixtures.CreateTestLink(client.ID, campaignB.ID, "kakao")
			require.NoError(t, err)
			_, err = fixtures.CreateTestVisit(campaignB.ID, "sess-b", linkB, submittedAt.Add(-matchWindow-time.Minute))
			require.NoError(t, err)

			entry, err := fixtures.CreateTestEntry(campaignB.ID, 1, "sess-b", submittedAt)
			require.NoError(t, err)

			require.NoError(t, flow.MatchEntry(ctx, entry.ID))
			assert.False(t, reloadEntry(t, testDB, entry.ID).HasAttribution())
		})

		t.Run("FallsBackToMostRecentAttributedVisit", func(t *testing.T) {
			// Separate campaign so candidates from the other subtests stay out
			campaign2, err := fixtures.CreateTestCampaign(client.ID)
			require.NoError(t, err)
			link2, err := fixtures.CreateTestLink(client.ID, campaign2.ID, "naver")
			require.NoError(t, err)

			older, err := fixtures.CreateTestVisit(campaign2.ID, "sess-c1", link2, submittedAt.Add(-4*time.Minute))
			require.NoError(t, err)
			newer, err := fixtures.CreateTestVisit(campaign2.ID, "sess-c2", link2, submittedAt.Add(-2*time.Minute))
			require.NoError(t, err)
			// Newest of all but unattributed, so never a fallback candidate
			_, err = fixtures.CreateTestVisit(campaign2.ID, "sess-c3", nil, submittedAt.Add(-30*time.Second))
			require.NoError(t, err)

			entry, err := fixtures.CreateTestEntry(campaign2.ID, 1, "", submittedAt)
			require.NoError(t, err)

			require.NoError(t, flow.MatchEntry(ctx, entry.ID))

			matched := reloadEntry(t, testDB, entry.ID)
			require.NotNil(t, matched.LinkID)
			assert.Equal(t, link2.ID, *matched.LinkID)

			require.NotNil(t, reloadEvent(t, testDB, newer.ID).ConvertedAt)
			assert.Nil(t, reloadEvent(t, testDB, older.ID).ConvertedAt)

			// The stamped visit is spoken for; the next entry must take the older one
			entry2, err := fixtures.CreateTestEntry(campaign2.ID, 2, "", submittedAt)
			require.NoError(t, err)
			require.NoError(t, flow.MatchEntry(ctx, entry2.ID))

			reStamped := reloadEvent(t, testDB, older.ID)
			require.NotNil(t, reStamped.ConvertedAt)
			assert.Equal(t, entry2.ID, *reStamped.EntryID)
		})

		t.Run("DirectVisitConfirmsDirectConversion", func(t *testing.T) {
			// Separate campaign so candidates from the other subtests stay out
			campaignD, err := fixtures.CreateTestCampaign(client.ID)
			require.NoError(t, err)

			visit, err := fixtures.CreateTestVisit(campaignD.ID, "sess-direct", nil, submittedAt.Add(-time.Minute))
			require.NoError(t, err)

			entry, err := fixtures.CreateTestEntry(campaignD.ID, 1, "sess-direct", submittedAt)
			require.NoError(t, err)

			require.NoError(t, flow.MatchEntry(ctx, entry.ID))

			stamped := reloadEvent(t, testDB, visit.ID)
			require.NotNil(t, stamped.ConvertedAt)
			assert.Equal(t, entry.ID, *stamped.EntryID)

			// Confirmed direct: no channel, but settled
			matched := reloadEntry(t, testDB, entry.ID)
			assert.False(t, matched.HasAttribution())
			require.NotNil(t, matched.AttributedAt)

			// A rerun must not hand the entry a second visit
			second, err := fixtures.CreateTestVisit(campaignD.ID, "sess-direct", nil, submittedAt.Add(-30*time.Second))
			require.NoError(t, err)

			require.NoError(t, flow.MatchEntry(ctx, entry.ID))
			assert.Nil(t, reloadEvent(t, testDB, second.ID).ConvertedAt)
		})

		t.Run("AttributedEntryLeftUntouched", func(t *testing.T) {
			entry, err := fixtures.CreateTestEntry(campaign.ID, 5, "", submittedAt)
			require.NoError(t, err)
			require.NoError(t, testDB.DB.Model(entry).Update("utm_source", "email").Error)

			visit, err := fixtures.CreateTestVisit(campaign.ID, "sess-d", link, submittedAt.Add(-time.Minute))
			require.NoError(t, err)

			require.NoError(t, flow.MatchEntry(ctx, entry.ID))

			reloaded := reloadEntry(t, testDB, entry.ID)
			assert.Equal(t, "email", *reloaded.UTMSource)
			assert.Nil(t, reloaded.LinkID)
			assert.Nil(t, reloadEvent(t, testDB, visit.ID).ConvertedAt)
		})

		t.Run("UnknownEntry", func(t *testing.T) {
			err := flow.MatchEntry(ctx, 99999)
			require.Error(t, err)
			assert.True(t, businessflow.IsEntryNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestAttributionMatcherFlowBackfill(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newMatcherFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "google")
		require.NoError(t, err)

		base := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

		// Two entries with a matchable visit each, one stranded
		for i := 0; i < 2; i++ {
			at := base.Add(time.Duration(i) * time.Hour)
			sess := fmt.Sprintf("sess-bf-%d", i)
			_, err := fixtures.CreateTestVisit(campaign.ID, sess, link, at.Add(-2*time.Minute))
			require.NoError(t, err)
			_, err = fixtures.CreateTestEntry(campaign.ID, int64(i+1), sess, at)
			require.NoError(t, err)
		}
		_, err = fixtures.CreateTestEntry(campaign.ID, 3, "", base.Add(5*time.Hour))
		require.NoError(t, err)

		req := &dto.ReattributeRequest{CampaignID: &campaign.ID, From: "2025-06-10", To: "2025-06-10"}

		resp, err := flow.BackfillAttribution(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 3, resp.Examined)
		assert.Equal(t, 2, resp.Matched)

		// Matched entries drop out of the unattributed scan, so a rerun converges
		resp, err = flow.BackfillAttribution(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Examined)
		assert.Equal(t, 0, resp.Matched)

		t.Run("RejectsReversedRange", func(t *testing.T) {
			_, err := flow.BackfillAttribution(ctx, &dto.ReattributeRequest{From: "2025-06-11", To: "2025-06-10"})
			require.Error(t, err)
			assert.True(t, businessflow.IsStartDateAfterEndDate(err))
		})

		return nil
	})
	require.NoError(t, err)
}
