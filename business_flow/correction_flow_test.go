package businessflow_test

import (
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
	"github.com/wertlabs/eventfunnel/utils"
)

func newCorrectionFlow(testDB *testingutil.TestDB) businessflow.CorrectionFlow {
	return businessflow.NewCorrectionFlow(
		repository.NewClientRepository(testDB.DB),
		repository.NewCampaignRepository(testDB.DB),
		repository.NewWebinarRepository(testDB.DB),
		repository.NewCampaignLinkRepository(testDB.DB),
		repository.NewAccessEventRepository(testDB.DB),
		repository.NewConversionEntryRepository(testDB.DB),
		repository.NewDailyStatRepository(testDB.DB),
		newMatcherFlow(testDB),
		newAggregationFlow(testDB),
		testDB.DB,
		config.AttributionConfig{MatchWindow: matchWindow, ReportingTimezone: "Asia/Seoul"},
	)
}

func TestCorrectionFlowReconcileRange(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		correction := newCorrectionFlow(testDB)
		aggregation := newAggregationFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
		require.NoError(t, err)

		day := time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC)

		// Four raw visits, three distinct by the counting rule
		_, err = fixtures.CreateTestVisit(campaign.ID, "sess-1", link, day)
		require.NoError(t, err)
		_, err = fixtures.CreateTestVisit(campaign.ID, "sess-1", link, day.Add(5*time.Minute))
		require.NoError(t, err)
		_, err = fixtures.CreateTestVisit(campaign.ID, "sess-2", link, day.Add(time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTestVisit(campaign.ID, "", link, day.Add(2*time.Hour))
		require.NoError(t, err)

		_, err = fixtures.CreateTestEntry(campaign.ID, 1, "", day.Add(time.Hour))
		require.NoError(t, err)
		_, err = fixtures.CreateTestEntry(campaign.ID, 2, "", day.Add(2*time.Hour))
		require.NoError(t, err)

		req := &dto.ReconcileRequest{CampaignID: campaign.ID, From: "2025-06-10", To: "2025-06-10"}

		t.Run("ConsistentAfterRecompute", func(t *testing.T) {
			_, err := aggregation.Recompute(ctx, models.AggregationTriggerCron, &dto.AggregateRequest{
				From: "2025-06-10", To: "2025-06-10", ClientID: &client.ID,
			})
			require.NoError(t, err)

			resp, err := correction.ReconcileRange(ctx, req)
			require.NoError(t, err)
			assert.True(t, resp.Consistent)
			assert.Equal(t, int64(4), resp.RawVisits)
			assert.Equal(t, int64(3), resp.DistinctRawVisits)
			assert.Equal(t, int64(3), resp.BucketVisits)
			assert.Equal(t, int64(2), resp.RawConversions)
			assert.Equal(t, int64(2), resp.BucketConversions)
		})

		t.Run("ReportsDriftWithoutPatchingIt", func(t *testing.T) {
			require.NoError(t, testDB.DB.Model(&models.DailyStat{}).
				Where("campaign_id = ? AND visits > 0", campaign.ID).
				Update("visits", 99).Error)

			resp, err := correction.ReconcileRange(ctx, req)
			require.NoError(t, err)
			assert.False(t, resp.Consistent)
			assert.Equal(t, int64(99), resp.BucketVisits)

			// Still 99 afterwards; reconcile never writes
			again, err := correction.ReconcileRange(ctx, req)
			require.NoError(t, err)
			assert.Equal(t, int64(99), again.BucketVisits)
		})

		t.Run("SweepsWebinarTrafficAndStopsAtDayEnd", func(t *testing.T) {
			webinar, err := fixtures.CreateTestWebinar(client.ID, &campaign.ID)
			require.NoError(t, err)
			_, err = fixtures.CreateTestWebinarVisit(webinar.ID, "sess-w", day.Add(3*time.Hour))
			require.NoError(t, err)
			// Seoul midnight of the next day; outside the reconciled window
			_, err = fixtures.CreateTestVisit(campaign.ID, "sess-edge", link, time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC))
			require.NoError(t, err)

			_, err = aggregation.Recompute(ctx, models.AggregationTriggerCron, &dto.AggregateRequest{
				From: "2025-06-10", To: "2025-06-10", ClientID: &client.ID,
			})
			require.NoError(t, err)

			resp, err := correction.ReconcileRange(ctx, req)
			require.NoError(t, err)
			assert.True(t, resp.Consistent)
			assert.Equal(t, int64(5), resp.RawVisits)
			assert.Equal(t, int64(4), resp.DistinctRawVisits)
			assert.Equal(t, int64(4), resp.BucketVisits)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCorrectionFlowCorrectEntryAttribution(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		correction := newCorrectionFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
		require.NoError(t, err)

		day := time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC)
		entry, err := fixtures.CreateTestEntry(campaign.ID, 1, "", day)
		require.NoError(t, err)

		t.Run("RepaintsToLinkAndRecomputes", func(t *testing.T) {
			resp, err := correction.CorrectEntryAttribution(ctx, &dto.CorrectEntryRequest{
				EntryUUID: entry.UUID.String(),
				LinkUUID:  utils.ToPtr(link.UUID.String()),
			}, nil)
			require.NoError(t, err)
			assert.True(t, resp.Success)
			assert.Equal(t, "2025-06-10", resp.RecomputedOn)

			corrected := reloadEntry(t, testDB, entry.ID)
			require.NotNil(t, corrected.LinkID)
			assert.Equal(t, link.ID, *corrected.LinkID)
			assert.Equal(t, link.CID, *corrected.CID)
			assert.Equal(t, "kakao", *corrected.UTMSource)

			// The recompute moved the conversion into the link bucket
			rows := loadStats(t, testDB, campaign.ID)
			require.Len(t, rows, 1)
			require.NotNil(t, rows[0].LinkID)
			assert.Equal(t, link.ID, *rows[0].LinkID)
			assert.Equal(t, int64(1), rows[0].Conversions)
		})

		t.Run("RepaintsToManualUTM", func(t *testing.T) {
			resp, err := correction.CorrectEntryAttribution(ctx, &dto.CorrectEntryRequest{
				EntryUUID: entry.UUID.String(),
				UTMSource: utils.ToPtr("Email"),
				UTMMedium: utils.ToPtr("newsletter"),
			}, nil)
			require.NoError(t, err)
			assert.True(t, resp.Success)

			corrected := reloadEntry(t, testDB, entry.ID)
			assert.Nil(t, corrected.LinkID)
			assert.Nil(t, corrected.CID)
			assert.Equal(t, "email", *corrected.UTMSource)
		})

		t.Run("RejectsEmptyCorrection", func(t *testing.T) {
			_, err := correction.CorrectEntryAttribution(ctx, &dto.CorrectEntryRequest{
				EntryUUID: entry.UUID.String(),
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCorrectionFieldsRequired(err))
		})

		t.Run("RejectsForeignLink", func(t *testing.T) {
			stranger, err := fixtures.CreateTestClient()
			require.NoError(t, err)
			strangerCampaign, err := fixtures.CreateTestCampaign(stranger.ID)
			require.NoError(t, err)
			foreignLink, err := fixtures.CreateTestLink(stranger.ID, strangerCampaign.ID, "x")
			require.NoError(t, err)

			_, err = correction.CorrectEntryAttribution(ctx, &dto.CorrectEntryRequest{
				EntryUUID: entry.UUID.String(),
				LinkUUID:  utils.ToPtr(foreignLink.UUID.String()),
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsLinkNotFound(err))
		})

		t.Run("RejectsUnknownEntry", func(t *testing.T) {
			_, err := correction.CorrectEntryAttribution(ctx, &dto.CorrectEntryRequest{
				EntryUUID: "3f2f2f8e-1111-2222-3333-444455556666",
				UTMSource: utils.ToPtr("email"),
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsEntryNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCorrectionFlowRecoverDeletedEntries(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		correction := newCorrectionFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
		require.NoError(t, err)

		day := time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC)

		entry, err := fixtures.CreateTestEntry(campaign.ID, 1, "", day)
		require.NoError(t, err)
		require.NoError(t, testDB.DB.Model(&models.Campaign{}).
			Where("id = ?", campaign.ID).
			Update("next_survey_no", 2).Error)

		visit, err := fixtures.CreateTestVisit(campaign.ID, "sess-1", link, day.Add(-2*time.Minute))
		require.NoError(t, err)
		require.NoError(t, testDB.DB.Model(visit).Updates(map[string]any{
			"converted_at": day, "entry_id": entry.ID,
		}).Error)

		// The accidental hard delete this toolkit exists for
		require.NoError(t, testDB.DB.Delete(&models.ConversionEntry{}, entry.ID).Error)

		resp, err := correction.RecoverDeletedEntries(ctx, &dto.RecoverEntriesRequest{CampaignID: campaign.ID}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Recovered)

		t.Run("RebuiltUnderOriginalID", func(t *testing.T) {
			recovered := reloadEntry(t, testDB, entry.ID)
			require.NotNil(t, recovered.IsRecovered)
			assert.True(t, *recovered.IsRecovered)
			// Fresh ordinal from the live counter, not the deleted one
			assert.Equal(t, int64(2), recovered.SurveyNo)
			assert.Equal(t, "000002", recovered.Code6)
			// Identity is unrecoverable; attribution and timing survive
			assert.Nil(t, recovered.Name)
			assert.Nil(t, recovered.PhoneNorm)
			require.NotNil(t, recovered.LinkID)
			assert.Equal(t, link.ID, *recovered.LinkID)
			assert.True(t, recovered.SubmittedAt.Equal(day))
		})

		t.Run("RerunFindsNothing", func(t *testing.T) {
			resp, err := correction.RecoverDeletedEntries(ctx, &dto.RecoverEntriesRequest{CampaignID: campaign.ID}, nil)
			require.NoError(t, err)
			assert.Equal(t, 0, resp.Recovered)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCorrectionFlowReattributeRange(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		correction := newCorrectionFlow(testDB)
		aggregation := newAggregationFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
		require.NoError(t, err)

		day := time.Date(2025, 6, 10, 1, 0, 0, 0, time.UTC)

		_, err = fixtures.CreateTestVisit(campaign.ID, "sess-1", link, day.Add(-2*time.Minute))
		require.NoError(t, err)
		_, err = fixtures.CreateTestEntry(campaign.ID, 1, "sess-1", day)
		require.NoError(t, err)

		// Buckets computed before the matcher ran file the conversion as direct
		_, err = aggregation.Recompute(ctx, models.AggregationTriggerCron, &dto.AggregateRequest{
			From: "2025-06-10", To: "2025-06-10", ClientID: &client.ID,
		})
		require.NoError(t, err)

		resp, err := correction.ReattributeRange(ctx, &dto.ReattributeRequest{
			CampaignID: &campaign.ID, From: "2025-06-10", To: "2025-06-10",
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Examined)
		assert.Equal(t, 1, resp.Matched)

		// The follow-up recompute moved the conversion out of the direct bucket
		rows := loadStats(t, testDB, campaign.ID)
		require.Len(t, rows, 1)
		require.NotNil(t, rows[0].LinkID)
		assert.Equal(t, link.ID, *rows[0].LinkID)
		assert.Equal(t, int64(1), rows[0].Conversions)
		assert.Equal(t, int64(1), rows[0].Visits)

		t.Run("NothingToMatchSkipsRecompute", func(t *testing.T) {
			resp, err := correction.ReattributeRange(ctx, &dto.ReattributeRequest{
				CampaignID: &campaign.ID, From: "2025-06-10", To: "2025-06-10",
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, 0, resp.Matched)
		})

		return nil
	})
	require.NoError(t, err)
}
