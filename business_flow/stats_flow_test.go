package businessflow_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/wertlabs/eventfunnel/app/dto"
	businessflow "github.com/wertlabs/eventfunnel/business_flow"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	testingutil "github.com/wertlabs/eventfunnel/testing"
	"github.com/wertlabs/eventfunnel/utils"
)

func newStatsFlow(testDB *testingutil.TestDB) businessflow.StatsFlow {
	return businessflow.NewStatsFlow(
		repository.NewDailyStatRepository(testDB.DB),
		repository.NewCampaignLinkRepository(testDB.DB),
	)
}

// seedStats writes one linked and one direct bucket for the Seoul day 2025-06-10
func seedStats(t *testing.T, testDB *testingutil.TestDB, fixtures *testingutil.TestFixtures) (*models.Campaign, *models.CampaignLink) {
	t.Helper()
	client, err := fixtures.CreateTestClient()
	require.NoError(t, err)
	campaign, err := fixtures.CreateTestCampaign(client.ID)
	require.NoError(t, err)
	link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
	require.NoError(t, err)

	date := time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	rows := []*models.DailyStat{
		{
			ClientID: client.ID, CampaignID: campaign.ID, BucketDate: date,
			LinkID: &link.ID, Visits: 12, Conversions: 3, ComputedAt: now,
		},
		{
			ClientID: client.ID, CampaignID: campaign.ID, BucketDate: date,
			UTMSource: utils.ToPtr("naver"), UTMMedium: utils.ToPtr("blog"),
			Visits: 5, Conversions: 1, ComputedAt: now,
		},
	}
	require.NoError(t, testDB.DB.Create(&rows).Error)
	return campaign, link
}

func TestStatsFlowListStats(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newStatsFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		campaign, link := seedStats(t, testDB, fixtures)

		t.Run("JoinsLinkMetadata", func(t *testing.T) {
			resp, err := flow.ListStats(ctx, &dto.ListStatsRequest{
				CampaignID: &campaign.ID, From: "2025-06-10", To: "2025-06-10",
			})
			require.NoError(t, err)
			require.Equal(t, 2, resp.Total)

			var linked, direct *dto.DailyStatDTO
			for i := range resp.Stats {
				if resp.Stats[i].LinkID != nil {
					linked = &resp.Stats[i]
				} else {
					direct = &resp.Stats[i]
				}
			}
			require.NotNil(t, linked)
			assert.Equal(t, link.Name, *linked.LinkName)
			assert.Equal(t, link.CID, *linked.LinkCID)
			assert.Equal(t, int64(12), linked.Visits)
			assert.Equal(t, "2025-06-10", linked.BucketDate)

			require.NotNil(t, direct)
			assert.Nil(t, direct.LinkName)
			assert.Equal(t, "naver", *direct.UTMSource)
		})

		t.Run("EmptyRangeReturnsNoRows", func(t *testing.T) {
			resp, err := flow.ListStats(ctx, &dto.ListStatsRequest{
				CampaignID: &campaign.ID, From: "2025-07-01", To: "2025-07-02",
			})
			require.NoError(t, err)
			assert.Zero(t, resp.Total)
			assert.Empty(t, resp.Stats)
		})

		t.Run("RejectsReversedRange", func(t *testing.T) {
			_, err := flow.ListStats(ctx, &dto.ListStatsRequest{
				From: "2025-06-11", To: "2025-06-10",
			})
			require.Error(t, err)
			assert.True(t, businessflow.IsStartDateAfterEndDate(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestStatsFlowExportStatsExcel(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newStatsFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		campaign, link := seedStats(t, testDB, fixtures)

		filename, data, err := flow.ExportStatsExcel(ctx, &dto.ListStatsRequest{
			CampaignID: &campaign.ID, From: "2025-06-10", To: "2025-06-10",
		})
		require.NoError(t, err)
		assert.Equal(t, "daily_stats_2025-06-10_2025-06-10.xlsx", filename)
		require.NotEmpty(t, data)

		xl, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer func() { _ = xl.Close() }()

		rows, err := xl.GetRows("daily_stats")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "bucket_date", rows[0][0])
		assert.Equal(t, "visits", rows[0][8])

		var sawLink bool
		for _, row := range rows[1:] {
			assert.Equal(t, "2025-06-10", row[0])
			if row[3] == link.Name {
				sawLink = true
				assert.Equal(t, link.CID, row[4])
				assert.Equal(t, "12", row[8])
				assert.Equal(t, "3", row[9])
			}
		}
		assert.True(t, sawLink)

		return nil
	})
	require.NoError(t, err)
}
