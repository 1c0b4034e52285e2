package businessflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wertlabs/eventfunnel/app/dto"
	businessflow "github.com/wertlabs/eventfunnel/business_flow"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	testingutil "github.com/wertlabs/eventfunnel/testing"
	"github.com/wertlabs/eventfunnel/utils"
)

func newVisitFlow(testDB *testingutil.TestDB) businessflow.VisitFlow {
	return businessflow.NewVisitFlow(
		repository.NewCampaignRepository(testDB.DB),
		repository.NewWebinarRepository(testDB.DB),
		repository.NewCampaignLinkRepository(testDB.DB),
		repository.NewAccessEventRepository(testDB.DB),
	)
}

func lastAccessEvent(t *testing.T, testDB *testingutil.TestDB) *models.AccessEvent {
	t.Helper()
	var event models.AccessEvent
	require.NoError(t, testDB.DB.Order("id DESC").First(&event).Error)
	return &event
}

func TestVisitFlowRecordVisit(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newVisitFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
		require.NoError(t, err)

		t.Run("CIDSnapshotBeatsQueryUTM", func(t *testing.T) {
			resp, err := flow.RecordVisit(ctx, &dto.RecordVisitRequest{
				SessionID:  "sess-1",
				CampaignID: &campaign.ID,
				Query: dto.TrackingQuery{
					CID:       utils.ToPtr(link.CID),
					UTMSource: utils.ToPtr("should-lose"),
				},
			}, nil)
			require.NoError(t, err)
			assert.True(t, resp.Success)

			event := lastAccessEvent(t, testDB)
			require.NotNil(t, event.LinkID)
			assert.Equal(t, link.ID, *event.LinkID)
			assert.Equal(t, "kakao", *event.UTMSource)
			assert.Equal(t, "cpc", *event.UTMMedium)
		})

		t.Run("QueryUTMWhenNoCID", func(t *testing.T) {
			_, err := flow.RecordVisit(ctx, &dto.RecordVisitRequest{
				SessionID:  "sess-2",
				CampaignID: &campaign.ID,
				Query: dto.TrackingQuery{
					UTMSource: utils.ToPtr("  Naver "),
					UTMMedium: utils.ToPtr("Organic"),
				},
			}, nil)
			require.NoError(t, err)

			event := lastAccessEvent(t, testDB)
			assert.Nil(t, event.LinkID)
			assert.Equal(t, "naver", *event.UTMSource)
			assert.Equal(t, "organic", *event.UTMMedium)
		})

		t.Run("DeadCIDDegradesToUnattributed", func(t *testing.T) {
			_, err := flow.RecordVisit(ctx, &dto.RecordVisitRequest{
				SessionID:  "sess-3",
				CampaignID: &campaign.ID,
				Query:      dto.TrackingQuery{CID: utils.ToPtr("gone123")},
			}, nil)
			require.NoError(t, err)

			event := lastAccessEvent(t, testDB)
			assert.Nil(t, event.LinkID)
			// The dead code is still recorded for later diagnosis
			require.NotNil(t, event.CID)
			assert.Equal(t, "gone123", *event.CID)
		})

		t.Run("SessionlessVisitIsAccepted", func(t *testing.T) {
			_, err := flow.RecordVisit(ctx, &dto.RecordVisitRequest{
				CampaignID: &campaign.ID,
			}, nil)
			require.NoError(t, err)

			event := lastAccessEvent(t, testDB)
			assert.Nil(t, event.SessionID)
		})

		t.Run("RequiresExactlyOneTarget", func(t *testing.T) {
			_, err := flow.RecordVisit(ctx, &dto.RecordVisitRequest{SessionID: "sess-4"}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignTargetRequired(err))

			webinarID := uint(1)
			_, err = flow.RecordVisit(ctx, &dto.RecordVisitRequest{
				SessionID:  "sess-4",
				CampaignID: &campaign.ID,
				WebinarID:  &webinarID,
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignTargetAmbiguous(err))
		})

		t.Run("WebinarVisit", func(t *testing.T) {
			webinar, err := fixtures.CreateTestWebinar(client.ID, &campaign.ID)
			require.NoError(t, err)

			resp, err := flow.RecordVisit(ctx, &dto.RecordVisitRequest{
				SessionID: "sess-5",
				WebinarID: &webinar.ID,
				Query:     dto.TrackingQuery{CID: utils.ToPtr(link.CID)},
			}, nil)
			require.NoError(t, err)
			assert.True(t, resp.Success)

			event := lastAccessEvent(t, testDB)
			require.NotNil(t, event.WebinarID)
			assert.Equal(t, webinar.ID, *event.WebinarID)
			assert.Nil(t, event.CampaignID)
			require.NotNil(t, event.LinkID)
			assert.Equal(t, link.ID, *event.LinkID)
		})

		t.Run("UnknownWebinarRejected", func(t *testing.T) {
			missing := uint(99999)
			_, err := flow.RecordVisit(ctx, &dto.RecordVisitRequest{
				WebinarID: &missing,
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsWebinarNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}
