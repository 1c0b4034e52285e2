package businessflow_test

import (
	"testing"

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

func newLinkFlow(testDB *testingutil.TestDB) businessflow.LinkRegistryFlow {
	return businessflow.NewLinkRegistryFlow(
		repository.NewClientRepository(testDB.DB),
		repository.NewCampaignRepository(testDB.DB),
		repository.NewWebinarRepository(testDB.DB),
		repository.NewCampaignLinkRepository(testDB.DB),
		testDB.DB,
		config.TrackingConfig{ShareBaseURL: "https://events.example.com", CIDParam: "cid"},
	)
}

func TestLinkRegistryFlowCreateLink(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newLinkFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)

		t.Run("GeneratesCIDWhenNotSupplied", func(t *testing.T) {
			link, err := flow.CreateLink(ctx, &dto.CreateLinkRequest{
				ClientID:   client.ID,
				CampaignID: &campaign.ID,
				Name:       "Kakao Launch",
				UTMSource:  utils.ToPtr("Kakao"),
				UTMMedium:  utils.ToPtr("CPC"),
			}, nil)
			require.NoError(t, err)
			assert.Len(t, link.CID, utils.CIDLength)
			assert.Equal(t, models.LinkStatusActive, link.Status)
			assert.Equal(t, models.LandingVariantRegister, link.LandingVariant)
			// UTM values are normalized on write
			assert.Equal(t, "kakao", *link.UTMSource)
			assert.Equal(t, "cpc", *link.UTMMedium)
			assert.Contains(t, link.ShareURL, "cid="+link.CID)
		})

		t.Run("AcceptsSuppliedCID", func(t *testing.T) {
			link, err := flow.CreateLink(ctx, &dto.CreateLinkRequest{
				ClientID:   client.ID,
				CampaignID: &campaign.ID,
				Name:       "Naver Launch",
				CID:        utils.ToPtr("NaverAd01"),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, "NaverAd01", link.CID)
		})

		t.Run("RejectsDuplicateName", func(t *testing.T) {
			_, err := flow.CreateLink(ctx, &dto.CreateLinkRequest{
				ClientID:   client.ID,
				CampaignID: &campaign.ID,
				Name:       "Kakao Launch",
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsDuplicateLinkName(err))
		})

		t.Run("RejectsDuplicateCID", func(t *testing.T) {
			_, err := flow.CreateLink(ctx, &dto.CreateLinkRequest{
				ClientID:   client.ID,
				CampaignID: &campaign.ID,
				Name:       "Naver Retarget",
				CID:        utils.ToPtr("NaverAd01"),
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsDuplicateCID(err))
		})

		t.Run("RequiresCampaignOrWebinar", func(t *testing.T) {
			_, err := flow.CreateLink(ctx, &dto.CreateLinkRequest{
				ClientID: client.ID,
				Name:     "Orphan Link",
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignTargetRequired(err))
		})

		t.Run("RejectsUnknownCampaign", func(t *testing.T) {
			missing := campaign.ID + 1000
			_, err := flow.CreateLink(ctx, &dto.CreateLinkRequest{
				ClientID:   client.ID,
				CampaignID: &missing,
				Name:       "Dangling Link",
			}, nil)
			require.Error(t, err)
		})

		t.Run("RejectsForeignCampaign", func(t *testing.T) {
			stranger, err := fixtures.CreateTestClient()
			require.NoError(t, err)
			foreign, err := fixtures.CreateTestCampaign(stranger.ID)
			require.NoError(t, err)

			_, err = flow.CreateLink(ctx, &dto.CreateLinkRequest{
				ClientID:   client.ID,
				CampaignID: &foreign.ID,
				Name:       "Poached Campaign Link",
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignNotOwned(err))
		})

		t.Run("RejectsForeignWebinar", func(t *testing.T) {
			stranger, err := fixtures.CreateTestClient()
			require.NoError(t, err)
			foreign, err := fixtures.CreateTestWebinar(stranger.ID, nil)
			require.NoError(t, err)

			_, err = flow.CreateLink(ctx, &dto.CreateLinkRequest{
				ClientID:  client.ID,
				WebinarID: &foreign.ID,
				Name:      "Poached Webinar Link",
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsWebinarNotOwned(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestLinkRegistryFlowUpdateLink(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newLinkFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "facebook")
		require.NoError(t, err)
		other, err := fixtures.CreateTestLink(client.ID, campaign.ID, "google")
		require.NoError(t, err)

		t.Run("PartialUpdateKeepsCID", func(t *testing.T) {
			updated, err := flow.UpdateLink(ctx, &dto.UpdateLinkRequest{
				UUID:      link.UUID.String(),
				ClientID:  client.ID,
				Name:      utils.ToPtr("Renamed Link"),
				UTMSource: utils.ToPtr("Instagram"),
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, "Renamed Link", updated.Name)
			assert.Equal(t, "instagram", *updated.UTMSource)
			assert.Equal(t, link.CID, updated.CID)
			// Fields not named in the request stay put
			assert.Equal(t, "cpc", *updated.UTMMedium)
		})

		t.Run("RejectsNameTakenByAnotherLink", func(t *testing.T) {
			_, err := flow.UpdateLink(ctx, &dto.UpdateLinkRequest{
				UUID:     link.UUID.String(),
				ClientID: client.ID,
				Name:     utils.ToPtr(other.Name),
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsDuplicateLinkName(err))
		})

		t.Run("RejectsEmptyUpdate", func(t *testing.T) {
			_, err := flow.UpdateLink(ctx, &dto.UpdateLinkRequest{
				UUID:     link.UUID.String(),
				ClientID: client.ID,
			}, nil)
			require.Error(t, err)
		})

		t.Run("RejectsRetargetToForeignCampaign", func(t *testing.T) {
			stranger, err := fixtures.CreateTestClient()
			require.NoError(t, err)
			foreign, err := fixtures.CreateTestCampaign(stranger.ID)
			require.NoError(t, err)

			_, err = flow.UpdateLink(ctx, &dto.UpdateLinkRequest{
				UUID:       link.UUID.String(),
				ClientID:   client.ID,
				CampaignID: &foreign.ID,
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsCampaignNotOwned(err))

			reloaded, err := repository.NewCampaignLinkRepository(testDB.DB).ByID(ctx, link.ID)
			require.NoError(t, err)
			assert.Equal(t, campaign.ID, *reloaded.CampaignID)
		})

		t.Run("RejectsRetargetToForeignWebinar", func(t *testing.T) {
			stranger, err := fixtures.CreateTestClient()
			require.NoError(t, err)
			foreign, err := fixtures.CreateTestWebinar(stranger.ID, nil)
			require.NoError(t, err)

			_, err = flow.UpdateLink(ctx, &dto.UpdateLinkRequest{
				UUID:      link.UUID.String(),
				ClientID:  client.ID,
				WebinarID: &foreign.ID,
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsWebinarNotOwned(err))
		})

		t.Run("RejectsForeignClient", func(t *testing.T) {
			stranger, err := fixtures.CreateTestClient()
			require.NoError(t, err)
			_, err = flow.UpdateLink(ctx, &dto.UpdateLinkRequest{
				UUID:     link.UUID.String(),
				ClientID: stranger.ID,
				Name:     utils.ToPtr("Hijacked"),
			}, nil)
			require.Error(t, err)
			assert.True(t, businessflow.IsLinkNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestLinkRegistryFlowArchiveAndResolve(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newLinkFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
		require.NoError(t, err)

		t.Run("ResolvesActiveCID", func(t *testing.T) {
			resolved, err := flow.ResolveByCID(ctx, client.ID, link.CID)
			require.NoError(t, err)
			assert.Equal(t, link.ID, resolved.ID)
		})

		t.Run("ArchiveStopsResolution", func(t *testing.T) {
			require.NoError(t, flow.ArchiveLink(ctx, client.ID, link.UUID.String(), nil))

			_, err := flow.ResolveByCID(ctx, client.ID, link.CID)
			require.Error(t, err)
			assert.True(t, businessflow.IsLinkNotFound(err))
		})

		t.Run("ArchiveIsIdempotent", func(t *testing.T) {
			require.NoError(t, flow.ArchiveLink(ctx, client.ID, link.UUID.String(), nil))
		})

		t.Run("UnknownCIDNotFound", func(t *testing.T) {
			_, err := flow.ResolveByCID(ctx, client.ID, "nope")
			require.Error(t, err)
			assert.True(t, businessflow.IsLinkNotFound(err))
		})

		return nil
	})
	require.NoError(t, err)
}

func TestLinkRegistryFlowListLinks(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		flow := newLinkFlow(testDB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			_, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
			require.NoError(t, err)
		}

		t.Run("PagesThroughResults", func(t *testing.T) {
			page1, err := flow.ListLinks(ctx, &dto.ListLinksRequest{ClientID: client.ID, Page: 1, PageSize: 3})
			require.NoError(t, err)
			assert.Len(t, page1.Links, 3)
			assert.Equal(t, int64(5), page1.Total)

			page2, err := flow.ListLinks(ctx, &dto.ListLinksRequest{ClientID: client.ID, Page: 2, PageSize: 3})
			require.NoError(t, err)
			assert.Len(t, page2.Links, 2)
		})

		t.Run("FiltersByStatus", func(t *testing.T) {
			archived := models.LinkStatusArchived
			resp, err := flow.ListLinks(ctx, &dto.ListLinksRequest{ClientID: client.ID, Status: &archived})
			require.NoError(t, err)
			assert.Empty(t, resp.Links)
		})

		t.Run("RejectsOversizedPage", func(t *testing.T) {
			_, err := flow.ListLinks(ctx, &dto.ListLinksRequest{ClientID: client.ID, PageSize: 500})
			require.Error(t, err)
		})

		return nil
	})
	require.NoError(t, err)
}
