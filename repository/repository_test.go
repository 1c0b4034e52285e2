package repository_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	testingutil "github.com/wertlabs/eventfunnel/testing"
	"github.com/wertlabs/eventfunnel/utils"
)

func TestCampaignRepositoryAdvanceSurveyNo(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCampaignRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)

		t.Run("SwapWins", func(t *testing.T) {
			won, err := repo.AdvanceSurveyNo(ctx, campaign.ID, 1)
			require.NoError(t, err)
			assert.True(t, won)

			reloaded, err := repo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), reloaded.NextSurveyNo)
		})

		t.Run("StaleSwapLoses", func(t *testing.T) {
			// Counter is at 2 now; a writer still holding 1 must lose
			won, err := repo.AdvanceSurveyNo(ctx, campaign.ID, 1)
			require.NoError(t, err)
			assert.False(t, won)

			reloaded, err := repo.ByID(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(2), reloaded.NextSurveyNo)
		})

		t.Run("ConcurrentSwapsAllocateEveryOrdinalOnce", func(t *testing.T) {
			fresh, err := fixtures.CreateTestCampaign(client.ID)
			require.NoError(t, err)

			const workers = 20
			var wg sync.WaitGroup
			wins := make(chan int64, workers*workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					// Retry until a swap wins, reloading the counter each time
					for {
						c, err := repo.ByID(ctx, fresh.ID)
						if err != nil {
							return
						}
						won, err := repo.AdvanceSurveyNo(ctx, fresh.ID, c.NextSurveyNo)
						if err != nil {
							return
						}
						if won {
							wins <- c.NextSurveyNo
							return
						}
					}
				}()
			}
			wg.Wait()
			close(wins)

			seen := make(map[int64]struct{})
			for n := range wins {
				_, dup := seen[n]
				assert.False(t, dup, "ordinal %d allocated twice", n)
				seen[n] = struct{}{}
			}
			assert.Len(t, seen, workers)

			reloaded, err := repo.ByID(ctx, fresh.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(workers+1), reloaded.NextSurveyNo)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestCampaignLinkRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewCampaignLinkRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
		require.NoError(t, err)

		t.Run("ByCID", func(t *testing.T) {
			found, err := repo.ByCID(ctx, client.ID, link.CID)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, link.ID, found.ID)
		})

		t.Run("ByCIDUnknownCode", func(t *testing.T) {
			found, err := repo.ByCID(ctx, client.ID, "nope1234")
			require.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("ByCIDWrongClient", func(t *testing.T) {
			other, err := fixtures.CreateTestClient()
			require.NoError(t, err)
			found, err := repo.ByCID(ctx, other.ID, link.CID)
			require.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("ByCIDSkipsArchived", func(t *testing.T) {
			archived, err := fixtures.CreateTestLink(client.ID, campaign.ID, "naver")
			require.NoError(t, err)
			require.NoError(t, repo.UpdateFields(ctx, archived.ID, map[string]any{"status": models.LinkStatusArchived}))

			found, err := repo.ByCID(ctx, client.ID, archived.CID)
			require.NoError(t, err)
			assert.Nil(t, found)
		})

		t.Run("ByClientAndName", func(t *testing.T) {
			found, err := repo.ByClientAndName(ctx, client.ID, link.Name)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, link.ID, found.ID)
		})

		t.Run("UpdateFields", func(t *testing.T) {
			require.NoError(t, repo.UpdateFields(ctx, link.ID, map[string]any{"utm_source": "instagram"}))
			reloaded, err := repo.ByID(ctx, link.ID)
			require.NoError(t, err)
			require.NotNil(t, reloaded.UTMSource)
			assert.Equal(t, "instagram", *reloaded.UTMSource)
			// Untouched fields survive
			assert.Equal(t, link.CID, reloaded.CID)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestAccessEventRepositoryStampConversion(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewAccessEventRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		event, err := fixtures.CreateTestVisit(campaign.ID, "sess-1", nil, utils.UTCNow())
		require.NoError(t, err)

		stampedAt := utils.UTCNow()

		t.Run("FirstStampSticks", func(t *testing.T) {
			changed, err := repo.StampConversion(ctx, event.ID, stampedAt, 101)
			require.NoError(t, err)
			assert.True(t, changed)

			reloaded, err := repo.ByID(ctx, event.ID)
			require.NoError(t, err)
			require.NotNil(t, reloaded.EntryID)
			assert.Equal(t, uint(101), *reloaded.EntryID)
		})

		t.Run("SecondStampIsRejected", func(t *testing.T) {
			changed, err := repo.StampConversion(ctx, event.ID, utils.UTCNow(), 202)
			require.NoError(t, err)
			assert.False(t, changed)

			reloaded, err := repo.ByID(ctx, event.ID)
			require.NoError(t, err)
			require.NotNil(t, reloaded.EntryID)
			assert.Equal(t, uint(101), *reloaded.EntryID)
			assert.Equal(t, stampedAt.Unix(), reloaded.ConvertedAt.Unix())
		})

		return nil
	})
	require.NoError(t, err)
}

func TestAccessEventRepositoryListConvertedOrphans(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewAccessEventRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)

		now := utils.UTCNow()

		// Stamped visit whose entry still exists
		entry, err := fixtures.CreateTestEntry(campaign.ID, 1, "", now)
		require.NoError(t, err)
		kept, err := fixtures.CreateTestVisit(campaign.ID, "sess-kept", nil, now)
		require.NoError(t, err)
		_, err = repo.StampConversion(ctx, kept.ID, now, entry.ID)
		require.NoError(t, err)

		// Stamped visit whose entry was deleted
		orphaned, err := fixtures.CreateTestVisit(campaign.ID, "sess-orphan", nil, now)
		require.NoError(t, err)
		_, err = repo.StampConversion(ctx, orphaned.ID, now, entry.ID+1000)
		require.NoError(t, err)

		// Never-converted visit
		_, err = fixtures.CreateTestVisit(campaign.ID, "sess-plain", nil, now)
		require.NoError(t, err)

		orphans, err := repo.ListConvertedOrphans(ctx, campaign.ID)
		require.NoError(t, err)
		require.Len(t, orphans, 1)
		assert.Equal(t, orphaned.ID, orphans[0].ID)

		return nil
	})
	require.NoError(t, err)
}

func TestConversionEntryRepositoryUpdateAttribution(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewConversionEntryRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)
		link, err := fixtures.CreateTestLink(client.ID, campaign.ID, "kakao")
		require.NoError(t, err)
		entry, err := fixtures.CreateTestEntry(campaign.ID, 1, "", utils.UTCNow())
		require.NoError(t, err)

		t.Run("BackfillsUnattributedEntry", func(t *testing.T) {
			updated, err := repo.UpdateAttribution(ctx, entry.ID, link, nil, utils.UTCNow())
			require.NoError(t, err)
			assert.True(t, updated)

			reloaded, err := repo.ByID(ctx, entry.ID)
			require.NoError(t, err)
			require.NotNil(t, reloaded.LinkID)
			assert.Equal(t, link.ID, *reloaded.LinkID)
			require.NotNil(t, reloaded.UTMSource)
			assert.Equal(t, "kakao", *reloaded.UTMSource)
			assert.NotNil(t, reloaded.AttributedAt)
		})

		t.Run("NeverOverwritesAttributedEntry", func(t *testing.T) {
			src := "naver"
			updated, err := repo.UpdateAttribution(ctx, entry.ID, nil, map[string]*string{"utm_source": &src}, utils.UTCNow())
			require.NoError(t, err)
			assert.False(t, updated)

			reloaded, err := repo.ByID(ctx, entry.ID)
			require.NoError(t, err)
			require.NotNil(t, reloaded.UTMSource)
			assert.Equal(t, "kakao", *reloaded.UTMSource)
		})

		t.Run("SettlesConfirmedDirectWithoutChannel", func(t *testing.T) {
			direct, err := fixtures.CreateTestEntry(campaign.ID, 2, "", utils.UTCNow())
			require.NoError(t, err)

			updated, err := repo.UpdateAttribution(ctx, direct.ID, nil, nil, utils.UTCNow())
			require.NoError(t, err)
			assert.True(t, updated)

			reloaded, err := repo.ByID(ctx, direct.ID)
			require.NoError(t, err)
			assert.Nil(t, reloaded.LinkID)
			assert.Nil(t, reloaded.UTMSource)
			require.NotNil(t, reloaded.AttributedAt)

			// Settled means settled, even when no channel was resolved.
			src := "naver"
			updated, err = repo.UpdateAttribution(ctx, direct.ID, nil, map[string]*string{"utm_source": &src}, utils.UTCNow())
			require.NoError(t, err)
			assert.False(t, updated)

			unmatched, err := repo.ListUnattributed(ctx, &campaign.ID,
				utils.UTCNowAdd(-time.Hour), utils.UTCNowAdd(time.Hour))
			require.NoError(t, err)
			for _, e := range unmatched {
				assert.NotEqual(t, direct.ID, e.ID)
			}
		})

		t.Run("ByCampaignAndPhone", func(t *testing.T) {
			found, err := repo.ByCampaignAndPhone(ctx, campaign.ID, *entry.PhoneNorm)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, entry.ID, found.ID)

			missing, err := repo.ByCampaignAndPhone(ctx, campaign.ID, "00000000000")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestDailyStatRepositoryReplaceRange(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewDailyStatRepository(testDB.DB)
		fixtures := testingutil.NewTestFixtures(testDB)
		ctx := testingutil.CreateTestContext()

		client, err := fixtures.CreateTestClient()
		require.NoError(t, err)
		campaign, err := fixtures.CreateTestCampaign(client.ID)
		require.NoError(t, err)

		day1 := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		day2 := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
		now := utils.UTCNow()

		makeRows := func(visits int64) []*models.DailyStat {
			return []*models.DailyStat{
				{ClientID: client.ID, CampaignID: campaign.ID, BucketDate: day1, Visits: visits, Conversions: 2, ComputedAt: now},
				{ClientID: client.ID, CampaignID: campaign.ID, BucketDate: day2, UTMSource: utils.ToPtr("kakao"), Visits: visits + 1, Conversions: 1, ComputedAt: now},
			}
		}

		t.Run("InsertsRows", func(t *testing.T) {
			require.NoError(t, repo.ReplaceRange(ctx, &client.ID, day1, day2, makeRows(10)))
			rows, err := repo.ListRange(ctx, models.DailyStatFilter{ClientID: &client.ID, DateFrom: &day1, DateTo: &day2})
			require.NoError(t, err)
			assert.Len(t, rows, 2)
		})

		t.Run("RerunReplacesInsteadOfAccumulating", func(t *testing.T) {
			require.NoError(t, repo.ReplaceRange(ctx, &client.ID, day1, day2, makeRows(20)))
			rows, err := repo.ListRange(ctx, models.DailyStatFilter{ClientID: &client.ID, DateFrom: &day1, DateTo: &day2})
			require.NoError(t, err)
			require.Len(t, rows, 2)
			for _, row := range rows {
				assert.GreaterOrEqual(t, row.Visits, int64(20))
			}
		})

		t.Run("EmptyRecomputeClearsRange", func(t *testing.T) {
			require.NoError(t, repo.ReplaceRange(ctx, &client.ID, day1, day1, nil))
			rows, err := repo.ListRange(ctx, models.DailyStatFilter{ClientID: &client.ID, DateFrom: &day1, DateTo: &day2})
			require.NoError(t, err)
			assert.Len(t, rows, 1) // only the day2 bucket survives
		})

		t.Run("Sums", func(t *testing.T) {
			visits, err := repo.SumVisits(ctx, campaign.ID, day1, day2)
			require.NoError(t, err)
			assert.Equal(t, int64(21), visits)

			conversions, err := repo.SumConversions(ctx, campaign.ID, day1, day2)
			require.NoError(t, err)
			assert.Equal(t, int64(1), conversions)
		})

		return nil
	})
	require.NoError(t, err)
}

func TestAggregationRunRepository(t *testing.T) {
	err := testingutil.TestWithDB(func(testDB *testingutil.TestDB) error {
		repo := repository.NewAggregationRunRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()

		day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		run := &models.AggregationRun{
			Trigger:   models.AggregationTriggerCron,
			RangeFrom: day,
			RangeTo:   day,
			Status:    models.AggregationRunStatusRunning,
			StartedAt: utils.UTCNow(),
		}
		require.NoError(t, repo.Save(ctx, run))
		require.NotZero(t, run.ID)

		run.Status = models.AggregationRunStatusSucceeded
		run.BucketsWrote = 7
		run.FinishedAt = utils.UTCNowPtr()
		require.NoError(t, repo.Update(ctx, run))

		reloaded, err := repo.ByID(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.AggregationRunStatusSucceeded, reloaded.Status)
		assert.Equal(t, int64(7), reloaded.BucketsWrote)
		assert.NotNil(t, reloaded.FinishedAt)

		return nil
	})
	require.NoError(t, err)
}
