package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/wertlabs/eventfunnel/app/dto"
	"github.com/wertlabs/eventfunnel/config"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	"github.com/wertlabs/eventfunnel/utils"
)

// AggregationFlow materializes daily stat buckets from raw events
// Recompute is idempotent: every bucket in the requested scope is rebuilt from
// scratch and written through a transactional delete-and-insert, so rerunning
// a window after late events or corrections converges on the true counts
type AggregationFlow interface {
	Recompute(ctx context.Context, trigger string, req *dto.AggregateRequest) (*dto.AggregateResponse, error)
	RecomputeWindow(ctx context.Context, trigger string, clientID *uint, fromDate, toDate time.Time) (*dto.AggregateResponse, error)
}

// AggregationFlowImpl implements the aggregation engine
type AggregationFlowImpl struct {
	clientRepo     repository.ClientRepository
	campaignRepo   repository.CampaignRepository
	webinarRepo    repository.WebinarRepository
	eventRepo      repository.AccessEventRepository
	entryRepo      repository.ConversionEntryRepository
	statRepo       repository.DailyStatRepository
	runRepo        repository.AggregationRunRepository
	attributionCfg config.AttributionConfig
	db             *gorm.DB
}

// NewAggregationFlow creates a new aggregation flow instance
func NewAggregationFlow(
	clientRepo repository.ClientRepository,
	campaignRepo repository.CampaignRepository,
	webinarRepo repository.WebinarRepository,
	eventRepo repository.AccessEventRepository,
	entryRepo repository.ConversionEntryRepository,
	statRepo repository.DailyStatRepository,
	runRepo repository.AggregationRunRepository,
	db *gorm.DB,
	attributionCfg config.AttributionConfig,
) AggregationFlow {
	return &AggregationFlowImpl{
		clientRepo:     clientRepo,
		campaignRepo:   campaignRepo,
		webinarRepo:    webinarRepo,
		eventRepo:      eventRepo,
		entryRepo:      entryRepo,
		statRepo:       statRepo,
		runRepo:        runRepo,
		attributionCfg: attributionCfg,
		db:             db,
	}
}

// bucketKey identifies one stat row. Empty strings stand in for absent UTM
// values; normalization upstream guarantees stored values are never empty.
type bucketKey struct {
	clientID    uint
	campaignID  uint
	date        string
	linkID      uint // 0 means no link
	utmSource   string
	utmMedium   string
	utmCampaign string
}

type bucketAgg struct {
	sessions    map[string]struct{}
	anonVisits  int64
	conversions int64
}

// Recompute parses the requested date range and rebuilds it
func (f *AggregationFlowImpl) Recompute(ctx context.Context, trigger string, req *dto.AggregateRequest) (*dto.AggregateResponse, error) {
	fromDate, toDate, err := parseDateRange(req.From, req.To)
	if err != nil {
		return nil, NewBusinessError("AGGREGATION_VALIDATION_FAILED", "Aggregation validation failed", err)
	}
	return f.RecomputeWindow(ctx, trigger, req.ClientID, fromDate, toDate)
}

// RecomputeWindow rebuilds every bucket whose local calendar date falls in
// [fromDate, toDate]. The run is recorded in aggregation_runs whether it
// succeeds or fails.
func (f *AggregationFlowImpl) RecomputeWindow(ctx context.Context, trigger string, clientID *uint, fromDate, toDate time.Time) (*dto.AggregateResponse, error) {
	run := &models.AggregationRun{
		ClientID:  clientID,
		Trigger:   trigger,
		RangeFrom: fromDate,
		RangeTo:   toDate,
		Status:    models.AggregationRunStatusRunning,
		StartedAt: utils.UTCNow(),
		CreatedAt: utils.UTCNow(),
	}
	if err := f.runRepo.Save(ctx, run); err != nil {
		return nil, NewBusinessError("AGGREGATION_RUN_FAILED", "Failed to record aggregation run", err)
	}

	resp, err := f.recompute(ctx, clientID, fromDate, toDate)

	run.FinishedAt = utils.UTCNowPtr()
	if err != nil {
		run.Status = models.AggregationRunStatusFailed
		run.ErrorMessage = utils.ToPtr(err.Error())
	} else {
		run.Status = models.AggregationRunStatusSucceeded
		run.BucketsWrote = resp.BucketsWrote
		run.Visits = resp.Visits
		run.Conversions = resp.Conversions
		if meta, merr := json.Marshal(map[string]any{
			"from": fromDate.Format("2006-01-02"),
			"to":   toDate.Format("2006-01-02"),
		}); merr == nil {
			run.Metadata = meta
		}
	}
	if uerr := f.runRepo.Update(ctx, run); uerr != nil {
		log.Printf("aggregation: failed to finalize run %d: %v", run.ID, uerr)
	}

	aggregationRuns.WithLabelValues(trigger, run.Status).Inc()
	if err == nil {
		aggregationBuckets.Set(float64(resp.BucketsWrote))
	}

	if err != nil {
		return nil, err
	}
	resp.From = fromDate.Format("2006-01-02")
	resp.To = toDate.Format("2006-01-02")
	return resp, nil
}

func (f *AggregationFlowImpl) recompute(ctx context.Context, clientID *uint, fromDate, toDate time.Time) (*dto.AggregateResponse, error) {
	clients, err := f.scopedClients(ctx, clientID)
	if err != nil {
		return nil, NewBusinessError("CLIENT_SCAN_FAILED", "Failed to scan clients", err)
	}

	resp := &dto.AggregateResponse{Success: true}
	computedAt := utils.UTCNow()

	// The replace is scoped per client so an all-clients run never wipes
	// buckets belonging to clients outside the recompute set.
	for _, client := range clients {
		loc, err := reportingLocation(client, f.attributionCfg)
		if err != nil {
			return nil, NewBusinessError("AGGREGATION_TZ_FAILED", "Failed to resolve reporting timezone", err)
		}

		rows, err := f.recomputeClient(ctx, client, loc, fromDate, toDate, computedAt)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			resp.Visits += row.Visits
			resp.Conversions += row.Conversions
		}

		if err := f.statRepo.ReplaceRange(ctx, &client.ID, fromDate, toDate, rows); err != nil {
			return nil, NewBusinessError("AGGREGATION_WRITE_FAILED", "Failed to replace stat buckets", err)
		}
		resp.BucketsWrote += int64(len(rows))
	}
	return resp, nil
}

func (f *AggregationFlowImpl) scopedClients(ctx context.Context, clientID *uint) ([]*models.Client, error) {
	if clientID != nil {
		client, err := f.clientRepo.ByID(ctx, *clientID)
		if err != nil {
			return nil, err
		}
		if client == nil {
			return nil, ErrClientNotFound
		}
		return []*models.Client{client}, nil
	}
	active := true
	return f.clientRepo.ByFilter(ctx, models.ClientFilter{IsActive: &active}, "id ASC", 0, 0)
}

// recomputeClient rebuilds one client's buckets. Visit counting is distinct
// session per bucket per day; events without a session each count once.
func (f *AggregationFlowImpl) recomputeClient(ctx context.Context, client *models.Client, loc *time.Location, fromDate, toDate time.Time, computedAt time.Time) ([]*models.DailyStat, error) {
	campaignOwner, webinarTarget, err := f.ownershipMaps(ctx, client.ID)
	if err != nil {
		return nil, err
	}

	// The UTC span covering every local day in range
	utcFrom, _ := utils.LocalDayBounds(fromDate, loc)
	_, utcTo := utils.LocalDayBounds(toDate, loc)

	buckets := make(map[bucketKey]*bucketAgg)

	events, err := f.eventRepo.ListInRange(ctx, utcFrom, utcTo)
	if err != nil {
		return nil, NewBusinessError("AGGREGATION_SCAN_FAILED", "Failed to scan access events", err)
	}
	for _, ev := range events {
		campaignID, ok := f.eventCampaign(ev, campaignOwner, webinarTarget)
		if !ok {
			continue
		}
		key := bucketKey{
			clientID:   client.ID,
			campaignID: campaignID,
			date:       utils.LocalDate(ev.AccessedAt, loc).Format("2006-01-02"),
		}
		applyAttributionKey(&key, ev.LinkID, ev.UTMSource, ev.UTMMedium, ev.UTMCampaign)
		agg := getBucket(buckets, key)
		if ev.SessionID != nil && *ev.SessionID != "" {
			agg.sessions[*ev.SessionID] = struct{}{}
		} else {
			agg.anonVisits++
		}
	}

	entries, err := f.entryRepo.ListInRange(ctx, utcFrom, utcTo)
	if err != nil {
		return nil, NewBusinessError("AGGREGATION_SCAN_FAILED", "Failed to scan conversion entries", err)
	}
	for _, entry := range entries {
		if _, ok := campaignOwner[entry.CampaignID]; !ok {
			continue
		}
		key := bucketKey{
			clientID:   client.ID,
			campaignID: entry.CampaignID,
			date:       utils.LocalDate(entry.SubmittedAt, loc).Format("2006-01-02"),
		}
		applyAttributionKey(&key, entry.LinkID, entry.UTMSource, entry.UTMMedium, entry.UTMCampaign)
		getBucket(buckets, key).conversions++
	}

	rows := make([]*models.DailyStat, 0, len(buckets))
	for key, agg := range buckets {
		date, err := time.Parse("2006-01-02", key.date)
		if err != nil {
			return nil, fmt.Errorf("invalid bucket date %q: %w", key.date, err)
		}
		// Events in the UTC span may fall on local dates outside the range
		if date.Before(fromDate) || date.After(toDate) {
			continue
		}
		row := &models.DailyStat{
			ClientID:    key.clientID,
			CampaignID:  key.campaignID,
			BucketDate:  date,
			Visits:      int64(len(agg.sessions)) + agg.anonVisits,
			Conversions: agg.conversions,
			ComputedAt:  computedAt,
			CreatedAt:   computedAt,
			UpdatedAt:   computedAt,
		}
		if key.linkID != 0 {
			linkID := key.linkID
			row.LinkID = &linkID
		}
		if key.utmSource != "" {
			row.UTMSource = utils.ToPtr(key.utmSource)
		}
		if key.utmMedium != "" {
			row.UTMMedium = utils.ToPtr(key.utmMedium)
		}
		if key.utmCampaign != "" {
			row.UTMCampaign = utils.ToPtr(key.utmCampaign)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ownershipMaps indexes the client's campaigns and the webinar-to-campaign
// routing used to classify webinar visits
func (f *AggregationFlowImpl) ownershipMaps(ctx context.Context, clientID uint) (map[uint]struct{}, map[uint]uint, error) {
	campaigns, err := f.campaignRepo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, nil, NewBusinessError("CAMPAIGN_SCAN_FAILED", "Failed to scan campaigns", err)
	}
	campaignOwner := make(map[uint]struct{}, len(campaigns))
	for _, c := range campaigns {
		campaignOwner[c.ID] = struct{}{}
	}

	webinars, err := f.webinarRepo.ByFilter(ctx, models.WebinarFilter{ClientID: &clientID}, "", 0, 0)
	if err != nil {
		return nil, nil, NewBusinessError("WEBINAR_SCAN_FAILED", "Failed to scan webinars", err)
	}
	webinarTarget := make(map[uint]uint, len(webinars))
	for _, w := range webinars {
		if w.RegistrationCampaignID != nil {
			webinarTarget[w.ID] = *w.RegistrationCampaignID
		}
	}
	return campaignOwner, webinarTarget, nil
}

// eventCampaign maps a visit to the campaign it should count under. Webinar
// visits count under the webinar's registration campaign; webinars without one
// have no conversion funnel and are skipped.
func (f *AggregationFlowImpl) eventCampaign(ev *models.AccessEvent, campaignOwner map[uint]struct{}, webinarTarget map[uint]uint) (uint, bool) {
	if ev.CampaignID != nil {
		_, ok := campaignOwner[*ev.CampaignID]
		return *ev.CampaignID, ok
	}
	if ev.WebinarID != nil {
		target, ok := webinarTarget[*ev.WebinarID]
		if !ok {
			return 0, false
		}
		_, ok = campaignOwner[target]
		return target, ok
	}
	return 0, false
}

// applyAttributionKey fills the channel part of a bucket key: the link id when
// the row resolved to a registered link, otherwise the raw UTM triple,
// otherwise nothing (the direct bucket).
func applyAttributionKey(key *bucketKey, linkID *uint, src, med, cmp *string) {
	if linkID != nil {
		key.linkID = *linkID
		return
	}
	if src != nil {
		key.utmSource = *src
	}
	if med != nil {
		key.utmMedium = *med
	}
	if cmp != nil {
		key.utmCampaign = *cmp
	}
}

func getBucket(buckets map[bucketKey]*bucketAgg, key bucketKey) *bucketAgg {
	agg, ok := buckets[key]
	if !ok {
		agg = &bucketAgg{sessions: make(map[string]struct{})}
		buckets[key] = agg
	}
	return agg
}
