package businessflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/wertlabs/eventfunnel/app/dto"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
)

// StatsFlow reads the materialized daily buckets and joins them with link
// metadata for display and export
type StatsFlow interface {
	ListStats(ctx context.Context, req *dto.ListStatsRequest) (*dto.ListStatsResponse, error)
	ExportStatsExcel(ctx context.Context, req *dto.ListStatsRequest) (string, []byte, error)
}

// StatsFlowImpl implements the stats read flow
type StatsFlowImpl struct {
	statRepo repository.DailyStatRepository
	linkRepo repository.CampaignLinkRepository
}

// NewStatsFlow creates a new stats flow instance
func NewStatsFlow(statRepo repository.DailyStatRepository, linkRepo repository.CampaignLinkRepository) StatsFlow {
	return &StatsFlowImpl{statRepo: statRepo, linkRepo: linkRepo}
}

// ListStats returns bucket rows for the range, decorated with link name and
// cid where the bucket is keyed by a registered link
func (f *StatsFlowImpl) ListStats(ctx context.Context, req *dto.ListStatsRequest) (*dto.ListStatsResponse, error) {
	rows, err := f.loadStats(ctx, req)
	if err != nil {
		return nil, err
	}

	links, err := f.linkIndex(ctx, rows)
	if err != nil {
		return nil, err
	}

	resp := &dto.ListStatsResponse{Stats: make([]dto.DailyStatDTO, 0, len(rows))}
	for _, row := range rows {
		item := ToDailyStatDTO(row)
		if row.LinkID != nil {
			if link, ok := links[*row.LinkID]; ok {
				item.LinkName = &link.Name
				item.LinkCID = &link.CID
			}
		}
		resp.Stats = append(resp.Stats, item)
	}
	resp.Total = len(resp.Stats)
	return resp, nil
}

// ExportStatsExcel renders the same rows as a single-sheet workbook
func (f *StatsFlowImpl) ExportStatsExcel(ctx context.Context, req *dto.ListStatsRequest) (string, []byte, error) {
	rows, err := f.loadStats(ctx, req)
	if err != nil {
		return "", nil, err
	}
	links, err := f.linkIndex(ctx, rows)
	if err != nil {
		return "", nil, err
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "daily_stats"
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := []string{"bucket_date", "client_id", "campaign_id", "link_name", "cid", "utm_source", "utm_medium", "utm_campaign", "visits", "conversions", "computed_at"}
	_ = xl.SetSheetRow(sheet, "A1", &header)

	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}

	for ri, row := range rows {
		item := ToDailyStatDTO(row)
		linkName := ""
		linkCID := ""
		if row.LinkID != nil {
			if link, ok := links[*row.LinkID]; ok {
				linkName = link.Name
				linkCID = link.CID
			}
		}
		record := []string{
			item.BucketDate,
			strconv.FormatUint(uint64(row.ClientID), 10),
			strconv.FormatUint(uint64(row.CampaignID), 10),
			linkName,
			linkCID,
			deref(item.UTMSource),
			deref(item.UTMMedium),
			deref(item.UTMCampaign),
			strconv.FormatInt(row.Visits, 10),
			strconv.FormatInt(row.Conversions, 10),
			item.ComputedAt,
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		_ = xl.SetSheetRow(sheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("daily_stats_%s_%s.xlsx", req.From, req.To)
	return filename, buf.Bytes(), nil
}

func (f *StatsFlowImpl) loadStats(ctx context.Context, req *dto.ListStatsRequest) ([]*models.DailyStat, error) {
	fromDate, toDate, err := parseDateRange(req.From, req.To)
	if err != nil {
		return nil, NewBusinessError("STATS_VALIDATION_FAILED", "Stats validation failed", err)
	}

	filter := models.DailyStatFilter{
		ClientID:   req.ClientID,
		CampaignID: req.CampaignID,
		DateFrom:   &fromDate,
		DateTo:     &toDate,
	}
	rows, err := f.statRepo.ListRange(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("STATS_LIST_FAILED", "Failed to list stats", err)
	}
	return rows, nil
}

// linkIndex loads the links referenced by the result set in one pass
func (f *StatsFlowImpl) linkIndex(ctx context.Context, rows []*models.DailyStat) (map[uint]*models.CampaignLink, error) {
	index := make(map[uint]*models.CampaignLink)
	for _, row := range rows {
		if row.LinkID == nil {
			continue
		}
		if _, ok := index[*row.LinkID]; ok {
			continue
		}
		link, err := f.linkRepo.ByID(ctx, *row.LinkID)
		if err != nil {
			return nil, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to lookup link", err)
		}
		if link != nil {
			index[*row.LinkID] = link
		}
	}
	return index, nil
}
