package businessflow

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/wertlabs/eventfunnel/app/dto"
	"github.com/wertlabs/eventfunnel/config"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/repository"
	"github.com/wertlabs/eventfunnel/utils"
)

// AttributionMatcherFlow joins unattributed conversions back to nearby visits
// Candidate order inside the window: same-session visits first, then the most
// recent visit that carries attribution. Both the entry update and the visit
// stamp are guarded writes, so a rerun over already-matched rows is a no-op.
type AttributionMatcherFlow interface {
	MatchEntry(ctx context.Context, entryID uint) error
	BackfillAttribution(ctx context.Context, req *dto.ReattributeRequest) (*dto.ReattributeResponse, error)
}

// AttributionMatcherFlowImpl implements the attribution matcher
type AttributionMatcherFlowImpl struct {
	entryRepo      repository.ConversionEntryRepository
	eventRepo      repository.AccessEventRepository
	linkRepo       repository.CampaignLinkRepository
	attributionCfg config.AttributionConfig
	db             *gorm.DB
}

// NewAttributionMatcherFlow creates a new attribution matcher flow instance
func NewAttributionMatcherFlow(
	entryRepo repository.ConversionEntryRepository,
	eventRepo repository.AccessEventRepository,
	linkRepo repository.CampaignLinkRepository,
	db *gorm.DB,
	attributionCfg config.AttributionConfig,
) AttributionMatcherFlow {
	return &AttributionMatcherFlowImpl{
		entryRepo:      entryRepo,
		eventRepo:      eventRepo,
		linkRepo:       linkRepo,
		attributionCfg: attributionCfg,
		db:             db,
	}
}

// MatchEntry attempts the window join for one entry. An entry whose channel
// is already settled, including one confirmed direct by an earlier match, or
// one with no usable candidate, is left untouched.
func (f *AttributionMatcherFlowImpl) MatchEntry(ctx context.Context, entryID uint) error {
	entry, err := f.entryRepo.ByID(ctx, entryID)
	if err != nil {
		return NewBusinessError("ENTRY_LOOKUP_FAILED", "Failed to lookup entry", err)
	}
	if entry == nil {
		return ErrEntryNotFound
	}
	if entry.HasAttribution() || entry.AttributedAt != nil {
		return nil
	}

	_, err = f.matchOne(ctx, entry)
	return err
}

// BackfillAttribution re-runs the matcher over every unattributed entry in the
// given submission range. Entries matched since their submission are skipped
// by the unattributed filter, so repeated runs converge.
func (f *AttributionMatcherFlowImpl) BackfillAttribution(ctx context.Context, req *dto.ReattributeRequest) (*dto.ReattributeResponse, error) {
	from, to, err := parseDateRange(req.From, req.To)
	if err != nil {
		return nil, NewBusinessError("REATTRIBUTE_VALIDATION_FAILED", "Reattribute validation failed", err)
	}
	// Submission timestamps are UTC; the range is interpreted as whole UTC
	// days here because backfills sweep generously rather than precisely
	entries, err := f.entryRepo.ListUnattributed(ctx, req.CampaignID, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, NewBusinessError("REATTRIBUTE_SCAN_FAILED", "Failed to scan unattributed entries", err)
	}

	resp := &dto.ReattributeResponse{Examined: len(entries)}
	for _, entry := range entries {
		matched, err := f.matchOne(ctx, entry)
		if err != nil {
			log.Printf("matcher: backfill match failed for entry %d: %v", entry.ID, err)
			continue
		}
		if matched {
			resp.Matched++
		}
	}
	return resp, nil
}

func (f *AttributionMatcherFlowImpl) matchOne(ctx context.Context, entry *models.ConversionEntry) (bool, error) {
	window := f.attributionCfg.MatchWindow
	candidates, err := f.eventRepo.ListMatchCandidates(ctx, entry.CampaignID, entry.SubmittedAt.Add(-window), entry.SubmittedAt.Add(window))
	if err != nil {
		return false, NewBusinessError("MATCH_SCAN_FAILED", "Failed to scan match candidates", err)
	}

	event := pickCandidate(entry, candidates)
	if event == nil {
		return false, nil
	}

	var link *models.CampaignLink
	if event.LinkID != nil {
		link, err = f.linkRepo.ByID(ctx, *event.LinkID)
		if err != nil {
			return false, NewBusinessError("LINK_LOOKUP_FAILED", "Failed to lookup matched link", err)
		}
	}

	utm := map[string]*string{
		"utm_source":   event.UTMSource,
		"utm_medium":   event.UTMMedium,
		"utm_campaign": event.UTMCampaign,
		"utm_term":     event.UTMTerm,
		"utm_content":  event.UTMContent,
	}

	var updated bool
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		updated, err = f.entryRepo.UpdateAttribution(txCtx, entry.ID, link, utm, utils.UTCNow())
		if err != nil {
			return err
		}
		if !updated {
			// Someone attributed the entry between scan and write
			return nil
		}
		if _, err := f.eventRepo.StampConversion(txCtx, event.ID, entry.SubmittedAt, entry.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return false, NewBusinessError("MATCH_WRITE_FAILED", "Failed to write match", err)
	}
	if updated {
		matcherMatches.WithLabelValues("matched").Inc()
	} else {
		matcherMatches.WithLabelValues("unmatched").Inc()
	}
	return updated, nil
}

// pickCandidate scans newest-first candidates: an unclaimed same-session visit
// beats everything; failing that, the most recent attributed visit wins.
func pickCandidate(entry *models.ConversionEntry, candidates []*models.AccessEvent) *models.AccessEvent {
	if entry.SessionID != nil {
		var best *models.AccessEvent
		var bestDelta time.Duration
		for _, c := range candidates {
			if c.ConvertedAt != nil || c.SessionID == nil || *c.SessionID != *entry.SessionID {
				continue
			}
			delta := entry.SubmittedAt.Sub(c.AccessedAt)
			if delta < 0 {
				delta = -delta
			}
			if best == nil || delta < bestDelta {
				best = c
				bestDelta = delta
			}
		}
		if best != nil {
			return best
		}
	}

	for _, c := range candidates {
		if c.ConvertedAt != nil {
			continue
		}
		if c.HasAttribution() {
			return c
		}
	}
	return nil
}
