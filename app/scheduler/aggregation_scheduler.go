// Package scheduler
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	businessflow "github.com/wertlabs/eventfunnel/business_flow"
	"github.com/wertlabs/eventfunnel/config"
	"github.com/wertlabs/eventfunnel/models"
	"github.com/wertlabs/eventfunnel/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AggregationScheduler periodically recomputes daily stat buckets over a
// rolling window so recent corrections and late-matched conversions converge
// without operator intervention
type AggregationScheduler struct {
	flow   businessflow.AggregationFlow
	rc     *redis.Client
	cfg    config.AggregationConfig
	loc    *time.Location
	logger *log.Logger

	// instanceID identifies this process in the distributed lease so a
	// restarted instance never deletes a lease held by another
	instanceID string
}

func NewAggregationScheduler(
	flow businessflow.AggregationFlow,
	rc *redis.Client,
	cfg config.AggregationConfig,
	attributionCfg config.AttributionConfig,
) *AggregationScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = utils.DefaultAggregationInterval
	}
	if cfg.RollingWindow <= 0 {
		cfg.RollingWindow = utils.DefaultRollingWindow
	}

	loc, err := time.LoadLocation(attributionCfg.ReportingTimezone)
	if err != nil {
		loc = time.UTC
	}

	s := &AggregationScheduler{
		flow:       flow,
		rc:         rc,
		cfg:        cfg,
		loc:        loc,
		instanceID: uuid.New().String(),
	}
	s.initLogger()
	return s
}

// initLogger configures a logger that writes to both stdout and a rotated file
func (s *AggregationScheduler) initLogger() {
	var w io.Writer = os.Stdout
	if s.cfg.LogPath != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   s.cfg.LogPath,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
	}
	s.logger = log.New(w, "aggregation ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *AggregationScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *AggregationScheduler) runOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.Interval)
	defer cancel()

	if err := s.acquireLease(ctx); err != nil {
		if !businessflow.IsAggregationLeaseNotHeld(err) {
			s.logger.Printf("aggregation: lease acquisition failed: %v", err)
		}
		return
	}
	defer s.releaseLease(parent)

	// The rolling window is evaluated in the default reporting timezone.
	// Clients with an overridden timezone are recomputed over the same local
	// dates, which over-covers by at most one day and stays idempotent.
	now := utils.UTCNow()
	fromDate := utils.LocalDate(now.Add(-s.cfg.RollingWindow), s.loc)
	toDate := utils.LocalDate(now, s.loc)

	resp, err := s.flow.RecomputeWindow(ctx, models.AggregationTriggerSchedule, nil, fromDate, toDate)
	if err != nil {
		s.logger.Printf("aggregation: recompute window %s..%s failed: %v",
			fromDate.Format("2006-01-02"), toDate.Format("2006-01-02"), err)
		return
	}
	s.logger.Printf("aggregation: recompute window %s..%s buckets=%d visits=%d conversions=%d",
		fromDate.Format("2006-01-02"), toDate.Format("2006-01-02"),
		resp.BucketsWrote, resp.Visits, resp.Conversions)
}

func (s *AggregationScheduler) leaseKey() string {
	return "eventfunnel:aggregation:lease"
}

// acquireLease claims the recompute lease for this tick. Without a cache
// configured the scheduler runs unguarded, which is safe in single-instance
// deployments because recomputes are idempotent.
func (s *AggregationScheduler) acquireLease(ctx context.Context) error {
	if s.rc == nil {
		return nil
	}
	ttl := s.cfg.LeaseTTL
	if ttl <= 0 {
		ttl = s.cfg.Interval
	}
	ok, err := s.rc.SetNX(ctx, s.leaseKey(), s.instanceID, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return businessflow.ErrAggregationLeaseNotHeld
	}
	return nil
}

// releaseLease drops the lease only if this instance still holds it
func (s *AggregationScheduler) releaseLease(ctx context.Context) {
	if s.rc == nil {
		return
	}
	holder, err := s.rc.Get(ctx, s.leaseKey()).Result()
	if err != nil || holder != s.instanceID {
		return
	}
	if err := s.rc.Del(ctx, s.leaseKey()).Err(); err != nil {
		s.logger.Printf("aggregation: lease release failed: %v", err)
	}
}
