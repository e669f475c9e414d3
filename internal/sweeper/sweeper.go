// Package sweeper runs the periodic pass that retires stale postings and
// bids. It participates in the same CAS discipline as manual actions: a tick
// racing a broker's accept simply loses the swap and skips the item.
package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/freightdesk/loadboard/internal/clock"
	"github.com/freightdesk/loadboard/internal/metrics"
	"github.com/freightdesk/loadboard/internal/models"
	"github.com/freightdesk/loadboard/internal/notifier"
	"github.com/freightdesk/loadboard/internal/repository"

	"github.com/robfig/cron/v3"
)

// Sweeper wraps robfig/cron and drives expiry/auto-refresh transitions.
type Sweeper struct {
	cron     *cron.Cron
	postings repository.PostingRepository
	bids     repository.BidRepository
	notifier notifier.Notifier
	clock    clock.Clock
	metrics  *metrics.Collector
	logger   *log.Logger
	spec     string // cron spec, e.g. "@every 60s"
}

// New creates a Sweeper that fires every intervalSeconds seconds.
func New(postings repository.PostingRepository, bids repository.BidRepository, n notifier.Notifier, clk clock.Clock, m *metrics.Collector, logger *log.Logger, intervalSeconds int) *Sweeper {
	return &Sweeper{
		cron:     cron.New(cron.WithLogger(cron.DefaultLogger)),
		postings: postings,
		bids:     bids,
		notifier: n,
		clock:    clk,
		metrics:  m,
		logger:   logger,
		spec:     fmt.Sprintf("@every %ds", intervalSeconds),
	}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Printf("[sweeper] started, spec: %s", s.spec)
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Sweeper) Stop() {
	s.cron.Stop()
	s.logger.Println("[sweeper] stopped")
}

// RunOnce performs a single sweep tick. Per-item failures are logged and
// skipped so one bad row never blocks the rest; the tick itself never
// returns an error.
func (s *Sweeper) RunOnce(ctx context.Context) {
	now := s.clock.Now()
	s.sweepPostings(ctx, now)
	s.sweepBids(ctx, now)
}

func (s *Sweeper) sweepPostings(ctx context.Context, now time.Time) {
	expired, err := s.postings.ListExpiredPostings(ctx, now)
	if err != nil {
		s.logger.Printf("[sweeper] list expired postings: %v", err)
		s.metrics.SweepError()
		return
	}

	for _, posting := range expired {
		if err := s.sweepPosting(ctx, posting, now); err != nil {
			s.logger.Printf("[sweeper] posting %s: %v", posting.ID, err)
			s.metrics.SweepError()
		}
	}
}

func (s *Sweeper) sweepPosting(ctx context.Context, posting models.Posting, now time.Time) error {
	if posting.AutoRefresh {
		accepted, err := s.bids.HasAcceptedBid(ctx, posting.ID)
		if err != nil {
			return err
		}
		if !accepted {
			until := now.Add(time.Duration(posting.RefreshMins) * time.Minute)
			extended, err := s.postings.ExtendExpiry(ctx, posting.ID, until)
			if err != nil {
				return err
			}
			if extended {
				s.metrics.PostingRefreshed()
				s.notifier.Notify(ctx, notifier.Event{Type: notifier.EventPostingRefreshed, PostingID: posting.ID})
			}
			return nil
		}
	}

	swapped, err := s.postings.CompareAndSwapStatus(ctx, posting.ID, models.PostingActive, models.PostingExpired)
	if err != nil {
		return err
	}
	if !swapped {
		// a concurrent accept or cancel won the race, not our item anymore
		return nil
	}
	s.metrics.PostingExpired()
	s.notifier.Notify(ctx, notifier.Event{Type: notifier.EventPostingExpired, PostingID: posting.ID})

	cascaded, err := s.bids.ExpireBidsForPosting(ctx, posting.ID, models.ReasonPostingExpired, now)
	if err != nil {
		return err
	}
	for _, bid := range cascaded {
		s.metrics.BidExpired()
		s.notifier.Notify(ctx, notifier.Event{
			Type:      notifier.EventBidExpired,
			PostingID: posting.ID,
			BidID:     bid.ID,
			CarrierID: bid.CarrierID,
			Reason:    models.ReasonPostingExpired,
		})
	}
	return nil
}

func (s *Sweeper) sweepBids(ctx context.Context, now time.Time) {
	expired, err := s.bids.ListExpiredBids(ctx, now)
	if err != nil {
		s.logger.Printf("[sweeper] list expired bids: %v", err)
		s.metrics.SweepError()
		return
	}

	for _, bid := range expired {
		swapped, err := s.bids.CompareAndSwapBid(ctx, bid.ID, bid.Status, models.BidExpired, models.ReasonBidExpired, now)
		if err != nil {
			s.logger.Printf("[sweeper] bid %s: %v", bid.ID, err)
			s.metrics.SweepError()
			continue
		}
		if !swapped {
			continue
		}
		s.metrics.BidExpired()
		s.notifier.Notify(ctx, notifier.Event{
			Type:      notifier.EventBidExpired,
			PostingID: bid.PostingID,
			BidID:     bid.ID,
			CarrierID: bid.CarrierID,
			Reason:    models.ReasonBidExpired,
		})
	}
}
