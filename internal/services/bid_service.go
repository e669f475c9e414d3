package services

import (
	"context"
	"fmt"

	"github.com/freightdesk/loadboard/internal/clock"
	"github.com/freightdesk/loadboard/internal/directory"
	"github.com/freightdesk/loadboard/internal/metrics"
	"github.com/freightdesk/loadboard/internal/models"
	"github.com/freightdesk/loadboard/internal/notifier"
	"github.com/freightdesk/loadboard/internal/repository"

	"github.com/google/uuid"
)

// Actor names recorded in the bid_history ledger.
const (
	actorCarrier = "carrier"
	actorBroker  = "broker"
)

// BidService drives the bid lifecycle state machine. Every transition is
// validated against the (state, action) table in models and applied with a
// compare-and-swap, so concurrent brokers, carriers and the sweeper
// linearize on the stored status.
type BidService struct {
	Repo     repository.BidRepository
	Postings repository.PostingRepository
	Carriers directory.CarrierDirectory
	Notifier notifier.Notifier
	Clock    clock.Clock
	Metrics  *metrics.Collector
}

// NewBidService creates a new BidService.
func NewBidService(repo repository.BidRepository, postings repository.PostingRepository, carriers directory.CarrierDirectory, n notifier.Notifier, clk clock.Clock, m *metrics.Collector) *BidService {
	return &BidService{
		Repo:     repo,
		Postings: postings,
		Carriers: carriers,
		Notifier: n,
		Clock:    clk,
		Metrics:  m,
	}
}

// permittedToBid applies the posting's audience rules to a carrier.
func permittedToBid(posting *models.Posting, carrier *directory.Carrier) bool {
	switch posting.PostingType {
	case models.PostingInternal:
		if !carrier.Internal {
			return false
		}
	case models.PostingExternal:
		if carrier.Internal {
			return false
		}
	}

	switch posting.Visibility {
	case models.VisibilityPreferred:
		return carrier.Preferred
	case models.VisibilitySpecific:
		for _, id := range posting.CarrierIDs {
			if id == carrier.ID {
				return true
			}
		}
		return false
	}
	return true
}

// SubmitBid validates and stores a new PENDING bid against an ACTIVE posting.
func (s *BidService) SubmitBid(ctx context.Context, req models.BidRequest) (*models.Bid, error) {
	if req.PostingID == "" || req.CarrierID == "" {
		return nil, models.NewValidationError("postingId and carrierId are required")
	}
	if req.BidAmount <= 0 {
		return nil, models.NewValidationError("bidAmount must be positive")
	}

	rateType := models.RateAllIn
	if req.RateType != "" {
		var err error
		if rateType, err = models.ParseRateType(req.RateType); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}

	posting, err := s.Postings.GetPosting(ctx, req.PostingID)
	if err != nil {
		return nil, err
	}
	if posting.Status != models.PostingActive {
		return nil, models.NewInvalidStateError("posting is " + string(posting.Status))
	}
	if req.LoadID != "" && req.LoadID != posting.LoadID {
		return nil, models.NewValidationError("loadId does not match the posting")
	}

	carrier, err := s.Carriers.GetCarrier(ctx, req.CarrierID)
	if err != nil {
		return nil, models.NewServiceUnavailableError("carrier directory unreachable")
	}
	if carrier == nil {
		return nil, models.NewValidationError("carrierId does not resolve to a carrier record")
	}
	if !permittedToBid(posting, carrier) {
		return nil, models.NewValidationError("carrier is not permitted to bid on this posting")
	}

	now := s.Clock.Now()

	// A bid never outlives its posting.
	expiresAt := posting.ExpiresAt
	if req.ExpiresAt != nil && req.ExpiresAt.Before(posting.ExpiresAt) {
		if !req.ExpiresAt.After(now) {
			return nil, models.NewValidationError("expiresAt must be in the future")
		}
		expiresAt = *req.ExpiresAt
	}

	bid := &models.Bid{
		ID:          uuid.New().String(),
		PostingID:   posting.ID,
		LoadID:      posting.LoadID,
		CarrierID:   req.CarrierID,
		BidAmount:   req.BidAmount,
		RateType:    rateType,
		Status:      models.BidPending,
		TruckNumber: req.TruckNumber,
		DriverName:  req.DriverName,
		DriverPhone: req.DriverPhone,
		ExpiresAt:   expiresAt,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Repo.CreateBid(ctx, bid); err != nil {
		s.Metrics.BidTransition(string(models.ActionSubmit), "error")
		return nil, err
	}

	s.Metrics.BidTransition(string(models.ActionSubmit), "ok")
	s.Notifier.Notify(ctx, notifier.Event{
		Type:      notifier.EventBidSubmitted,
		PostingID: posting.ID,
		BidID:     bid.ID,
		CarrierID: bid.CarrierID,
	})
	return bid, nil
}

// GetBid fetches a bid by id.
func (s *BidService) GetBid(ctx context.Context, bidID string) (*models.Bid, error) {
	return s.Repo.GetBid(ctx, bidID)
}

// ListCarrierBids returns a carrier's bids, newest first.
func (s *BidService) ListCarrierBids(ctx context.Context, carrierID string, limit, offset int) ([]models.Bid, error) {
	if carrierID == "" {
		return nil, models.NewValidationError("carrierId is required")
	}
	return s.Repo.ListCarrierBids(ctx, carrierID, limit, offset)
}

// GetBidHistory returns the negotiation ledger for a bid, newest first.
func (s *BidService) GetBidHistory(ctx context.Context, bidID string) ([]models.BidOffer, error) {
	if _, err := s.Repo.GetBid(ctx, bidID); err != nil {
		return nil, err
	}
	return s.Repo.GetBidHistory(ctx, bidID)
}

// EditBid updates a PENDING bid. An amount change is an offer revision and
// goes through the versioned history ledger; dispatch metadata does not.
func (s *BidService) EditBid(ctx context.Context, bidID string, req models.BidUpdateRequest) (*models.Bid, error) {
	bid, err := s.Repo.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.Status != models.BidPending {
		return nil, models.NewInvalidStateError("bid is " + string(bid.Status))
	}

	now := s.Clock.Now()
	if req.BidAmount != nil {
		if *req.BidAmount <= 0 {
			return nil, models.NewValidationError("bidAmount must be positive")
		}
		bid, err = s.Repo.ApplyOffer(ctx, bidID, models.BidPending, models.BidPending, *req.BidAmount, actorCarrier, now)
		if err != nil {
			return nil, err
		}
	}

	updateFields := make(map[string]interface{})
	if req.TruckNumber != nil {
		updateFields["truck_number"] = *req.TruckNumber
	}
	if req.DriverName != nil {
		updateFields["driver_name"] = *req.DriverName
	}
	if req.DriverPhone != nil {
		updateFields["driver_phone"] = *req.DriverPhone
	}
	if len(updateFields) == 0 {
		if req.BidAmount == nil {
			return nil, models.NewValidationError("no valid fields to update")
		}
		return bid, nil
	}
	return s.Repo.EditBid(ctx, bidID, updateFields, now)
}

// AcceptBid accepts a PENDING bid: the posting books, sibling bids are
// cascade-rejected, all in one atomic unit. A concurrent accept or sweep
// resolves through the posting CAS, never a silent double-success.
func (s *BidService) AcceptBid(ctx context.Context, bidID string) (*models.Bid, error) {
	bid, err := s.Repo.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if _, ok := models.NextBidStatus(bid.Status, models.ActionAccept); !ok {
		s.Metrics.BidTransition(string(models.ActionAccept), "invalid")
		return nil, models.NewInvalidTransitionError(
			fmt.Sprintf("cannot accept a %s bid", bid.Status))
	}

	accepted, rejected, err := s.Repo.AcceptBid(ctx, bid.PostingID, bidID, s.Clock.Now())
	if err != nil {
		s.Metrics.BidTransition(string(models.ActionAccept), "lost")
		return nil, err
	}

	s.Metrics.BidTransition(string(models.ActionAccept), "ok")
	s.Metrics.PostingBooked()
	s.Notifier.Notify(ctx, notifier.Event{
		Type:      notifier.EventBidAccepted,
		PostingID: accepted.PostingID,
		BidID:     accepted.ID,
		CarrierID: accepted.CarrierID,
	})
	s.Notifier.Notify(ctx, notifier.Event{Type: notifier.EventPostingBooked, PostingID: accepted.PostingID})
	for _, sibling := range rejected {
		s.Notifier.Notify(ctx, notifier.Event{
			Type:      notifier.EventBidRejected,
			PostingID: sibling.PostingID,
			BidID:     sibling.ID,
			CarrierID: sibling.CarrierID,
			Reason:    sibling.StatusReason,
		})
	}
	return accepted, nil
}

// RejectBid rejects a PENDING bid with a mandatory, auditable reason.
func (s *BidService) RejectBid(ctx context.Context, bidID, reason string) (*models.Bid, error) {
	if reason == "" {
		return nil, models.NewValidationError("rejectionReason is required")
	}

	bid, err := s.Repo.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	target, ok := models.NextBidStatus(bid.Status, models.ActionReject)
	if !ok {
		s.Metrics.BidTransition(string(models.ActionReject), "invalid")
		return nil, models.NewInvalidTransitionError(
			fmt.Sprintf("cannot reject a %s bid", bid.Status))
	}

	swapped, err := s.Repo.CompareAndSwapBid(ctx, bidID, bid.Status, target, reason, s.Clock.Now())
	if err != nil {
		return nil, err
	}
	if !swapped {
		s.Metrics.BidTransition(string(models.ActionReject), "lost")
		return nil, models.NewInvalidTransitionError("bid is no longer pending")
	}

	s.Metrics.BidTransition(string(models.ActionReject), "ok")
	s.Notifier.Notify(ctx, notifier.Event{
		Type:      notifier.EventBidRejected,
		PostingID: bid.PostingID,
		BidID:     bid.ID,
		CarrierID: bid.CarrierID,
		Reason:    reason,
	})
	return s.Repo.GetBid(ctx, bidID)
}

// CounterBid records a broker counter-offer on a PENDING bid. The same bid
// row carries the counter amount; the carrier's ask is preserved in the
// history ledger.
func (s *BidService) CounterBid(ctx context.Context, bidID string, counterAmount float64) (*models.Bid, error) {
	if counterAmount <= 0 {
		return nil, models.NewValidationError("counterAmount must be positive")
	}

	bid, err := s.Repo.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	target, ok := models.NextBidStatus(bid.Status, models.ActionCounter)
	if !ok {
		s.Metrics.BidTransition(string(models.ActionCounter), "invalid")
		return nil, models.NewInvalidTransitionError(
			fmt.Sprintf("cannot counter a %s bid", bid.Status))
	}

	posting, err := s.Postings.GetPosting(ctx, bid.PostingID)
	if err != nil {
		return nil, err
	}
	if posting.Status != models.PostingActive {
		return nil, models.NewInvalidStateError("posting is " + string(posting.Status))
	}
	if !posting.HasRate() {
		return nil, models.NewValidationError("posting discloses no rate to counter against")
	}

	countered, err := s.Repo.ApplyOffer(ctx, bidID, bid.Status, target, counterAmount, actorBroker, s.Clock.Now())
	if err != nil {
		s.Metrics.BidTransition(string(models.ActionCounter), "lost")
		return nil, err
	}

	s.Metrics.BidTransition(string(models.ActionCounter), "ok")
	s.Notifier.Notify(ctx, notifier.Event{
		Type:      notifier.EventBidCountered,
		PostingID: countered.PostingID,
		BidID:     countered.ID,
		CarrierID: countered.CarrierID,
	})
	return countered, nil
}

// ResubmitBid is the carrier's response to a counter: the bid returns to
// PENDING, at the counter amount or a revised one.
func (s *BidService) ResubmitBid(ctx context.Context, bidID string, amount *float64) (*models.Bid, error) {
	bid, err := s.Repo.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	target, ok := models.NextBidStatus(bid.Status, models.ActionSubmit)
	if !ok {
		s.Metrics.BidTransition(string(models.ActionSubmit), "invalid")
		return nil, models.NewInvalidTransitionError(
			fmt.Sprintf("cannot re-submit a %s bid", bid.Status))
	}

	posting, err := s.Postings.GetPosting(ctx, bid.PostingID)
	if err != nil {
		return nil, err
	}
	if posting.Status != models.PostingActive {
		return nil, models.NewInvalidStateError("posting is " + string(posting.Status))
	}

	newAmount := bid.BidAmount // accept the counter as-is
	if amount != nil {
		if *amount <= 0 {
			return nil, models.NewValidationError("bidAmount must be positive")
		}
		newAmount = *amount
	}

	resubmitted, err := s.Repo.ApplyOffer(ctx, bidID, bid.Status, target, newAmount, actorCarrier, s.Clock.Now())
	if err != nil {
		s.Metrics.BidTransition(string(models.ActionSubmit), "lost")
		return nil, err
	}

	s.Metrics.BidTransition(string(models.ActionSubmit), "ok")
	s.Notifier.Notify(ctx, notifier.Event{
		Type:      notifier.EventBidSubmitted,
		PostingID: resubmitted.PostingID,
		BidID:     resubmitted.ID,
		CarrierID: resubmitted.CarrierID,
	})
	return resubmitted, nil
}

// WithdrawBid withdraws a PENDING or COUNTERED bid. Carrier-initiated only.
func (s *BidService) WithdrawBid(ctx context.Context, bidID string) (*models.Bid, error) {
	bid, err := s.Repo.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	target, ok := models.NextBidStatus(bid.Status, models.ActionWithdraw)
	if !ok {
		s.Metrics.BidTransition(string(models.ActionWithdraw), "invalid")
		return nil, models.NewInvalidTransitionError(
			fmt.Sprintf("cannot withdraw a %s bid", bid.Status))
	}

	swapped, err := s.Repo.CompareAndSwapBid(ctx, bidID, bid.Status, target, "", s.Clock.Now())
	if err != nil {
		return nil, err
	}
	if !swapped {
		s.Metrics.BidTransition(string(models.ActionWithdraw), "lost")
		return nil, models.NewInvalidTransitionError("bid is no longer open")
	}

	s.Metrics.BidTransition(string(models.ActionWithdraw), "ok")
	s.Notifier.Notify(ctx, notifier.Event{
		Type:      notifier.EventBidWithdrawn,
		PostingID: bid.PostingID,
		BidID:     bid.ID,
		CarrierID: bid.CarrierID,
	})
	return s.Repo.GetBid(ctx, bidID)
}
