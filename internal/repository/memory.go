package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/freightdesk/loadboard/internal/models"
)

// MemoryStore is an embedded implementation of PostingRepository and
// BidRepository. A single store-wide mutex stands in for the database's
// row-level locking: every status transition, including the whole accept
// cascade, runs under it, which gives the same linearization guarantees as
// the Postgres CAS queries. Backs tests and single-node deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	postings map[string]*models.Posting
	bids     map[string]*models.Bid
	history  map[string][]models.BidOffer
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		postings: make(map[string]*models.Posting),
		bids:     make(map[string]*models.Bid),
		history:  make(map[string][]models.BidOffer),
	}
}

func clonePosting(p *models.Posting) *models.Posting {
	cp := *p
	cp.CarrierIDs = append([]string(nil), p.CarrierIDs...)
	return &cp
}

func cloneBid(b *models.Bid) *models.Bid {
	cb := *b
	return &cb
}

// ── PostingRepository ──

// CreatePosting stores a new posting.
func (s *MemoryStore) CreatePosting(ctx context.Context, posting *models.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.postings[posting.ID]; exists {
		return fmt.Errorf("posting %s already exists", posting.ID)
	}
	s.postings[posting.ID] = clonePosting(posting)
	return nil
}

// GetPosting fetches a posting by id.
func (s *MemoryStore) GetPosting(ctx context.Context, postingID string) (*models.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	posting, ok := s.postings[postingID]
	if !ok {
		return nil, models.NewNotFoundError("posting not found")
	}
	return clonePosting(posting), nil
}

// EditPosting updates non-status fields of an ACTIVE posting.
func (s *MemoryStore) EditPosting(ctx context.Context, postingID string, updateFields map[string]interface{}) (*models.Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posting, ok := s.postings[postingID]
	if !ok {
		return nil, models.NewNotFoundError("posting not found")
	}
	if posting.Status != models.PostingActive {
		return nil, models.NewInvalidStateError("posting is no longer active")
	}
	if len(updateFields) == 0 {
		return nil, models.NewValidationError("no valid fields to update")
	}

	for col, value := range updateFields {
		switch col {
		case "posting_type":
			posting.PostingType = value.(models.PostingType)
		case "visibility":
			posting.Visibility = value.(models.Visibility)
		case "carrier_ids":
			posting.CarrierIDs = append([]string(nil), value.([]string)...)
		case "show_rate":
			posting.ShowRate = value.(bool)
		case "rate_type":
			posting.RateType = value.(models.RateType)
		case "posted_rate":
			posting.PostedRate = value.(*float64)
		case "rate_min":
			posting.RateMin = value.(*float64)
		case "rate_max":
			posting.RateMax = value.(*float64)
		case "origin_state":
			posting.OriginState = value.(string)
		case "origin_city":
			posting.OriginCity = value.(string)
		case "dest_state":
			posting.DestState = value.(string)
		case "dest_city":
			posting.DestCity = value.(string)
		case "equipment_type":
			posting.EquipmentType = value.(string)
		case "pickup_date":
			posting.PickupDate = value.(time.Time)
		case "expires_at":
			posting.ExpiresAt = value.(time.Time)
		case "auto_refresh":
			posting.AutoRefresh = value.(bool)
		case "refresh_mins":
			posting.RefreshMins = value.(int)
		}
	}
	return clonePosting(posting), nil
}

// CompareAndSwapStatus flips status from → to under the store lock.
func (s *MemoryStore) CompareAndSwapStatus(ctx context.Context, postingID string, from, to models.PostingStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posting, ok := s.postings[postingID]
	if !ok || posting.Status != from {
		return false, nil
	}
	posting.Status = to
	return true, nil
}

// ExtendExpiry pushes expires_at forward on a still-ACTIVE posting.
func (s *MemoryStore) ExtendExpiry(ctx context.Context, postingID string, until time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	posting, ok := s.postings[postingID]
	if !ok || posting.Status != models.PostingActive {
		return false, nil
	}
	posting.ExpiresAt = until
	return true, nil
}

func matchesFilter(p *models.Posting, f models.SearchFilter) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.OriginState != "" && !strings.EqualFold(p.OriginState, f.OriginState) {
		return false
	}
	if f.OriginCity != "" && f.RadiusMiles == nil && !strings.EqualFold(p.OriginCity, f.OriginCity) {
		return false
	}
	if f.DestState != "" && !strings.EqualFold(p.DestState, f.DestState) {
		return false
	}
	if f.DestCity != "" && !strings.EqualFold(p.DestCity, f.DestCity) {
		return false
	}
	if len(f.EquipmentTypes) > 0 {
		found := false
		for _, eq := range f.EquipmentTypes {
			if strings.EqualFold(p.EquipmentType, eq) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PickupFrom != nil && p.PickupDate.Before(*f.PickupFrom) {
		return false
	}
	if f.PickupTo != nil && p.PickupDate.After(*f.PickupTo) {
		return false
	}
	if f.RateMin != nil && (p.PostedRate == nil || *p.PostedRate < *f.RateMin) {
		return false
	}
	if f.RateMax != nil && (p.PostedRate == nil || *p.PostedRate > *f.RateMax) {
		return false
	}
	return true
}

// SearchPostings returns matching postings, most recent first, ties broken
// by lowest id, the same ordering contract as the Postgres query.
func (s *MemoryStore) SearchPostings(ctx context.Context, filter models.SearchFilter) ([]models.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.Posting
	for _, posting := range s.postings {
		if matchesFilter(posting, filter) {
			matched = append(matched, *clonePosting(posting))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// ListExpiredPostings returns ACTIVE postings whose deadline has passed.
func (s *MemoryStore) ListExpiredPostings(ctx context.Context, now time.Time) ([]models.Posting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []models.Posting
	for _, posting := range s.postings {
		if posting.Status == models.PostingActive && !posting.ExpiresAt.After(now) {
			expired = append(expired, *clonePosting(posting))
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	return expired, nil
}

// ── BidRepository ──

// CreateBid stores a new bid.
func (s *MemoryStore) CreateBid(ctx context.Context, bid *models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.bids[bid.ID]; exists {
		return fmt.Errorf("bid %s already exists", bid.ID)
	}
	s.bids[bid.ID] = cloneBid(bid)
	return nil
}

// GetBid fetches a bid by id.
func (s *MemoryStore) GetBid(ctx context.Context, bidID string) (*models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bid, ok := s.bids[bidID]
	if !ok {
		return nil, models.NewNotFoundError("bid not found")
	}
	return cloneBid(bid), nil
}

func (s *MemoryStore) listBids(match func(*models.Bid) bool, limit, offset int) []models.Bid {
	var bids []models.Bid
	for _, bid := range s.bids {
		if match(bid) {
			bids = append(bids, *cloneBid(bid))
		}
	}
	sort.Slice(bids, func(i, j int) bool {
		if !bids[i].CreatedAt.Equal(bids[j].CreatedAt) {
			return bids[i].CreatedAt.After(bids[j].CreatedAt)
		}
		return bids[i].ID < bids[j].ID
	})
	if offset >= len(bids) {
		return nil
	}
	bids = bids[offset:]
	if limit > 0 && limit < len(bids) {
		bids = bids[:limit]
	}
	return bids
}

// ListPostingBids returns the bids on a posting, newest first.
func (s *MemoryStore) ListPostingBids(ctx context.Context, postingID string, limit, offset int) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBids(func(b *models.Bid) bool { return b.PostingID == postingID }, limit, offset), nil
}

// ListCarrierBids returns a carrier's bids, newest first.
func (s *MemoryStore) ListCarrierBids(ctx context.Context, carrierID string, limit, offset int) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBids(func(b *models.Bid) bool { return b.CarrierID == carrierID }, limit, offset), nil
}

// HasAcceptedBid reports whether a posting already has an ACCEPTED bid.
func (s *MemoryStore) HasAcceptedBid(ctx context.Context, postingID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, bid := range s.bids {
		if bid.PostingID == postingID && bid.Status == models.BidAccepted {
			return true, nil
		}
	}
	return false, nil
}

// CompareAndSwapBid flips a bid's status from → to under the store lock.
func (s *MemoryStore) CompareAndSwapBid(ctx context.Context, bidID string, from, to models.BidStatus, reason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bid, ok := s.bids[bidID]
	if !ok || bid.Status != from {
		return false, nil
	}
	bid.Status = to
	bid.StatusReason = reason
	bid.UpdatedAt = now
	return true, nil
}

// ApplyOffer records an amount-changing transition, appending the previous
// amount/status to the history ledger first.
func (s *MemoryStore) ApplyOffer(ctx context.Context, bidID string, from, to models.BidStatus, amount float64, actor string, now time.Time) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bid, ok := s.bids[bidID]
	if !ok {
		return nil, models.NewNotFoundError("bid not found")
	}
	if bid.Status != from {
		return nil, models.NewInvalidTransitionError(
			fmt.Sprintf("bid is %s, not %s", bid.Status, from))
	}

	s.history[bidID] = append(s.history[bidID], models.BidOffer{
		BidID:     bid.ID,
		Version:   bid.Version,
		BidAmount: bid.BidAmount,
		Status:    bid.Status,
		Actor:     actor,
		CreatedAt: now,
	})

	bid.Status = to
	bid.BidAmount = amount
	bid.StatusReason = ""
	bid.Version++
	bid.UpdatedAt = now
	return cloneBid(bid), nil
}

// EditBid updates dispatch metadata on a PENDING bid.
func (s *MemoryStore) EditBid(ctx context.Context, bidID string, updateFields map[string]interface{}, now time.Time) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bid, ok := s.bids[bidID]
	if !ok {
		return nil, models.NewNotFoundError("bid not found")
	}
	if bid.Status != models.BidPending {
		return nil, models.NewInvalidStateError("bid is no longer pending")
	}
	if len(updateFields) == 0 {
		return nil, models.NewValidationError("no valid fields to update")
	}

	for col, value := range updateFields {
		switch col {
		case "truck_number":
			bid.TruckNumber = value.(string)
		case "driver_name":
			bid.DriverName = value.(string)
		case "driver_phone":
			bid.DriverPhone = value.(string)
		case "expires_at":
			bid.ExpiresAt = value.(time.Time)
		}
	}
	bid.UpdatedAt = now
	return cloneBid(bid), nil
}

// AcceptBid books the posting, accepts the target bid and cascade-rejects
// open siblings, all under one lock acquisition.
func (s *MemoryStore) AcceptBid(ctx context.Context, postingID, bidID string, now time.Time) (*models.Bid, []models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	posting, ok := s.postings[postingID]
	if !ok {
		return nil, nil, models.NewNotFoundError("posting not found")
	}
	if posting.Status != models.PostingActive {
		if posting.Status == models.PostingBooked {
			return nil, nil, models.NewAlreadyBookedError()
		}
		return nil, nil, models.NewInvalidStateError(fmt.Sprintf("posting is %s", posting.Status))
	}

	bid, ok := s.bids[bidID]
	if !ok || bid.PostingID != postingID || bid.Status != models.BidPending {
		return nil, nil, models.NewInvalidTransitionError("bid is not pending on this posting")
	}

	posting.Status = models.PostingBooked
	bid.Status = models.BidAccepted
	bid.StatusReason = ""
	bid.UpdatedAt = now

	var rejected []models.Bid
	for _, sibling := range s.bids {
		if sibling.PostingID == postingID && sibling.ID != bidID && sibling.Status.Open() {
			sibling.Status = models.BidRejected
			sibling.StatusReason = models.ReasonPostingBooked
			sibling.UpdatedAt = now
			rejected = append(rejected, *cloneBid(sibling))
		}
	}
	return cloneBid(bid), rejected, nil
}

// ExpireBidsForPosting force-transitions every open bid on a posting to EXPIRED.
func (s *MemoryStore) ExpireBidsForPosting(ctx context.Context, postingID, reason string, now time.Time) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []models.Bid
	for _, bid := range s.bids {
		if bid.PostingID == postingID && bid.Status.Open() {
			bid.Status = models.BidExpired
			bid.StatusReason = reason
			bid.UpdatedAt = now
			expired = append(expired, *cloneBid(bid))
		}
	}
	return expired, nil
}

// ListExpiredBids returns open bids whose own deadline has passed.
func (s *MemoryStore) ListExpiredBids(ctx context.Context, now time.Time) ([]models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []models.Bid
	for _, bid := range s.bids {
		if bid.Status.Open() && !bid.ExpiresAt.After(now) {
			expired = append(expired, *cloneBid(bid))
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].ExpiresAt.Before(expired[j].ExpiresAt)
	})
	return expired, nil
}

// GetBidHistory returns the negotiation ledger for a bid, newest first.
func (s *MemoryStore) GetBidHistory(ctx context.Context, bidID string) ([]models.BidOffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	offers := append([]models.BidOffer(nil), s.history[bidID]...)
	sort.Slice(offers, func(i, j int) bool {
		return offers[i].Version > offers[j].Version
	})
	return offers, nil
}
