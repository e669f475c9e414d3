package services

import (
	"context"
	"time"

	"github.com/freightdesk/loadboard/internal/clock"
	"github.com/freightdesk/loadboard/internal/directory"
	"github.com/freightdesk/loadboard/internal/models"
	"github.com/freightdesk/loadboard/internal/notifier"
	"github.com/freightdesk/loadboard/internal/repository"

	"github.com/google/uuid"
)

const (
	defaultPostingTTL  = 24 * time.Hour
	defaultRefreshMins = 60
	defaultSearchLimit = 20
	maxSearchLimit     = 50
)

// PostingService is the posting lifecycle manager: it creates, updates,
// searches and cancels postings, and owns the visibility rules. It never
// writes posting status directly except through CAS transitions.
type PostingService struct {
	Repo     repository.PostingRepository
	Bids     repository.BidRepository
	Loads    directory.LoadDirectory
	Distance directory.DistanceService
	Notifier notifier.Notifier
	Clock    clock.Clock
}

// NewPostingService creates a new PostingService.
func NewPostingService(repo repository.PostingRepository, bids repository.BidRepository, loads directory.LoadDirectory, distance directory.DistanceService, n notifier.Notifier, clk clock.Clock) *PostingService {
	return &PostingService{
		Repo:     repo,
		Bids:     bids,
		Loads:    loads,
		Distance: distance,
		Notifier: n,
		Clock:    clk,
	}
}

// CreatePosting validates the request and stores a new ACTIVE posting.
func (s *PostingService) CreatePosting(ctx context.Context, req models.PostingRequest) (*models.Posting, error) {
	if req.LoadID == "" {
		return nil, models.NewValidationError("loadId is required")
	}

	postingType, err := models.ParsePostingType(req.PostingType)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	visibility, err := models.ParseVisibility(req.Visibility)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if visibility == models.VisibilitySpecific && len(req.CarrierIDs) == 0 {
		return nil, models.NewValidationError("carrierIds is required for SPECIFIC_CARRIERS visibility")
	}

	rateType := models.RateAllIn
	if req.RateType != "" {
		if rateType, err = models.ParseRateType(req.RateType); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
	}
	if req.ShowRate && (req.PostedRate == nil || *req.PostedRate <= 0) {
		return nil, models.NewValidationError("a positive postedRate is required when showRate is set")
	}
	if req.RateMin != nil && req.RateMax != nil && *req.RateMin > *req.RateMax {
		return nil, models.NewValidationError("rateMin must not exceed rateMax")
	}

	exists, err := s.Loads.LoadExists(ctx, req.LoadID)
	if err != nil {
		return nil, models.NewServiceUnavailableError("load directory unreachable")
	}
	if !exists {
		return nil, models.NewValidationError("loadId does not resolve to a load record")
	}

	now := s.Clock.Now()
	expiresAt := now.Add(defaultPostingTTL)
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(now) {
			return nil, models.NewValidationError("expiresAt must be in the future")
		}
		expiresAt = *req.ExpiresAt
	}
	refreshMins := req.RefreshMins
	if req.AutoRefresh && refreshMins <= 0 {
		refreshMins = defaultRefreshMins
	}

	pickupDate := now
	if req.PickupDate != nil {
		pickupDate = *req.PickupDate
	}

	posting := &models.Posting{
		ID:            uuid.New().String(),
		LoadID:        req.LoadID,
		PostingType:   postingType,
		Visibility:    visibility,
		CarrierIDs:    req.CarrierIDs,
		ShowRate:      req.ShowRate,
		RateType:      rateType,
		PostedRate:    req.PostedRate,
		RateMin:       req.RateMin,
		RateMax:       req.RateMax,
		OriginState:   req.OriginState,
		OriginCity:    req.OriginCity,
		DestState:     req.DestState,
		DestCity:      req.DestCity,
		EquipmentType: req.EquipmentType,
		PickupDate:    pickupDate,
		Status:        models.PostingActive,
		ExpiresAt:     expiresAt,
		AutoRefresh:   req.AutoRefresh,
		RefreshMins:   refreshMins,
		CreatedAt:     now,
	}
	if err := s.Repo.CreatePosting(ctx, posting); err != nil {
		return nil, err
	}

	s.Notifier.Notify(ctx, notifier.Event{Type: notifier.EventPostingCreated, PostingID: posting.ID})
	return posting, nil
}

// GetPosting fetches a posting by id.
func (s *PostingService) GetPosting(ctx context.Context, postingID string) (*models.Posting, error) {
	return s.Repo.GetPosting(ctx, postingID)
}

// UpdatePosting edits non-status fields of an ACTIVE posting. Status is
// never settable here; it belongs to the accept path and the sweeper.
func (s *PostingService) UpdatePosting(ctx context.Context, postingID string, req models.PostingUpdateRequest) (*models.Posting, error) {
	posting, err := s.Repo.GetPosting(ctx, postingID)
	if err != nil {
		return nil, err
	}
	if posting.Status != models.PostingActive {
		return nil, models.NewInvalidStateError("posting is no longer active")
	}

	updateFields := make(map[string]interface{})
	if req.PostingType != nil {
		pt, err := models.ParsePostingType(*req.PostingType)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		updateFields["posting_type"] = pt
	}
	if req.Visibility != nil {
		v, err := models.ParseVisibility(*req.Visibility)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		if v == models.VisibilitySpecific && len(req.CarrierIDs) == 0 && len(posting.CarrierIDs) == 0 {
			return nil, models.NewValidationError("carrierIds is required for SPECIFIC_CARRIERS visibility")
		}
		updateFields["visibility"] = v
	}
	if req.CarrierIDs != nil {
		updateFields["carrier_ids"] = req.CarrierIDs
	}
	if req.ShowRate != nil {
		updateFields["show_rate"] = *req.ShowRate
	}
	if req.RateType != nil {
		rt, err := models.ParseRateType(*req.RateType)
		if err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		updateFields["rate_type"] = rt
	}
	if req.PostedRate != nil {
		updateFields["posted_rate"] = req.PostedRate
	}
	if req.RateMin != nil {
		updateFields["rate_min"] = req.RateMin
	}
	if req.RateMax != nil {
		updateFields["rate_max"] = req.RateMax
	}
	if req.EquipmentType != nil {
		updateFields["equipment_type"] = *req.EquipmentType
	}
	if req.PickupDate != nil {
		updateFields["pickup_date"] = *req.PickupDate
	}
	if req.ExpiresAt != nil {
		if !req.ExpiresAt.After(s.Clock.Now()) {
			return nil, models.NewValidationError("expiresAt must be in the future")
		}
		updateFields["expires_at"] = *req.ExpiresAt
	}
	if req.AutoRefresh != nil {
		updateFields["auto_refresh"] = *req.AutoRefresh
	}
	if req.RefreshMins != nil {
		updateFields["refresh_mins"] = *req.RefreshMins
	}

	return s.Repo.EditPosting(ctx, postingID, updateFields)
}

// CancelPosting transitions an ACTIVE posting to CANCELLED and expires its
// open bids. The carriers did nothing wrong, so the cascade records an
// expiry with a cancellation reason rather than a rejection.
func (s *PostingService) CancelPosting(ctx context.Context, postingID string) (*models.Posting, error) {
	now := s.Clock.Now()
	swapped, err := s.Repo.CompareAndSwapStatus(ctx, postingID, models.PostingActive, models.PostingCancelled)
	if err != nil {
		return nil, err
	}
	if !swapped {
		posting, err := s.Repo.GetPosting(ctx, postingID)
		if err != nil {
			return nil, err
		}
		return nil, models.NewInvalidStateError("posting is " + string(posting.Status))
	}

	expired, err := s.Bids.ExpireBidsForPosting(ctx, postingID, models.ReasonPostingCancelled, now)
	if err != nil {
		return nil, err
	}
	for _, bid := range expired {
		s.Notifier.Notify(ctx, notifier.Event{
			Type:      notifier.EventBidExpired,
			PostingID: postingID,
			BidID:     bid.ID,
			CarrierID: bid.CarrierID,
			Reason:    models.ReasonPostingCancelled,
		})
	}
	s.Notifier.Notify(ctx, notifier.Event{Type: notifier.EventPostingCancelled, PostingID: postingID})

	return s.Repo.GetPosting(ctx, postingID)
}

// SearchPostings answers the carrier-facing board query. The radius filter
// fails closed: without a reachable distance collaborator the search errors
// instead of silently dropping the predicate.
func (s *PostingService) SearchPostings(ctx context.Context, filter models.SearchFilter) ([]models.Posting, error) {
	if filter.Status == "" {
		filter.Status = models.PostingActive
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultSearchLimit
	}
	if filter.Limit > maxSearchLimit {
		filter.Limit = maxSearchLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	if filter.RadiusMiles != nil {
		if filter.OriginCity == "" || filter.OriginState == "" {
			return nil, models.NewValidationError("radius search requires originCity and originState")
		}
		if *filter.RadiusMiles <= 0 {
			return nil, models.NewValidationError("radiusMiles must be positive")
		}
		if s.Distance == nil {
			return nil, models.NewServiceUnavailableError("distance search is not available")
		}
	}

	postings, err := s.Repo.SearchPostings(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter.RadiusMiles == nil {
		return postings, nil
	}

	matched := make([]models.Posting, 0, len(postings))
	for _, posting := range postings {
		within, err := s.Distance.WithinRadius(ctx,
			filter.OriginCity, filter.OriginState,
			posting.OriginCity, posting.OriginState,
			*filter.RadiusMiles)
		if err != nil {
			return nil, models.NewServiceUnavailableError("distance search is not available")
		}
		if within {
			matched = append(matched, posting)
		}
	}
	return matched, nil
}

// ListPostingBids returns the bids on a posting, newest first.
func (s *PostingService) ListPostingBids(ctx context.Context, postingID string, limit, offset int) ([]models.Bid, error) {
	if _, err := s.Repo.GetPosting(ctx, postingID); err != nil {
		return nil, err
	}
	return s.Bids.ListPostingBids(ctx, postingID, limit, offset)
}
