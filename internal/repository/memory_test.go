package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/freightdesk/loadboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPosting(id string, status models.PostingStatus) *models.Posting {
	return &models.Posting{
		ID:            id,
		LoadID:        "load-" + id,
		PostingType:   models.PostingBoth,
		Visibility:    models.VisibilityAll,
		RateType:      models.RateAllIn,
		OriginState:   "IL",
		OriginCity:    "Chicago",
		DestState:     "TX",
		DestCity:      "Dallas",
		EquipmentType: "VAN",
		PickupDate:    base.Add(24 * time.Hour),
		Status:        status,
		ExpiresAt:     base.Add(24 * time.Hour),
		CreatedAt:     base,
	}
}

func newTestBid(id, postingID, carrierID string, status models.BidStatus) *models.Bid {
	return &models.Bid{
		ID:        id,
		PostingID: postingID,
		LoadID:    "load-" + postingID,
		CarrierID: carrierID,
		BidAmount: 1200,
		RateType:  models.RateAllIn,
		Status:    status,
		ExpiresAt: base.Add(24 * time.Hour),
		Version:   1,
		CreatedAt: base,
		UpdatedAt: base,
	}
}

func TestCompareAndSwapStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreatePosting(ctx, newTestPosting("p1", models.PostingActive)))

	swapped, err := store.CompareAndSwapStatus(ctx, "p1", models.PostingActive, models.PostingCancelled)
	require.NoError(t, err)
	assert.True(t, swapped)

	// second swap from ACTIVE loses: status already moved
	swapped, err = store.CompareAndSwapStatus(ctx, "p1", models.PostingActive, models.PostingExpired)
	require.NoError(t, err)
	assert.False(t, swapped)

	posting, err := store.GetPosting(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PostingCancelled, posting.Status)

	swapped, err = store.CompareAndSwapStatus(ctx, "missing", models.PostingActive, models.PostingExpired)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestAcceptBidCascade(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreatePosting(ctx, newTestPosting("p1", models.PostingActive)))
	require.NoError(t, store.CreateBid(ctx, newTestBid("b1", "p1", "c1", models.BidPending)))
	require.NoError(t, store.CreateBid(ctx, newTestBid("b2", "p1", "c2", models.BidPending)))
	require.NoError(t, store.CreateBid(ctx, newTestBid("b3", "p1", "c3", models.BidCountered)))
	require.NoError(t, store.CreateBid(ctx, newTestBid("b4", "p1", "c4", models.BidWithdrawn)))

	now := base.Add(time.Hour)
	accepted, rejected, err := store.AcceptBid(ctx, "p1", "b1", now)
	require.NoError(t, err)
	assert.Equal(t, models.BidAccepted, accepted.Status)
	assert.Len(t, rejected, 2, "open siblings only; withdrawn bid untouched")

	posting, err := store.GetPosting(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PostingBooked, posting.Status)

	for _, id := range []string{"b2", "b3"} {
		sibling, err := store.GetBid(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BidRejected, sibling.Status)
		assert.Equal(t, models.ReasonPostingBooked, sibling.StatusReason)
	}
	untouched, err := store.GetBid(ctx, "b4")
	require.NoError(t, err)
	assert.Equal(t, models.BidWithdrawn, untouched.Status)
}

func TestAcceptBidRaces(t *testing.T) {
	ctx := context.Background()
	now := base.Add(time.Hour)

	t.Run("second accept gets AlreadyBooked", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.CreatePosting(ctx, newTestPosting("p1", models.PostingActive)))
		require.NoError(t, store.CreateBid(ctx, newTestBid("b1", "p1", "c1", models.BidPending)))
		require.NoError(t, store.CreateBid(ctx, newTestBid("b2", "p1", "c2", models.BidPending)))

		_, _, err := store.AcceptBid(ctx, "p1", "b1", now)
		require.NoError(t, err)

		_, _, err = store.AcceptBid(ctx, "p1", "b2", now)
		assert.True(t, models.IsAlreadyBooked(err))
	})

	t.Run("cancelled posting gets InvalidState", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.CreatePosting(ctx, newTestPosting("p1", models.PostingCancelled)))
		require.NoError(t, store.CreateBid(ctx, newTestBid("b1", "p1", "c1", models.BidPending)))

		_, _, err := store.AcceptBid(ctx, "p1", "b1", now)
		assert.True(t, models.IsInvalidState(err))
	})

	t.Run("unknown posting gets NotFound", func(t *testing.T) {
		store := NewMemoryStore()
		_, _, err := store.AcceptBid(ctx, "missing", "b1", now)
		assert.True(t, models.IsNotFound(err))
	})

	t.Run("non-pending bid rolls back the posting", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.CreatePosting(ctx, newTestPosting("p1", models.PostingActive)))
		require.NoError(t, store.CreateBid(ctx, newTestBid("b1", "p1", "c1", models.BidWithdrawn)))

		_, _, err := store.AcceptBid(ctx, "p1", "b1", now)
		assert.True(t, models.IsCode(err, models.CodeInvalidTransition))

		posting, err := store.GetPosting(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, models.PostingActive, posting.Status, "posting must stay bookable")
	})
}

func TestApplyOfferVersionsHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateBid(ctx, newTestBid("b1", "p1", "c1", models.BidPending)))

	countered, err := store.ApplyOffer(ctx, "b1", models.BidPending, models.BidCountered, 1100, "broker", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.BidCountered, countered.Status)
	assert.Equal(t, 1100.0, countered.BidAmount)
	assert.Equal(t, 2, countered.Version)

	resubmitted, err := store.ApplyOffer(ctx, "b1", models.BidCountered, models.BidPending, 1150, "carrier", base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.BidPending, resubmitted.Status)
	assert.Equal(t, 3, resubmitted.Version)

	history, err := store.GetBidHistory(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	// newest first
	assert.Equal(t, 2, history[0].Version)
	assert.Equal(t, 1100.0, history[0].BidAmount)
	assert.Equal(t, "carrier", history[0].Actor)
	assert.Equal(t, 1, history[1].Version)
	assert.Equal(t, 1200.0, history[1].BidAmount)
	assert.Equal(t, "broker", history[1].Actor)

	// stale precondition is rejected and records nothing
	_, err = store.ApplyOffer(ctx, "b1", models.BidCountered, models.BidPending, 1000, "carrier", base)
	assert.True(t, models.IsCode(err, models.CodeInvalidTransition))
	history, err = store.GetBidHistory(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSearchPostingsOrderingAndPaging(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 5; i++ {
		p := newTestPosting(fmt.Sprintf("p%d", i), models.PostingActive)
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreatePosting(ctx, p))
	}
	// same timestamp as p4: tie broken by lowest id
	tie := newTestPosting("p0tie", models.PostingActive)
	tie.CreatedAt = base.Add(4 * time.Minute)
	require.NoError(t, store.CreatePosting(ctx, tie))

	results, err := store.SearchPostings(ctx, models.SearchFilter{Status: models.PostingActive, Limit: 3})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "p0tie", results[0].ID)
	assert.Equal(t, "p4", results[1].ID)
	assert.Equal(t, "p3", results[2].ID)

	page2, err := store.SearchPostings(ctx, models.SearchFilter{Status: models.PostingActive, Limit: 3, Offset: 3})
	require.NoError(t, err)
	require.Len(t, page2, 3)
	assert.Equal(t, "p2", page2[0].ID)

	empty, err := store.SearchPostings(ctx, models.SearchFilter{Status: models.PostingActive, Limit: 3, Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSearchPostingsFilters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	van := newTestPosting("van", models.PostingActive)
	rate := 1500.0
	van.PostedRate = &rate
	require.NoError(t, store.CreatePosting(ctx, van))

	reefer := newTestPosting("reefer", models.PostingActive)
	reefer.EquipmentType = "REEFER"
	reefer.OriginState = "OH"
	reefer.OriginCity = "Columbus"
	require.NoError(t, store.CreatePosting(ctx, reefer))

	booked := newTestPosting("booked", models.PostingBooked)
	require.NoError(t, store.CreatePosting(ctx, booked))

	results, err := store.SearchPostings(ctx, models.SearchFilter{Status: models.PostingActive, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, results, 2, "booked posting filtered out")

	results, err = store.SearchPostings(ctx, models.SearchFilter{
		Status: models.PostingActive, EquipmentTypes: []string{"reefer", "FLATBED"}, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "reefer", results[0].ID)

	results, err = store.SearchPostings(ctx, models.SearchFilter{
		Status: models.PostingActive, OriginState: "il", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "van", results[0].ID)

	min := 1000.0
	results, err = store.SearchPostings(ctx, models.SearchFilter{
		Status: models.PostingActive, RateMin: &min, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1, "postings without a posted rate never match rate filters")
	assert.Equal(t, "van", results[0].ID)
}

func TestExpireBidsForPosting(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateBid(ctx, newTestBid("b1", "p1", "c1", models.BidPending)))
	require.NoError(t, store.CreateBid(ctx, newTestBid("b2", "p1", "c2", models.BidCountered)))
	require.NoError(t, store.CreateBid(ctx, newTestBid("b3", "p1", "c3", models.BidAccepted)))
	require.NoError(t, store.CreateBid(ctx, newTestBid("b4", "other", "c4", models.BidPending)))

	expired, err := store.ExpireBidsForPosting(ctx, "p1", models.ReasonPostingCancelled, base)
	require.NoError(t, err)
	assert.Len(t, expired, 2)

	for _, bid := range expired {
		assert.Equal(t, models.BidExpired, bid.Status)
		assert.Equal(t, models.ReasonPostingCancelled, bid.StatusReason)
	}

	accepted, err := store.GetBid(ctx, "b3")
	require.NoError(t, err)
	assert.Equal(t, models.BidAccepted, accepted.Status)

	other, err := store.GetBid(ctx, "b4")
	require.NoError(t, err)
	assert.Equal(t, models.BidPending, other.Status)
}

func TestListExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	due := newTestPosting("due", models.PostingActive)
	due.ExpiresAt = base
	require.NoError(t, store.CreatePosting(ctx, due))
	fresh := newTestPosting("fresh", models.PostingActive)
	fresh.ExpiresAt = base.Add(time.Hour)
	require.NoError(t, store.CreatePosting(ctx, fresh))

	postings, err := store.ListExpiredPostings(ctx, base)
	require.NoError(t, err)
	require.Len(t, postings, 1, "expires_at equal to now is due")
	assert.Equal(t, "due", postings[0].ID)

	dueBid := newTestBid("b1", "due", "c1", models.BidPending)
	dueBid.ExpiresAt = base
	require.NoError(t, store.CreateBid(ctx, dueBid))
	freshBid := newTestBid("b2", "due", "c2", models.BidCountered)
	freshBid.ExpiresAt = base.Add(time.Hour)
	require.NoError(t, store.CreateBid(ctx, freshBid))
	doneBid := newTestBid("b3", "due", "c3", models.BidRejected)
	doneBid.ExpiresAt = base
	require.NoError(t, store.CreateBid(ctx, doneBid))

	bids, err := store.ListExpiredBids(ctx, base)
	require.NoError(t, err)
	require.Len(t, bids, 1, "only open bids expire")
	assert.Equal(t, "b1", bids[0].ID)
}

func TestEditGuards(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	booked := newTestPosting("p1", models.PostingBooked)
	require.NoError(t, store.CreatePosting(ctx, booked))
	_, err := store.EditPosting(ctx, "p1", map[string]interface{}{"equipment_type": "REEFER"})
	assert.True(t, models.IsInvalidState(err))

	accepted := newTestBid("b1", "p1", "c1", models.BidAccepted)
	require.NoError(t, store.CreateBid(ctx, accepted))
	_, err = store.EditBid(ctx, "b1", map[string]interface{}{"driver_name": "Sam"}, base)
	assert.True(t, models.IsInvalidState(err))

	pending := newTestBid("b2", "p1", "c2", models.BidPending)
	require.NoError(t, store.CreateBid(ctx, pending))
	updated, err := store.EditBid(ctx, "b2", map[string]interface{}{"driver_name": "Sam", "truck_number": "T-42"}, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "Sam", updated.DriverName)
	assert.Equal(t, "T-42", updated.TruckNumber)
	assert.Equal(t, base.Add(time.Minute), updated.UpdatedAt)
}

func TestClonesDoNotLeakStoreState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	p := newTestPosting("p1", models.PostingActive)
	p.CarrierIDs = []string{"c1"}
	require.NoError(t, store.CreatePosting(ctx, p))

	got, err := store.GetPosting(ctx, "p1")
	require.NoError(t, err)
	got.Status = models.PostingCancelled
	got.CarrierIDs[0] = "mutated"

	again, err := store.GetPosting(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PostingActive, again.Status)
	assert.Equal(t, []string{"c1"}, again.CarrierIDs)
}
