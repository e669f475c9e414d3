package sweeper

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/freightdesk/loadboard/internal/clock"
	"github.com/freightdesk/loadboard/internal/metrics"
	"github.com/freightdesk/loadboard/internal/models"
	"github.com/freightdesk/loadboard/internal/notifier"
	"github.com/freightdesk/loadboard/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type capturedEvents struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (c *capturedEvents) Notify(ctx context.Context, event notifier.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *capturedEvents) count(eventType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type fixture struct {
	sweeper *Sweeper
	store   *repository.MemoryStore
	clock   *clock.Fake
	events  *capturedEvents
}

func newFixture() *fixture {
	f := &fixture{
		store:  repository.NewMemoryStore(),
		clock:  clock.NewFake(base),
		events: &capturedEvents{},
	}
	logger := log.New(io.Discard, "", 0)
	f.sweeper = New(f.store, f.store, f.events, f.clock, metrics.NewCollector(), logger, 60)
	return f
}

func (f *fixture) addPosting(t *testing.T, id string, expiresAt time.Time, autoRefresh bool, refreshMins int) {
	t.Helper()
	require.NoError(t, f.store.CreatePosting(context.Background(), &models.Posting{
		ID:          id,
		LoadID:      "load-" + id,
		PostingType: models.PostingBoth,
		Visibility:  models.VisibilityAll,
		RateType:    models.RateAllIn,
		PickupDate:  base.Add(24 * time.Hour),
		Status:      models.PostingActive,
		ExpiresAt:   expiresAt,
		AutoRefresh: autoRefresh,
		RefreshMins: refreshMins,
		CreatedAt:   base,
	}))
}

func (f *fixture) addBid(t *testing.T, id, postingID string, status models.BidStatus, expiresAt time.Time) {
	t.Helper()
	require.NoError(t, f.store.CreateBid(context.Background(), &models.Bid{
		ID:        id,
		PostingID: postingID,
		LoadID:    "load-" + postingID,
		CarrierID: "carrier-" + id,
		BidAmount: 1000,
		RateType:  models.RateAllIn,
		Status:    status,
		ExpiresAt: expiresAt,
		Version:   1,
		CreatedAt: base,
		UpdatedAt: base,
	}))
}

func TestSweepExpiresPostingAndCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addPosting(t, "p1", base.Add(time.Hour), false, 0)
	f.addBid(t, "b1", "p1", models.BidPending, base.Add(48*time.Hour))
	f.addBid(t, "b2", "p1", models.BidCountered, base.Add(48*time.Hour))
	f.addBid(t, "b3", "p1", models.BidWithdrawn, base.Add(48*time.Hour))

	f.clock.Advance(2 * time.Hour)
	f.sweeper.RunOnce(ctx)

	posting, err := f.store.GetPosting(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PostingExpired, posting.Status)

	for _, id := range []string{"b1", "b2"} {
		bid, err := f.store.GetBid(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BidExpired, bid.Status)
		assert.Equal(t, models.ReasonPostingExpired, bid.StatusReason)
	}
	withdrawn, err := f.store.GetBid(ctx, "b3")
	require.NoError(t, err)
	assert.Equal(t, models.BidWithdrawn, withdrawn.Status, "terminal bids stay put")

	assert.Equal(t, 1, f.events.count(notifier.EventPostingExpired))
	assert.Equal(t, 2, f.events.count(notifier.EventBidExpired))
}

func TestSweepLeavesFreshPostingsAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addPosting(t, "p1", base.Add(time.Hour), false, 0)

	f.sweeper.RunOnce(ctx)

	posting, err := f.store.GetPosting(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PostingActive, posting.Status)
	assert.Equal(t, 0, f.events.count(notifier.EventPostingExpired))
}

func TestSweepAutoRefreshExtendsDeadline(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addPosting(t, "p1", base.Add(time.Hour), true, 30)

	f.clock.Advance(90 * time.Minute)
	f.sweeper.RunOnce(ctx)

	posting, err := f.store.GetPosting(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PostingActive, posting.Status, "auto-refresh keeps the posting live")
	assert.Equal(t, f.clock.Now().Add(30*time.Minute), posting.ExpiresAt)
	assert.Equal(t, 1, f.events.count(notifier.EventPostingRefreshed))
	assert.Equal(t, 0, f.events.count(notifier.EventPostingExpired))
}

func TestSweepAutoRefreshSkippedWhenAccepted(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addPosting(t, "p1", base.Add(time.Hour), true, 30)
	f.addBid(t, "b1", "p1", models.BidAccepted, base.Add(48*time.Hour))

	f.clock.Advance(2 * time.Hour)
	f.sweeper.RunOnce(ctx)

	// an accepted bid pins the posting: no refresh, normal expiry instead
	posting, err := f.store.GetPosting(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PostingExpired, posting.Status)
	assert.Equal(t, 0, f.events.count(notifier.EventPostingRefreshed))
}

func TestSweepExpiresIndividualBids(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addPosting(t, "p1", base.Add(48*time.Hour), false, 0)
	f.addBid(t, "b1", "p1", models.BidPending, base.Add(time.Hour))
	f.addBid(t, "b2", "p1", models.BidCountered, base.Add(time.Hour))
	f.addBid(t, "b3", "p1", models.BidPending, base.Add(24*time.Hour))

	f.clock.Advance(2 * time.Hour)
	f.sweeper.RunOnce(ctx)

	posting, err := f.store.GetPosting(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PostingActive, posting.Status, "posting itself is not due")

	for _, id := range []string{"b1", "b2"} {
		bid, err := f.store.GetBid(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.BidExpired, bid.Status)
		assert.Equal(t, models.ReasonBidExpired, bid.StatusReason)
	}
	fresh, err := f.store.GetBid(ctx, "b3")
	require.NoError(t, err)
	assert.Equal(t, models.BidPending, fresh.Status)

	assert.Equal(t, 2, f.events.count(notifier.EventBidExpired))
}

// flakyBidRepo fails CompareAndSwapBid for one bid id.
type flakyBidRepo struct {
	repository.BidRepository
	failID string
}

func (r *flakyBidRepo) CompareAndSwapBid(ctx context.Context, bidID string, from, to models.BidStatus, reason string, now time.Time) (bool, error) {
	if bidID == r.failID {
		return false, errors.New("connection reset")
	}
	return r.BidRepository.CompareAndSwapBid(ctx, bidID, from, to, reason, now)
}

func TestSweepSkipsFailingItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addPosting(t, "p1", base.Add(48*time.Hour), false, 0)
	f.addBid(t, "bad", "p1", models.BidPending, base.Add(time.Hour))
	f.addBid(t, "good", "p1", models.BidPending, base.Add(time.Hour))

	logger := log.New(io.Discard, "", 0)
	flaky := &flakyBidRepo{BidRepository: f.store, failID: "bad"}
	sweeper := New(f.store, flaky, f.events, f.clock, metrics.NewCollector(), logger, 60)

	f.clock.Advance(2 * time.Hour)
	sweeper.RunOnce(ctx)

	good, err := f.store.GetBid(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, models.BidExpired, good.Status, "one bad row never blocks the rest")

	bad, err := f.store.GetBid(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, models.BidPending, bad.Status)
}

func TestSweepRaceLoserSkipsItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.addPosting(t, "p1", base.Add(time.Hour), false, 0)
	f.addBid(t, "b1", "p1", models.BidPending, base.Add(48*time.Hour))

	f.clock.Advance(2 * time.Hour)

	// a broker books the posting between the sweeper's list and its CAS
	_, _, err := f.store.AcceptBid(ctx, "p1", "b1", f.clock.Now())
	require.NoError(t, err)

	f.sweeper.RunOnce(ctx)

	posting, err := f.store.GetPosting(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PostingBooked, posting.Status, "sweep never overrides a booking")

	bid, err := f.store.GetBid(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, models.BidAccepted, bid.Status)
	assert.Equal(t, 0, f.events.count(notifier.EventPostingExpired))
}
