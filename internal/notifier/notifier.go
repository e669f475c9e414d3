// Package notifier emits lifecycle events for carriers and brokers. Delivery
// (email/SMS fan-out) happens downstream; the engine publishes and moves on,
// a transition never blocks or fails on notification problems.
package notifier

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// Event types published on bid/posting transitions.
const (
	EventPostingCreated   = "POSTING_CREATED"
	EventPostingBooked    = "POSTING_BOOKED"
	EventPostingExpired   = "POSTING_EXPIRED"
	EventPostingCancelled = "POSTING_CANCELLED"
	EventPostingRefreshed = "POSTING_REFRESHED"
	EventBidSubmitted     = "BID_SUBMITTED"
	EventBidAccepted      = "BID_ACCEPTED"
	EventBidRejected      = "BID_REJECTED"
	EventBidCountered     = "BID_COUNTERED"
	EventBidWithdrawn     = "BID_WITHDRAWN"
	EventBidExpired       = "BID_EXPIRED"
)

// Event is the payload delivered to the notification dispatcher.
type Event struct {
	Type      string `json:"type"`
	PostingID string `json:"postingId,omitempty"`
	BidID     string `json:"bidId,omitempty"`
	CarrierID string `json:"carrierId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Notifier receives lifecycle events. Implementations must not block the
// caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// RedisNotifier publishes events to a redis channel per event type,
// prefixed "loadboard.".
type RedisNotifier struct {
	rdb    *redis.Client
	logger *log.Logger
}

// NewRedisNotifier creates a new RedisNotifier.
func NewRedisNotifier(rdb *redis.Client, logger *log.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, logger: logger}
}

// Notify publishes the event. Failures are logged and dropped (non-fatal).
func (n *RedisNotifier) Notify(ctx context.Context, event Event) {
	payload, _ := json.Marshal(event)
	channel := "loadboard." + event.Type
	if err := n.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		n.logger.Printf("[notifier] publish %s failed: %v", event.Type, err)
	}
}

// Nop discards all events. Used in tests and when redis is not configured.
type Nop struct{}

func (Nop) Notify(ctx context.Context, event Event) {}
