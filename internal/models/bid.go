// Bid lifecycle state machine.
//
// Valid status graph:
//
//	(submit) ──► PENDING ──► ACCEPTED
//	                │  ▲  └──► REJECTED
//	     (counter)  ▼  │ (re-submit)
//	            COUNTERED
//	                │
//	PENDING/COUNTERED ──► WITHDRAWN / EXPIRED
//
// ACCEPTED, REJECTED, EXPIRED and WITHDRAWN are terminal states.
package models

import (
	"fmt"
	"time"
)

type (
	BidStatus string // lifecycle status of a bid
	BidAction string // a requested transition on a bid
)

const (
	BidPending   BidStatus = "PENDING"
	BidAccepted  BidStatus = "ACCEPTED"
	BidRejected  BidStatus = "REJECTED"
	BidCountered BidStatus = "COUNTERED"
	BidExpired   BidStatus = "EXPIRED"
	BidWithdrawn BidStatus = "WITHDRAWN"

	ActionSubmit   BidAction = "submit"
	ActionAccept   BidAction = "accept"
	ActionReject   BidAction = "reject"
	ActionCounter  BidAction = "counter"
	ActionWithdraw BidAction = "withdraw"
	ActionExpire   BidAction = "expire"
)

// System-generated reasons recorded on forced transitions.
const (
	ReasonPostingBooked    = "posting booked by another carrier"
	ReasonPostingCancelled = "posting cancelled by broker"
	ReasonPostingExpired   = "posting expired"
	ReasonBidExpired       = "bid expired"
)

// bidTransitions is the full (state, action) → state table. Any pair not
// listed here is an invalid transition.
var bidTransitions = map[BidStatus]map[BidAction]BidStatus{
	BidPending: {
		ActionAccept:   BidAccepted,
		ActionReject:   BidRejected,
		ActionCounter:  BidCountered,
		ActionWithdraw: BidWithdrawn,
		ActionExpire:   BidExpired,
	},
	BidCountered: {
		ActionSubmit:   BidPending, // carrier responds to the counter
		ActionWithdraw: BidWithdrawn,
		ActionExpire:   BidExpired,
	},
	// terminal states have no outgoing transitions
}

// NextBidStatus resolves the target state for (from, action). The second
// return value is false when the state machine rejects the pair.
func NextBidStatus(from BidStatus, action BidAction) (BidStatus, bool) {
	to, ok := bidTransitions[from][action]
	return to, ok
}

// Terminal reports whether a bid status has no outgoing transitions.
func (s BidStatus) Terminal() bool {
	return len(bidTransitions[s]) == 0
}

// Open reports whether a bid still participates in negotiation.
func (s BidStatus) Open() bool {
	return s == BidPending || s == BidCountered
}

// ParseBidStatus converts a raw string to a BidStatus.
func ParseBidStatus(s string) (BidStatus, error) {
	st := BidStatus(s)
	switch st {
	case BidPending, BidAccepted, BidRejected, BidCountered, BidExpired, BidWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("unknown bid status %q", s)
}

// Bid represents a carrier's proposed price and terms against a posting.
// Rows are never deleted, only status-terminated. Amount changes are
// versioned into the bid_history ledger before they are applied.
type Bid struct {
	ID           string    `json:"id"`
	PostingID    string    `json:"postingId"`
	LoadID       string    `json:"loadId"`
	CarrierID    string    `json:"carrierId"`
	BidAmount    float64   `json:"bidAmount"`
	RateType     RateType  `json:"rateType"`
	Status       BidStatus `json:"status"`
	StatusReason string    `json:"statusReason,omitempty"`
	TruckNumber  string    `json:"truckNumber,omitempty"`
	DriverName   string    `json:"driverName,omitempty"`
	DriverPhone  string    `json:"driverPhone,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BidRequest is the submit-bid payload.
type BidRequest struct {
	PostingID   string     `json:"postingId"`
	LoadID      string     `json:"loadId"`
	CarrierID   string     `json:"carrierId"`
	BidAmount   float64    `json:"bidAmount"`
	RateType    string     `json:"rateType,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	TruckNumber string     `json:"truckNumber,omitempty"`
	DriverName  string     `json:"driverName,omitempty"`
	DriverPhone string     `json:"driverPhone,omitempty"`
}

// BidUpdateRequest is the edit-bid payload, valid only while PENDING.
type BidUpdateRequest struct {
	BidAmount   *float64 `json:"bidAmount,omitempty"`
	TruckNumber *string  `json:"truckNumber,omitempty"`
	DriverName  *string  `json:"driverName,omitempty"`
	DriverPhone *string  `json:"driverPhone,omitempty"`
}

// BidOffer is one entry of the append-only negotiation ledger: the amount
// and status a bid held before an amount-changing transition.
type BidOffer struct {
	BidID     string    `json:"-"`
	Version   int       `json:"version"`
	BidAmount float64   `json:"bidAmount"`
	Status    BidStatus `json:"status"`
	Actor     string    `json:"actor"` // "carrier" or "broker"
	CreatedAt time.Time `json:"createdAt"`
}
