package models

import (
	"fmt"
	"time"
)

type (
	PostingType   string // which carrier population may see a posting
	Visibility    string // carrier audience rule
	RateType      string // how a rate is quoted
	PostingStatus string // lifecycle status of a posting
)

const (
	PostingInternal PostingType = "INTERNAL"
	PostingExternal PostingType = "EXTERNAL"
	PostingBoth     PostingType = "BOTH"

	VisibilityAll       Visibility = "ALL_CARRIERS"
	VisibilityPreferred Visibility = "PREFERRED_ONLY"
	VisibilitySpecific  Visibility = "SPECIFIC_CARRIERS"

	RateAllIn   RateType = "ALL_IN"
	RatePerMile RateType = "PER_MILE"

	PostingActive    PostingStatus = "ACTIVE"
	PostingBooked    PostingStatus = "BOOKED"
	PostingExpired   PostingStatus = "EXPIRED"
	PostingCancelled PostingStatus = "CANCELLED"
)

// postingTransitions lists every allowed (from → to) pair.
// BOOKED, EXPIRED and CANCELLED are terminal.
var postingTransitions = map[PostingStatus][]PostingStatus{
	PostingActive: {PostingBooked, PostingExpired, PostingCancelled},
}

// IsPostingTransitionAllowed returns true when moving from → to is permitted.
func IsPostingTransitionAllowed(from, to PostingStatus) bool {
	for _, s := range postingTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a posting status has no outgoing transitions.
func (s PostingStatus) Terminal() bool {
	return len(postingTransitions[s]) == 0
}

// ParsePostingStatus converts a raw string to a PostingStatus.
func ParsePostingStatus(s string) (PostingStatus, error) {
	st := PostingStatus(s)
	switch st {
	case PostingActive, PostingBooked, PostingExpired, PostingCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown posting status %q", s)
}

// ParsePostingType converts a raw string to a PostingType.
func ParsePostingType(s string) (PostingType, error) {
	pt := PostingType(s)
	switch pt {
	case PostingInternal, PostingExternal, PostingBoth:
		return pt, nil
	}
	return "", fmt.Errorf("unknown posting type %q", s)
}

// ParseVisibility converts a raw string to a Visibility.
func ParseVisibility(s string) (Visibility, error) {
	v := Visibility(s)
	switch v {
	case VisibilityAll, VisibilityPreferred, VisibilitySpecific:
		return v, nil
	}
	return "", fmt.Errorf("unknown visibility %q", s)
}

// ParseRateType converts a raw string to a RateType.
func ParseRateType(s string) (RateType, error) {
	rt := RateType(s)
	switch rt {
	case RateAllIn, RatePerMile:
		return rt, nil
	}
	return "", fmt.Errorf("unknown rate type %q", s)
}

// Posting represents a broker's offer of a load for carrier bidding.
// Status is derived: only the accept path, CancelPosting and the sweeper
// write it, always through a compare-and-swap on the current value.
type Posting struct {
	ID            string        `json:"id"`
	LoadID        string        `json:"loadId"`
	PostingType   PostingType   `json:"postingType"`
	Visibility    Visibility    `json:"visibility"`
	CarrierIDs    []string      `json:"carrierIds,omitempty"`
	ShowRate      bool          `json:"showRate"`
	RateType      RateType      `json:"rateType"`
	PostedRate    *float64      `json:"postedRate,omitempty"`
	RateMin       *float64      `json:"rateMin,omitempty"`
	RateMax       *float64      `json:"rateMax,omitempty"`
	OriginState   string        `json:"originState"`
	OriginCity    string        `json:"originCity"`
	DestState     string        `json:"destState"`
	DestCity      string        `json:"destCity"`
	EquipmentType string        `json:"equipmentType"`
	PickupDate    time.Time     `json:"pickupDate"`
	Status        PostingStatus `json:"status"`
	ExpiresAt     time.Time     `json:"expiresAt"`
	AutoRefresh   bool          `json:"autoRefresh"`
	RefreshMins   int           `json:"refreshInterval"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// HasRate reports whether the posting discloses anything to counter against:
// a shown fixed rate, or an advisory range.
func (p *Posting) HasRate() bool {
	if p.ShowRate && p.PostedRate != nil {
		return true
	}
	return p.RateMin != nil || p.RateMax != nil
}

// PostingRequest is the create-posting payload. Lane fields are denormalized
// from the referenced load so the board can be searched without joins.
type PostingRequest struct {
	LoadID        string     `json:"loadId"`
	PostingType   string     `json:"postingType"`
	Visibility    string     `json:"visibility"`
	CarrierIDs    []string   `json:"carrierIds,omitempty"`
	ShowRate      bool       `json:"showRate"`
	RateType      string     `json:"rateType,omitempty"`
	PostedRate    *float64   `json:"postedRate,omitempty"`
	RateMin       *float64   `json:"rateMin,omitempty"`
	RateMax       *float64   `json:"rateMax,omitempty"`
	OriginState   string     `json:"originState"`
	OriginCity    string     `json:"originCity"`
	DestState     string     `json:"destState"`
	DestCity      string     `json:"destCity"`
	EquipmentType string     `json:"equipmentType"`
	PickupDate    *time.Time `json:"pickupDate,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	AutoRefresh   bool       `json:"autoRefresh"`
	RefreshMins   int        `json:"refreshInterval,omitempty"`
}

// PostingUpdateRequest is the partial-update payload. Nil fields are left
// untouched. Status is deliberately absent: it is derived, never set here.
type PostingUpdateRequest struct {
	PostingType   *string    `json:"postingType,omitempty"`
	Visibility    *string    `json:"visibility,omitempty"`
	CarrierIDs    []string   `json:"carrierIds,omitempty"`
	ShowRate      *bool      `json:"showRate,omitempty"`
	RateType      *string    `json:"rateType,omitempty"`
	PostedRate    *float64   `json:"postedRate,omitempty"`
	RateMin       *float64   `json:"rateMin,omitempty"`
	RateMax       *float64   `json:"rateMax,omitempty"`
	EquipmentType *string    `json:"equipmentType,omitempty"`
	PickupDate    *time.Time `json:"pickupDate,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	AutoRefresh   *bool      `json:"autoRefresh,omitempty"`
	RefreshMins   *int       `json:"refreshInterval,omitempty"`
}

// SearchFilter narrows the board query. Nil/zero fields are ignored.
// RadiusMiles requires OriginCity as the center and a configured distance
// collaborator; without one the search fails closed.
type SearchFilter struct {
	OriginState    string
	OriginCity     string
	DestState      string
	DestCity       string
	EquipmentTypes []string
	PickupFrom     *time.Time
	PickupTo       *time.Time
	RateMin        *float64
	RateMax        *float64
	RadiusMiles    *float64
	Status         PostingStatus
	Limit          int
	Offset         int
}
