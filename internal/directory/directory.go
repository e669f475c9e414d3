// Package directory exposes the external collaborators the engine consumes
// at their interface boundary: load record lookup, carrier lookup and the
// radius-distance predicate. The engine never owns these records.
package directory

import "context"

// Carrier is the slice of a CRM carrier record the engine needs for
// visibility checks.
type Carrier struct {
	ID        string
	Internal  bool // part of the broker's own fleet
	Preferred bool
}

// LoadDirectory resolves load ids owned by the surrounding application.
type LoadDirectory interface {
	LoadExists(ctx context.Context, loadID string) (bool, error)
}

// CarrierDirectory resolves carrier records for bid visibility checks.
type CarrierDirectory interface {
	GetCarrier(ctx context.Context, carrierID string) (*Carrier, error)
}

// DistanceService answers the radius-search predicate. Geocoding and
// distance math live entirely behind this boundary.
type DistanceService interface {
	WithinRadius(ctx context.Context, fromCity, fromState, toCity, toState string, miles float64) (bool, error)
}
