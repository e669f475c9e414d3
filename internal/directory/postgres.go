package directory

import (
	"context"
	"errors"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresDirectory reads the load and carrier tables owned by the CRM side
// of the application. Satisfies LoadDirectory and CarrierDirectory.
type PostgresDirectory struct {
	DB *pgxpool.Pool
}

// NewPostgresDirectory creates a new PostgresDirectory.
func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{DB: db}
}

// LoadExists checks whether a load record exists.
func (d *PostgresDirectory) LoadExists(ctx context.Context, loadID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM load WHERE id = $1)`
	err := d.DB.QueryRow(ctx, query, loadID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// WithinRadius reports whether two cities lie within miles of each other,
// using the city_location gazetteer. A city missing from the gazetteer
// excludes the pair rather than guessing.
func (d *PostgresDirectory) WithinRadius(ctx context.Context, fromCity, fromState, toCity, toState string, miles float64) (bool, error) {
	fromLat, fromLon, ok, err := d.lookupCity(ctx, fromCity, fromState)
	if err != nil || !ok {
		return false, err
	}
	toLat, toLon, ok, err := d.lookupCity(ctx, toCity, toState)
	if err != nil || !ok {
		return false, err
	}
	return haversineMiles(fromLat, fromLon, toLat, toLon) <= miles, nil
}

func (d *PostgresDirectory) lookupCity(ctx context.Context, city, state string) (lat, lon float64, ok bool, err error) {
	query := `SELECT latitude, longitude FROM city_location WHERE LOWER(city) = LOWER($1) AND LOWER(state) = LOWER($2)`
	err = d.DB.QueryRow(ctx, query, city, state).Scan(&lat, &lon)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, err
	}
	return lat, lon, true, nil
}

const earthRadiusMiles = 3958.8

func haversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMiles * math.Asin(math.Sqrt(a))
}

// GetCarrier fetches the visibility-relevant slice of a carrier record.
// Returns (nil, nil) when the carrier is unknown.
func (d *PostgresDirectory) GetCarrier(ctx context.Context, carrierID string) (*Carrier, error) {
	var c Carrier
	query := `SELECT id, is_internal, is_preferred FROM carrier WHERE id = $1`
	err := d.DB.QueryRow(ctx, query, carrierID).Scan(&c.ID, &c.Internal, &c.Preferred)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
