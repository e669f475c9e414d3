package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/freightdesk/loadboard/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// PostingRepository is the persistence contract for postings. Status writes
// go through CompareAndSwapStatus / ExtendExpiry so concurrent accept, cancel
// and sweep actions linearize on the stored status value.
type PostingRepository interface {
	CreatePosting(ctx context.Context, posting *models.Posting) error
	GetPosting(ctx context.Context, postingID string) (*models.Posting, error)
	EditPosting(ctx context.Context, postingID string, updateFields map[string]interface{}) (*models.Posting, error)
	CompareAndSwapStatus(ctx context.Context, postingID string, from, to models.PostingStatus) (bool, error)
	ExtendExpiry(ctx context.Context, postingID string, until time.Time) (bool, error)
	SearchPostings(ctx context.Context, filter models.SearchFilter) ([]models.Posting, error)
	ListExpiredPostings(ctx context.Context, now time.Time) ([]models.Posting, error)
}

const postingColumns = `id, load_id, posting_type, visibility, carrier_ids, show_rate, rate_type,
	posted_rate, rate_min, rate_max, origin_state, origin_city, dest_state, dest_city,
	equipment_type, pickup_date, status, expires_at, auto_refresh, refresh_mins, created_at`

// PostgresPostingRepository is the PostingRepository implementation for Postgres.
type PostgresPostingRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresPostingRepository creates a new PostgresPostingRepository.
func NewPostgresPostingRepository(db *pgxpool.Pool) *PostgresPostingRepository {
	return &PostgresPostingRepository{DB: db}
}

func scanPosting(row pgx.Row) (*models.Posting, error) {
	var p models.Posting
	err := row.Scan(
		&p.ID,
		&p.LoadID,
		&p.PostingType,
		&p.Visibility,
		&p.CarrierIDs,
		&p.ShowRate,
		&p.RateType,
		&p.PostedRate,
		&p.RateMin,
		&p.RateMax,
		&p.OriginState,
		&p.OriginCity,
		&p.DestState,
		&p.DestCity,
		&p.EquipmentType,
		&p.PickupDate,
		&p.Status,
		&p.ExpiresAt,
		&p.AutoRefresh,
		&p.RefreshMins,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePosting inserts a new posting.
func (r *PostgresPostingRepository) CreatePosting(ctx context.Context, posting *models.Posting) error {
	insertQuery := `INSERT INTO posting (` + postingColumns + `)
	               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`
	_, err := r.DB.Exec(
		ctx,
		insertQuery,
		posting.ID,
		posting.LoadID,
		posting.PostingType,
		posting.Visibility,
		posting.CarrierIDs,
		posting.ShowRate,
		posting.RateType,
		posting.PostedRate,
		posting.RateMin,
		posting.RateMax,
		posting.OriginState,
		posting.OriginCity,
		posting.DestState,
		posting.DestCity,
		posting.EquipmentType,
		posting.PickupDate,
		posting.Status,
		posting.ExpiresAt,
		posting.AutoRefresh,
		posting.RefreshMins,
		posting.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert posting: %w", err)
	}
	return nil
}

// GetPosting fetches a posting by id.
func (r *PostgresPostingRepository) GetPosting(ctx context.Context, postingID string) (*models.Posting, error) {
	query := `SELECT ` + postingColumns + ` FROM posting WHERE id = $1`
	posting, err := scanPosting(r.DB.QueryRow(ctx, query, postingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("posting not found")
	}
	if err != nil {
		return nil, err
	}
	return posting, nil
}

// EditPosting updates non-status fields of an ACTIVE posting. The status
// guard lives in the WHERE clause so a concurrent book/expire/cancel makes
// the update a no-op instead of mutating a terminal posting.
func (r *PostgresPostingRepository) EditPosting(ctx context.Context, postingID string, updateFields map[string]interface{}) (*models.Posting, error) {
	var updates []string
	args := []interface{}{postingID}
	argIndex := 2

	allowed := []string{
		"posting_type", "visibility", "carrier_ids", "show_rate", "rate_type",
		"posted_rate", "rate_min", "rate_max", "origin_state", "origin_city",
		"dest_state", "dest_city", "equipment_type", "pickup_date", "expires_at",
		"auto_refresh", "refresh_mins",
	}
	for _, col := range allowed {
		if value, ok := updateFields[col]; ok {
			updates = append(updates, fmt.Sprintf("%s = $%d", col, argIndex))
			args = append(args, value)
			argIndex++
		}
	}

	if len(updates) == 0 {
		return nil, models.NewValidationError("no valid fields to update")
	}

	updateQuery := fmt.Sprintf(
		"UPDATE posting SET %s WHERE id = $1 AND status = 'ACTIVE' RETURNING %s",
		strings.Join(updates, ", "), postingColumns)

	posting, err := scanPosting(r.DB.QueryRow(ctx, updateQuery, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewInvalidStateError("posting is no longer active")
	}
	if err != nil {
		return nil, err
	}
	return posting, nil
}

// CompareAndSwapStatus flips status from → to. Returns false when the stored
// status no longer matches from (lost race or terminal posting).
func (r *PostgresPostingRepository) CompareAndSwapStatus(ctx context.Context, postingID string, from, to models.PostingStatus) (bool, error) {
	tag, err := r.DB.Exec(ctx,
		`UPDATE posting SET status = $1 WHERE id = $2 AND status = $3`,
		to, postingID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExtendExpiry pushes expires_at forward on a still-ACTIVE posting.
func (r *PostgresPostingRepository) ExtendExpiry(ctx context.Context, postingID string, until time.Time) (bool, error) {
	tag, err := r.DB.Exec(ctx,
		`UPDATE posting SET expires_at = $1 WHERE id = $2 AND status = 'ACTIVE'`,
		until, postingID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SearchPostings returns postings matching the filter, most recent first,
// ties broken by lowest id. Radius filtering is applied by the service layer
// on top of this result.
func (r *PostgresPostingRepository) SearchPostings(ctx context.Context, filter models.SearchFilter) ([]models.Posting, error) {
	query := `SELECT ` + postingColumns + ` FROM posting`
	var filters []string
	var args []interface{}
	argIndex := 1

	addFilter := func(clause string, value interface{}) {
		filters = append(filters, fmt.Sprintf(clause, argIndex))
		args = append(args, value)
		argIndex++
	}

	if filter.Status != "" {
		addFilter("status = $%d", filter.Status)
	}
	if filter.OriginState != "" {
		addFilter("origin_state = $%d", filter.OriginState)
	}
	if filter.OriginCity != "" && filter.RadiusMiles == nil {
		addFilter("origin_city = $%d", filter.OriginCity)
	}
	if filter.DestState != "" {
		addFilter("dest_state = $%d", filter.DestState)
	}
	if filter.DestCity != "" {
		addFilter("dest_city = $%d", filter.DestCity)
	}
	if len(filter.EquipmentTypes) > 0 {
		addFilter("equipment_type = ANY($%d)", pq.Array(filter.EquipmentTypes))
	}
	if filter.PickupFrom != nil {
		addFilter("pickup_date >= $%d", *filter.PickupFrom)
	}
	if filter.PickupTo != nil {
		addFilter("pickup_date <= $%d", *filter.PickupTo)
	}
	if filter.RateMin != nil {
		addFilter("posted_rate >= $%d", *filter.RateMin)
	}
	if filter.RateMax != nil {
		addFilter("posted_rate <= $%d", *filter.RateMax)
	}

	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var postings []models.Posting
	for rows.Next() {
		posting, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		postings = append(postings, *posting)
	}
	return postings, nil
}

// ListExpiredPostings returns ACTIVE postings whose deadline has passed.
func (r *PostgresPostingRepository) ListExpiredPostings(ctx context.Context, now time.Time) ([]models.Posting, error) {
	query := `SELECT ` + postingColumns + ` FROM posting
	          WHERE status = 'ACTIVE' AND expires_at <= $1
	          ORDER BY expires_at ASC`
	rows, err := r.DB.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var postings []models.Posting
	for rows.Next() {
		posting, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		postings = append(postings, *posting)
	}
	return postings, nil
}
