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
)

// BidRepository is the persistence contract for bids. Every status write is
// a compare-and-swap against the current status; AcceptBid is the single
// atomic unit that books a posting, accepts the winning bid and cascades
// rejection to its open siblings.
type BidRepository interface {
	CreateBid(ctx context.Context, bid *models.Bid) error
	GetBid(ctx context.Context, bidID string) (*models.Bid, error)
	ListPostingBids(ctx context.Context, postingID string, limit, offset int) ([]models.Bid, error)
	ListCarrierBids(ctx context.Context, carrierID string, limit, offset int) ([]models.Bid, error)
	HasAcceptedBid(ctx context.Context, postingID string) (bool, error)
	CompareAndSwapBid(ctx context.Context, bidID string, from, to models.BidStatus, reason string, now time.Time) (bool, error)
	ApplyOffer(ctx context.Context, bidID string, from, to models.BidStatus, amount float64, actor string, now time.Time) (*models.Bid, error)
	EditBid(ctx context.Context, bidID string, updateFields map[string]interface{}, now time.Time) (*models.Bid, error)
	AcceptBid(ctx context.Context, postingID, bidID string, now time.Time) (*models.Bid, []models.Bid, error)
	ExpireBidsForPosting(ctx context.Context, postingID, reason string, now time.Time) ([]models.Bid, error)
	ListExpiredBids(ctx context.Context, now time.Time) ([]models.Bid, error)
	GetBidHistory(ctx context.Context, bidID string) ([]models.BidOffer, error)
}

const bidColumns = `id, posting_id, load_id, carrier_id, bid_amount, rate_type, status, status_reason,
	truck_number, driver_name, driver_phone, expires_at, version, created_at, updated_at`

// PostgresBidRepository is the BidRepository implementation for Postgres.
type PostgresBidRepository struct {
	DB *pgxpool.Pool
}

// NewPostgresBidRepository creates a new PostgresBidRepository.
func NewPostgresBidRepository(db *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{DB: db}
}

func scanBid(row pgx.Row) (*models.Bid, error) {
	var b models.Bid
	err := row.Scan(
		&b.ID,
		&b.PostingID,
		&b.LoadID,
		&b.CarrierID,
		&b.BidAmount,
		&b.RateType,
		&b.Status,
		&b.StatusReason,
		&b.TruckNumber,
		&b.DriverName,
		&b.DriverPhone,
		&b.ExpiresAt,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBid inserts a new bid.
func (r *PostgresBidRepository) CreateBid(ctx context.Context, bid *models.Bid) error {
	insertQuery := `INSERT INTO bid (` + bidColumns + `)
	               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.DB.Exec(
		ctx,
		insertQuery,
		bid.ID,
		bid.PostingID,
		bid.LoadID,
		bid.CarrierID,
		bid.BidAmount,
		bid.RateType,
		bid.Status,
		bid.StatusReason,
		bid.TruckNumber,
		bid.DriverName,
		bid.DriverPhone,
		bid.ExpiresAt,
		bid.Version,
		bid.CreatedAt,
		bid.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// GetBid fetches a bid by id.
func (r *PostgresBidRepository) GetBid(ctx context.Context, bidID string) (*models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bid WHERE id = $1`
	bid, err := scanBid(r.DB.QueryRow(ctx, query, bidID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("bid not found")
	}
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// ListPostingBids returns the bids on a posting, newest first.
func (r *PostgresBidRepository) ListPostingBids(ctx context.Context, postingID string, limit, offset int) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bid
	          WHERE posting_id = $1
	          ORDER BY created_at DESC, id ASC
	          LIMIT $2 OFFSET $3`
	return r.queryBids(ctx, query, postingID, limit, offset)
}

// ListCarrierBids returns a carrier's bids, newest first.
func (r *PostgresBidRepository) ListCarrierBids(ctx context.Context, carrierID string, limit, offset int) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bid
	          WHERE carrier_id = $1
	          ORDER BY created_at DESC, id ASC
	          LIMIT $2 OFFSET $3`
	return r.queryBids(ctx, query, carrierID, limit, offset)
}

func (r *PostgresBidRepository) queryBids(ctx context.Context, query string, args ...interface{}) ([]models.Bid, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, *bid)
	}
	return bids, nil
}

// HasAcceptedBid reports whether a posting already has an ACCEPTED bid.
func (r *PostgresBidRepository) HasAcceptedBid(ctx context.Context, postingID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM bid WHERE posting_id = $1 AND status = 'ACCEPTED')`
	err := r.DB.QueryRow(ctx, query, postingID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CompareAndSwapBid flips a bid's status from → to with a reason. Returns
// false when the stored status no longer matches from.
func (r *PostgresBidRepository) CompareAndSwapBid(ctx context.Context, bidID string, from, to models.BidStatus, reason string, now time.Time) (bool, error) {
	tag, err := r.DB.Exec(ctx,
		`UPDATE bid SET status = $1, status_reason = $2, updated_at = $3 WHERE id = $4 AND status = $5`,
		to, reason, now, bidID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ApplyOffer records an amount-changing transition (broker counter, carrier
// re-submit, carrier amount edit). The bid's previous amount and status are
// appended to bid_history before the row is mutated, so the negotiation
// trail is never lost.
func (r *PostgresBidRepository) ApplyOffer(ctx context.Context, bidID string, from, to models.BidStatus, amount float64, actor string, now time.Time) (*models.Bid, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := scanBid(tx.QueryRow(ctx,
		`SELECT `+bidColumns+` FROM bid WHERE id = $1 FOR UPDATE`, bidID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewNotFoundError("bid not found")
	}
	if err != nil {
		return nil, err
	}
	if current.Status != from {
		return nil, models.NewInvalidTransitionError(
			fmt.Sprintf("bid is %s, not %s", current.Status, from))
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO bid_history (bid_id, version, bid_amount, status, actor, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		current.ID, current.Version, current.BidAmount, current.Status, actor, now)
	if err != nil {
		return nil, err
	}

	updated, err := scanBid(tx.QueryRow(ctx,
		`UPDATE bid SET status = $1, bid_amount = $2, status_reason = '', version = version + 1, updated_at = $3
		 WHERE id = $4 AND status = $5
		 RETURNING `+bidColumns, to, amount, now, bidID, from))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// EditBid updates dispatch metadata on a PENDING bid. Amount changes go
// through ApplyOffer so they are history-versioned.
func (r *PostgresBidRepository) EditBid(ctx context.Context, bidID string, updateFields map[string]interface{}, now time.Time) (*models.Bid, error) {
	var updates []string
	args := []interface{}{bidID, now}
	argIndex := 3

	for _, col := range []string{"truck_number", "driver_name", "driver_phone", "expires_at"} {
		if value, ok := updateFields[col]; ok {
			updates = append(updates, fmt.Sprintf("%s = $%d", col, argIndex))
			args = append(args, value)
			argIndex++
		}
	}

	if len(updates) == 0 {
		return nil, models.NewValidationError("no valid fields to update")
	}

	updates = append(updates, "updated_at = $2")
	updateQuery := fmt.Sprintf(
		"UPDATE bid SET %s WHERE id = $1 AND status = 'PENDING' RETURNING %s",
		strings.Join(updates, ", "), bidColumns)

	bid, err := scanBid(r.DB.QueryRow(ctx, updateQuery, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.NewInvalidStateError("bid is no longer pending")
	}
	if err != nil {
		return nil, err
	}
	return bid, nil
}

// AcceptBid books the posting, accepts the target bid and cascade-rejects
// its open siblings as one transaction. The posting CAS decides the race:
// a caller that loses it gets AlreadyBooked (someone else booked) or
// InvalidState (expired/cancelled meanwhile).
func (r *PostgresBidRepository) AcceptBid(ctx context.Context, postingID, bidID string, now time.Time) (*models.Bid, []models.Bid, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE posting SET status = 'BOOKED' WHERE id = $1 AND status = 'ACTIVE'`,
		postingID)
	if err != nil {
		return nil, nil, err
	}
	if tag.RowsAffected() == 0 {
		var status models.PostingStatus
		err = r.DB.QueryRow(ctx, `SELECT status FROM posting WHERE id = $1`, postingID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, models.NewNotFoundError("posting not found")
		}
		if err != nil {
			return nil, nil, err
		}
		if status == models.PostingBooked {
			return nil, nil, models.NewAlreadyBookedError()
		}
		return nil, nil, models.NewInvalidStateError(fmt.Sprintf("posting is %s", status))
	}

	accepted, err := scanBid(tx.QueryRow(ctx,
		`UPDATE bid SET status = 'ACCEPTED', status_reason = '', updated_at = $1
		 WHERE id = $2 AND posting_id = $3 AND status = 'PENDING'
		 RETURNING `+bidColumns, now, bidID, postingID))
	if errors.Is(err, pgx.ErrNoRows) {
		// rollback releases the posting CAS
		return nil, nil, models.NewInvalidTransitionError("bid is not pending on this posting")
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := tx.Query(ctx,
		`UPDATE bid SET status = 'REJECTED', status_reason = $1, updated_at = $2
		 WHERE posting_id = $3 AND id <> $4 AND status IN ('PENDING', 'COUNTERED')
		 RETURNING `+bidColumns,
		models.ReasonPostingBooked, now, postingID, bidID)
	if err != nil {
		return nil, nil, err
	}

	var rejected []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			rows.Close()
			return nil, nil, err
		}
		rejected = append(rejected, *bid)
	}
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return accepted, rejected, nil
}

// ExpireBidsForPosting force-transitions every open bid on a posting to
// EXPIRED. Used by cancellation and the sweeper cascade.
func (r *PostgresBidRepository) ExpireBidsForPosting(ctx context.Context, postingID, reason string, now time.Time) ([]models.Bid, error) {
	rows, err := r.DB.Query(ctx,
		`UPDATE bid SET status = 'EXPIRED', status_reason = $1, updated_at = $2
		 WHERE posting_id = $3 AND status IN ('PENDING', 'COUNTERED')
		 RETURNING `+bidColumns,
		reason, now, postingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *bid)
	}
	return expired, nil
}

// ListExpiredBids returns open bids whose own deadline has passed.
func (r *PostgresBidRepository) ListExpiredBids(ctx context.Context, now time.Time) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bid
	          WHERE status IN ('PENDING', 'COUNTERED') AND expires_at <= $1
	          ORDER BY expires_at ASC`
	return r.queryBids(ctx, query, now)
}

// GetBidHistory returns the negotiation ledger for a bid, newest first.
func (r *PostgresBidRepository) GetBidHistory(ctx context.Context, bidID string) ([]models.BidOffer, error) {
	query := `SELECT bid_id, version, bid_amount, status, actor, created_at
	          FROM bid_history WHERE bid_id = $1 ORDER BY version DESC`
	rows, err := r.DB.Query(ctx, query, bidID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []models.BidOffer
	for rows.Next() {
		var offer models.BidOffer
		if err := rows.Scan(
			&offer.BidID,
			&offer.Version,
			&offer.BidAmount,
			&offer.Status,
			&offer.Actor,
			&offer.CreatedAt); err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, nil
}
