package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promoplace/backend/internal/models"
)

const dealColumns = `
	id, advertiser_user_id, publisher_user_id, creator_user_id, initiator_side,
	channel_id, listing_id, listing_snapshot, brief,
	escrow_status, escrow_amount_nano, escrow_currency, escrow_payment_address, escrow_expires_at,
	scheduled_at, published_message_id, published_at, delivery_verified_at, must_remain_until,
	idle_expires_at, creative_deadline_at, admin_review_deadline_at, payment_deadline_at, admin_review_notified_at,
	last_activity_at, stalled_at, cancel_reason, delivery_error, created_at, updated_at`

type DealRepo struct {
	pool *pgxpool.Pool
}

func NewDealRepo(pool *pgxpool.Pool) *DealRepo {
	return &DealRepo{pool: pool}
}

// Pool exposes the underlying pool for transactional callers (the state
// machine opens its own transactions around SELECT ... FOR UPDATE).
func (r *DealRepo) Pool() *pgxpool.Pool { return r.pool }

func scanDeal(row pgx.Row) (*models.Deal, error) {
	var d models.Deal
	var snapshot []byte
	err := row.Scan(
		&d.ID, &d.AdvertiserUserID, &d.PublisherUserID, &d.CreatorUserID, &d.InitiatorSide,
		&d.ChannelID, &d.ListingID, &snapshot, &d.Brief,
		&d.EscrowStatus, &d.EscrowAmountNano, &d.EscrowCurrency, &d.EscrowPaymentAddress, &d.EscrowExpiresAt,
		&d.ScheduledAt, &d.PublishedMessageID, &d.PublishedAt, &d.DeliveryVerifiedAt, &d.MustRemainUntil,
		&d.IdleExpiresAt, &d.CreativeDeadlineAt, &d.AdminReviewDeadlineAt, &d.PaymentDeadlineAt, &d.AdminReviewNotifiedAt,
		&d.LastActivityAt, &d.StalledAt, &d.CancelReason, &d.DeliveryError, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snapshot, &d.ListingSnapshot); err != nil {
		return nil, fmt.Errorf("decode listing snapshot: %w", err)
	}
	return &d, nil
}

func (r *DealRepo) Create(ctx context.Context, d *models.Deal) error {
	snapshot, err := json.Marshal(d.ListingSnapshot)
	if err != nil {
		return fmt.Errorf("encode listing snapshot: %w", err)
	}
	return r.pool.QueryRow(ctx, `
		INSERT INTO deals (advertiser_user_id, publisher_user_id, creator_user_id, initiator_side,
		                   channel_id, listing_id, listing_snapshot, brief,
		                   escrow_status, escrow_amount_nano, escrow_currency, scheduled_at, idle_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::deals_escrow_status_enum, $10, $11, $12, $13)
		RETURNING id, last_activity_at, created_at, updated_at
	`, d.AdvertiserUserID, d.PublisherUserID, d.CreatorUserID, d.InitiatorSide,
		d.ChannelID, d.ListingID, snapshot, d.Brief,
		d.EscrowStatus, d.EscrowAmountNano, d.EscrowCurrency, d.ScheduledAt, d.IdleExpiresAt,
	).Scan(&d.ID, &d.LastActivityAt, &d.CreatedAt, &d.UpdatedAt)
}

func (r *DealRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	return scanDeal(r.pool.QueryRow(ctx, `SELECT`+dealColumns+` FROM deals WHERE id = $1`, id))
}

// GetByIDForUpdate loads a deal inside tx under a row lock, serializing all
// transitions for that deal.
func (r *DealRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Deal, error) {
	return scanDeal(tx.QueryRow(ctx, `SELECT`+dealColumns+` FROM deals WHERE id = $1 FOR UPDATE`, id))
}

// UpdateTransition persists the mutable state-machine fields inside tx.
func (r *DealRepo) UpdateTransition(ctx context.Context, tx pgx.Tx, d *models.Deal) error {
	_, err := tx.Exec(ctx, `
		UPDATE deals SET
			escrow_status = $2::deals_escrow_status_enum,
			escrow_payment_address = $3,
			escrow_expires_at = $4,
			scheduled_at = $5,
			published_message_id = $6,
			published_at = $7,
			delivery_verified_at = $8,
			must_remain_until = $9,
			idle_expires_at = $10,
			creative_deadline_at = $11,
			admin_review_deadline_at = $12,
			payment_deadline_at = $13,
			admin_review_notified_at = $14,
			last_activity_at = now(),
			stalled_at = $15,
			cancel_reason = $16,
			delivery_error = $17,
			brief = $18,
			updated_at = now()
		WHERE id = $1
	`, d.ID, d.EscrowStatus, d.EscrowPaymentAddress, d.EscrowExpiresAt,
		d.ScheduledAt, d.PublishedMessageID, d.PublishedAt, d.DeliveryVerifiedAt, d.MustRemainUntil,
		d.IdleExpiresAt, d.CreativeDeadlineAt, d.AdminReviewDeadlineAt, d.PaymentDeadlineAt, d.AdminReviewNotifiedAt,
		d.StalledAt, d.CancelReason, d.DeliveryError, d.Brief)
	return err
}

// SetDeliveryError records a posting or verification failure outside the
// state machine; the deal's status is untouched.
func (r *DealRepo) SetDeliveryError(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deals SET delivery_error = $2, updated_at = now() WHERE id = $1
	`, id, msg)
	return err
}

// SetDeliveryVerified stamps a successful delivery check.
func (r *DealRepo) SetDeliveryVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE deals SET delivery_verified_at = $2, delivery_error = NULL, updated_at = now() WHERE id = $1
	`, id, at)
	return err
}

func statusStrings(statuses []models.EscrowStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func (r *DealRepo) listDeals(ctx context.Context, query string, args ...any) ([]models.Deal, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []models.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, rows.Err()
}

// DealFilter narrows ListForUser. Zero limit defaults to 20.
type DealFilter struct {
	Status *string
	Side   string // "advertiser", "publisher" or empty for both
	Limit  int
	Offset int
}

// ListForUser returns deals where the user is a participant, newest first.
func (r *DealRepo) ListForUser(ctx context.Context, userID uuid.UUID, f DealFilter) ([]models.Deal, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}

	cond := `(advertiser_user_id = $1 OR publisher_user_id = $1)`
	switch f.Side {
	case "advertiser":
		cond = `advertiser_user_id = $1`
	case "publisher":
		cond = `publisher_user_id = $1`
	}

	args := []any{userID}
	if f.Status != nil {
		args = append(args, *f.Status)
		cond += fmt.Sprintf(` AND escrow_status::text = $%d`, len(args))
	}
	args = append(args, f.Limit, f.Offset)

	return r.listDeals(ctx, fmt.Sprintf(`
		SELECT`+dealColumns+` FROM deals
		WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d
	`, cond, len(args)-1, len(args)), args...)
}

// ListByStatus returns deals currently in any of the given statuses.
func (r *DealRepo) ListByStatus(ctx context.Context, statuses []models.EscrowStatus, limit int) ([]models.Deal, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.listDeals(ctx, `
		SELECT`+dealColumns+` FROM deals
		WHERE escrow_status::text = ANY($1)
		ORDER BY last_activity_at ASC LIMIT $2
	`, statusStrings(statuses), limit)
}

// ListByDepositAddress returns monitored deals bound to a deposit address.
func (r *DealRepo) ListByDepositAddress(ctx context.Context, address string, statuses []models.EscrowStatus) ([]models.Deal, error) {
	return r.listDeals(ctx, `
		SELECT`+dealColumns+` FROM deals
		WHERE escrow_payment_address = $1 AND escrow_status::text = ANY($2)
		ORDER BY created_at ASC
	`, address, statusStrings(statuses))
}

// DeadlineField names accepted by ListPastDeadline. Kept as an allowlist so
// callers cannot inject arbitrary SQL identifiers.
var deadlineFields = map[string]bool{
	"idle_expires_at":          true,
	"creative_deadline_at":     true,
	"admin_review_deadline_at": true,
	"payment_deadline_at":      true,
	"must_remain_until":        true,
	"scheduled_at":             true,
}

// ListPastDeadline returns deals in the given status whose deadline field is
// already in the past.
func (r *DealRepo) ListPastDeadline(ctx context.Context, field string, status models.EscrowStatus, limit int) ([]models.Deal, error) {
	if !deadlineFields[field] {
		return nil, fmt.Errorf("unknown deadline field %q", field)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.listDeals(ctx, fmt.Sprintf(`
		SELECT`+dealColumns+` FROM deals
		WHERE escrow_status::text = $1 AND %s IS NOT NULL AND %s < now()
		ORDER BY %s ASC LIMIT $2
	`, field, field, field), status, limit)
}

// ListApproachingDeadline returns deals in the given status whose deadline
// falls within the next `within` interval, for pre-deadline reminders.
func (r *DealRepo) ListApproachingDeadline(ctx context.Context, field string, status models.EscrowStatus, withinSeconds int, limit int) ([]models.Deal, error) {
	if !deadlineFields[field] {
		return nil, fmt.Errorf("unknown deadline field %q", field)
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return r.listDeals(ctx, fmt.Sprintf(`
		SELECT`+dealColumns+` FROM deals
		WHERE escrow_status::text = $1
		  AND %s IS NOT NULL
		  AND %s > now()
		  AND %s < now() + ($2 || ' seconds')::interval
		ORDER BY %s ASC LIMIT $3
	`, field, field, field, field), status, fmt.Sprintf("%d", withinSeconds), limit)
}

// DistinctChannelIDs returns channel ids with at least one non-terminal deal,
// used by the admin-sync worker.
func (r *DealRepo) DistinctChannelIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT channel_id FROM deals
		WHERE escrow_status NOT IN ('RELEASED', 'REFUNDED', 'CANCELED')
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
